package services

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// BlobStore writes named blobs to cold storage. Blob writes happen
// before the store commits that reference them, so an orphaned blob is
// the worst a failure can leave behind.
type BlobStore interface {
	PutBlob(ctx context.Context, key, contentType string, body []byte, metadata map[string]string) error
}

// InitializeS3Client initializes the S3 client
func InitializeS3Client() *s3.Client {
	cfg, err := config.LoadDefaultConfig(context.TODO(), config.WithRegion(os.Getenv("AWS_REGION")))
	if err != nil {
		log.Fatalf("Failed to load AWS config: %v", err)
	}
	return s3.NewFromConfig(cfg)
}

// S3BlobService implements BlobStore against one bucket and carries the
// presigned-URL helpers for profile photo upload/read.
type S3BlobService struct {
	Client *s3.Client
	Bucket string
}

func (sbs *S3BlobService) PutBlob(ctx context.Context, key, contentType string, body []byte, metadata map[string]string) error {
	_, err := sbs.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(sbs.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
		Metadata:    metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to write blob '%s': %w", key, err)
	}
	return nil
}

// GenerateUploadURL generates a presigned URL for uploading a file
func (sbs *S3BlobService) GenerateUploadURL(ctx context.Context, fileName, fileType string) (string, string, error) {
	key := "profile-pics/" + time.Now().Format("20060102150405") + "-" + fileName
	params := &s3.PutObjectInput{
		Bucket:      aws.String(sbs.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(fileType),
	}
	presigner := s3.NewPresignClient(sbs.Client)
	presignedURL, err := presigner.PresignPutObject(ctx, params, s3.WithPresignExpires(5*time.Minute))
	if err != nil {
		return "", "", err
	}
	return presignedURL.URL, key, nil
}

// GenerateReadURL generates a presigned URL for reading a file
func (sbs *S3BlobService) GenerateReadURL(ctx context.Context, key string) (string, error) {
	params := &s3.GetObjectInput{
		Bucket: aws.String(sbs.Bucket),
		Key:    aws.String(key),
	}
	presigner := s3.NewPresignClient(sbs.Client)
	presignedURL, err := presigner.PresignGetObject(ctx, params, s3.WithPresignExpires(5*time.Minute))
	if err != nil {
		return "", err
	}
	return presignedURL.URL, nil
}

// StoredBlob is one blob held by MemoryBlobStore.
type StoredBlob struct {
	ContentType string
	Body        []byte
	Metadata    map[string]string
}

// MemoryBlobStore keeps blobs in memory for tests and local runs.
type MemoryBlobStore struct {
	mu    sync.Mutex
	blobs map[string]StoredBlob

	// PutErr, when set, fails every PutBlob with that error.
	PutErr error
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: map[string]StoredBlob{}}
}

func (mbs *MemoryBlobStore) PutBlob(ctx context.Context, key, contentType string, body []byte, metadata map[string]string) error {
	mbs.mu.Lock()
	defer mbs.mu.Unlock()

	if mbs.PutErr != nil {
		return mbs.PutErr
	}
	bodyCopy := append([]byte(nil), body...)
	metadataCopy := make(map[string]string, len(metadata))
	for k, v := range metadata {
		metadataCopy[k] = v
	}
	mbs.blobs[key] = StoredBlob{ContentType: contentType, Body: bodyCopy, Metadata: metadataCopy}
	return nil
}

// Blob returns the stored blob for key.
func (mbs *MemoryBlobStore) Blob(key string) (StoredBlob, bool) {
	mbs.mu.Lock()
	defer mbs.mu.Unlock()
	blob, ok := mbs.blobs[key]
	return blob, ok
}

// Keys lists stored blob keys in sorted order.
func (mbs *MemoryBlobStore) Keys() []string {
	mbs.mu.Lock()
	defer mbs.mu.Unlock()
	keys := make([]string, 0, len(mbs.blobs))
	for key := range mbs.blobs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
