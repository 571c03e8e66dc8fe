package controllers

import (
	"encoding/json"
	"log"
	"net/http"

	"showmates_server/services"
)

// S3Controller hands out pre-signed URLs for profile photo storage
type S3Controller struct {
	BlobService *services.S3BlobService
}

// NewS3Controller creates a new instance of S3Controller
func NewS3Controller(service *services.S3BlobService) *S3Controller {
	return &S3Controller{BlobService: service}
}

// HandleGeneratePresignedURL generates a presigned URL for S3 uploads
func (c *S3Controller) HandleGeneratePresignedURL(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}

	var payload struct {
		FileName string `json:"fileName"`
		FileType string `json:"fileType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid request payload"})
		return
	}
	if payload.FileName == "" || payload.FileType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "missing required fields"})
		return
	}

	url, fileName, err := c.BlobService.GenerateUploadURL(r.Context(), payload.FileName, payload.FileType)
	if err != nil {
		log.Printf("❌ Error generating pre-signed upload URL: %v", err)
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url, "fileName": fileName})
}

// HandleGetPresignedReadURL generates a presigned URL for reading S3 objects
func (c *S3Controller) HandleGetPresignedReadURL(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}

	var payload struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Key == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid request payload"})
		return
	}

	url, err := c.BlobService.GenerateReadURL(r.Context(), payload.Key)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
