package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"showmates_server/models"
)

// ArchiveResult is the outcome of one archival run. Soft no-ops (the
// conversation holds nothing to archive) report Success=false with a
// message instead of an error.
type ArchiveResult struct {
	Success       bool   `json:"success"`
	ArchivedCount int    `json:"archivedCount"`
	ArchivePath   string `json:"archivePath,omitempty"`
	Message       string `json:"message,omitempty"`
}

// SweepResult summarizes one sweep over all conversations.
type SweepResult struct {
	Eligible int `json:"eligible"`
	Archived int `json:"archived"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// ArchiveService moves old conversation messages into cold storage and
// rewrites the live batch documents to hold only the newest ones.
//
// A run works in three phases so every intermediate state stays
// readable: write the replacement batches (unreachable until the
// manifest names them), switch the conversation manifest in a single
// conditioned operation, then delete the old batches. A failure between
// phases leaves at worst unreferenced batch documents or an unreferenced
// blob, never a conversation that loses messages.
type ArchiveService struct {
	Store DocumentStore
	Blobs BlobStore
	Lease *LeaseService
}

// ArchiveConversation is the manual, user-triggered archival of one
// conversation. The caller must be a participant.
func (as *ArchiveService) ArchiveConversation(ctx context.Context, userID, conversationID string) (*ArchiveResult, error) {
	var conv models.Conversation
	if err := as.Store.GetItem(ctx, models.ConversationsTable, Key{"conversationId": conversationID}, &conv); err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
	}
	if !conv.HasParticipant(userID) {
		return nil, fmt.Errorf("user %s is not part of conversation %s: %w", userID, conversationID, ErrPermissionDenied)
	}

	held, release, err := as.Lease.Acquire(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !held {
		return nil, fmt.Errorf("archival already running for conversation %s: %w", conversationID, ErrConflict)
	}
	defer release()

	return as.archiveRun(ctx, conversationID)
}

// SweepArchives archives every conversation whose live message count
// reached the archive threshold. Per-conversation failures are logged
// and never abort the sweep.
func (as *ArchiveService) SweepArchives(ctx context.Context) SweepResult {
	filter := &ScanFilter{Attr: "messageCount", Op: "ge", Value: models.ArchiveThreshold}

	result := SweepResult{}
	if eligible, err := as.Store.CountItems(ctx, models.ConversationsTable, filter); err != nil {
		log.Printf("❌ Sweep could not count eligible conversations: %v", err)
	} else {
		result.Eligible = eligible
	}

	var conversations []models.Conversation
	if err := as.Store.ScanItems(ctx, models.ConversationsTable, filter, &conversations); err != nil {
		log.Printf("❌ Sweep could not scan conversations: %v", err)
		return result
	}

	for _, conv := range conversations {
		held, release, err := as.Lease.Acquire(ctx, conv.ConversationID)
		if err != nil {
			log.Printf("❌ Sweep lease error for conversation %s: %v", conv.ConversationID, err)
			result.Failed++
			continue
		}
		if !held {
			result.Skipped++
			continue
		}

		runResult, err := as.archiveRun(ctx, conv.ConversationID)
		release()
		if err != nil {
			log.Printf("❌ Sweep failed to archive conversation %s: %v", conv.ConversationID, err)
			result.Failed++
			continue
		}
		if runResult.Success {
			result.Archived++
		} else {
			result.Skipped++
		}
	}

	log.Printf("✅ Archive sweep done: %d eligible, %d archived, %d skipped, %d failed",
		result.Eligible, result.Archived, result.Skipped, result.Failed)
	return result
}

// archiveRun performs one archival pass over a conversation. The caller
// holds the conversation's lease.
func (as *ArchiveService) archiveRun(ctx context.Context, conversationID string) (*ArchiveResult, error) {
	var conv models.Conversation
	if err := as.Store.GetItem(ctx, models.ConversationsTable, Key{"conversationId": conversationID}, &conv); err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
	}
	if conv.MessageCount <= models.KeepRecentMessages {
		return &ArchiveResult{Success: false, Message: "nothing to archive"}, nil
	}

	messages, err := as.loadLiveMessages(ctx, &conv)
	if err != nil {
		return nil, err
	}
	if len(messages) <= models.KeepRecentMessages {
		return &ArchiveResult{Success: false, Message: "nothing to archive"}, nil
	}

	// Order is authoritative from here: older messages leave, newer stay.
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].SentAt.Before(messages[j].SentAt)
	})
	split := len(messages) - models.KeepRecentMessages
	older, newer := messages[:split], messages[split:]

	now := time.Now()
	path := archivePath(conversationID, now)
	if err := as.writeArchiveBlob(ctx, path, older); err != nil {
		return nil, err
	}

	newBatches := repartition(conversationID, newer)
	if err := as.putReplacementBatches(ctx, newBatches); err != nil {
		return nil, err
	}

	entry := models.ArchiveEntry{
		Key:          path,
		MessageCount: len(older),
		From:         older[0].SentAt,
		To:           older[len(older)-1].SentAt,
		ArchivedAt:   models.NewTimestamp(now),
	}
	if err := as.switchManifest(ctx, &conv, newBatches, entry); err != nil {
		return nil, err
	}

	as.deleteOldBatches(ctx, conversationID, conv.BatchIDs)

	log.Printf("✅ Archived %d messages from conversation %s to %s", len(older), conversationID, path)
	return &ArchiveResult{Success: true, ArchivedCount: len(older), ArchivePath: path}, nil
}

// loadLiveMessages flattens the conversation's batches in manifest
// order, assigning deterministic identifiers to messages lacking one so
// repeated runs produce identical archives.
func (as *ArchiveService) loadLiveMessages(ctx context.Context, conv *models.Conversation) ([]models.Message, error) {
	var flattened []models.Message
	for _, batchID := range conv.BatchIDs {
		var batch models.MessageBatch
		err := as.Store.GetItem(ctx, models.MessageBatchesTable,
			Key{"conversationId": conv.ConversationID, "batchId": batchID}, &batch)
		if err != nil {
			if errors.Is(err, ErrItemNotFound) {
				log.Printf("⚠️ Batch %s missing from conversation %s, skipping", batchID, conv.ConversationID)
				continue
			}
			return nil, fmt.Errorf("failed to load batch %s: %w", batchID, err)
		}
		for position, message := range batch.Messages {
			if message.MessageID == "" {
				message.MessageID = fmt.Sprintf("%s-%d-%d", batchID, message.SentAt.UnixMilli(), position)
			}
			flattened = append(flattened, message)
		}
	}
	return flattened, nil
}

func (as *ArchiveService) writeArchiveBlob(ctx context.Context, path string, older []models.Message) error {
	body, err := json.Marshal(older)
	if err != nil {
		return fmt.Errorf("failed to marshal archive content: %w", err)
	}
	metadata := map[string]string{
		"messageCount": strconv.Itoa(len(older)),
		"from":         older[0].SentAt.String(),
		"to":           older[len(older)-1].SentAt.String(),
	}
	if err := as.Blobs.PutBlob(ctx, path, "application/json", body, metadata); err != nil {
		return fmt.Errorf("failed to write archive blob: %w", err)
	}
	return nil
}

// repartition regroups the kept messages into fresh batch documents.
// Fresh IDs keep replacements disjoint from the batches being deleted.
func repartition(conversationID string, kept []models.Message) []models.MessageBatch {
	var batches []models.MessageBatch
	for start := 0; start < len(kept); start += models.BatchMaxMessages {
		end := start + models.BatchMaxMessages
		if end > len(kept) {
			end = len(kept)
		}
		slice := append([]models.Message(nil), kept[start:end]...)
		batches = append(batches, models.MessageBatch{
			ConversationID: conversationID,
			BatchID:        uuid.NewString(),
			Messages:       slice,
			CreatedAt:      slice[0].SentAt,
		})
	}
	return batches
}

// putReplacementBatches writes the new batch documents. They stay
// unreachable until the manifest switch names them.
func (as *ArchiveService) putReplacementBatches(ctx context.Context, batches []models.MessageBatch) error {
	ops := make([]WriteOp, 0, len(batches))
	for _, batch := range batches {
		ops = append(ops, PutOp(models.MessageBatchesTable, batch))
	}
	if err := as.commitChunked(ctx, ops); err != nil {
		return fmt.Errorf("failed to write replacement batches: %w", err)
	}
	return nil
}

// switchManifest points the conversation at the replacement batches in
// one operation, conditioned on the message count we loaded. A send
// landing mid-run changes that count and cancels the switch.
func (as *ArchiveService) switchManifest(ctx context.Context, conv *models.Conversation, newBatches []models.MessageBatch, entry models.ArchiveEntry) error {
	newBatchIDs := make([]string, 0, len(newBatches))
	kept := 0
	for _, batch := range newBatches {
		newBatchIDs = append(newBatchIDs, batch.BatchID)
		kept += len(batch.Messages)
	}

	err := as.Store.Commit(ctx, []WriteOp{
		UpdateOp(models.ConversationsTable,
			Key{"conversationId": conv.ConversationID},
			[]Mutation{
				Set("batchIds", newBatchIDs),
				Set("currentBatchId", newBatchIDs[len(newBatchIDs)-1]),
				Set("messageCount", kept),
				ListAppend("archives", entry),
			},
			IfEquals("messageCount", conv.MessageCount),
		),
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConditionFailed) {
		// The replacements are unreachable; drop them before bailing.
		as.deleteOldBatches(ctx, conv.ConversationID, newBatchIDs)
		return fmt.Errorf("messages arrived during archival of %s: %w", conv.ConversationID, ErrConflict)
	}
	return fmt.Errorf("failed to switch batch manifest for %s: %w", conv.ConversationID, err)
}

// deleteOldBatches removes batch documents no manifest references.
// Best-effort: a failure leaves unreachable rows, not corruption.
func (as *ArchiveService) deleteOldBatches(ctx context.Context, conversationID string, batchIDs []string) {
	ops := make([]WriteOp, 0, len(batchIDs))
	for _, batchID := range batchIDs {
		ops = append(ops, DeleteOp(models.MessageBatchesTable,
			Key{"conversationId": conversationID, "batchId": batchID}))
	}
	if err := as.commitChunked(ctx, ops); err != nil {
		log.Printf("❌ Failed to delete %d replaced batches for conversation %s: %v", len(batchIDs), conversationID, err)
	}
}

// commitChunked splits an op list into commits that respect the
// per-commit operation budget.
func (as *ArchiveService) commitChunked(ctx context.Context, ops []WriteOp) error {
	for start := 0; start < len(ops); start += models.MaxCommitOps {
		end := start + models.MaxCommitOps
		if end > len(ops) {
			end = len(ops)
		}
		if err := as.Store.Commit(ctx, ops[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// archivePath renders the blob key for one archival run. Colons and
// dots in the timestamp become dashes to keep the key portable.
func archivePath(conversationID string, at time.Time) string {
	stamp := at.UTC().Format(time.RFC3339)
	stamp = strings.ReplaceAll(stamp, ":", "-")
	stamp = strings.ReplaceAll(stamp, ".", "-")
	return fmt.Sprintf("archives/%s/%s.json", conversationID, stamp)
}
