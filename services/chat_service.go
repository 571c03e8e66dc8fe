package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"showmates_server/models"
)

// A send retries when an archival run swaps the batch manifest between
// our read and our commit.
const sendRetryAttempts = 3

// ChatService writes and reads conversation messages. A conversation
// shares its match's ID and is created lazily on first contact; its
// messages live in bounded batch documents listed by the conversation's
// manifest.
type ChatService struct {
	Store DocumentStore
}

// SendMessage appends one message to the conversation belonging to
// matchID, creating the conversation and its first batch when none
// exists yet.
func (cs *ChatService) SendMessage(ctx context.Context, senderID, matchID, content string) (*models.Message, error) {
	if content == "" {
		return nil, fmt.Errorf("message content is required: %w", ErrInvalidInput)
	}

	var match models.Match
	if err := cs.Store.GetItem(ctx, models.MatchesTable, Key{"matchId": matchID}, &match); err != nil {
		return nil, fmt.Errorf("failed to load match %s: %w", matchID, err)
	}
	if !match.HasUser(senderID) {
		return nil, fmt.Errorf("user %s is not part of match %s: %w", senderID, matchID, ErrPermissionDenied)
	}

	message := models.Message{
		MessageID: uuid.NewString(),
		SenderID:  senderID,
		Content:   content,
		SentAt:    models.NewTimestamp(time.Now()),
	}

	for attempt := 0; attempt < sendRetryAttempts; attempt++ {
		var conv models.Conversation
		err := cs.Store.GetItem(ctx, models.ConversationsTable, Key{"conversationId": matchID}, &conv)
		if errors.Is(err, ErrItemNotFound) {
			createErr := cs.createConversation(ctx, &match, message)
			if createErr == nil {
				return &message, nil
			}
			// Lost the creation race; re-read and append instead.
			if errors.Is(createErr, ErrConditionFailed) {
				continue
			}
			return nil, createErr
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load conversation %s: %w", matchID, err)
		}

		appendErr := cs.appendMessage(ctx, &conv, message)
		if appendErr == nil {
			log.Printf("📩 Stored message %s in conversation %s", message.MessageID, matchID)
			return &message, nil
		}
		if errors.Is(appendErr, ErrConditionFailed) {
			continue
		}
		return nil, appendErr
	}
	return nil, fmt.Errorf("conversation %s kept changing underneath the send: %w", matchID, ErrConflict)
}

func (cs *ChatService) createConversation(ctx context.Context, match *models.Match, first models.Message) error {
	batchID := uuid.NewString()
	conv := models.Conversation{
		ConversationID: match.MatchID,
		MatchID:        match.MatchID,
		Participants:   match.Users,
		MessageCount:   1,
		CurrentBatchID: batchID,
		BatchIDs:       []string{batchID},
		LastMessageAt:  first.SentAt,
		CreatedAt:      first.SentAt,
	}
	batch := models.MessageBatch{
		ConversationID: match.MatchID,
		BatchID:        batchID,
		Messages:       []models.Message{first},
		CreatedAt:      first.SentAt,
	}

	err := cs.Store.Commit(ctx, []WriteOp{
		PutOp(models.ConversationsTable, conv, IfAttrNotExists("conversationId")),
		PutOp(models.MessageBatchesTable, batch),
	})
	if err != nil && !errors.Is(err, ErrConditionFailed) {
		return fmt.Errorf("failed to create conversation %s: %w", match.MatchID, err)
	}
	return err
}

// appendMessage adds the message to the current batch, rolling over to
// a fresh batch when the current one is full. Both paths condition on
// the manifest pointer still naming the batch we read, so an archival
// rewrite between read and commit surfaces as ErrConditionFailed
// instead of resurrecting a deleted batch.
func (cs *ChatService) appendMessage(ctx context.Context, conv *models.Conversation, message models.Message) error {
	var batch models.MessageBatch
	err := cs.Store.GetItem(ctx, models.MessageBatchesTable,
		Key{"conversationId": conv.ConversationID, "batchId": conv.CurrentBatchID}, &batch)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return fmt.Errorf("current batch %s is gone: %w", conv.CurrentBatchID, ErrConditionFailed)
		}
		return fmt.Errorf("failed to load current batch: %w", err)
	}

	convMuts := []Mutation{
		Increment("messageCount", 1),
		Set("lastMessageAt", message.SentAt),
	}
	guard := IfEquals("currentBatchId", conv.CurrentBatchID)

	if len(batch.Messages) >= models.BatchMaxMessages {
		newBatchID := uuid.NewString()
		newBatch := models.MessageBatch{
			ConversationID: conv.ConversationID,
			BatchID:        newBatchID,
			Messages:       []models.Message{message},
			CreatedAt:      message.SentAt,
		}
		convMuts = append(convMuts,
			Set("currentBatchId", newBatchID),
			ListAppend("batchIds", newBatchID),
		)
		return cs.Store.Commit(ctx, []WriteOp{
			PutOp(models.MessageBatchesTable, newBatch, IfAttrNotExists("batchId")),
			UpdateOp(models.ConversationsTable, Key{"conversationId": conv.ConversationID}, convMuts, guard),
		})
	}

	return cs.Store.Commit(ctx, []WriteOp{
		UpdateOp(models.MessageBatchesTable,
			Key{"conversationId": conv.ConversationID, "batchId": conv.CurrentBatchID},
			[]Mutation{ListAppend("messages", message)},
			IfAttrExists("batchId"),
		),
		UpdateOp(models.ConversationsTable, Key{"conversationId": conv.ConversationID}, convMuts, guard),
	})
}

// GetMessages returns the newest live messages of a conversation in
// chronological order, walking the batch manifest from its tail. A
// limit of zero returns all live messages.
func (cs *ChatService) GetMessages(ctx context.Context, userID, conversationID string, limit int) ([]models.Message, error) {
	var conv models.Conversation
	if err := cs.Store.GetItem(ctx, models.ConversationsTable, Key{"conversationId": conversationID}, &conv); err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
	}
	if !conv.HasParticipant(userID) {
		return nil, fmt.Errorf("user %s is not part of conversation %s: %w", userID, conversationID, ErrPermissionDenied)
	}

	var collected []models.Message
	for i := len(conv.BatchIDs) - 1; i >= 0; i-- {
		var batch models.MessageBatch
		err := cs.Store.GetItem(ctx, models.MessageBatchesTable,
			Key{"conversationId": conversationID, "batchId": conv.BatchIDs[i]}, &batch)
		if err != nil {
			if errors.Is(err, ErrItemNotFound) {
				log.Printf("❌ Batch %s missing from conversation %s manifest", conv.BatchIDs[i], conversationID)
				continue
			}
			return nil, fmt.Errorf("failed to load batch %s: %w", conv.BatchIDs[i], err)
		}
		collected = append(batch.Messages, collected...)
		if limit > 0 && len(collected) >= limit {
			break
		}
	}

	if limit > 0 && len(collected) > limit {
		collected = collected[len(collected)-limit:]
	}
	return collected, nil
}
