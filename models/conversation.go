package models

// Conversation is the per-match chat head record. It owns the batch
// manifest: BatchIDs lists every live batch oldest-first, and a batch
// document is reachable only while its ID appears there. MessageCount
// counts live (unarchived) messages across those batches.
type Conversation struct {
	ConversationID string         `dynamodbav:"conversationId" json:"conversationId"`
	MatchID        string         `dynamodbav:"matchId" json:"matchId"`
	Participants   []string       `dynamodbav:"participants" json:"participants"`
	MessageCount   int            `dynamodbav:"messageCount" json:"messageCount"`
	CurrentBatchID string         `dynamodbav:"currentBatchId" json:"currentBatchId"`
	BatchIDs       []string       `dynamodbav:"batchIds" json:"batchIds"` // ordered list, not a set
	Archives       []ArchiveEntry `dynamodbav:"archives,omitempty" json:"archives,omitempty"`
	LastMessageAt  Timestamp      `dynamodbav:"lastMessageAt" json:"lastMessageAt"`
	CreatedAt      Timestamp      `dynamodbav:"createdAt" json:"createdAt"`
}

// ArchiveEntry points at one cold-storage blob produced by an archival
// run, newest entry last.
type ArchiveEntry struct {
	Key          string    `dynamodbav:"key" json:"key"`
	MessageCount int       `dynamodbav:"messageCount" json:"messageCount"`
	From         Timestamp `dynamodbav:"from" json:"from"`
	To           Timestamp `dynamodbav:"to" json:"to"`
	ArchivedAt   Timestamp `dynamodbav:"archivedAt" json:"archivedAt"`
}

// ConversationsTable is the DynamoDB table name for conversation heads
const ConversationsTable = "Conversations"

// HasParticipant reports whether userID belongs to the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}
