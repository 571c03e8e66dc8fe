package models

// Message is a single chat message. Messages never live as standalone
// items; they are embedded in MessageBatch documents.
type Message struct {
	MessageID string    `dynamodbav:"messageId" json:"messageId"`
	SenderID  string    `dynamodbav:"senderId" json:"senderId"`
	Content   string    `dynamodbav:"content" json:"content"`
	SentAt    Timestamp `dynamodbav:"sentAt" json:"sentAt"`
}

// MessageBatch holds a bounded run of consecutive messages for one
// conversation. Batches are immutable once rotated out of
// currentBatchId; only the current batch receives appends.
type MessageBatch struct {
	ConversationID string    `dynamodbav:"conversationId" json:"conversationId"`
	BatchID        string    `dynamodbav:"batchId" json:"batchId"`
	Messages       []Message `dynamodbav:"messages" json:"messages"`
	CreatedAt      Timestamp `dynamodbav:"createdAt" json:"createdAt"`
}

// MessageBatchesTable is the DynamoDB table name for message batches
const MessageBatchesTable = "MessageBatches"
