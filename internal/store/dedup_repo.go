package store

import (
	"context"
	"time"
)

// DedupRecord represents an inbound message deduplication record.
type DedupRecord struct {
	MessageID   string     `json:"message_id"`
	ContactID   string     `json:"contact_id"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}

// DedupRepo records provider message ids so redelivered webhooks are processed once.
type DedupRepo interface {
	// RecordInbound records an inbound message id. It returns false only when the
	// message was already marked processed; a recorded but unprocessed id is
	// reported as pending again so a failed attempt can be redelivered.
	RecordInbound(ctx context.Context, messageID, contactID string) (bool, error)

	// MarkProcessed sets processed_at once the message's transition is stored.
	MarkProcessed(ctx context.Context, messageID string) error
}
