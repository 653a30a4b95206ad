package store

import (
	"context"
	"time"
)

type WebhookEventStore struct {
	db DB
}

func NewWebhookEventStore(db DB) *WebhookEventStore {
	return &WebhookEventStore{db: db}
}

// Record claims an event id inside the processing transaction. It reports
// false when the event was already processed.
func (s *WebhookEventStore) Record(ctx context.Context, tx Execer, eventID, eventType string) (bool, error) {
	n, err := rowsAffected(tx.ExecContext(ctx, `
		INSERT INTO webhook_events (event_id, event_type) VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType))
	return n == 1, err
}

func (s *WebhookEventStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return rowsAffected(s.db.ExecContext(ctx, `DELETE FROM webhook_events WHERE processed_at < $1`, cutoff))
}
