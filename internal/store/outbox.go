package store

import (
	"context"

	"storefront/internal/models"
)

// InsertOutbox records an event to be relayed once the transaction commits
func (s *Store) InsertOutbox(ctx context.Context, record *models.OutboxRecord) error {
	query := `
		INSERT INTO outbox (event_id, event_type, key, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	return s.q.QueryRowxContext(ctx, query,
		record.EventID, record.EventType, record.Key, []byte(record.Payload),
	).Scan(&record.ID, &record.CreatedAt)
}

// FetchPendingOutbox returns unsent records in insertion order
func (s *Store) FetchPendingOutbox(ctx context.Context, limit int) ([]models.OutboxRecord, error) {
	records := []models.OutboxRecord{}
	err := s.q.SelectContext(ctx, &records, `
		SELECT id, event_id, event_type, key, payload, created_at, sent_at
		FROM outbox
		WHERE sent_at IS NULL
		ORDER BY id
		LIMIT $1`, limit)
	return records, err
}

// MarkOutboxSent flags a record as published
func (s *Store) MarkOutboxSent(ctx context.Context, id int64) error {
	_, err := s.q.ExecContext(ctx, "UPDATE outbox SET sent_at = NOW() WHERE id = $1", id)
	return err
}
