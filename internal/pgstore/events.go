package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/webhookhub/webhookhub/internal/models"
)

type EventStore struct {
	db *pgxpool.Pool
}

func NewEventStore(db *pgxpool.Pool) *EventStore {
	return &EventStore{db: db}
}

// Insert persists the event if its (source_name, idempotency_key)
// fingerprint is new. Returns false with a nil error when a row with
// the same fingerprint already exists; the event is then a duplicate
// and the caller must not fan out deliveries.
func (s *EventStore) Insert(ctx context.Context, event *models.Event) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO events (id, source_name, event_type, idempotency_key, payload, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source_name, idempotency_key) DO NOTHING
	`, event.ID, event.SourceName, event.EventType, event.IdempotencyKey, event.Payload, event.ReceivedAt)
	if err != nil {
		return false, fmt.Errorf("insert event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *EventStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, source_name, event_type, idempotency_key, payload, received_at
		FROM events
		WHERE id = $1
	`, id)

	var event models.Event
	if err := row.Scan(&event.ID, &event.SourceName, &event.EventType, &event.IdempotencyKey, &event.Payload, &event.ReceivedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query event: %w", err)
	}
	return &event, nil
}
