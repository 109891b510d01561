package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/webhookhub/webhookhub/internal/models"
)

// ErrStaleUpdate is returned when a status write targets a delivery
// that is already terminal (or missing). Under correct operation a
// delivery has exactly one live message, so this only fires on
// duplicate deliveries; the write is rejected to keep terminal states
// immutable.
var ErrStaleUpdate = errors.New("delivery already in terminal state")

type DeliveryStore struct {
	db *pgxpool.Pool
}

func NewDeliveryStore(db *pgxpool.Pool) *DeliveryStore {
	return &DeliveryStore{db: db}
}

func (s *DeliveryStore) Create(ctx context.Context, delivery *models.Delivery) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO deliveries (id, event_id, destination_id, status, attempts, max_attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, delivery.ID, delivery.EventID, delivery.DestinationID, delivery.Status, delivery.Attempts, delivery.MaxAttempts, delivery.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

func (s *DeliveryStore) Get(ctx context.Context, id uuid.UUID) (*models.Delivery, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, event_id, destination_id, status, attempts, max_attempts,
		       last_error, last_attempt_at, delivered_at, created_at
		FROM deliveries
		WHERE id = $1
	`, id)

	var d models.Delivery
	var status string
	err := row.Scan(&d.ID, &d.EventID, &d.DestinationID, &status, &d.Attempts, &d.MaxAttempts,
		&d.LastError, &d.LastAttemptAt, &d.DeliveredAt, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query delivery: %w", err)
	}
	d.Status, err = models.ParseDeliveryStatus(status)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// MarkDelivered transitions the delivery to DELIVERED, clearing any
// previous error. Attempts is the attempt number that succeeded.
func (s *DeliveryStore) MarkDelivered(ctx context.Context, id uuid.UUID, attempts int, deliveredAt time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE deliveries
		SET status = 'DELIVERED', attempts = $2, delivered_at = $3,
		    last_attempt_at = $3, last_error = NULL
		WHERE id = $1
		AND status NOT IN ('DELIVERED', 'DEAD')
	`, id, attempts, deliveredAt)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleUpdate
	}
	return nil
}

// MarkRetrying records a retryable failure. Attempts carries the
// number of the attempt about to be scheduled, matching the attempt
// field of the in-flight retry message.
func (s *DeliveryStore) MarkRetrying(ctx context.Context, id uuid.UUID, attempts int, lastError string, attemptAt time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE deliveries
		SET status = 'RETRYING', attempts = $2, last_error = $3, last_attempt_at = $4
		WHERE id = $1
		AND status NOT IN ('DELIVERED', 'DEAD')
	`, id, attempts, lastError, attemptAt)
	if err != nil {
		return fmt.Errorf("mark retrying: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleUpdate
	}
	return nil
}

// MarkDead transitions the delivery to its terminal failed state.
func (s *DeliveryStore) MarkDead(ctx context.Context, id uuid.UUID, attempts int, lastError string, attemptAt time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE deliveries
		SET status = 'DEAD', attempts = $2, last_error = $3, last_attempt_at = $4
		WHERE id = $1
		AND status NOT IN ('DELIVERED', 'DEAD')
	`, id, attempts, lastError, attemptAt)
	if err != nil {
		return fmt.Errorf("mark dead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleUpdate
	}
	return nil
}

// ListByEvent returns all deliveries fanned out from one event.
func (s *DeliveryStore) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Delivery, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, event_id, destination_id, status, attempts, max_attempts,
		       last_error, last_attempt_at, delivered_at, created_at
		FROM deliveries
		WHERE event_id = $1
		ORDER BY created_at
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []models.Delivery
	for rows.Next() {
		var d models.Delivery
		var status string
		if err := rows.Scan(&d.ID, &d.EventID, &d.DestinationID, &status, &d.Attempts, &d.MaxAttempts,
			&d.LastError, &d.LastAttemptAt, &d.DeliveredAt, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		if d.Status, err = models.ParseDeliveryStatus(status); err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}
	return deliveries, nil
}
