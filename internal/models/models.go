package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Source is a registered external system that sends webhooks.
// Read-only to the delivery pipeline.
type Source struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	HMACSecret string    `json:"-"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

// Destination is an HTTP endpoint that receives webhook bodies.
type Destination struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	TargetURL string    `json:"target_url"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// DestinationRule routes events to a destination by (source_name, event_type).
type DestinationRule struct {
	ID            uuid.UUID `json:"id"`
	DestinationID uuid.UUID `json:"destination_id"`
	SourceName    string    `json:"source_name"`
	EventType     string    `json:"event_type"`
}

// Event is a deduplicated ingest record. Payload carries the verbatim
// request body as a string; it is never re-encoded.
type Event struct {
	ID             uuid.UUID `json:"id"`
	SourceName     string    `json:"source_name"`
	EventType      string    `json:"event_type"`
	IdempotencyKey string    `json:"idempotency_key"`
	Payload        string    `json:"payload"`
	ReceivedAt     time.Time `json:"received_at"`
}

// NewEvent builds an event with its content-addressed idempotency key:
// hex(SHA-256(source_name || event_type || raw_body)).
func NewEvent(sourceName, eventType string, rawBody []byte, receivedAt time.Time) Event {
	return Event{
		ID:             uuid.New(),
		SourceName:     sourceName,
		EventType:      eventType,
		IdempotencyKey: IdempotencyKey(sourceName, eventType, rawBody),
		Payload:        string(rawBody),
		ReceivedAt:     receivedAt,
	}
}

func IdempotencyKey(sourceName, eventType string, rawBody []byte) string {
	h := sha256.New()
	h.Write([]byte(sourceName))
	h.Write([]byte(eventType))
	h.Write(rawBody)
	return hex.EncodeToString(h.Sum(nil))
}

type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "PENDING"
	DeliveryStatusDelivered DeliveryStatus = "DELIVERED"
	DeliveryStatusRetrying  DeliveryStatus = "RETRYING"
	DeliveryStatusDead      DeliveryStatus = "DEAD"
)

// Terminal reports whether no further status transition is allowed.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryStatusDelivered || s == DeliveryStatusDead
}

func ParseDeliveryStatus(value string) (DeliveryStatus, error) {
	switch DeliveryStatus(value) {
	case DeliveryStatusPending, DeliveryStatusDelivered, DeliveryStatusRetrying, DeliveryStatusDead:
		return DeliveryStatus(value), nil
	}
	return "", fmt.Errorf("unknown delivery status %q", value)
}

// Delivery is one pending/complete push of one event to one destination.
// Created PENDING by ingest, mutated exclusively by the consumer.
type Delivery struct {
	ID            uuid.UUID      `json:"id"`
	EventID       uuid.UUID      `json:"event_id"`
	DestinationID uuid.UUID      `json:"destination_id"`
	Status        DeliveryStatus `json:"status"`
	Attempts      int            `json:"attempts"`
	MaxAttempts   int            `json:"max_attempts"`
	LastError     *string        `json:"last_error,omitempty"`
	LastAttemptAt *time.Time     `json:"last_attempt_at,omitempty"`
	DeliveredAt   *time.Time     `json:"delivered_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// NewPendingDelivery creates the PENDING row for an (event, destination) pair.
func NewPendingDelivery(event Event, destination Destination, maxAttempts int) Delivery {
	return Delivery{
		ID:            uuid.New(),
		EventID:       event.ID,
		DestinationID: destination.ID,
		Status:        DeliveryStatusPending,
		Attempts:      0,
		MaxAttempts:   maxAttempts,
		CreatedAt:     time.Now(),
	}
}
