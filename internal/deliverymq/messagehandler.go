package deliverymq

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/webhookhub/webhookhub/internal/backoff"
	"github.com/webhookhub/webhookhub/internal/destwebhook"
	"github.com/webhookhub/webhookhub/internal/logging"
	"github.com/webhookhub/webhookhub/internal/models"
)

// Error types to distinguish between the stages of delivery handling.

type DecodeError struct {
	err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error: %v", e.err)
}

func (e *DecodeError) Unwrap() error {
	return e.err
}

type StorageError struct {
	err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %v", e.err)
}

func (e *StorageError) Unwrap() error {
	return e.err
}

type PublishError struct {
	err error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish error: %v", e.err)
}

func (e *PublishError) Unwrap() error {
	return e.err
}

// DeliveryStore is the slice of the delivery row store the handler
// needs: durable status transitions.
type DeliveryStore interface {
	MarkDelivered(ctx context.Context, id uuid.UUID, attempts int, deliveredAt time.Time) error
	MarkRetrying(ctx context.Context, id uuid.UUID, attempts int, lastError string, attemptAt time.Time) error
	MarkDead(ctx context.Context, id uuid.UUID, attempts int, lastError string, attemptAt time.Time) error
}

// RetryPublisher republishes jobs onto the retry queue and the DLX.
type RetryPublisher interface {
	PublishRetry(ctx context.Context, job models.DeliveryJob, delay time.Duration) error
	PublishDLX(ctx context.Context, job models.DeliveryJob) error
}

// HTTPClient performs one delivery attempt.
type HTTPClient interface {
	Post(ctx context.Context, targetURL string, payload []byte) destwebhook.Outcome
}

type messageHandler struct {
	logger       *logging.Logger
	deliveries   DeliveryStore
	publisher    RetryPublisher
	httpClient   HTTPClient
	retryBackoff backoff.Backoff
	maxAttempts  int
	now          func() time.Time
}

type MessageHandlerOption func(*messageHandler)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) MessageHandlerOption {
	return func(h *messageHandler) {
		h.now = now
	}
}

func NewMessageHandler(
	logger *logging.Logger,
	deliveries DeliveryStore,
	publisher RetryPublisher,
	httpClient HTTPClient,
	retryBackoff backoff.Backoff,
	maxAttempts int,
	opts ...MessageHandlerOption,
) *messageHandler {
	h := &messageHandler{
		logger:       logger,
		deliveries:   deliveries,
		publisher:    publisher,
		httpClient:   httpClient,
		retryBackoff: retryBackoff,
		maxAttempts:  maxAttempts,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle processes one delivery job. The message is settled here and
// only here: acked after its outcome is durably written (and, for
// retries and dead letters, after the follow-up publish), nacked
// without requeue otherwise so the broker dead-letters the raw message
// via the main queue's DLX binding.
func (h *messageHandler) Handle(ctx context.Context, msg *amqp091.Delivery) error {
	job := models.DeliveryJob{}
	if err := job.FromBody(msg.Body); err != nil {
		return h.reject(msg, &DecodeError{err: err})
	}
	deliveryID, err := uuid.Parse(job.DeliveryID)
	if err != nil {
		return h.reject(msg, &DecodeError{err: fmt.Errorf("invalid delivery id %q: %w", job.DeliveryID, err)})
	}

	h.logger.Ctx(ctx).Info("processing delivery job",
		zap.String("delivery_id", job.DeliveryID),
		zap.String("event_id", job.EventID),
		zap.String("destination_id", job.DestinationID),
		zap.String("correlation_id", job.CorrelationID),
		zap.Int("attempt", job.Attempt))

	if err := h.process(ctx, deliveryID, job); err != nil {
		return h.reject(msg, err)
	}
	return msg.Ack(false)
}

func (h *messageHandler) reject(msg *amqp091.Delivery, err error) error {
	if nackErr := msg.Nack(false, false); nackErr != nil {
		return fmt.Errorf("nack after %w: %v", err, nackErr)
	}
	return err
}

// process runs the attempt and writes the resulting state. Returning
// nil means the job is fully settled durably; any error means the
// message must be dead-lettered raw.
func (h *messageHandler) process(ctx context.Context, deliveryID uuid.UUID, job models.DeliveryJob) error {
	outcome := h.httpClient.Post(ctx, job.TargetURL, []byte(job.PayloadJSON))
	now := h.now()

	switch {
	case outcome.Kind == destwebhook.OutcomeSuccess:
		if err := h.deliveries.MarkDelivered(ctx, deliveryID, job.Attempt, now); err != nil {
			return &StorageError{err: err}
		}
		h.logger.Ctx(ctx).Info("delivery succeeded",
			zap.String("delivery_id", job.DeliveryID),
			zap.String("destination_id", job.DestinationID),
			zap.Int("attempt", job.Attempt),
			zap.Int("status_code", outcome.StatusCode))
		return nil

	case outcome.Kind == destwebhook.OutcomeRetryableFailure && job.Attempt < h.maxAttempts:
		next := job.Next()
		delay := h.retryBackoff.Duration(job.Attempt - 1)
		if err := h.deliveries.MarkRetrying(ctx, deliveryID, next.Attempt, outcome.Message, now); err != nil {
			return &StorageError{err: err}
		}
		if err := h.publisher.PublishRetry(ctx, next, delay); err != nil {
			// The row stays RETRYING with attempts already advanced;
			// the broker redelivers this message and progress is kept.
			return &PublishError{err: err}
		}
		h.logger.Ctx(ctx).Warn("delivery failed, retry scheduled",
			zap.String("delivery_id", job.DeliveryID),
			zap.String("destination_id", job.DestinationID),
			zap.Int("attempt", job.Attempt),
			zap.Int("next_attempt", next.Attempt),
			zap.Duration("delay", delay),
			zap.Int("status_code", outcome.StatusCode),
			zap.String("error", outcome.Message))
		return nil

	default:
		// Non-retryable, or retryable with attempts exhausted.
		if err := h.deliveries.MarkDead(ctx, deliveryID, job.Attempt, outcome.Message, now); err != nil {
			return &StorageError{err: err}
		}
		if err := h.publisher.PublishDLX(ctx, job); err != nil {
			return &PublishError{err: err}
		}
		h.logger.Ctx(ctx).Error("delivery dead-lettered",
			zap.String("delivery_id", job.DeliveryID),
			zap.String("destination_id", job.DestinationID),
			zap.Int("attempt", job.Attempt),
			zap.Int("status_code", outcome.StatusCode),
			zap.String("outcome", outcome.Kind.String()),
			zap.String("error", outcome.Message))
		return nil
	}
}
