package ingest

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/webhookhub/webhookhub/internal/logging"
	"github.com/webhookhub/webhookhub/internal/models"
	"github.com/webhookhub/webhookhub/internal/signature"
)

// Capability contracts. Runtime wires the pgstore and deliverymq
// implementations; tests substitute in-memory fakes.

type SourceStore interface {
	GetByName(ctx context.Context, name string) (*models.Source, error)
}

type DestinationStore interface {
	ListMatching(ctx context.Context, sourceName, eventType string) ([]models.Destination, error)
}

type EventStore interface {
	Insert(ctx context.Context, event *models.Event) (bool, error)
}

type DeliveryStore interface {
	Create(ctx context.Context, delivery *models.Delivery) error
}

type JobPublisher interface {
	PublishJob(ctx context.Context, job models.DeliveryJob) error
}

type Ingestor struct {
	logger       *logging.Logger
	sources      SourceStore
	destinations DestinationStore
	events       EventStore
	deliveries   DeliveryStore
	publisher    JobPublisher
	maxAttempts  int
	now          func() time.Time
}

type Config struct {
	Logger       *logging.Logger
	Sources      SourceStore
	Destinations DestinationStore
	Events       EventStore
	Deliveries   DeliveryStore
	Publisher    JobPublisher
	MaxAttempts  int
}

func New(cfg Config) *Ingestor {
	return &Ingestor{
		logger:       cfg.Logger,
		sources:      cfg.Sources,
		destinations: cfg.Destinations,
		events:       cfg.Events,
		deliveries:   cfg.Deliveries,
		publisher:    cfg.Publisher,
		maxAttempts:  cfg.MaxAttempts,
		now:          time.Now,
	}
}

// WithClock overrides the wall clock, for tests.
func (i *Ingestor) WithClock(now func() time.Time) *Ingestor {
	i.now = now
	return i
}

// Ingest runs the full producer pipeline: authenticate, dedupe, fan
// out, enqueue. A duplicate fingerprint returns an empty slice with no
// error and publishes nothing, so resubmissions are idempotent. If a
// publish fails midway the caller retries the whole ingest; the event
// dedupe makes the retry safe and at-least-once from the producer side
// is the contract.
func (i *Ingestor) Ingest(ctx context.Context, sourceName, eventType string, rawBody []byte, suppliedSig string) ([]models.Delivery, error) {
	if strings.TrimSpace(eventType) == "" {
		return nil, newValidationError("event type must not be blank")
	}

	source, err := i.sources.GetByName(ctx, sourceName)
	if err != nil {
		return nil, newStorageError(err)
	}
	if source == nil {
		return nil, newSourceNotFoundError(sourceName)
	}
	if !source.Active {
		return nil, newSourceInactiveError(sourceName)
	}

	if strings.TrimSpace(suppliedSig) == "" {
		return nil, newMissingSignatureError()
	}
	if !signature.Verify(source.HMACSecret, rawBody, suppliedSig) {
		return nil, newInvalidSignatureError()
	}

	event := models.NewEvent(sourceName, eventType, rawBody, i.now())
	inserted, err := i.events.Insert(ctx, &event)
	if err != nil {
		return nil, newStorageError(err)
	}
	if !inserted {
		i.logger.Ctx(ctx).Info("duplicate event ignored",
			zap.String("source", sourceName),
			zap.String("event_type", eventType),
			zap.String("idempotency_key", event.IdempotencyKey))
		return []models.Delivery{}, nil
	}

	destinations, err := i.destinations.ListMatching(ctx, sourceName, eventType)
	if err != nil {
		return nil, newStorageError(err)
	}

	deliveries := make([]models.Delivery, 0, len(destinations))
	for _, destination := range destinations {
		delivery := models.NewPendingDelivery(event, destination, i.maxAttempts)
		if err := i.deliveries.Create(ctx, &delivery); err != nil {
			return nil, newStorageError(err)
		}
		job := models.NewDeliveryJob(delivery, event, destination)
		if err := i.publisher.PublishJob(ctx, job); err != nil {
			return nil, newBrokerError(err)
		}
		deliveries = append(deliveries, delivery)
	}

	i.logger.Ctx(ctx).Info("event ingested",
		zap.String("event_id", event.ID.String()),
		zap.String("source", sourceName),
		zap.String("event_type", eventType),
		zap.Int("deliveries", len(deliveries)))

	return deliveries, nil
}
