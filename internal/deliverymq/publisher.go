package deliverymq

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/webhookhub/webhookhub/internal/models"
)

// Publisher publishes delivery jobs onto the topology. All messages
// are persistent. A channel is single-threaded in amqp091, so each
// producer (ingest, consumer callback) owns its own Publisher.
type Publisher struct {
	ch *amqp091.Channel
}

func NewPublisher(ch *amqp091.Channel) *Publisher {
	return &Publisher{ch: ch}
}

// PublishJob publishes a job to the main exchange with the delivery
// routing key. Used by ingest for attempt=1 jobs.
func (p *Publisher) PublishJob(ctx context.Context, job models.DeliveryJob) error {
	body, err := job.Body()
	if err != nil {
		return fmt.Errorf("encode delivery job: %w", err)
	}
	if err := p.ch.PublishWithContext(ctx,
		ExchangeMain,       // exchange
		RoutingKeyDelivery, // routing key
		false,              // mandatory
		false,              // immediate
		amqp091.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp091.Persistent,
			CorrelationId: job.CorrelationID,
			Timestamp:     time.Now(),
			Body:          body,
		},
	); err != nil {
		return fmt.Errorf("publish delivery job: %w", err)
	}
	return nil
}

// PublishRetry parks a job in the retry queue via the default
// exchange. The per-message expiration makes the broker dead-letter it
// back to the main exchange after the delay; the delay is a lower
// bound, not a deadline.
func (p *Publisher) PublishRetry(ctx context.Context, job models.DeliveryJob, delay time.Duration) error {
	body, err := job.Body()
	if err != nil {
		return fmt.Errorf("encode retry job: %w", err)
	}
	if err := p.ch.PublishWithContext(ctx,
		"",         // default exchange
		QueueRetry, // routing key = queue name
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp091.Persistent,
			CorrelationId: job.CorrelationID,
			Timestamp:     time.Now(),
			Expiration:    strconv.FormatInt(delay.Milliseconds(), 10),
			Body:          body,
		},
	); err != nil {
		return fmt.Errorf("publish retry job: %w", err)
	}
	return nil
}

// PublishDLX routes a terminally failed job to the dead-letter
// exchange for manual inspection.
func (p *Publisher) PublishDLX(ctx context.Context, job models.DeliveryJob) error {
	body, err := job.Body()
	if err != nil {
		return fmt.Errorf("encode dead-letter job: %w", err)
	}
	if err := p.ch.PublishWithContext(ctx,
		ExchangeDLX, // exchange
		"",          // routing key (fanout)
		false,       // mandatory
		false,       // immediate
		amqp091.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp091.Persistent,
			CorrelationId: job.CorrelationID,
			Timestamp:     time.Now(),
			Body:          body,
		},
	); err != nil {
		return fmt.Errorf("publish dead-letter job: %w", err)
	}
	return nil
}
