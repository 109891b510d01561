package consumer

import (
	"context"

	"github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/webhookhub/webhookhub/internal/logging"
)

type Consumer interface {
	Run(context.Context) error
}

// MessageHandler processes one delivery and settles it (ack/nack).
// The returned error is for observability only; settlement has already
// happened by the time Handle returns.
type MessageHandler interface {
	Handle(context.Context, *amqp091.Delivery) error
}

type consumerImplOptions struct {
	name        string
	concurrency int
	logger      *logging.Logger
}

func WithName(name string) func(*consumerImplOptions) {
	return func(c *consumerImplOptions) {
		c.name = name
	}
}

// WithConcurrency bounds in-flight messages. It is applied as the
// channel prefetch (QoS), so the broker enforces the same bound.
func WithConcurrency(concurrency int) func(*consumerImplOptions) {
	return func(c *consumerImplOptions) {
		c.concurrency = concurrency
	}
}

func WithLogger(logger *logging.Logger) func(*consumerImplOptions) {
	return func(c *consumerImplOptions) {
		c.logger = logger
	}
}

func New(ch *amqp091.Channel, queue string, handler MessageHandler, opts ...func(*consumerImplOptions)) Consumer {
	options := &consumerImplOptions{
		name:        "",
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(options)
	}
	return &consumerImpl{
		ch:                  ch,
		queue:               queue,
		handler:             handler,
		consumerImplOptions: *options,
	}
}

type consumerImpl struct {
	consumerImplOptions
	ch      *amqp091.Channel
	queue   string
	handler MessageHandler
}

var _ Consumer = &consumerImpl{}

// Run consumes with manual acks until the context is cancelled or the
// channel closes. On shutdown it stops receiving and drains in-flight
// handlers by fully acquiring the semaphore; anything left unsettled
// is redelivered by the broker.
func (c *consumerImpl) Run(ctx context.Context) error {
	if err := c.ch.Qos(c.concurrency, 0, false); err != nil {
		return err
	}

	deliveries, err := c.ch.ConsumeWithContext(ctx,
		c.queue, // queue
		c.name,  // consumer tag
		false,   // auto-ack
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return err
	}

	tracerProvider := otel.GetTracerProvider()
	tracer := tracerProvider.Tracer("github.com/webhookhub/webhookhub/internal/consumer")

	sem := make(chan struct{}, c.concurrency)
recvLoop:
	for {
		var msg amqp091.Delivery
		var ok bool
		select {
		case msg, ok = <-deliveries:
			if !ok {
				break recvLoop
			}
		case <-ctx.Done():
			break recvLoop
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break recvLoop
		}

		go func(msg amqp091.Delivery) {
			defer func() { <-sem }() // Release the semaphore.

			handlerCtx, span := tracer.Start(context.Background(), c.actionWithName("Consumer.Handle"))
			defer span.End()

			if err := c.handler.Handle(handlerCtx, &msg); err != nil {
				span.RecordError(err)
				if c.logger != nil {
					c.logger.Ctx(handlerCtx).Error("consumer handler error", zap.String("name", c.name), zap.Error(err))
				}
			}
		}(msg)
	}

	// We're no longer receiving messages. Wait to finish handling any
	// in-flight messages by totally acquiring the semaphore.
	for n := 0; n < c.concurrency; n++ {
		sem <- struct{}{}
	}

	if ctx.Err() != nil {
		return nil
	}
	return amqp091.ErrClosed
}

func (c *consumerImpl) actionWithName(action string) string {
	if c.name == "" {
		return action
	}
	return c.name + "." + action
}
