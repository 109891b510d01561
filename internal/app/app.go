package app

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/webhookhub/webhookhub/internal/apirouter"
	"github.com/webhookhub/webhookhub/internal/backoff"
	"github.com/webhookhub/webhookhub/internal/config"
	"github.com/webhookhub/webhookhub/internal/consumer"
	"github.com/webhookhub/webhookhub/internal/deliverymq"
	"github.com/webhookhub/webhookhub/internal/destwebhook"
	"github.com/webhookhub/webhookhub/internal/ingest"
	"github.com/webhookhub/webhookhub/internal/logging"
	"github.com/webhookhub/webhookhub/internal/pgstore"
	"github.com/webhookhub/webhookhub/internal/worker"
)

const serviceName = "webhookhub"

type App struct {
	config *config.Config
}

func New(cfg *config.Config) *App {
	return &App{
		config: cfg,
	}
}

func (a *App) Run(ctx context.Context) error {
	return run(ctx, a.config)
}

func run(mainContext context.Context, cfg *config.Config) error {
	logger, err := logging.NewLogger(logging.WithLogLevel(cfg.LogLevel))
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("starting webhookhub",
		zap.Int("port", cfg.Port),
		zap.Int("prefetch", cfg.Delivery.Prefetch),
		zap.Int("max_attempts", cfg.Delivery.MaxAttempts))

	if err := pgstore.Migrate(cfg.Postgres.URL); err != nil {
		logger.Error("migration failed", zap.Error(err))
		return err
	}

	pool, err := pgstore.NewPool(mainContext, cfg.Postgres.URL, cfg.Postgres.User, cfg.Postgres.Password)
	if err != nil {
		logger.Error("database initialization failed", zap.Error(err))
		return err
	}
	defer pool.Close()

	amqpConn, err := amqp091.Dial(cfg.RabbitMQ.ServerURL())
	if err != nil {
		logger.Error("broker connection failed", zap.Error(err))
		return err
	}
	defer amqpConn.Close()

	logger.Debug("declaring broker topology")
	if err := deliverymq.DeclareInfra(amqpConn); err != nil {
		logger.Error("broker topology declaration failed", zap.Error(err))
		return err
	}

	// One channel per producer: a channel is single-threaded, so the
	// ingest publisher and the consumer (which publishes from inside
	// its callback) must not share one.
	ingestChannel, err := amqpConn.Channel()
	if err != nil {
		return err
	}
	defer ingestChannel.Close()
	consumerChannel, err := amqpConn.Channel()
	if err != nil {
		return err
	}
	defer consumerChannel.Close()

	deliveryStore := pgstore.NewDeliveryStore(pool)

	ingestor := ingest.New(ingest.Config{
		Logger:       logger,
		Sources:      pgstore.NewSourceStore(pool),
		Destinations: pgstore.NewDestinationStore(pool),
		Events:       pgstore.NewEventStore(pool),
		Deliveries:   deliveryStore,
		Publisher:    deliverymq.NewPublisher(ingestChannel),
		MaxAttempts:  cfg.Delivery.MaxAttempts,
	})

	retryBackoff := &backoff.ExponentialBackoff{
		Interval: cfg.Delivery.BaseDelay(),
		Base:     2,
		Max:      cfg.Delivery.MaxDelay(),
	}
	handler := deliverymq.NewMessageHandler(
		logger,
		deliveryStore,
		deliverymq.NewPublisher(consumerChannel),
		destwebhook.NewClient(cfg.Delivery.HTTPTimeout()),
		retryBackoff,
		cfg.Delivery.MaxAttempts,
	)
	deliveryConsumer := consumer.New(consumerChannel, deliverymq.QueueMain, handler,
		consumer.WithName("deliverymq"),
		consumer.WithConcurrency(cfg.Delivery.Prefetch),
		consumer.WithLogger(logger),
	)

	ctx, stop := signal.NotifyContext(mainContext, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	supervisor := worker.NewWorkerSupervisor(logger,
		worker.WithShutdownTimeout(30*time.Second),
	)

	router := apirouter.NewRouter(apirouter.RouterConfig{
		ServiceName: serviceName,
		GinMode:     cfg.GinMode,
	}, ingestor, supervisor.GetHealthTracker())

	supervisor.Register(newHTTPWorker(cfg.Port, router, logger))
	supervisor.Register(newConsumerWorker(deliveryConsumer))

	return supervisor.Run(ctx)
}
