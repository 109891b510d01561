package testinfra

import (
	"context"
	"log"
	"sync"

	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

var mqOnce sync.Once

// EnsureRabbitMQ returns an amqp:// URL for a test broker, starting a
// container when no TEST_RABBITMQ_URL is configured.
func EnsureRabbitMQ() string {
	cfg := ReadConfig()
	if cfg.RabbitMQURL == "" {
		mqOnce.Do(func() {
			startRabbitMQTestContainer(cfg)
		})
	}
	return cfg.RabbitMQURL
}

func startRabbitMQTestContainer(cfg *Config) {
	ctx := context.Background()

	mqContainer, err := rabbitmq.Run(ctx,
		"rabbitmq:3.13-management-alpine",
	)
	if err != nil {
		panic(err)
	}

	url, err := mqContainer.AmqpURL(ctx)
	if err != nil {
		panic(err)
	}
	log.Printf("RabbitMQ running at %s", url)
	cfg.RabbitMQURL = url
	cfg.cleanupFns = append(cfg.cleanupFns, func() {
		if err := mqContainer.Terminate(ctx); err != nil {
			log.Printf("failed to terminate container: %s", err)
		}
	})
}
