package testinfra

import (
	"context"
	"log"
	"sync"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var pgOnce sync.Once

// EnsurePostgres returns a connection URL for a test Postgres server,
// starting a container when no TEST_POSTGRES_URL is configured.
func EnsurePostgres() string {
	cfg := ReadConfig()
	if cfg.PostgresURL == "" {
		pgOnce.Do(func() {
			startPostgresTestContainer(cfg)
		})
	}
	return cfg.PostgresURL
}

func startPostgresTestContainer(cfg *Config) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("webhookhub"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		panic(err)
	}

	url, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		panic(err)
	}
	log.Printf("Postgres running at %s", url)
	cfg.PostgresURL = url
	cfg.cleanupFns = append(cfg.cleanupFns, func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			log.Printf("failed to terminate container: %s", err)
		}
	})
}
