package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/webhookhub/webhookhub/internal/config"
	"github.com/webhookhub/webhookhub/internal/logging"
	"github.com/webhookhub/webhookhub/internal/models"
	"github.com/webhookhub/webhookhub/internal/pgstore"
)

// SeedInput describes the demo routing to create: one source, one
// destination, one rule binding them for the given event type.
type SeedInput struct {
	SourceName      string
	DestinationName string
	TargetURL       string
	EventType       string
}

// Seed registers a source and a matching destination so that a fresh
// install can receive its first webhook. It prints the generated HMAC
// secret once; it is not retrievable afterwards.
func Seed(ctx context.Context, cfg *config.Config, input SeedInput) error {
	logger, err := logging.NewLogger(logging.WithLogLevel(cfg.LogLevel))
	if err != nil {
		return err
	}
	defer logger.Sync()

	pool, err := pgstore.NewPool(ctx, cfg.Postgres.URL, cfg.Postgres.User, cfg.Postgres.Password)
	if err != nil {
		return err
	}
	defer pool.Close()

	secret, err := generateSecret()
	if err != nil {
		return err
	}

	now := time.Now()
	source := &models.Source{
		ID:         uuid.New(),
		Name:       input.SourceName,
		HMACSecret: secret,
		Active:     true,
		CreatedAt:  now,
	}
	if err := pgstore.NewSourceStore(pool).Create(ctx, source); err != nil {
		return err
	}

	destination := &models.Destination{
		ID:        uuid.New(),
		Name:      input.DestinationName,
		TargetURL: input.TargetURL,
		Active:    true,
		CreatedAt: now,
	}
	destinations := pgstore.NewDestinationStore(pool)
	if err := destinations.Create(ctx, destination); err != nil {
		return err
	}
	rule := &models.DestinationRule{
		ID:            uuid.New(),
		DestinationID: destination.ID,
		SourceName:    input.SourceName,
		EventType:     input.EventType,
	}
	if err := destinations.AddRule(ctx, rule); err != nil {
		return err
	}

	logger.Info("seeded routing",
		zap.String("source", source.Name),
		zap.String("hmac_secret", secret),
		zap.String("destination", destination.Name),
		zap.String("target_url", destination.TargetURL),
		zap.String("event_type", rule.EventType))
	return nil
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
