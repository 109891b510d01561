package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/webhookhub/webhookhub/internal/models"
)

type SourceStore struct {
	db *pgxpool.Pool
}

func NewSourceStore(db *pgxpool.Pool) *SourceStore {
	return &SourceStore{db: db}
}

// GetByName returns the source with the given name, or (nil, nil) when
// no such source exists. Inactive sources are returned as-is; the
// caller decides what inactive means.
func (s *SourceStore) GetByName(ctx context.Context, name string) (*models.Source, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, hmac_secret, active, created_at
		FROM sources
		WHERE name = $1
	`, name)

	var source models.Source
	if err := row.Scan(&source.ID, &source.Name, &source.HMACSecret, &source.Active, &source.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query source: %w", err)
	}
	return &source, nil
}

func (s *SourceStore) Create(ctx context.Context, source *models.Source) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO sources (id, name, hmac_secret, active, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, source.ID, source.Name, source.HMACSecret, source.Active, source.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert source: %w", err)
	}
	return nil
}
