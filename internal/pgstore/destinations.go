package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/webhookhub/webhookhub/internal/models"
)

type DestinationStore struct {
	db *pgxpool.Pool
}

func NewDestinationStore(db *pgxpool.Pool) *DestinationStore {
	return &DestinationStore{db: db}
}

// ListMatching returns all active destinations with a rule matching
// (source_name, event_type).
func (s *DestinationStore) ListMatching(ctx context.Context, sourceName, eventType string) ([]models.Destination, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT d.id, d.name, d.target_url, d.active, d.created_at
		FROM destinations d
		JOIN destination_rules r ON r.destination_id = d.id
		WHERE r.source_name = $1
		AND r.event_type = $2
		AND d.active
		ORDER BY d.id
	`, sourceName, eventType)
	if err != nil {
		return nil, fmt.Errorf("query destinations: %w", err)
	}
	defer rows.Close()

	var destinations []models.Destination
	for rows.Next() {
		var d models.Destination
		if err := rows.Scan(&d.ID, &d.Name, &d.TargetURL, &d.Active, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan destination: %w", err)
		}
		destinations = append(destinations, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate destinations: %w", err)
	}
	return destinations, nil
}

func (s *DestinationStore) Create(ctx context.Context, destination *models.Destination) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO destinations (id, name, target_url, active, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, destination.ID, destination.Name, destination.TargetURL, destination.Active, destination.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert destination: %w", err)
	}
	return nil
}

func (s *DestinationStore) AddRule(ctx context.Context, rule *models.DestinationRule) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO destination_rules (id, destination_id, source_name, event_type)
		VALUES ($1, $2, $3, $4)
	`, rule.ID, rule.DestinationID, rule.SourceName, rule.EventType)
	if err != nil {
		return fmt.Errorf("insert destination rule: %w", err)
	}
	return nil
}
