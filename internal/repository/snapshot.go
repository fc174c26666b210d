package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// SnapshotRepository stores whole-structure engine snapshots as jsonb rows,
// one per aggregate name.
type SnapshotRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(db *pgxpool.Pool, logger *zap.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates the snapshots table if it does not exist.
func (r *SnapshotRepository) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS snapshots (
			name       TEXT PRIMARY KEY,
			data       JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`

	if _, err := r.db.Exec(ctx, query); err != nil {
		r.logger.Error("failed to ensure snapshots schema", zap.Error(err))
		return fmt.Errorf("failed to ensure snapshots schema: %w", err)
	}
	return nil
}

// Save upserts the named snapshot.
func (r *SnapshotRepository) Save(ctx context.Context, name string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		r.logger.Error("failed to marshal snapshot",
			zap.Error(err),
			zap.String("snapshot", name),
		)
		return fmt.Errorf("failed to marshal snapshot %s: %w", name, err)
	}

	query := `
		INSERT INTO snapshots (name, data, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()
	`

	if _, err := r.db.Exec(ctx, query, name, payload); err != nil {
		r.logger.Error("failed to save snapshot",
			zap.Error(err),
			zap.String("snapshot", name),
		)
		return fmt.Errorf("failed to save snapshot %s: %w", name, err)
	}
	return nil
}

// Load reads the named snapshot into out. Returns false if the snapshot was
// never persisted.
func (r *SnapshotRepository) Load(ctx context.Context, name string, out any) (bool, error) {
	query := `SELECT data FROM snapshots WHERE name = $1`

	var payload []byte
	err := r.db.QueryRow(ctx, query, name).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		r.logger.Error("failed to load snapshot",
			zap.Error(err),
			zap.String("snapshot", name),
		)
		return false, fmt.Errorf("failed to load snapshot %s: %w", name, err)
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal snapshot %s: %w", name, err)
	}
	return true, nil
}
