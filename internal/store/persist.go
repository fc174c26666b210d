package store

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Snapshot names used at the persistence boundary. Each aggregate structure
// is saved and loaded whole; there is no partial or delta persistence.
const (
	SnapshotMedications     = "medications"
	SnapshotSchedule        = "schedule"
	SnapshotAdherence       = "adherence"
	SnapshotReminderOffsets = "reminder-offsets"
	SnapshotAddresses       = "addresses"
)

// SnapshotRepository persists whole-structure snapshots. Load returns false
// when the named snapshot was never persisted.
type SnapshotRepository interface {
	Save(ctx context.Context, name string, v any) error
	Load(ctx context.Context, name string, out any) (bool, error)
}

// Persister wraps a SnapshotRepository with the engine's fire-and-forget save
// semantics: save errors are logged, never surfaced to the mutation that
// triggered them. A nil repository disables persistence entirely.
type Persister struct {
	repo    SnapshotRepository
	logger  *zap.Logger
	timeout time.Duration
}

// NewPersister creates a Persister. repo may be nil to run purely in memory.
func NewPersister(repo SnapshotRepository, logger *zap.Logger) *Persister {
	return &Persister{
		repo:    repo,
		logger:  logger,
		timeout: 10 * time.Second,
	}
}

// SaveAsync persists the snapshot in the background.
func (p *Persister) SaveAsync(name string, v any) {
	if p.repo == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		if err := p.repo.Save(ctx, name, v); err != nil {
			p.logger.Error("failed to persist snapshot",
				zap.Error(err),
				zap.String("snapshot", name),
			)
			return
		}
		p.logger.Debug("snapshot persisted", zap.String("snapshot", name))
	}()
}

// Load reads the named snapshot synchronously, returning false if it was
// never persisted or persistence is disabled.
func (p *Persister) Load(ctx context.Context, name string, out any) (bool, error) {
	if p.repo == nil {
		return false, nil
	}
	return p.repo.Load(ctx, name, out)
}
