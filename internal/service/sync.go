package service

import (
	"fmt"
	"time"

	"github.com/pillbox/adherence-backend/internal/store"
	"github.com/pillbox/adherence-backend/pkg/dates"
	"github.com/pillbox/adherence-backend/pkg/model"
	"go.uber.org/zap"
)

// SyncPayload is the wire shape of a bulk state upload: the full medication
// list, the two-slot schedule per medication ("H:MM" or null per slot), and
// the adherence history keyed by day, then medication, then slot as
// [status, "H:MM"] pairs.
type SyncPayload struct {
	Medications   []string                         `json:"medications"`
	Schedule      map[string][]*string             `json:"schedule"`
	AdherenceData map[string]map[string][][]string `json:"adherence_data"`
}

// SyncService applies bulk uploads atomically: the entire payload is parsed
// and validated into staging structures first, and only a fully valid payload
// replaces the registry and adherence store. Any error leaves existing state
// untouched.
type SyncService struct {
	registry  *Registry
	store     *store.AdherenceStore
	persister *store.Persister
	logger    *zap.Logger
	loc       *time.Location
}

// NewSyncService creates a SyncService.
func NewSyncService(registry *Registry, adherence *store.AdherenceStore, persister *store.Persister, logger *zap.Logger) *SyncService {
	return &SyncService{
		registry:  registry,
		store:     adherence,
		persister: persister,
		logger:    logger,
		loc:       time.Local,
	}
}

// Apply validates and applies a bulk upload. Last writer wins wholesale:
// medications or history present locally but absent from the payload are
// dropped. Dosages of medications that survive the sync are retained.
func (s *SyncService) Apply(payload SyncPayload) error {
	medications, schedules, err := s.parseRegistry(payload)
	if err != nil {
		return fmt.Errorf("invalid sync payload: %w", err)
	}
	adherence, err := s.parseAdherence(payload)
	if err != nil {
		return fmt.Errorf("invalid sync payload: %w", err)
	}

	// The store is swapped before the registry: the registry's change
	// notification re-materializes the grid, which must see the new history.
	s.store.ReplaceAll(adherence)
	s.registry.ReplaceAll(medications, schedules)
	s.persister.SaveAsync(store.SnapshotAdherence, s.store.Snapshot())

	s.logger.Info("bulk sync applied",
		zap.Int("medications", len(medications)),
		zap.Int("days", len(adherence)),
	)
	return nil
}

func (s *SyncService) parseRegistry(payload SyncPayload) ([]model.Medication, map[string]model.Schedule, error) {
	seen := make(map[string]bool, len(payload.Medications))
	medications := make([]model.Medication, 0, len(payload.Medications))
	schedules := make(map[string]model.Schedule, len(payload.Medications))
	now := time.Now()

	for _, name := range payload.Medications {
		if name == "" {
			return nil, nil, fmt.Errorf("medication name is required")
		}
		if seen[name] {
			return nil, nil, fmt.Errorf("duplicate medication: %s", name)
		}
		seen[name] = true

		med := model.Medication{Name: name, CreatedAt: now, UpdatedAt: now}
		if existing, ok := s.registry.Medication(name); ok {
			med.Dosage = existing.Dosage
			med.Image = existing.Image
			med.CreatedAt = existing.CreatedAt
		}
		medications = append(medications, med)

		slots, ok := payload.Schedule[name]
		if !ok {
			return nil, nil, fmt.Errorf("missing schedule for medication %s", name)
		}
		if len(slots) != model.SlotCount {
			return nil, nil, fmt.Errorf("schedule for %s must have %d slots, got %d", name, model.SlotCount, len(slots))
		}
		var schedule model.Schedule
		for slot, raw := range slots {
			if raw == nil {
				continue
			}
			clock, err := dates.ParseClock(*raw)
			if err != nil {
				return nil, nil, fmt.Errorf("schedule for %s slot %d: %w", name, slot, err)
			}
			schedule[slot] = &clock
		}
		schedules[name] = schedule
	}

	for name := range payload.Schedule {
		if !seen[name] {
			return nil, nil, fmt.Errorf("schedule references unknown medication %s", name)
		}
	}
	return medications, schedules, nil
}

func (s *SyncService) parseAdherence(payload SyncPayload) (map[dates.Day]map[string][model.SlotCount]model.Adherence, error) {
	registered := make(map[string]bool, len(payload.Medications))
	for _, name := range payload.Medications {
		registered[name] = true
	}

	out := make(map[dates.Day]map[string][model.SlotCount]model.Adherence, len(payload.AdherenceData))
	for dayKey, entry := range payload.AdherenceData {
		day, err := dates.ParseDay(dayKey)
		if err != nil {
			return nil, fmt.Errorf("adherence day %q: %w", dayKey, err)
		}

		records := make(map[string][model.SlotCount]model.Adherence, len(entry))
		for name, slots := range entry {
			if !registered[name] {
				return nil, fmt.Errorf("adherence on %s references unknown medication %s", dayKey, name)
			}
			if len(slots) != model.SlotCount {
				return nil, fmt.Errorf("adherence for %s on %s must have %d slots, got %d", name, dayKey, model.SlotCount, len(slots))
			}

			var parsed [model.SlotCount]model.Adherence
			for slot, pair := range slots {
				record, err := s.parseRecord(day, pair)
				if err != nil {
					return nil, fmt.Errorf("adherence for %s on %s slot %d: %w", name, dayKey, slot, err)
				}
				parsed[slot] = record
			}
			records[name] = parsed
		}
		out[day] = records
	}
	return out, nil
}

// parseRecord decodes one [status, "H:MM"] pair. Statuses without an intake
// time (MISSED, FUTURE, NONE) accept an empty time field.
func (s *SyncService) parseRecord(day dates.Day, pair []string) (model.Adherence, error) {
	if len(pair) != 2 {
		return model.Adherence{}, fmt.Errorf("record must be a [status, time] pair, got %d elements", len(pair))
	}
	status, err := model.ParseAdherenceStatus(pair[0])
	if err != nil {
		return model.Adherence{}, err
	}

	record := model.Adherence{Status: status}
	if pair[1] != "" {
		clock, err := dates.ParseClock(pair[1])
		if err != nil {
			return model.Adherence{}, err
		}
		at := clock.On(day, s.loc)
		record.TimeTaken = &at
	}
	return record, nil
}
