package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pillbox/adherence-backend/pkg/dates"
	"github.com/pillbox/adherence-backend/pkg/model"
	"go.uber.org/zap"
)

// DayEntry pairs a day key with its per-medication adherence records.
type DayEntry struct {
	Day     dates.Day
	Records map[string][model.SlotCount]model.Adherence
}

// AdherenceStore maps day keys to per-medication, per-slot adherence records.
// Slot upserts are read-modify-write, so all writers are serialized behind a
// single lock; concurrent writes to different medications on the same day
// must not lose updates.
type AdherenceStore struct {
	mu     sync.RWMutex
	days   map[dates.Day]map[string]*[model.SlotCount]model.Adherence
	logger *zap.Logger
}

// NewAdherenceStore creates an empty AdherenceStore.
func NewAdherenceStore(logger *zap.Logger) *AdherenceStore {
	return &AdherenceStore{
		days:   make(map[dates.Day]map[string]*[model.SlotCount]model.Adherence),
		logger: logger,
	}
}

// Get returns a copy of the records for the given day. The second return
// value is false if the day was never materialized, which callers must treat
// as "no data" rather than a day of NONE slots.
func (s *AdherenceStore) Get(day dates.Day) (map[string][model.SlotCount]model.Adherence, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.days[day]
	if !ok {
		return nil, false
	}
	out := make(map[string][model.SlotCount]model.Adherence, len(entry))
	for name, records := range entry {
		out[name] = *records
	}
	return out, true
}

// Put upserts the record for one (day, medication, slot). The day and
// medication entries are created if absent, with unset slots filled as NONE.
func (s *AdherenceStore) Put(day dates.Day, medication string, slot int, record model.Adherence) error {
	if slot < 0 || slot >= model.SlotCount {
		return fmt.Errorf("slot index out of range: %d", slot)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.days[day]
	if !ok {
		entry = make(map[string]*[model.SlotCount]model.Adherence)
		s.days[day] = entry
	}
	records, ok := entry[medication]
	if !ok {
		records = &[model.SlotCount]model.Adherence{
			{Status: model.StatusNone},
			{Status: model.StatusNone},
		}
		entry[medication] = records
	}
	records[slot] = record
	return nil
}

// Range returns the entries for all materialized days in
// [startDay, endDayExclusive), in chronological order.
func (s *AdherenceStore) Range(startDay, endDayExclusive dates.Day) []DayEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []dates.Day
	for day := range s.days {
		if !day.Before(startDay) && day.Before(endDayExclusive) {
			keys = append(keys, day)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	entries := make([]DayEntry, 0, len(keys))
	for _, day := range keys {
		records := make(map[string][model.SlotCount]model.Adherence, len(s.days[day]))
		for name, recs := range s.days[day] {
			records[name] = *recs
		}
		entries = append(entries, DayEntry{Day: day, Records: records})
	}
	return entries
}

// Materialize ensures every day from `from` through `from+horizonDays` holds
// a full two-slot entry for every scheduled medication: NONE where no dose is
// scheduled, FUTURE (carrying the scheduled time) where one is and no
// classification has happened yet. Existing records are never overwritten.
func (s *AdherenceStore) Materialize(from dates.Day, horizonDays int, schedules map[string]model.Schedule, loc *time.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := from
	for i := 0; i <= horizonDays; i++ {
		s.fillDayLocked(day, schedules, loc)
		day = day.Next()
	}

	// Days holding classified data must also carry the full per-medication
	// grid so range consumers see a uniform shape.
	for existing := range s.days {
		s.fillDayLocked(existing, schedules, loc)
	}
}

func (s *AdherenceStore) fillDayLocked(day dates.Day, schedules map[string]model.Schedule, loc *time.Location) {
	entry, ok := s.days[day]
	if !ok {
		entry = make(map[string]*[model.SlotCount]model.Adherence)
		s.days[day] = entry
	}
	for name, schedule := range schedules {
		records, ok := entry[name]
		if !ok {
			records = &[model.SlotCount]model.Adherence{
				{Status: model.StatusNone},
				{Status: model.StatusNone},
			}
			entry[name] = records
		}
		for slot := 0; slot < model.SlotCount; slot++ {
			if records[slot].Status != model.StatusNone {
				continue // already materialized or classified
			}
			if schedule[slot] == nil {
				continue
			}
			scheduled := schedule[slot].On(day, loc)
			records[slot] = model.Adherence{Status: model.StatusFuture, TimeTaken: &scheduled}
		}
	}
}

// UpdateWhere applies fn to every record and replaces those for which it
// returns true. The whole sweep runs under the write lock. Returns the number
// of records replaced.
func (s *AdherenceStore) UpdateWhere(fn func(day dates.Day, medication string, slot int, record model.Adherence) (model.Adherence, bool)) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := 0
	for day, entry := range s.days {
		for name, records := range entry {
			for slot := 0; slot < model.SlotCount; slot++ {
				if replacement, ok := fn(day, name, slot, records[slot]); ok {
					records[slot] = replacement
					updated++
				}
			}
		}
	}
	return updated
}

// ReplaceAll swaps the store contents wholesale. Used by bulk sync, which is
// last-writer-wins by contract.
func (s *AdherenceStore) ReplaceAll(data map[dates.Day]map[string][model.SlotCount]model.Adherence) {
	replacement := make(map[dates.Day]map[string]*[model.SlotCount]model.Adherence, len(data))
	for day, entry := range data {
		converted := make(map[string]*[model.SlotCount]model.Adherence, len(entry))
		for name, records := range entry {
			recs := records
			converted[name] = &recs
		}
		replacement[day] = converted
	}

	s.mu.Lock()
	s.days = replacement
	count := len(replacement)
	s.mu.Unlock()

	s.logger.Info("adherence data replaced", zap.Int("days", count))
}

// Snapshot returns a JSON-friendly copy of the full store contents, keyed by
// yyyy-mm-dd strings.
func (s *AdherenceStore) Snapshot() map[string]map[string][model.SlotCount]model.Adherence {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]map[string][model.SlotCount]model.Adherence, len(s.days))
	for day, entry := range s.days {
		records := make(map[string][model.SlotCount]model.Adherence, len(entry))
		for name, recs := range entry {
			records[name] = *recs
		}
		out[day.String()] = records
	}
	return out
}

// Restore replaces the store contents from a snapshot previously produced by
// Snapshot. Days that fail to parse are skipped with a warning.
func (s *AdherenceStore) Restore(snapshot map[string]map[string][model.SlotCount]model.Adherence) {
	data := make(map[dates.Day]map[string][model.SlotCount]model.Adherence, len(snapshot))
	for key, entry := range snapshot {
		day, err := dates.ParseDay(key)
		if err != nil {
			s.logger.Warn("skipping unparseable day key in snapshot",
				zap.String("day", key),
				zap.Error(err),
			)
			continue
		}
		data[day] = entry
	}
	s.ReplaceAll(data)
}
