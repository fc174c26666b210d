package service

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pillbox/adherence-backend/internal/store"
	"github.com/pillbox/adherence-backend/pkg/dates"
	"github.com/pillbox/adherence-backend/pkg/model"
	"go.uber.org/zap"
)

// AlarmFacility is the outbound boundary the scheduler arms its triggers
// through. Replace cancels every previously armed trigger and arms the given
// set; implementations must tolerate an empty slice.
type AlarmFacility interface {
	Replace(triggers []model.Trigger) error
}

// triggerNamespace seeds the deterministic trigger IDs, so the same
// medication, slot and offset always map to the same alarm identity across
// recomputes and restarts.
var triggerNamespace = uuid.MustParse("9e0cf8b2-41d3-4a76-8f1c-6de40c2a5b17")

// ReminderScheduler derives the full trigger set from the current schedules
// and reminder offsets. Any change to either causes a wholesale recompute:
// cancel everything, re-arm everything. Recomputes triggered while one is in
// flight coalesce into a single follow-up pass.
type ReminderScheduler struct {
	mu           sync.Mutex
	registry     *Registry
	alarms       AlarmFacility
	persister    *store.Persister
	logger       *zap.Logger
	offsets      []int
	missedCutoff time.Duration
	loc          *time.Location
	now          func() time.Time

	recomputing bool
	dirty       bool
}

// NewReminderScheduler creates a ReminderScheduler with the given default
// offsets (minutes before the scheduled time; 0 means at the dose time).
func NewReminderScheduler(registry *Registry, alarms AlarmFacility, persister *store.Persister, defaultOffsets []int, missedCutoff time.Duration, logger *zap.Logger) *ReminderScheduler {
	s := &ReminderScheduler{
		registry:     registry,
		alarms:       alarms,
		persister:    persister,
		logger:       logger,
		offsets:      normalizeOffsets(defaultOffsets),
		missedCutoff: missedCutoff,
		loc:          time.Local,
		now:          time.Now,
	}
	registry.Subscribe(func() {
		if err := s.Recompute(); err != nil {
			logger.Error("failed to recompute reminders after registry change", zap.Error(err))
		}
	})
	return s
}

// WithClock overrides the scheduler's time source. Used by tests.
func (s *ReminderScheduler) WithClock(now func() time.Time, loc *time.Location) *ReminderScheduler {
	s.now = now
	s.loc = loc
	return s
}

func normalizeOffsets(offsets []int) []int {
	seen := make(map[int]bool, len(offsets))
	out := make([]int, 0, len(offsets))
	for _, o := range offsets {
		if !seen[o] {
			seen[o] = true
			out = append(out, o)
		}
	}
	sort.Ints(out)
	return out
}

// Offsets returns the active reminder offsets in ascending order.
func (s *ReminderScheduler) Offsets() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.offsets))
	copy(out, s.offsets)
	return out
}

// SetOffsets replaces the reminder offsets and recomputes all triggers.
func (s *ReminderScheduler) SetOffsets(offsets []int) error {
	for _, o := range offsets {
		if o < 0 {
			return fmt.Errorf("reminder offset must not be negative: %d", o)
		}
	}

	s.mu.Lock()
	s.offsets = normalizeOffsets(offsets)
	active := make([]int, len(s.offsets))
	copy(active, s.offsets)
	s.mu.Unlock()

	s.logger.Info("reminder offsets updated", zap.Ints("offsets_minutes", active))
	s.persister.SaveAsync(store.SnapshotReminderOffsets, active)
	return s.Recompute()
}

// RestoreOffsets loads persisted offsets without triggering persistence.
// Called once during startup, before the first Recompute.
func (s *ReminderScheduler) RestoreOffsets(offsets []int) {
	s.mu.Lock()
	s.offsets = normalizeOffsets(offsets)
	s.mu.Unlock()
}

// Triggers computes the current trigger set without arming anything: one
// reminder per medication, scheduled slot and offset, plus one missed-window
// check per medication and slot. Triggers whose time of day already passed
// today fire tomorrow.
func (s *ReminderScheduler) Triggers() []model.Trigger {
	s.mu.Lock()
	offsets := make([]int, len(s.offsets))
	copy(offsets, s.offsets)
	s.mu.Unlock()

	now := s.now()
	today := dates.DayOf(now.In(s.loc))
	missedDelay := int(s.missedCutoff / time.Minute)

	var triggers []model.Trigger
	for _, med := range s.registry.ListMedications() {
		schedule, ok := s.registry.ScheduleFor(med.Name)
		if !ok {
			continue
		}
		for slot := 0; slot < model.SlotCount; slot++ {
			if schedule[slot] == nil {
				continue
			}
			for _, offset := range offsets {
				fireAt := schedule[slot].Add(-offset)
				triggers = append(triggers, model.Trigger{
					ID:            reminderTriggerID(med.Name, slot, offset),
					Medication:    med.Name,
					Slot:          slot,
					OffsetMinutes: offset,
					FireAt:        fireAt,
					NextFire:      nextFire(fireAt, today, now, s.loc),
				})
			}

			checkAt := schedule[slot].Add(missedDelay)
			triggers = append(triggers, model.Trigger{
				ID:          missedTriggerID(med.Name, slot),
				Medication:  med.Name,
				Slot:        slot,
				MissedCheck: true,
				FireAt:      checkAt,
				NextFire:    nextFire(checkAt, today, now, s.loc),
			})
		}
	}
	return triggers
}

func nextFire(at dates.Clock, today dates.Day, now time.Time, loc *time.Location) time.Time {
	fire := at.On(today, loc)
	if !fire.After(now) {
		fire = at.On(today.Next(), loc)
	}
	return fire
}

func reminderTriggerID(medication string, slot, offset int) uuid.UUID {
	return uuid.NewSHA1(triggerNamespace, []byte(fmt.Sprintf("%s/%d/offset/%d", medication, slot, offset)))
}

func missedTriggerID(medication string, slot int) uuid.UUID {
	return uuid.NewSHA1(triggerNamespace, []byte(fmt.Sprintf("%s/%d/missed", medication, slot)))
}

// Recompute rebuilds the trigger set and replaces all armed alarms with it.
// Calls arriving while a recompute is running set a dirty flag and return
// immediately; the running recompute loops until the flag stays clear, so the
// final arm always reflects the latest state.
func (s *ReminderScheduler) Recompute() error {
	s.mu.Lock()
	if s.recomputing {
		s.dirty = true
		s.mu.Unlock()
		return nil
	}
	s.recomputing = true
	s.mu.Unlock()

	var err error
	for {
		triggers := s.Triggers()
		err = s.alarms.Replace(triggers)
		if err != nil {
			s.logger.Error("failed to arm reminder triggers", zap.Error(err))
		} else {
			s.logger.Info("reminder triggers armed", zap.Int("count", len(triggers)))
		}

		s.mu.Lock()
		if !s.dirty {
			s.recomputing = false
			s.mu.Unlock()
			return err
		}
		s.dirty = false
		s.mu.Unlock()
	}
}
