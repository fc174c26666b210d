package service

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/pillbox/adherence-backend/internal/store"
	"github.com/pillbox/adherence-backend/pkg/dates"
	"github.com/pillbox/adherence-backend/pkg/model"
	"go.uber.org/zap"
)

// ClassifierConfig holds the time-window rules for intake classification.
// The on-time window is asymmetric around the scheduled time; the missed
// cutoff is when an unconfirmed FUTURE dose flips to MISSED.
type ClassifierConfig struct {
	EarlyWindow   time.Duration
	LateWindow    time.Duration
	MissedCutoff  time.Duration
	ClarifyWindow time.Duration
}

// DefaultClassifierConfig holds the stock windows: two hours early through
// ninety minutes late counts as on time, an unconfirmed dose flips to missed
// five minutes short of four hours, and manual time clarification resolves to
// on time within one hour of the slot.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		EarlyWindow:   2 * time.Hour,
		LateWindow:    90 * time.Minute,
		MissedCutoff:  4*time.Hour - 5*time.Minute,
		ClarifyWindow: time.Hour,
	}
}

// Jitter produces a deterministic pseudo-random offset applied to the
// scheduled time when an adherence record is overridden to
// TAKEN_EARLY_OR_LATE. Confined to manual edits and demo data; never used on
// the production intake path.
type Jitter func(slot int) time.Duration

// NewJitter returns a seeded Jitter producing offsets of ±(1-4h, 15-60min),
// matching the shape of manually edited early/late intake times.
func NewJitter(seed int64) Jitter {
	rng := rand.New(rand.NewSource(seed))
	return func(int) time.Duration {
		sign := time.Duration(1)
		if rng.Float64() > 0.5 {
			sign = -1
		}
		hours := time.Duration(1+rng.Intn(3)) * time.Hour
		minutes := time.Duration(15+rng.Intn(45)) * time.Minute
		return sign * (hours + minutes)
	}
}

// Classifier maps detected or reported intake events onto adherence records,
// consulting the schedule registry and writing results into the adherence
// store. Missing schedules or medications are non-fatal: the operation is
// logged and skipped.
type Classifier struct {
	registry  *Registry
	store     *store.AdherenceStore
	persister *store.Persister
	logger    *zap.Logger
	cfg       ClassifierConfig
	jitter    Jitter
	loc       *time.Location
	now       func() time.Time
}

// NewClassifier creates a Classifier.
func NewClassifier(registry *Registry, adherence *store.AdherenceStore, persister *store.Persister, cfg ClassifierConfig, logger *zap.Logger) *Classifier {
	return &Classifier{
		registry:  registry,
		store:     adherence,
		persister: persister,
		logger:    logger,
		cfg:       cfg,
		jitter:    NewJitter(time.Now().UnixNano()),
		loc:       time.Local,
		now:       time.Now,
	}
}

// WithClock overrides the classifier's time source. Used by tests and demo
// seeding.
func (c *Classifier) WithClock(now func() time.Time, loc *time.Location) *Classifier {
	c.now = now
	c.loc = loc
	return c
}

// WithJitter overrides the early/late override jitter source.
func (c *Classifier) WithJitter(j Jitter) *Classifier {
	c.jitter = j
	return c
}

// nearestSlot picks the schedule slot whose time of day is closest to the
// reported intake time. Ties go to the morning slot. Returns -1 when no slot
// is scheduled.
func nearestSlot(schedule model.Schedule, at dates.Clock) int {
	best := -1
	bestDistance := 0
	for slot := 0; slot < model.SlotCount; slot++ {
		if schedule[slot] == nil {
			continue
		}
		distance := dates.MinutesApart(at, *schedule[slot])
		if distance < 0 {
			distance = -distance
		}
		if best == -1 || distance < bestDistance {
			best = slot
			bestDistance = distance
		}
	}
	return best
}

// RecordIntake classifies a reported intake timestamp against the
// medication's schedule and persists the resulting record. Returns the
// record written, or ok=false if the event could not be classified (no
// schedule, no slot) and the operation was skipped.
func (c *Classifier) RecordIntake(medication string, timeTaken time.Time) (model.Adherence, bool) {
	schedule, ok := c.registry.ScheduleFor(medication)
	if !ok || schedule.Empty() {
		c.logger.Warn("no schedule for medication, skipping classification",
			zap.String("medication", medication),
			zap.Time("time_taken", timeTaken),
		)
		return model.Adherence{}, false
	}

	day := dates.DayOf(timeTaken.In(c.loc))
	slot := nearestSlot(schedule, dates.ClockOf(timeTaken.In(c.loc)))
	if slot < 0 {
		return model.Adherence{}, false
	}

	scheduled := schedule[slot].On(day, c.loc)
	diff := timeTaken.Sub(scheduled)

	status := model.StatusTakenEarlyOrLate
	if diff >= -c.cfg.EarlyWindow && diff <= c.cfg.LateWindow {
		status = model.StatusTaken
	}

	record := model.Adherence{Status: status, TimeTaken: &timeTaken}
	if err := c.store.Put(day, medication, slot, record); err != nil {
		c.logger.Error("failed to store adherence record",
			zap.Error(err),
			zap.String("medication", medication),
		)
		return model.Adherence{}, false
	}

	c.logger.Info("intake classified",
		zap.String("medication", medication),
		zap.Int("slot", slot),
		zap.String("status", string(status)),
		zap.Duration("offset_from_schedule", diff),
	)

	c.persistAdherence()
	return record, true
}

// ClarifyTime resolves a TAKEN_CLARIFY_TIME record with a user-entered time
// of day. The full timestamp combines the entered time with the scheduled
// date; within the clarify window of the slot time it resolves to TAKEN,
// otherwise TAKEN_EARLY_OR_LATE.
func (c *Classifier) ClarifyTime(medication string, day dates.Day, slot int, at dates.Clock) error {
	if slot < 0 || slot >= model.SlotCount {
		return fmt.Errorf("slot index out of range: %d", slot)
	}

	records, ok := c.store.Get(day)
	if !ok {
		return fmt.Errorf("no adherence data for %s", day)
	}
	recs, ok := records[medication]
	if !ok {
		return fmt.Errorf("no adherence data for medication %s on %s", medication, day)
	}
	if recs[slot].Status != model.StatusTakenClarifyTime {
		return fmt.Errorf("record is not awaiting time clarification")
	}

	schedule, ok := c.registry.ScheduleFor(medication)
	if !ok || schedule[slot] == nil {
		c.logger.Warn("no schedule for clarified slot, skipping",
			zap.String("medication", medication),
			zap.Int("slot", slot),
		)
		return nil
	}

	taken := at.On(day, c.loc)
	scheduled := schedule[slot].On(day, c.loc)
	diff := taken.Sub(scheduled)
	if diff < 0 {
		diff = -diff
	}

	status := model.StatusTakenEarlyOrLate
	if diff <= c.cfg.ClarifyWindow {
		status = model.StatusTaken
	}

	if err := c.store.Put(day, medication, slot, model.Adherence{Status: status, TimeTaken: &taken}); err != nil {
		return err
	}

	c.logger.Info("clarified intake time",
		zap.String("medication", medication),
		zap.Int("slot", slot),
		zap.String("status", string(status)),
	)

	c.persistAdherence()
	return nil
}

// Override sets an adherence record to an explicit user-chosen status. For
// TAKEN the time taken becomes the scheduled time; for TAKEN_EARLY_OR_LATE
// the scheduled time shifted by the jitter source. A missing schedule where
// one is needed makes the operation a logged no-op.
func (c *Classifier) Override(medication string, day dates.Day, slot int, status model.AdherenceStatus) error {
	if slot < 0 || slot >= model.SlotCount {
		return fmt.Errorf("slot index out of range: %d", slot)
	}
	if _, ok := c.registry.Medication(medication); !ok {
		return fmt.Errorf("medication not found: %s", medication)
	}

	record := model.Adherence{Status: status}
	switch status {
	case model.StatusTaken, model.StatusTakenEarlyOrLate, model.StatusFuture:
		schedule, ok := c.registry.ScheduleFor(medication)
		if !ok || schedule[slot] == nil {
			c.logger.Warn("no schedule for overridden slot, skipping",
				zap.String("medication", medication),
				zap.Int("slot", slot),
			)
			return nil
		}
		taken := schedule[slot].On(day, c.loc)
		if status == model.StatusTakenEarlyOrLate {
			taken = taken.Add(c.jitter(slot))
		}
		record.TimeTaken = &taken
	}

	if err := c.store.Put(day, medication, slot, record); err != nil {
		return err
	}

	c.logger.Info("adherence overridden",
		zap.String("medication", medication),
		zap.String("day", day.String()),
		zap.Int("slot", slot),
		zap.String("status", string(status)),
	)

	c.persistAdherence()
	return nil
}

// ExpireOverdue flips FUTURE records whose scheduled time passed the missed
// cutoff to MISSED. Driven by the scheduler's missed-window triggers and on
// startup. Returns the number of records expired.
func (c *Classifier) ExpireOverdue(now time.Time) int {
	expired := c.store.UpdateWhere(func(_ dates.Day, _ string, _ int, rec model.Adherence) (model.Adherence, bool) {
		if rec.Status != model.StatusFuture || rec.TimeTaken == nil {
			return rec, false
		}
		if now.Sub(*rec.TimeTaken) < c.cfg.MissedCutoff {
			return rec, false
		}
		return model.Adherence{Status: model.StatusMissed}, true
	})

	if expired > 0 {
		c.logger.Info("expired overdue doses", zap.Int("count", expired))
		c.persistAdherence()
	}
	return expired
}

func (c *Classifier) persistAdherence() {
	c.persister.SaveAsync(store.SnapshotAdherence, c.store.Snapshot())
}
