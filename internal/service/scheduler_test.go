package service

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pillbox/adherence-backend/internal/store"
	"github.com/pillbox/adherence-backend/pkg/dates"
	"github.com/pillbox/adherence-backend/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeFacility records every Replace call for inspection.
type fakeFacility struct {
	mu       sync.Mutex
	replaces [][]model.Trigger
}

func (f *fakeFacility) Replace(triggers []model.Trigger) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaces = append(f.replaces, triggers)
	return nil
}

func (f *fakeFacility) last() []model.Trigger {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replaces) == 0 {
		return nil
	}
	return f.replaces[len(f.replaces)-1]
}

func newTestScheduler(t *testing.T, registry *Registry, facility AlarmFacility, offsets []int) *ReminderScheduler {
	t.Helper()
	missedCutoff := 4*time.Hour - 5*time.Minute
	s := NewReminderScheduler(registry, facility, store.NewPersister(nil, zap.NewNop()), offsets, missedCutoff, zap.NewNop())
	fixed := time.Date(2026, time.August, 14, 6, 0, 0, 0, time.UTC)
	return s.WithClock(func() time.Time { return fixed }, time.UTC)
}

func triggerTimes(triggers []model.Trigger, missedCheck bool) map[string]bool {
	out := make(map[string]bool)
	for _, trigger := range triggers {
		if trigger.MissedCheck == missedCheck {
			out[trigger.FireAt.String()] = true
		}
	}
	return out
}

func TestTriggers_OffsetsAndMissedChecks(t *testing.T) {
	registry := newTestRegistry(t)
	registerRitonavir(t, registry)
	scheduler := newTestScheduler(t, registry, &fakeFacility{}, []int{0, 30})

	triggers := scheduler.Triggers()

	// 2 slots x 2 offsets reminders plus 2 missed-window checks
	require.Len(t, triggers, 6)

	reminders := triggerTimes(triggers, false)
	assert.Equal(t, map[string]bool{
		"06:30": true,
		"07:00": true,
		"16:30": true,
		"17:00": true,
	}, reminders)

	checks := triggerTimes(triggers, true)
	assert.Equal(t, map[string]bool{
		"10:55": true,
		"20:55": true,
	}, checks)
}

func TestTriggers_PastTimesRollToTomorrow(t *testing.T) {
	registry := newTestRegistry(t)
	registerRitonavir(t, registry)
	scheduler := newTestScheduler(t, registry, &fakeFacility{}, []int{0})

	triggers := scheduler.Triggers()

	today := dates.NewDay(2026, time.August, 14)
	for _, trigger := range triggers {
		if trigger.FireAt.String() == "07:00" {
			// clock is fixed at 06:00, so 07:00 still fires today
			assert.Equal(t, trigger.FireAt.On(today, time.UTC), trigger.NextFire)
		}
	}

	// Move the clock past the evening slot
	scheduler.WithClock(func() time.Time {
		return time.Date(2026, time.August, 14, 22, 0, 0, 0, time.UTC)
	}, time.UTC)

	for _, trigger := range scheduler.Triggers() {
		assert.True(t, trigger.NextFire.After(time.Date(2026, time.August, 14, 22, 0, 0, 0, time.UTC)),
			"trigger %s must fire in the future", trigger.FireAt)
	}
}

func TestTriggers_IdentityIsStable(t *testing.T) {
	registry := newTestRegistry(t)
	registerRitonavir(t, registry)
	scheduler := newTestScheduler(t, registry, &fakeFacility{}, []int{0, 30})

	first := scheduler.Triggers()
	second := scheduler.Triggers()

	ids := func(triggers []model.Trigger) map[uuid.UUID]bool {
		out := make(map[uuid.UUID]bool, len(triggers))
		for _, trigger := range triggers {
			out[trigger.ID] = true
		}
		return out
	}

	assert.Equal(t, ids(first), ids(second), "recomputation must preserve trigger identity")
	assert.Len(t, ids(first), len(first), "every trigger has a distinct identity")
}

func TestTriggers_SkipsUnscheduledSlots(t *testing.T) {
	registry := newTestRegistry(t)
	require.NoError(t, registry.AddMedication(model.Medication{Name: "Truvada", Dosage: 200}))
	morning := dates.Clock{Hour: 8, Minute: 0}
	require.NoError(t, registry.SetSchedule("Truvada", model.Schedule{&morning, nil}))

	scheduler := newTestScheduler(t, registry, &fakeFacility{}, []int{0})

	triggers := scheduler.Triggers()
	require.Len(t, triggers, 2, "one reminder and one missed check for the single scheduled slot")
	for _, trigger := range triggers {
		assert.Equal(t, model.SlotMorning, trigger.Slot)
	}
}

func TestSetOffsets(t *testing.T) {
	registry := newTestRegistry(t)
	registerRitonavir(t, registry)
	facility := &fakeFacility{}
	scheduler := newTestScheduler(t, registry, facility, []int{0})

	assert.Error(t, scheduler.SetOffsets([]int{-10}), "negative offsets are rejected")

	require.NoError(t, scheduler.SetOffsets([]int{30, 0, 30}))
	assert.Equal(t, []int{0, 30}, scheduler.Offsets(), "offsets are deduplicated and sorted")

	armed := facility.last()
	assert.Len(t, armed, 6, "setting offsets re-arms everything")
}

func TestRecompute_RunsOnRegistryChange(t *testing.T) {
	registry := newTestRegistry(t)
	facility := &fakeFacility{}
	scheduler := newTestScheduler(t, registry, facility, []int{0})

	registerRitonavir(t, registry)

	armed := facility.last()
	require.NotNil(t, armed, "registry changes must re-arm triggers")
	assert.Len(t, armed, 4)

	require.NoError(t, registry.RemoveMedication("Ritonavir"))
	assert.Empty(t, facility.last(), "removing the last medication disarms everything")

	_ = scheduler
}
