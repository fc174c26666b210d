package service

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/pillbox/adherence-backend/internal/store"
	"github.com/pillbox/adherence-backend/pkg/dates"
	"github.com/pillbox/adherence-backend/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestProgress(t *testing.T, registry *Registry, adherence *store.AdherenceStore) *ProgressService {
	t.Helper()
	p := NewProgressService(registry, adherence, zap.NewNop())
	fixed := time.Date(2026, time.August, 14, 12, 0, 0, 0, time.UTC)
	return p.WithClock(func() time.Time { return fixed }, time.UTC)
}

func putStatus(t *testing.T, adherence *store.AdherenceStore, day dates.Day, medication string, slot int, status model.AdherenceStatus) {
	t.Helper()
	require.NoError(t, adherence.Put(day, medication, slot, model.Adherence{Status: status}))
}

func TestReport_NoDataIsAllZero(t *testing.T) {
	registry := newTestRegistry(t)
	registerRitonavir(t, registry)
	progress := newTestProgress(t, registry, store.NewAdherenceStore(zap.NewNop()))

	report, err := progress.Report(model.PeriodMonth, 3, nil)
	require.NoError(t, err)

	require.Len(t, report.Labels, 3)
	assert.Equal(t, []int{0, 0, 0}, report.OnTimePct)
	assert.Equal(t, []int{0, 0, 0}, report.LatePct)
	assert.Equal(t, []int{0, 0, 0}, report.MissedPct)
}

func TestReport_StackedPercentages(t *testing.T) {
	registry := newTestRegistry(t)
	registerRitonavir(t, registry)
	adherence := store.NewAdherenceStore(zap.NewNop())
	progress := newTestProgress(t, registry, adherence)

	// Current month: two doses on time (one via clarified time), one missed
	putStatus(t, adherence, dates.NewDay(2026, time.August, 3), "Ritonavir", model.SlotMorning, model.StatusTaken)
	putStatus(t, adherence, dates.NewDay(2026, time.August, 4), "Ritonavir", model.SlotMorning, model.StatusTakenClarifyTime)
	putStatus(t, adherence, dates.NewDay(2026, time.August, 5), "Ritonavir", model.SlotMorning, model.StatusMissed)

	report, err := progress.Report(model.PeriodMonth, 1, nil)
	require.NoError(t, err)

	require.Len(t, report.OnTimePct, 1)
	assert.Equal(t, 67, report.OnTimePct[0], "clarified doses count as on time")
	assert.Equal(t, 67, report.LatePct[0], "no late doses leaves the late band at the on-time level")
	assert.Equal(t, 100, report.MissedPct[0])
	assert.Equal(t, "Aug 2026", report.Labels[0])
}

func TestReport_LateBandStacksOnTop(t *testing.T) {
	registry := newTestRegistry(t)
	registerRitonavir(t, registry)
	adherence := store.NewAdherenceStore(zap.NewNop())
	progress := newTestProgress(t, registry, adherence)

	putStatus(t, adherence, dates.NewDay(2026, time.August, 3), "Ritonavir", model.SlotMorning, model.StatusTaken)
	putStatus(t, adherence, dates.NewDay(2026, time.August, 4), "Ritonavir", model.SlotMorning, model.StatusTakenEarlyOrLate)
	putStatus(t, adherence, dates.NewDay(2026, time.August, 5), "Ritonavir", model.SlotMorning, model.StatusTakenEarlyOrLate)
	putStatus(t, adherence, dates.NewDay(2026, time.August, 6), "Ritonavir", model.SlotMorning, model.StatusMissed)

	report, err := progress.Report(model.PeriodMonth, 1, nil)
	require.NoError(t, err)

	assert.Equal(t, 25, report.OnTimePct[0])
	assert.Equal(t, 75, report.LatePct[0])
	assert.Equal(t, 100, report.MissedPct[0])
}

func TestReport_FutureAndNoneDoNotCount(t *testing.T) {
	registry := newTestRegistry(t)
	registerRitonavir(t, registry)
	adherence := store.NewAdherenceStore(zap.NewNop())
	progress := newTestProgress(t, registry, adherence)

	putStatus(t, adherence, dates.NewDay(2026, time.August, 3), "Ritonavir", model.SlotMorning, model.StatusTaken)
	putStatus(t, adherence, dates.NewDay(2026, time.August, 20), "Ritonavir", model.SlotMorning, model.StatusFuture)
	putStatus(t, adherence, dates.NewDay(2026, time.August, 20), "Ritonavir", model.SlotEvening, model.StatusNone)

	report, err := progress.Report(model.PeriodMonth, 1, nil)
	require.NoError(t, err)

	assert.Equal(t, 100, report.OnTimePct[0], "the single classified dose is on time")
}

func TestReport_MedicationSubset(t *testing.T) {
	registry := newTestRegistry(t)
	registerRitonavir(t, registry)
	require.NoError(t, registry.AddMedication(model.Medication{Name: "Truvada", Dosage: 200}))

	adherence := store.NewAdherenceStore(zap.NewNop())
	progress := newTestProgress(t, registry, adherence)

	putStatus(t, adherence, dates.NewDay(2026, time.August, 3), "Ritonavir", model.SlotMorning, model.StatusTaken)
	putStatus(t, adherence, dates.NewDay(2026, time.August, 3), "Truvada", model.SlotMorning, model.StatusMissed)

	report, err := progress.Report(model.PeriodMonth, 1, []string{"Ritonavir"})
	require.NoError(t, err)
	assert.Equal(t, 100, report.OnTimePct[0], "other medications must not leak into the subset")

	_, err = progress.Report(model.PeriodMonth, 1, []string{"Nope"})
	assert.Error(t, err)
}

func TestReport_WeeklyWindows(t *testing.T) {
	registry := newTestRegistry(t)
	registerRitonavir(t, registry)
	adherence := store.NewAdherenceStore(zap.NewNop())
	progress := newTestProgress(t, registry, adherence)

	// 2026-08-14 is a Friday; its week starts Monday 2026-08-10
	putStatus(t, adherence, dates.NewDay(2026, time.August, 10), "Ritonavir", model.SlotMorning, model.StatusTaken)
	// The Sunday before belongs to the previous week
	putStatus(t, adherence, dates.NewDay(2026, time.August, 9), "Ritonavir", model.SlotMorning, model.StatusMissed)

	report, err := progress.Report(model.PeriodWeek, 2, nil)
	require.NoError(t, err)

	require.Len(t, report.OnTimePct, 2)
	assert.Equal(t, 0, report.OnTimePct[0], "previous week holds only the missed dose")
	assert.Equal(t, 100, report.MissedPct[0])
	assert.Equal(t, 100, report.OnTimePct[1])
	assert.Equal(t, "Aug 10", report.Labels[1])
}

func TestReport_InvalidPeriod(t *testing.T) {
	registry := newTestRegistry(t)
	progress := newTestProgress(t, registry, store.NewAdherenceStore(zap.NewNop()))

	_, err := progress.Report(model.PeriodType("year"), 1, nil)
	assert.Error(t, err)
}

func TestProperty_PercentagesAlwaysStack(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	statuses := []model.AdherenceStatus{
		model.StatusTaken,
		model.StatusTakenClarifyTime,
		model.StatusTakenEarlyOrLate,
		model.StatusMissed,
		model.StatusFuture,
		model.StatusNone,
	}

	properties.Property("0 <= onTime <= late <= missed, and missed is 100 whenever data exists", prop.ForAll(
		func(picks []int) bool {
			registry := NewRegistry(store.NewPersister(nil, zap.NewNop()), zap.NewNop())
			if err := registry.AddMedication(model.Medication{Name: "Ritonavir", Dosage: 100}); err != nil {
				return false
			}
			adherence := store.NewAdherenceStore(zap.NewNop())
			progress := NewProgressService(registry, adherence, zap.NewNop()).
				WithClock(func() time.Time { return time.Date(2026, time.August, 14, 12, 0, 0, 0, time.UTC) }, time.UTC)

			classified := 0
			day := dates.NewDay(2026, time.August, 1)
			for _, pick := range picks {
				status := statuses[pick%len(statuses)]
				if adherence.Put(day, "Ritonavir", model.SlotMorning, model.Adherence{Status: status}) != nil {
					return false
				}
				switch status {
				case model.StatusTaken, model.StatusTakenClarifyTime, model.StatusTakenEarlyOrLate, model.StatusMissed:
					classified++
				}
				day = day.Next()
			}

			report, err := progress.Report(model.PeriodMonth, 1, nil)
			if err != nil {
				return false
			}

			onTime, late, missed := report.OnTimePct[0], report.LatePct[0], report.MissedPct[0]
			if classified == 0 {
				return onTime == 0 && late == 0 && missed == 0
			}
			return onTime >= 0 && onTime <= late && late <= missed && missed == 100
		},
		gen.SliceOfN(14, gen.IntRange(0, len(statuses)-1)),
	))

	properties.TestingRun(t)
}
