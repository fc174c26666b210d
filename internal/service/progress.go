package service

import (
	"fmt"
	"math"
	"time"

	"github.com/pillbox/adherence-backend/internal/store"
	"github.com/pillbox/adherence-backend/pkg/dates"
	"github.com/pillbox/adherence-backend/pkg/model"
	"go.uber.org/zap"
)

// defaultPeriodCount is how many trailing periods a report covers when the
// caller does not ask for a specific run length.
const defaultPeriodCount = 6

// ProgressService aggregates classified adherence records into
// cumulative-stacked percentage series suitable for charting: the on-time
// band, on top of it the late band, on top of that the missed band closing
// at 100.
type ProgressService struct {
	registry *Registry
	store    *store.AdherenceStore
	logger   *zap.Logger
	loc      *time.Location
	now      func() time.Time
}

// NewProgressService creates a ProgressService.
func NewProgressService(registry *Registry, adherence *store.AdherenceStore, logger *zap.Logger) *ProgressService {
	return &ProgressService{
		registry: registry,
		store:    adherence,
		logger:   logger,
		loc:      time.Local,
		now:      time.Now,
	}
}

// WithClock overrides the service's time source. Used by tests.
func (p *ProgressService) WithClock(now func() time.Time, loc *time.Location) *ProgressService {
	p.now = now
	p.loc = loc
	return p
}

type periodWindow struct {
	label string
	start dates.Day // inclusive
	end   dates.Day // exclusive
}

// Report aggregates the trailing `count` periods ending with the current one.
// A nil or empty medication list means all registered medications; unknown
// names in the list are an error.
func (p *ProgressService) Report(period model.PeriodType, count int, medications []string) (*model.ProgressReport, error) {
	if period != model.PeriodWeek && period != model.PeriodMonth {
		return nil, fmt.Errorf("invalid period type: %s", period)
	}
	if count <= 0 {
		count = defaultPeriodCount
	}

	selected, err := p.selectMedications(medications)
	if err != nil {
		return nil, err
	}

	windows := p.windows(period, count)
	report := &model.ProgressReport{
		Period:    period,
		Labels:    make([]string, 0, count),
		OnTimePct: make([]int, 0, count),
		LatePct:   make([]int, 0, count),
		MissedPct: make([]int, 0, count),
	}

	for _, w := range windows {
		onTime, late, missed := p.tally(w, selected)
		total := onTime + late + missed

		report.Labels = append(report.Labels, w.label)
		if total == 0 {
			report.OnTimePct = append(report.OnTimePct, 0)
			report.LatePct = append(report.LatePct, 0)
			report.MissedPct = append(report.MissedPct, 0)
			continue
		}

		onTimePct := pct(onTime, total)
		latePct := onTimePct + pct(late, total)
		if latePct > 100 {
			latePct = 100
		}
		report.OnTimePct = append(report.OnTimePct, onTimePct)
		report.LatePct = append(report.LatePct, latePct)
		report.MissedPct = append(report.MissedPct, 100)
	}

	p.logger.Info("progress report built",
		zap.String("period", string(period)),
		zap.Int("periods", count),
		zap.Int("medications", len(selected)),
	)
	return report, nil
}

func pct(part, total int) int {
	return int(math.Round(100 * float64(part) / float64(total)))
}

func (p *ProgressService) selectMedications(names []string) (map[string]bool, error) {
	selected := make(map[string]bool)
	if len(names) == 0 {
		for _, med := range p.registry.ListMedications() {
			selected[med.Name] = true
		}
		return selected, nil
	}
	for _, name := range names {
		if _, ok := p.registry.Medication(name); !ok {
			return nil, fmt.Errorf("medication not found: %s", name)
		}
		selected[name] = true
	}
	return selected, nil
}

// windows returns the trailing periods oldest first, ending with the period
// containing today. Weeks start on Monday.
func (p *ProgressService) windows(period model.PeriodType, count int) []periodWindow {
	now := p.now().In(p.loc)
	windows := make([]periodWindow, count)

	switch period {
	case model.PeriodMonth:
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, p.loc)
		for i := count - 1; i >= 0; i-- {
			next := first.AddDate(0, 1, 0)
			windows[i] = periodWindow{
				label: first.Format("Jan 2006"),
				start: dates.DayOf(first),
				end:   dates.DayOf(next),
			}
			first = first.AddDate(0, -1, 0)
		}
	case model.PeriodWeek:
		back := (int(now.Weekday()) + 6) % 7
		start := dates.DayOf(now).AddDays(-back)
		for i := count - 1; i >= 0; i-- {
			windows[i] = periodWindow{
				label: start.Time(p.loc).Format("Jan 2"),
				start: start,
				end:   start.AddDays(7),
			}
			start = start.AddDays(-7)
		}
	}
	return windows
}

// tally counts classified doses in the window. TAKEN and TAKEN_CLARIFY_TIME
// count as on time; FUTURE and NONE do not count at all.
func (p *ProgressService) tally(w periodWindow, selected map[string]bool) (onTime, late, missed int) {
	for _, entry := range p.store.Range(w.start, w.end) {
		for name, records := range entry.Records {
			if !selected[name] {
				continue
			}
			for slot := 0; slot < model.SlotCount; slot++ {
				switch records[slot].Status {
				case model.StatusTaken, model.StatusTakenClarifyTime:
					onTime++
				case model.StatusTakenEarlyOrLate:
					late++
				case model.StatusMissed:
					missed++
				}
			}
		}
	}
	return onTime, late, missed
}
