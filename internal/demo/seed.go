// Package demo seeds the engine with a small medication set and several
// months of plausible adherence history for demos and local development.
package demo

import (
	"math/rand"
	"time"

	"github.com/pillbox/adherence-backend/internal/service"
	"github.com/pillbox/adherence-backend/internal/store"
	"github.com/pillbox/adherence-backend/pkg/dates"
	"github.com/pillbox/adherence-backend/pkg/model"
	"go.uber.org/zap"
)

const historyDays = 112 // 16 weeks

type seedMedication struct {
	name     string
	dosageMg int
	address  string
	morning  *dates.Clock
	evening  *dates.Clock
}

func clock(hour, minute int) *dates.Clock {
	return &dates.Clock{Hour: hour, Minute: minute}
}

var seedMedications = []seedMedication{
	{name: "Ritonavir", dosageMg: 100, address: "00:1A:7D:DA:71:11", morning: clock(7, 0), evening: clock(17, 0)},
	{name: "Truvada", dosageMg: 200, address: "00:1A:7D:DA:71:12", morning: clock(8, 0)},
	{name: "Metformin", dosageMg: 500, address: "00:1A:7D:DA:71:13", morning: clock(7, 30), evening: clock(19, 30)},
	{name: "Lisinopril", dosageMg: 10, evening: clock(21, 0)},
}

// Seed registers the demo medications and backfills their adherence history.
// The same seed always produces the same history.
func Seed(registry *service.Registry, adherence *store.AdherenceStore, seed int64, logger *zap.Logger) {
	rng := rand.New(rand.NewSource(seed))

	for _, sm := range seedMedications {
		med := model.Medication{Name: sm.name, Dosage: sm.dosageMg}
		if err := registry.AddMedication(med); err != nil {
			logger.Warn("failed to seed medication",
				zap.Error(err),
				zap.String("medication", sm.name),
			)
			continue
		}

		var schedule model.Schedule
		schedule[model.SlotMorning] = sm.morning
		schedule[model.SlotEvening] = sm.evening
		if err := registry.SetSchedule(sm.name, schedule); err != nil {
			logger.Warn("failed to seed schedule",
				zap.Error(err),
				zap.String("medication", sm.name),
			)
		}
		if sm.address != "" {
			if err := registry.SetAddress(sm.address, sm.name); err != nil {
				logger.Warn("failed to seed bottle address",
					zap.Error(err),
					zap.String("medication", sm.name),
				)
			}
		}
	}

	today := dates.DayOf(time.Now())
	day := today.AddDays(-historyDays)
	for day.Before(today) {
		for _, sm := range seedMedications {
			seedDay(adherence, rng, day, sm)
		}
		day = day.Next()
	}

	logger.Info("demo data seeded",
		zap.Int("medications", len(seedMedications)),
		zap.Int("history_days", historyDays),
	)
}

func seedDay(adherence *store.AdherenceStore, rng *rand.Rand, day dates.Day, sm seedMedication) {
	slots := [model.SlotCount]*dates.Clock{sm.morning, sm.evening}
	for slot, at := range slots {
		if at == nil {
			continue
		}

		record := model.Adherence{}
		switch roll := rng.Float64(); {
		case roll < 0.78:
			record.Status = model.StatusTaken
			taken := at.On(day, time.Local).Add(time.Duration(rng.Intn(61)-30) * time.Minute)
			record.TimeTaken = &taken
		case roll < 0.90:
			record.Status = model.StatusTakenEarlyOrLate
			offset := time.Duration(rng.Intn(180)+270) * time.Minute
			if rng.Float64() > 0.5 {
				offset = -offset / 2
			}
			taken := at.On(day, time.Local).Add(offset)
			record.TimeTaken = &taken
		default:
			record.Status = model.StatusMissed
		}

		if err := adherence.Put(day, sm.name, slot, record); err != nil {
			return
		}
	}
}
