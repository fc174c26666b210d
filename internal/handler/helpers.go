package handler

import (
	"github.com/pillbox/adherence-backend/pkg/dates"
	"github.com/pillbox/adherence-backend/pkg/model"
)

// ErrorResponse is the error body returned by every endpoint.
type ErrorResponse struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Details *string `json:"details,omitempty"`
}

// stringPtr creates a pointer to a string
func stringPtr(s string) *string {
	return &s
}

// scheduleToStrings converts a two-slot schedule to its wire form: "HH:MM"
// per scheduled slot, null for unscheduled ones.
func scheduleToStrings(schedule model.Schedule) []*string {
	out := make([]*string, model.SlotCount)
	for slot := 0; slot < model.SlotCount; slot++ {
		if schedule[slot] != nil {
			out[slot] = stringPtr(schedule[slot].String())
		}
	}
	return out
}

// parseScheduleStrings converts the wire form back to a schedule.
func parseScheduleStrings(slots []*string) (model.Schedule, error) {
	var schedule model.Schedule
	for slot, raw := range slots {
		if slot >= model.SlotCount {
			break
		}
		if raw == nil {
			continue
		}
		clock, err := dates.ParseClock(*raw)
		if err != nil {
			return model.Schedule{}, err
		}
		schedule[slot] = &clock
	}
	return schedule, nil
}
