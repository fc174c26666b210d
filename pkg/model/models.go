package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pillbox/adherence-backend/pkg/dates"
)

// Slot indexes into a medication's two daily dose opportunities.
const (
	SlotMorning = 0
	SlotEvening = 1
	SlotCount   = 2
)

// AdherenceStatus classifies how a scheduled dose was handled.
type AdherenceStatus string

const (
	StatusMissed           AdherenceStatus = "MISSED"
	StatusTaken            AdherenceStatus = "TAKEN"
	StatusTakenClarifyTime AdherenceStatus = "TAKEN_CLARIFY_TIME"
	StatusTakenEarlyOrLate AdherenceStatus = "TAKEN_EARLY_OR_LATE"
	StatusFuture           AdherenceStatus = "FUTURE"
	// StatusNone marks a slot with no dose scheduled; it is a placeholder
	// and never rendered or counted.
	StatusNone AdherenceStatus = "NONE"
)

// ParseAdherenceStatus parses the wire representation of an adherence status.
func ParseAdherenceStatus(s string) (AdherenceStatus, error) {
	switch AdherenceStatus(s) {
	case StatusMissed, StatusTaken, StatusTakenClarifyTime,
		StatusTakenEarlyOrLate, StatusFuture, StatusNone:
		return AdherenceStatus(s), nil
	}
	return "", fmt.Errorf("unknown adherence status %q", s)
}

// Adherence is the record for one (day, medication, slot). TimeTaken is set
// for TAKEN, TAKEN_EARLY_OR_LATE and FUTURE records and absent for MISSED,
// NONE and records awaiting time clarification.
type Adherence struct {
	Status    AdherenceStatus `json:"status"`
	TimeTaken *time.Time      `json:"time_taken,omitempty"`
}

// Medication represents one tracked medication. The name is the identity and
// never changes once registered; dosage and schedule are mutable.
type Medication struct {
	Name      string    `json:"name"`
	Dosage    int       `json:"dosage_mg"`
	Image     string    `json:"image,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Schedule holds a medication's two optional daily target times. A nil slot
// means no dose is scheduled for that slot.
type Schedule [SlotCount]*dates.Clock

// Empty reports whether no slot is scheduled.
func (s Schedule) Empty() bool {
	return s[SlotMorning] == nil && s[SlotEvening] == nil
}

// Trigger is a derived reminder descriptor handed to the alarm facility.
// Its identity is a deterministic function of medication, slot and offset so
// repeated recomputation replaces rather than duplicates armed alarms.
type Trigger struct {
	ID            uuid.UUID   `json:"id"`
	Medication    string      `json:"medication"`
	Slot          int         `json:"slot"`
	OffsetMinutes int         `json:"offset_minutes"`
	MissedCheck   bool        `json:"missed_check"`
	FireAt        dates.Clock `json:"fire_at"`
	NextFire      time.Time   `json:"next_fire"`
}

// PeriodType selects the aggregation window for progress reports.
type PeriodType string

const (
	PeriodWeek  PeriodType = "week"
	PeriodMonth PeriodType = "month"
)

// ProgressReport holds cumulative-stacked adherence percentages for a run of
// periods ending at the current one. For any period with data,
// OnTimePct <= LatePct <= MissedPct == 100; periods without data are all 0.
type ProgressReport struct {
	Period    PeriodType `json:"period"`
	Labels    []string   `json:"labels"`
	OnTimePct []int      `json:"on_time_pct"`
	LatePct   []int      `json:"late_pct"`
	MissedPct []int      `json:"missed_pct"`
}
