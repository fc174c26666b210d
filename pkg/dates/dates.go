package dates

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Day is a date-only key used to index adherence records chronologically.
// Two timestamps on the same local calendar day map to the same Day.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// DayOf truncates a timestamp to its local calendar date.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	return Day{Year: y, Month: m, Day: d}
}

// NewDay constructs a Day from explicit components.
func NewDay(year int, month time.Month, day int) Day {
	// Normalize out-of-range components (e.g. Jan 32) the same way time.Date does.
	return DayOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// Time returns local midnight at the start of the day.
func (d Day) Time(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// Before reports whether d is chronologically before other.
func (d Day) Before(other Day) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// After reports whether d is chronologically after other.
func (d Day) After(other Day) bool {
	return other.Before(d)
}

// AddDays returns the day n calendar days after d (n may be negative).
func (d Day) AddDays(n int) Day {
	return DayOf(d.Time(time.UTC).AddDate(0, 0, n))
}

// Next returns the following calendar day.
func (d Day) Next() Day {
	return d.AddDays(1)
}

// String formats the day as yyyy-mm-dd.
func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// ParseDay parses a yyyy-mm-dd string.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Day{}, fmt.Errorf("invalid day %q: %w", s, err)
	}
	return DayOf(t), nil
}

// Clock is a time of day with minute resolution. The date component of a
// schedule entry is irrelevant; only hour and minute participate in
// comparisons.
type Clock struct {
	Hour   int
	Minute int
}

// Minutes returns the minutes elapsed since midnight.
func (c Clock) Minutes() int {
	return c.Hour*60 + c.Minute
}

// On combines the time of day with a calendar date into a full timestamp.
func (c Clock) On(day Day, loc *time.Location) time.Time {
	return time.Date(day.Year, day.Month, day.Day, c.Hour, c.Minute, 0, 0, loc)
}

// Add returns the clock shifted by the given number of minutes, wrapping
// around midnight in either direction.
func (c Clock) Add(minutes int) Clock {
	total := ((c.Minutes()+minutes)%(24*60) + 24*60) % (24 * 60)
	return Clock{Hour: total / 60, Minute: total % 60}
}

// String formats the clock as HH:MM.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ClockOf extracts the time of day from a timestamp.
func ClockOf(t time.Time) Clock {
	return Clock{Hour: t.Hour(), Minute: t.Minute()}
}

// MinutesApart returns a minus b in minutes of the day.
func MinutesApart(a, b Clock) int {
	return a.Minutes() - b.Minutes()
}

// ParseClock parses a 24-hour "H:MM" or "HH:MM" string.
func ParseClock(s string) (Clock, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return Clock{}, fmt.Errorf("invalid time of day %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return Clock{}, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return Clock{}, fmt.Errorf("invalid minute in %q", s)
	}
	return Clock{Hour: hour, Minute: minute}, nil
}
