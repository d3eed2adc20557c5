package scheduler

import (
	"time"

	"reportserver/src/models"
)

const (
	defaultHour   = 8
	defaultMinute = 0

	defaultDayOfWeek  = 1 // Monday
	defaultDayOfMonth = 1
)

// ParseTimeOfDay parses an "HH:MM" wall-clock string. Anything that is not
// exactly two zero-padded fields in range, trailing text included, falls back
// to 08:00 rather than erroring, so a schedule with a bad time still fires at
// a predictable hour.
func ParseTimeOfDay(timeOfDay string) (hour, minute int) {
	t, err := time.Parse("15:04", timeOfDay)
	if err != nil || len(timeOfDay) != len("15:04") {
		return defaultHour, defaultMinute
	}
	return t.Hour(), t.Minute()
}

// NextRunAt computes the next occurrence of a schedule strictly after from.
// It is a pure function: no clock reads, no I/O. dayOfWeek applies only to
// weekly cadences (0-6, defaulting to Monday); dayOfMonth only to monthly
// cadences, clamped to the target month's last day on every occurrence, so a
// schedule set to the 31st fires on Feb 28/29, Apr 30 and so on instead of
// skipping short months.
func NextRunAt(cadence models.Cadence, timeOfDay string, dayOfWeek, dayOfMonth *int, from time.Time) time.Time {
	hour, minute := ParseTimeOfDay(timeOfDay)

	switch cadence {
	case models.CadenceWeekly:
		return nextWeekly(from, hour, minute, dayOfWeek)
	case models.CadenceMonthly:
		return nextMonthly(from, hour, minute, dayOfMonth)
	default:
		return nextDaily(from, hour, minute)
	}
}

func nextDaily(from time.Time, hour, minute int) time.Time {
	candidate := atTime(from, hour, minute)
	if candidate.After(from) {
		return candidate
	}
	return candidate.AddDate(0, 0, 1)
}

func nextWeekly(from time.Time, hour, minute int, dayOfWeek *int) time.Time {
	wanted := defaultDayOfWeek
	if dayOfWeek != nil && *dayOfWeek >= 0 && *dayOfWeek <= 6 {
		wanted = *dayOfWeek
	}

	candidate := atTime(from, hour, minute)
	delta := (wanted - int(candidate.Weekday()) + 7) % 7
	candidate = candidate.AddDate(0, 0, delta)
	if candidate.After(from) {
		return candidate
	}
	return candidate.AddDate(0, 0, 7)
}

func nextMonthly(from time.Time, hour, minute int, dayOfMonth *int) time.Time {
	wanted := defaultDayOfMonth
	if dayOfMonth != nil {
		wanted = clamp(*dayOfMonth, 1, 31)
	}

	year, month, _ := from.Date()
	day := min(wanted, daysInMonth(year, month))
	candidate := time.Date(year, month, day, hour, minute, 0, 0, from.Location())
	if candidate.After(from) {
		return candidate
	}

	// Advance to the next month and re-clamp the wanted day against that
	// month's length.
	next := time.Date(year, month, 1, hour, minute, 0, 0, from.Location()).AddDate(0, 1, 0)
	day = min(wanted, daysInMonth(next.Year(), next.Month()))
	return time.Date(next.Year(), next.Month(), day, hour, minute, 0, 0, from.Location())
}

func atTime(from time.Time, hour, minute int) time.Time {
	year, month, day := from.Date()
	return time.Date(year, month, day, hour, minute, 0, 0, from.Location())
}

// daysInMonth relies on time.Date normalizing day zero of the following
// month to the last day of this one.
func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
