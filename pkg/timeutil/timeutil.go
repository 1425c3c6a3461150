// Package timeutil provides UTC time helpers for Versant Hub.
// All persisted timestamps are UTC; these helpers keep day bucketing and
// trailing-window math consistent between the monitoring analytics and the
// background jobs. No external dependencies - uses only standard library.
package timeutil

import (
	"time"
)

// DayKeyFormat is the format used for day histogram keys.
const DayKeyFormat = "2006-01-02"

// Now returns the current time in UTC.
func Now() time.Time {
	return time.Now().UTC()
}

// StartOfDay returns the start of the day (00:00:00) in UTC.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the end of the day (23:59:59.999999999) in UTC.
func EndOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 23, 59, 59, 999999999, time.UTC)
}

// DayKey returns the histogram bucket key for a timestamp ("2006-01-02").
func DayKey(t time.Time) string {
	return t.UTC().Format(DayKeyFormat)
}

// DaysAgo returns the UTC instant the given number of days before now.
func DaysAgo(days int) time.Time {
	return Now().AddDate(0, 0, -days)
}

// WindowStart returns the start of a trailing window of the given length,
// relative to the reference time.
func WindowStart(ref time.Time, window time.Duration) time.Time {
	return ref.UTC().Add(-window)
}

// SameDay reports whether two timestamps fall on the same UTC day.
func SameDay(a, b time.Time) bool {
	ua, ub := a.UTC(), b.UTC()
	return ua.Year() == ub.Year() && ua.YearDay() == ub.YearDay()
}
