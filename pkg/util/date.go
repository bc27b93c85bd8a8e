package util

import (
	"time"
)

// DateLayout is the canonical calendar-date layout used across the service.
const DateLayout = "2006-01-02"

// DateOf drops the clock part of t, keeping its calendar fields in t's location,
// and returns that day at midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the current calendar date as observed in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return DateOf(now.In(loc))
}

// Yesterday returns the day before today; the feed never publishes same-day data.
func Yesterday(now time.Time, loc *time.Location) time.Time {
	return Today(now, loc).AddDate(0, 0, -1)
}

// StartOfWeek returns the Monday of d's ISO week.
func StartOfWeek(d time.Time) time.Time {
	d = DateOf(d)
	return d.AddDate(0, 0, -((int(d.Weekday()) + 6) % 7))
}

// DaysBetween returns the whole number of days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(DateOf(b).Sub(DateOf(a)).Hours() / 24)
}

// MinDate returns the earlier of a and b.
func MinDate(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}

// FormatDate renders d as YYYY-MM-DD. The zero time renders as "".
func FormatDate(d time.Time) string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// ParseDate parses YYYY-MM-DD. Returns (d, true) on success.
func ParseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ParseDateDefault parses a date or returns def if empty/invalid.
func ParseDateDefault(s string, def time.Time) time.Time {
	if t, ok := ParseDate(s); ok {
		return t
	}
	return def
}
