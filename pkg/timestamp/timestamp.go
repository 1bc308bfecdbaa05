// Package timestamp provides time series timestamp handling utilities.
//
// Series timestamps are naive station-local times with minute resolution. They are
// carried as time.Time values in UTC so that arithmetic never crosses a DST change;
// the UTC location is a label, not a claim about the station's time zone.
//
// Usage Examples:
//
//	t, err := timestamp.Parse("2024-03-01 12:10")
//	s := timestamp.Format(t) // "2024-03-01 12:10"
//
//	d, err := timestamp.ParseDate("2024-03-01")
//	end := timestamp.EndOfDate(d) // 2024-03-02 00:00, exclusive
package timestamp

import (
	"fmt"
	"strings"
	"time"
)

// Layout is the canonical text form of a series timestamp.
const Layout = "2006-01-02 15:04"

// DateLayout is the text form of a calendar date.
const DateLayout = "2006-01-02"

var parseLayouts = []string{
	Layout,
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	DateLayout,
}

// Naive drops the location of t, keeping its wall clock, and returns it in UTC.
func Naive(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, mo, d := t.Date()
	h, mi, s := t.Clock()
	return time.Date(y, mo, d, h, mi, s, t.Nanosecond(), time.UTC)
}

// Format renders t in Layout. Returns an empty string for the zero time.
func Format(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(Layout)
}

// FormatDate renders the date part of t.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// Parse reads a series timestamp. It accepts Layout, the ISO "T" separator, optional
// seconds, a bare date (midnight), and RFC3339, whose offset is discarded.
func Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return Naive(t), nil
	}
	return time.Time{}, fmt.Errorf("%q is not a valid timestamp", s)
}

// ParseDate reads a calendar date and returns midnight of that date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is not a valid date", s)
	}
	return t, nil
}

// StartOfDate returns midnight of the date of t.
func StartOfDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EndOfDate returns midnight of the day after t, so that a date read as an inclusive
// end covers the whole of that day when compared exclusively.
func EndOfDate(t time.Time) time.Time {
	return StartOfDate(t).AddDate(0, 0, 1)
}

// ToUnixMs converts t to Unix milliseconds; zero time gives 0.
func ToUnixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromUnixMs converts Unix milliseconds to a UTC time; 0 gives the zero time.
func FromUnixMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// Max returns the later of two times. Zero values count as earlier than any other time.
func Max(a, b time.Time) time.Time {
	if a.IsZero() {
		return b
	}
	if b.IsZero() || a.After(b) {
		return a
	}
	return b
}
