// Package timestep parses and evaluates nominal time steps such as "10min", "H",
// "3D", "M" or "Y".
//
// A step is a count and a unit. Minute, hour and day steps have a fixed duration;
// month and year steps follow the calendar. Window boundaries of a step are aligned to
// the Unix epoch for fixed steps, to the first of a month whose index since year zero is
// a multiple of the count for month steps, and to January 1 of a year divisible by the
// count for year steps.
package timestep

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Unit is the unit of a time step.
type Unit int

// Units, finest first.
const (
	Minute Unit = iota
	Hour
	Day
	Month
	Year
)

// String returns the unit token.
func (u Unit) String() string {
	switch u {
	case Minute:
		return "min"
	case Hour:
		return "H"
	case Day:
		return "D"
	case Month:
		return "M"
	case Year:
		return "Y"
	default:
		return "?"
	}
}

var unitTokens = map[string]Unit{
	"min": Minute,
	"T":   Minute,
	"H":   Hour,
	"h":   Hour,
	"D":   Day,
	"d":   Day,
	"M":   Month,
	"MS":  Month,
	"Y":   Year,
	"YS":  Year,
	"A":   Year,
	"AS":  Year,
}

var stepPattern = regexp.MustCompile(`^([+-]?\d+)?\s*([A-Za-z]+)$`)

// Step is a nominal time step.
type Step struct {
	Count int
	Unit  Unit
}

var epoch = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// Parse reads a step of the form [count]unit. An absent count is 1. Negative and zero
// counts are accepted here; ParsePositive and ParseOffset restrict them.
func Parse(s string) (Step, error) {
	text := strings.TrimSpace(s)
	m := stepPattern.FindStringSubmatch(text)
	if m == nil {
		return Step{}, fmt.Errorf("%q is not a valid time step", s)
	}
	unit, ok := unitTokens[m[2]]
	if !ok {
		return Step{}, fmt.Errorf("%q has unknown unit %q (use min, H, D, M or Y)", s, m[2])
	}
	count := 1
	if m[1] != "" {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return Step{}, fmt.Errorf("%q has invalid count: %w", s, err)
		}
		count = n
	}
	return Step{Count: count, Unit: unit}, nil
}

// ParsePositive reads a step whose count must be at least 1.
func ParsePositive(s string) (Step, error) {
	step, err := Parse(s)
	if err != nil {
		return Step{}, err
	}
	if step.Count < 1 {
		return Step{}, fmt.Errorf("%q must have a positive count", s)
	}
	return step, nil
}

// ParseOffset reads a signed offset that must be expressed in minutes. The empty
// string is a zero offset.
func ParseOffset(s string) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	step, err := Parse(s)
	if err != nil {
		return 0, err
	}
	if step.Unit != Minute {
		return 0, fmt.Errorf("%q must be expressed in minutes, e.g. \"-1min\"", s)
	}
	return time.Duration(step.Count) * time.Minute, nil
}

// MustParse is like ParsePositive but panics on error. Intended for tests and constants.
func MustParse(s string) Step {
	step, err := ParsePositive(s)
	if err != nil {
		panic(err)
	}
	return step
}

// FromDuration returns the fixed step equal to d, using the largest unit that divides it.
func FromDuration(d time.Duration) (Step, error) {
	if d <= 0 || d%time.Minute != 0 {
		return Step{}, fmt.Errorf("%s is not a positive whole number of minutes", d)
	}
	switch {
	case d%(24*time.Hour) == 0:
		return Step{Count: int(d / (24 * time.Hour)), Unit: Day}, nil
	case d%time.Hour == 0:
		return Step{Count: int(d / time.Hour), Unit: Hour}, nil
	default:
		return Step{Count: int(d / time.Minute), Unit: Minute}, nil
	}
}

// String renders the step; a count of 1 is omitted.
func (s Step) String() string {
	if s.Count == 1 {
		return s.Unit.String()
	}
	return strconv.Itoa(s.Count) + s.Unit.String()
}

// IsZero reports whether s is the zero Step.
func (s Step) IsZero() bool {
	return s.Count == 0
}

// Fixed reports whether the step has a fixed duration.
func (s Step) Fixed() bool {
	return s.Unit <= Day
}

// Duration returns the length of a fixed step, or 0 for calendar steps.
func (s Step) Duration() time.Duration {
	switch s.Unit {
	case Minute:
		return time.Duration(s.Count) * time.Minute
	case Hour:
		return time.Duration(s.Count) * time.Hour
	case Day:
		return time.Duration(s.Count) * 24 * time.Hour
	default:
		return 0
	}
}

// Months returns the length of a calendar step in months, or 0 for fixed steps.
func (s Step) Months() int {
	switch s.Unit {
	case Month:
		return s.Count
	case Year:
		return 12 * s.Count
	default:
		return 0
	}
}

// Add returns t moved by k steps. Month arithmetic clamps to the last day of the
// resulting month, so Jan 31 plus one month is Feb 28 or 29.
func (s Step) Add(t time.Time, k int) time.Time {
	if s.Fixed() {
		return t.Add(time.Duration(k) * s.Duration())
	}
	return addMonths(t, k*s.Months())
}

func addMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	idx := y*12 + int(m-1) + months
	ny, nm := floorDiv(idx, 12), time.Month(floorMod(idx, 12)+1)
	if last := daysIn(ny, nm); d > last {
		d = last
	}
	h, mi, sec := t.Clock()
	return time.Date(ny, nm, d, h, mi, sec, t.Nanosecond(), t.Location())
}

func daysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Ceil returns the smallest window boundary of s that is not before t.
func (s Step) Ceil(t time.Time) time.Time {
	if s.Fixed() {
		d := s.Duration()
		r := floorModDuration(t.Sub(epoch), d)
		if r == 0 {
			return t
		}
		return t.Add(d - r)
	}

	y, m, _ := t.Date()
	idx := y*12 + int(m-1)
	start := time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
	if t.After(start) {
		idx++
	}
	n := s.Months()
	if r := floorMod(idx, n); r != 0 {
		idx += n - r
	}
	return time.Date(floorDiv(idx, 12), time.Month(floorMod(idx, 12)+1), 1, 0, 0, 0, 0, t.Location())
}

// Slots returns how many steps of s fit in the half-open span (from, to], rounded up.
func (s Step) Slots(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	if s.Fixed() {
		d := s.Duration()
		span := to.Sub(from)
		return int((span + d - 1) / d)
	}
	n := 0
	for t := from; t.Before(to); t = s.Add(from, n) {
		n++
	}
	return n
}

// Aligned reports whether t lies on the grid that starts at anchor.
func (s Step) Aligned(anchor, t time.Time) bool {
	if s.Fixed() {
		return floorModDuration(t.Sub(anchor), s.Duration()) == 0
	}
	for k := 0; ; k++ {
		g := s.Add(anchor, k)
		if !g.Before(t) {
			return g.Equal(t)
		}
	}
}

// Compare orders two steps by nominal length. Calendar steps are compared by months and
// are longer than any fixed step of up to 28 days.
func (s Step) Compare(o Step) int {
	a, b := s.nominal(), o.nominal()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (s Step) nominal() time.Duration {
	if s.Fixed() {
		return s.Duration()
	}
	return time.Duration(s.Months()) * 28 * 24 * time.Hour
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int) int {
	return a - floorDiv(a, b)*b
}

func floorModDuration(a, b time.Duration) time.Duration {
	r := a % b
	if r < 0 {
		r += b
	}
	return r
}
