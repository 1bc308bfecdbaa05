// Package curve maps series values through piecewise-linear calibration curves, each
// valid for a range of dates.
package curve

import (
	"sort"
	"strconv"
	"time"

	"github.com/c360/autoprocess/errors"
	"github.com/c360/autoprocess/pkg/timestamp"
	"github.com/c360/autoprocess/timeseries"
)

// PeriodConfig is the stored form of a calibration period. StartDate and EndDate are
// calendar dates; EndDate covers the whole of its day.
type PeriodConfig struct {
	StartDate string `json:"start_date" yaml:"start_date"`
	EndDate   string `json:"end_date" yaml:"end_date"`
	Points    Points `json:"points,omitempty" yaml:"points,omitempty"`
	// Curve is the text form accepted by ParsePoints; used when Points is empty.
	Curve string `json:"curve,omitempty" yaml:"curve,omitempty"`
}

// Period is a compiled calibration period with its knots sorted by X.
type Period struct {
	start  time.Time // inclusive
	end    time.Time // exclusive, midnight after the end date
	points Points
}

// NewPeriod builds a period from dates and points. It fails when end is before start
// or when the points do not describe a curve.
func NewPeriod(start, end time.Time, points Points) (Period, error) {
	start, end = timestamp.StartOfDate(start), timestamp.StartOfDate(end)
	if end.Before(start) {
		return Period{}, errors.ConfigErrorf("end_date", "%s is before start_date %s",
			timestamp.FormatDate(end), timestamp.FormatDate(start))
	}
	sorted, err := points.sorted()
	if err != nil {
		return Period{}, err
	}
	return Period{start: start, end: timestamp.EndOfDate(end), points: sorted}, nil
}

// Compile parses a stored period.
func (pc PeriodConfig) Compile() (Period, error) {
	start, err := timestamp.ParseDate(pc.StartDate)
	if err != nil {
		return Period{}, errors.NewConfigError("start_date", err.Error())
	}
	end, err := timestamp.ParseDate(pc.EndDate)
	if err != nil {
		return Period{}, errors.NewConfigError("end_date", err.Error())
	}
	points := pc.Points
	if len(points) == 0 && pc.Curve != "" {
		if points, err = ParsePoints(pc.Curve); err != nil {
			return Period{}, err
		}
	}
	return NewPeriod(start, end, points)
}

// StartDate returns the first day of the period.
func (p Period) StartDate() time.Time { return p.start }

// EndDate returns the last day of the period.
func (p Period) EndDate() time.Time { return p.end.AddDate(0, 0, -1) }

// Points returns the sorted knots.
func (p Period) Points() Points { return p.points }

// Contains reports whether t falls within the period.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.start) && t.Before(p.end)
}

// Eval maps one value through the period's curve.
func (p Period) Eval(v float64) float64 {
	return p.points.eval(v)
}

// Compile compiles stored periods, orders them by start date and rejects overlaps.
func Compile(configs []PeriodConfig) ([]Period, error) {
	periods := make([]Period, 0, len(configs))
	for i, pc := range configs {
		p, err := pc.Compile()
		if err != nil {
			return nil, errors.Wrap(err, "curve", "Compile", "period "+strconv.Itoa(i+1))
		}
		periods = append(periods, p)
	}
	return Sort(periods)
}

// Sort orders periods by start date and fails if any two overlap.
func Sort(periods []Period) ([]Period, error) {
	out := make([]Period, len(periods))
	copy(out, periods)
	sort.SliceStable(out, func(i, j int) bool { return out[i].start.Before(out[j].start) })
	for i := 1; i < len(out); i++ {
		if out[i].start.Before(out[i-1].end) {
			return nil, errors.ConfigErrorf("periods", "period starting %s overlaps period %s - %s",
				timestamp.FormatDate(out[i].start),
				timestamp.FormatDate(out[i-1].start), timestamp.FormatDate(out[i-1].EndDate()))
		}
	}
	return out, nil
}

// Stats counts what an interpolation did.
type Stats struct {
	Interpolated int // records inside some period
	OutOfCurve   int // non-missing values outside their curve's X range
}

// Interpolate returns a copy of s in which every record inside a period has its value
// mapped through that period's curve and its flags cleared. Periods are applied in the
// given order, so when periods overlap the later one wins. Records outside every
// period are unchanged.
func Interpolate(s timeseries.Series, periods []Period) (timeseries.Series, Stats) {
	var st Stats
	out := s.Clone()
	for _, p := range periods {
		i, j := out.Span(p.start, p.end)
		for k := i; k < j; k++ {
			r := &out.Records[k]
			v := p.points.eval(r.Value)
			if timeseries.IsMissing(v) && !r.IsMissing() {
				st.OutOfCurve++
			}
			r.Value = v
			r.Flags = nil
			st.Interpolated++
		}
	}
	return out, st
}
