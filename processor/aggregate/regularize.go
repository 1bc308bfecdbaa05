package aggregate

import (
	"time"

	"github.com/c360/autoprocess/pkg/timestep"
	"github.com/c360/autoprocess/timeseries"
)

// RegularizeStats reports what Regularize did.
type RegularizeStats struct {
	Step     timestep.Step // step of the output grid; zero when the input was returned as is
	Inferred bool          // step was derived from the data
	Inserted int           // placeholder records added for gaps

	// Misaligned counts input records that do not lie on the grid of the step. When it is
	// not zero the output is empty: observed records are never dropped.
	Misaligned int
}

// InferStep returns the greatest common divisor of the spacings between consecutive
// records, so every record of s lies on the grid that starts at its first record.
// It returns false when the series has fewer than two records or the divisor is not a
// whole number of minutes.
func InferStep(s timeseries.Series) (timestep.Step, bool) {
	var g time.Duration
	for i := 1; i < len(s.Records); i++ {
		if d := s.Records[i].Time.Sub(s.Records[i-1].Time); d > 0 {
			g = gcd(g, d)
		}
	}
	if g == 0 {
		return timestep.Step{}, false
	}
	step, err := timestep.FromDuration(g)
	if err != nil {
		return timestep.Step{}, false
	}
	return step, true
}

func gcd(a, b time.Duration) time.Duration {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// Regularize returns a copy of s with exactly one record per step between its first and
// last record. Input records are copied through unchanged; slots with no input record
// get a missing value flagged with token. The grid starts at the first record.
//
// A zero step is inferred from the data. With fewer than two records there is nothing
// to infer from and the input is returned unchanged with a zero Step. If some record is
// not on the grid, or the spacing has no whole-minute divisor, the output is empty and
// Misaligned counts the records that do not fit.
func Regularize(s timeseries.Series, step timestep.Step, token string) (timeseries.Series, RegularizeStats) {
	var st RegularizeStats
	if s.Empty() {
		return timeseries.Series{}, st
	}
	if step.IsZero() {
		if s.Len() < 2 {
			return s.Clone(), st
		}
		inferred, ok := InferStep(s)
		if !ok {
			st.Misaligned = s.Len()
			return timeseries.Series{}, st
		}
		step, st.Inferred = inferred, true
	}
	st.Step = step

	first, last := s.Records[0].Time, s.Records[len(s.Records)-1].Time
	for _, r := range s.Records {
		if !step.Aligned(first, r.Time) {
			st.Misaligned++
		}
	}
	if st.Misaligned > 0 {
		return timeseries.Series{}, st
	}

	out := make([]timeseries.Record, 0, step.Slots(first, last)+1)
	k, i := 0, 0
	for t := first; !t.After(last); t = step.Add(first, k) {
		if i < len(s.Records) && s.Records[i].Time.Equal(t) {
			out = append(out, s.Records[i].Clone())
			i++
		} else {
			out = append(out, timeseries.Record{
				Time:  t,
				Value: timeseries.Missing(),
				Flags: timeseries.Flags{token},
			})
			st.Inserted++
		}
		k++
	}

	return timeseries.Series{Records: out}, st
}
