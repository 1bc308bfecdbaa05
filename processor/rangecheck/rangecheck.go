// Package rangecheck removes out-of-range values from a series and flags suspect ones.
package rangecheck

import (
	"math"

	"github.com/c360/autoprocess/errors"
	"github.com/c360/autoprocess/timeseries"
)

// Config holds the bounds of a range check. The hard bounds are required; each soft
// bound is checked only when set.
type Config struct {
	LowerBound     float64  `json:"lower_bound" yaml:"lower_bound"`
	UpperBound     float64  `json:"upper_bound" yaml:"upper_bound"`
	SoftLowerBound *float64 `json:"soft_lower_bound,omitempty" yaml:"soft_lower_bound,omitempty"`
	SoftUpperBound *float64 `json:"soft_upper_bound,omitempty" yaml:"soft_upper_bound,omitempty"`
}

// Validate checks that every bound is finite and that the hard bounds are ordered.
// Soft bounds that are not inside the hard range are accepted.
func (c Config) Validate() error {
	bounds := []struct {
		name string
		v    *float64
	}{
		{"lower_bound", &c.LowerBound},
		{"upper_bound", &c.UpperBound},
		{"soft_lower_bound", c.SoftLowerBound},
		{"soft_upper_bound", c.SoftUpperBound},
	}
	for _, b := range bounds {
		if b.v != nil && (math.IsNaN(*b.v) || math.IsInf(*b.v, 0)) {
			return errors.NewConfigError(b.name, "must be a finite number")
		}
	}
	if c.LowerBound > c.UpperBound {
		return errors.ConfigErrorf("lower_bound", "%g is greater than upper_bound %g", c.LowerBound, c.UpperBound)
	}
	return nil
}

// Stats counts what a check did.
type Stats struct {
	Checked int // non-missing input values
	Range   int // values removed by the hard bounds
	Suspect int // values flagged by the soft bounds
}

// Check returns a copy of s in which every non-missing value outside
// [LowerBound, UpperBound] is replaced by a missing value flagged RANGE, and every
// remaining value outside the configured soft bounds is flagged SUSPECT.
// Missing input values are left alone.
func Check(s timeseries.Series, c Config) (timeseries.Series, Stats) {
	var st Stats
	out := s.Clone()

	for i := range out.Records {
		r := &out.Records[i]
		if r.IsMissing() {
			continue
		}
		st.Checked++
		if r.Value < c.LowerBound || r.Value > c.UpperBound {
			r.Value = timeseries.Missing()
			r.Flags = r.Flags.Add(timeseries.FlagRange)
			st.Range++
		}
	}

	if c.SoftLowerBound == nil && c.SoftUpperBound == nil {
		return out, st
	}

	for i := range out.Records {
		r := &out.Records[i]
		if r.IsMissing() {
			continue
		}
		low := c.SoftLowerBound != nil && r.Value < *c.SoftLowerBound
		high := c.SoftUpperBound != nil && r.Value > *c.SoftUpperBound
		if low || high {
			r.Flags = r.Flags.Add(timeseries.FlagSuspect)
			st.Suspect++
		}
	}

	return out, st
}
