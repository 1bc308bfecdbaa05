// Package autoprocess defines the automatic processes that derive one series from
// another: range checks, curve interpolations and aggregations.
//
// A Definition is the stored, editable form. Compile validates it once and returns an
// immutable Process with its curves sorted and its steps parsed; only a Process is
// ever run.
package autoprocess

import (
	"fmt"
	"strings"

	"github.com/c360/autoprocess/errors"
	"github.com/c360/autoprocess/processor/curve"
	"github.com/c360/autoprocess/processor/rangecheck"
)

// Kind tags the variant of a process.
type Kind string

// Process kinds.
const (
	KindRangeCheck         Kind = "range_check"
	KindCurveInterpolation Kind = "curve_interpolation"
	KindAggregation        Kind = "aggregation"
)

// SeriesRef names a series as "station/series".
type SeriesRef string

// NewSeriesRef joins a station and a series name.
func NewSeriesRef(station, series string) SeriesRef {
	return SeriesRef(station + "/" + series)
}

// Split returns the station and series parts.
func (r SeriesRef) Split() (station, series string, err error) {
	station, series, ok := strings.Cut(string(r), "/")
	if !ok || station == "" || series == "" || strings.Contains(series, "/") {
		return "", "", fmt.Errorf("%q is not of the form station/series", string(r))
	}
	return station, series, nil
}

// Station returns the station part, or "" if the reference is malformed.
func (r SeriesRef) Station() string {
	s, _, _ := r.Split()
	return s
}

// Series returns the series part, or "" if the reference is malformed.
func (r SeriesRef) Series() string {
	_, s, _ := r.Split()
	return s
}

// CurveConfig holds the parameters of a curve interpolation.
type CurveConfig struct {
	Name    string               `json:"name" yaml:"name"`
	Periods []curve.PeriodConfig `json:"periods" yaml:"periods"`
}

// AggregationConfig holds the parameters of an aggregation.
type AggregationConfig struct {
	TargetTimeStep string `json:"target_time_step" yaml:"target_time_step"`
	// SourceTimeStep is the nominal step of the source; inferred from the data when empty.
	SourceTimeStep           string `json:"source_time_step,omitempty" yaml:"source_time_step,omitempty"`
	Method                   string `json:"method" yaml:"method"`
	MaxMissing               int    `json:"max_missing" yaml:"max_missing"`
	ResultingTimestampOffset string `json:"resulting_timestamp_offset,omitempty" yaml:"resulting_timestamp_offset,omitempty"`
}

// Definition is the stored form of an automatic process. Exactly one of RangeCheck,
// Curve and Aggregation must be set, matching Kind.
type Definition struct {
	ID          string             `json:"id" yaml:"id"`
	Station     string             `json:"station" yaml:"station"`
	Source      SeriesRef          `json:"source" yaml:"source"`
	Target      SeriesRef          `json:"target" yaml:"target"`
	Kind        Kind               `json:"kind" yaml:"kind"`
	RangeCheck  *rangecheck.Config `json:"range_check,omitempty" yaml:"range_check,omitempty"`
	Curve       *CurveConfig       `json:"curve_interpolation,omitempty" yaml:"curve_interpolation,omitempty"`
	Aggregation *AggregationConfig `json:"aggregation,omitempty" yaml:"aggregation,omitempty"`
	Disabled    bool               `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	Version     int64              `json:"version,omitempty" yaml:"-"`
}

// checkIntegrity verifies the identity fields shared by every kind.
func (d Definition) checkIntegrity() error {
	if d.ID == "" {
		return errors.NewConfigError("id", "is required")
	}
	if strings.ContainsAny(d.ID, " \t\n/.*>") {
		return errors.ConfigErrorf("id", "%q may not contain spaces, '/', '.', '*' or '>'", d.ID)
	}
	if d.Station == "" {
		return errors.NewConfigError("station", "is required")
	}
	for _, ref := range []struct {
		field string
		ref   SeriesRef
	}{{"source", d.Source}, {"target", d.Target}} {
		station, _, err := ref.ref.Split()
		if err != nil {
			return errors.NewConfigError(ref.field, err.Error())
		}
		if station != d.Station {
			return errors.ConfigErrorf(ref.field, "%s must belong to station %s", ref.ref, d.Station)
		}
	}
	if d.Source == d.Target {
		return errors.NewConfigError("target", "must differ from source")
	}
	return nil
}

func (d Definition) checkVariant() error {
	set := 0
	for _, present := range []bool{d.RangeCheck != nil, d.Curve != nil, d.Aggregation != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return errors.ConfigErrorf("kind", "exactly one of range_check, curve_interpolation, aggregation must be set, got %d", set)
	}
	switch d.Kind {
	case KindRangeCheck:
		if d.RangeCheck == nil {
			return errors.NewConfigError("range_check", "is required for kind range_check")
		}
	case KindCurveInterpolation:
		if d.Curve == nil {
			return errors.NewConfigError("curve_interpolation", "is required for kind curve_interpolation")
		}
	case KindAggregation:
		if d.Aggregation == nil {
			return errors.NewConfigError("aggregation", "is required for kind aggregation")
		}
	default:
		return errors.ConfigErrorf("kind", "%q is not one of range_check, curve_interpolation, aggregation", d.Kind)
	}
	return nil
}

// String describes the process for people: "Range check for <source>" for range
// checks, the curve name for interpolations.
func (d Definition) String() string {
	switch d.Kind {
	case KindRangeCheck:
		return fmt.Sprintf("Range check for %s", d.Source)
	case KindCurveInterpolation:
		if d.Curve != nil && d.Curve.Name != "" {
			return d.Curve.Name
		}
		return fmt.Sprintf("Curve interpolation for %s", d.Source)
	case KindAggregation:
		if d.Aggregation != nil {
			return fmt.Sprintf("Aggregation of %s to %s", d.Source, d.Aggregation.TargetTimeStep)
		}
	}
	return d.ID
}
