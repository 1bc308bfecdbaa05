package autoprocess

import (
	"time"

	"github.com/c360/autoprocess/errors"
	"github.com/c360/autoprocess/pkg/timestep"
	"github.com/c360/autoprocess/processor/aggregate"
	"github.com/c360/autoprocess/processor/curve"
	"github.com/c360/autoprocess/processor/rangecheck"
	"github.com/c360/autoprocess/timeseries"
)

// Process is a compiled, immutable Definition.
type Process struct {
	def         Definition
	rangeCheck  rangecheck.Config
	periods     []curve.Period
	aggregation aggregate.Params
}

// Report summarizes one Apply call.
type Report struct {
	In         int
	Out        int
	RangeCheck rangecheck.Stats
	Curve      curve.Stats
	Aggregate  aggregate.Result
}

// Flagged returns how many output records a pass flagged or removed.
func (r Report) Flagged() int {
	return r.RangeCheck.Range + r.RangeCheck.Suspect + r.Curve.OutOfCurve +
		r.Aggregate.Aggregate.Partial + r.Aggregate.Aggregate.Insufficient
}

// Compile validates d and prepares it for execution. Every error is a configuration
// error.
func Compile(d Definition) (*Process, error) {
	if err := d.checkIntegrity(); err != nil {
		return nil, wrapDefinition(d, err)
	}
	if err := d.checkVariant(); err != nil {
		return nil, wrapDefinition(d, err)
	}

	p := &Process{def: d}
	switch d.Kind {
	case KindRangeCheck:
		if err := d.RangeCheck.Validate(); err != nil {
			return nil, wrapDefinition(d, err)
		}
		p.rangeCheck = *d.RangeCheck
		p.rangeCheck.SoftLowerBound = clone(d.RangeCheck.SoftLowerBound)
		p.rangeCheck.SoftUpperBound = clone(d.RangeCheck.SoftUpperBound)

	case KindCurveInterpolation:
		if d.Curve.Name == "" {
			return nil, wrapDefinition(d, errors.NewConfigError("curve_interpolation.name", "is required"))
		}
		periods, err := curve.Compile(d.Curve.Periods)
		if err != nil {
			return nil, wrapDefinition(d, err)
		}
		p.periods = periods

	case KindAggregation:
		params, err := compileAggregation(*d.Aggregation)
		if err != nil {
			return nil, wrapDefinition(d, err)
		}
		p.aggregation = params
	}
	return p, nil
}

func compileAggregation(c AggregationConfig) (aggregate.Params, error) {
	var params aggregate.Params
	target, err := timestep.ParsePositive(c.TargetTimeStep)
	if err != nil {
		return params, errors.NewConfigError("target_time_step", err.Error())
	}
	var source timestep.Step
	if c.SourceTimeStep != "" {
		if source, err = timestep.ParsePositive(c.SourceTimeStep); err != nil {
			return params, errors.NewConfigError("source_time_step", err.Error())
		}
	}
	method, err := aggregate.ParseMethod(c.Method)
	if err != nil {
		return params, err
	}
	offset, err := timestep.ParseOffset(c.ResultingTimestampOffset)
	if err != nil {
		return params, errors.NewConfigError("resulting_timestamp_offset", err.Error())
	}
	params = aggregate.Params{
		Target:     target,
		Source:     source,
		Method:     method,
		MaxMissing: c.MaxMissing,
		Offset:     offset,
	}
	return params, params.Validate()
}

func wrapDefinition(d Definition, err error) error {
	id := d.ID
	if id == "" {
		id = "<unnamed>"
	}
	return errors.Wrap(err, "autoprocess", "Compile", "process "+id)
}

func clone(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// ID returns the process identifier.
func (p *Process) ID() string { return p.def.ID }

// Kind returns the process variant.
func (p *Process) Kind() Kind { return p.def.Kind }

// Source returns the series the process reads.
func (p *Process) Source() SeriesRef { return p.def.Source }

// Target returns the series the process appends to.
func (p *Process) Target() SeriesRef { return p.def.Target }

// Definition returns the definition the process was compiled from.
func (p *Process) Definition() Definition { return p.def }

// String describes the process.
func (p *Process) String() string { return p.def.String() }

// StartAfter returns the cursor for reading the source: records strictly after it are
// unprocessed. For aggregations the target holds offset labels, so the offset is added
// back to reach the closing boundary of the last aggregated window.
func (p *Process) StartAfter(targetEnd time.Time) time.Time {
	if p.def.Kind == KindAggregation {
		return targetEnd.Add(p.aggregation.Offset)
	}
	return targetEnd
}

// Apply runs the process on a slice of the source series and returns the records to
// append to the target.
func (p *Process) Apply(s timeseries.Series) (timeseries.Series, Report) {
	rep := Report{In: s.Len()}
	var out timeseries.Series

	switch p.def.Kind {
	case KindRangeCheck:
		out, rep.RangeCheck = rangecheck.Check(s, p.rangeCheck)
	case KindCurveInterpolation:
		out, rep.Curve = curve.Interpolate(s, p.periods)
	case KindAggregation:
		rep.Aggregate = aggregate.Process(s, p.aggregation)
		out = rep.Aggregate.Series
	}

	rep.Out = out.Len()
	return out, rep
}
