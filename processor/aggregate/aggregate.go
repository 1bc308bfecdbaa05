// Package aggregate regularizes a series and downsamples it to a coarser time step.
package aggregate

import (
	"math"
	"time"

	"github.com/c360/autoprocess/errors"
	"github.com/c360/autoprocess/pkg/timestep"
	"github.com/c360/autoprocess/timeseries"
)

// Method is a reduction applied to the values of one window.
type Method string

// Reduction methods.
const (
	Sum  Method = "sum"
	Mean Method = "mean"
	Max  Method = "max"
	Min  Method = "min"
)

// ParseMethod validates a method name.
func ParseMethod(s string) (Method, error) {
	switch m := Method(s); m {
	case Sum, Mean, Max, Min:
		return m, nil
	default:
		return "", errors.ConfigErrorf("method", "%q is not one of sum, mean, max, min", s)
	}
}

func (m Method) reduce(values []float64) float64 {
	if len(values) == 0 {
		return timeseries.Missing()
	}
	switch m {
	case Sum, Mean:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		if m == Mean {
			return sum / float64(len(values))
		}
		return sum
	case Max:
		out := values[0]
		for _, v := range values[1:] {
			out = math.Max(out, v)
		}
		return out
	case Min:
		out := values[0]
		for _, v := range values[1:] {
			out = math.Min(out, v)
		}
		return out
	default:
		return timeseries.Missing()
	}
}

// Params configures an aggregation.
type Params struct {
	Target     timestep.Step
	Source     timestep.Step // zero means infer from the data
	Method     Method
	MaxMissing int
	Offset     time.Duration // subtracted from every output timestamp
	MissFlag   string        // defaults to MISS
	InsertFlag string        // defaults to DATEINSERT
}

// Validate checks the parameters.
func (p Params) Validate() error {
	if p.Target.Count < 1 {
		return errors.NewConfigError("target_time_step", "must be a positive step")
	}
	if !p.Source.IsZero() {
		if p.Source.Count < 1 {
			return errors.NewConfigError("source_time_step", "must be a positive step")
		}
		if p.Source.Compare(p.Target) > 0 {
			return errors.ConfigErrorf("target_time_step", "%s is finer than the source step %s", p.Target, p.Source)
		}
	}
	if _, err := ParseMethod(string(p.Method)); err != nil {
		return err
	}
	if p.MaxMissing < 0 {
		return errors.ConfigErrorf("max_missing", "%d is negative", p.MaxMissing)
	}
	if p.Offset%time.Minute != 0 {
		return errors.NewConfigError("resulting_timestamp_offset", "must be a whole number of minutes")
	}
	return nil
}

func (p Params) missFlag() string {
	if p.MissFlag == "" {
		return timeseries.FlagMiss
	}
	return p.MissFlag
}

func (p Params) insertFlag() string {
	if p.InsertFlag == "" {
		return timeseries.FlagDateInsert
	}
	return p.InsertFlag
}

// MinCount returns max(1, capacity - maxMissing).
func MinCount(capacity, maxMissing int) int {
	return max(1, capacity-maxMissing)
}

// Stats reports what Aggregate did.
type Stats struct {
	Windows      int // output records before trimming
	Complete     int // every slot had a value
	Partial      int // enough values, flagged
	Insufficient int // some values but fewer than the minimum; missing and flagged
	Empty        int // no values; missing
}

// Aggregate downsamples a regular series. Windows are right-closed and labelled with
// their closing boundary: a record at t belongs to the window ending at
// Target.Ceil(t). Every window between the first and the last is emitted.
//
// With N the number of source slots in a window and n the number of non-missing values
// in it, a window with n == 0 is missing with no flag, one with n below
// max(1, N - MaxMissing) is missing and flagged, one with n below N has its reduction
// flagged, and a full window has its reduction unflagged.
func Aggregate(s timeseries.Series, source timestep.Step, p Params) (timeseries.Series, Stats) {
	var st Stats
	if s.Empty() {
		return timeseries.Series{}, st
	}

	first := p.Target.Ceil(s.Records[0].Time)
	last := p.Target.Ceil(s.Records[len(s.Records)-1].Time)

	var out []timeseries.Record
	values := make([]float64, 0, 64)
	i := 0
	for k := 0; ; k++ {
		label := p.Target.Add(first, k)
		if label.After(last) {
			break
		}
		start := p.Target.Add(label, -1)

		values = values[:0]
		for ; i < len(s.Records) && !s.Records[i].Time.After(label); i++ {
			if r := s.Records[i]; !r.IsMissing() {
				values = append(values, r.Value)
			}
		}

		capacity := 1
		if !source.IsZero() {
			capacity = max(1, source.Slots(start, label))
		}
		n := len(values)
		rec := timeseries.Record{Time: label.Add(-p.Offset), Value: timeseries.Missing()}
		switch {
		case n == 0:
			st.Empty++
		case n < MinCount(capacity, p.MaxMissing):
			rec.Flags = timeseries.Flags{p.missFlag()}
			st.Insufficient++
		case n < capacity:
			rec.Value = p.Method.reduce(values)
			rec.Flags = timeseries.Flags{p.missFlag()}
			st.Partial++
		default:
			rec.Value = p.Method.reduce(values)
			st.Complete++
		}
		out = append(out, rec)
	}

	st.Windows = len(out)
	return timeseries.Series{Records: out}, st
}

// TrimIncomplete drops the last record of an aggregated series when its window has not
// closed yet: the source ends strictly before the record's un-offset closing boundary
// and the record is either flagged with the miss flag or has no value. A later run with
// more source data recomputes it. An empty window counts as incomplete too, since
// the values still to come would otherwise be skipped by the next cursor.
func TrimIncomplete(agg timeseries.Series, sourceEnd time.Time, p Params) (timeseries.Series, bool) {
	last, ok := agg.Last()
	if !ok {
		return agg, false
	}
	incomplete := last.Flags.Has(p.missFlag()) || last.IsMissing()
	if incomplete && sourceEnd.Before(last.Time.Add(p.Offset)) {
		return timeseries.Series{Records: agg.Records[:len(agg.Records)-1]}, true
	}
	return agg, false
}

// Result is the outcome of Process.
type Result struct {
	Series     timeseries.Series
	Regularize RegularizeStats
	Aggregate  Stats
	Trimmed    bool
}

// Process regularizes s to the source step, aggregates it to the target step and drops
// a trailing window that is still waiting for data. The result is empty when no source
// step is configured and none can be inferred, and when some record does not fit the
// step (Regularize.Misaligned).
func Process(s timeseries.Series, p Params) Result {
	var res Result
	sourceEnd, ok := s.EndDate()
	if !ok {
		return res
	}

	regular, rst := Regularize(s, p.Source, p.insertFlag())
	res.Regularize = rst
	if rst.Step.IsZero() || rst.Misaligned > 0 {
		return res
	}

	agg, ast := Aggregate(regular, rst.Step, p)
	res.Aggregate = ast

	res.Series, res.Trimmed = TrimIncomplete(agg, sourceEnd, p)
	return res
}
