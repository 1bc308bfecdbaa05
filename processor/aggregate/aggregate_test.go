package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/autoprocess/errors"
	"github.com/c360/autoprocess/pkg/timestep"
	"github.com/c360/autoprocess/timeseries"
)

var nan = timeseries.Missing()

func at(d, h, m int) time.Time {
	return time.Date(2024, 3, d, h, m, 0, 0, time.UTC)
}

// tenMinutes builds a series starting at start with one record every 10 minutes.
// A nil entry means the timestamp is absent from the series.
func tenMinutes(t *testing.T, start time.Time, values ...*float64) timeseries.Series {
	t.Helper()
	var rs []timeseries.Record
	for i, v := range values {
		if v == nil {
			continue
		}
		rs = append(rs, timeseries.Record{Time: start.Add(time.Duration(i) * 10 * time.Minute), Value: *v})
	}
	s, err := timeseries.New(rs...)
	require.NoError(t, err)
	return s
}

func v(x float64) *float64 { return &x }

func hourly(method Method, maxMissing int) Params {
	return Params{
		Target:     timestep.MustParse("H"),
		Source:     timestep.MustParse("10min"),
		Method:     method,
		MaxMissing: maxMissing,
	}
}

func TestMinCount(t *testing.T) {
	assert.Equal(t, 4, MinCount(6, 2))
	assert.Equal(t, 1, MinCount(6, 6))
	assert.Equal(t, 1, MinCount(6, 100))
	assert.Equal(t, 6, MinCount(6, 0))
}

func TestProcess_PartialWindowIsFlagged(t *testing.T) {
	// 12:00 .. 13:00 with 12:20 and 12:30 absent
	s := tenMinutes(t, at(1, 12, 0), v(9), v(1), nil, nil, v(4), v(5), v(6))

	res := Process(s, hourly(Mean, 2))

	require.Equal(t, 2, res.Series.Len())
	first, second := res.Series.Records[0], res.Series.Records[1]

	assert.Equal(t, at(1, 12, 0), first.Time)
	assert.True(t, first.IsMissing(), "only 12:00 falls in the window closing at 12:00")
	assert.Equal(t, "MISS", first.Flags.String())

	assert.Equal(t, at(1, 13, 0), second.Time)
	assert.Equal(t, 4.0, second.Value)
	assert.Equal(t, "MISS", second.Flags.String())

	assert.Equal(t, 2, res.Regularize.Inserted)
	assert.False(t, res.Trimmed)
}

func TestProcess_BelowMinCountIsMissing(t *testing.T) {
	// window (12:00, 13:00] has 3 of 6 values, min_count is 4
	s := tenMinutes(t, at(1, 12, 10), v(1), nil, nil, nil, v(5), v(6))

	res := Process(s, hourly(Mean, 2))

	require.Equal(t, 1, res.Series.Len())
	r := res.Series.Records[0]
	assert.True(t, r.IsMissing())
	assert.Equal(t, "MISS", r.Flags.String())
	assert.Equal(t, 1, res.Aggregate.Insufficient)
}

func TestProcess_ExactlyMinCount(t *testing.T) {
	s := tenMinutes(t, at(1, 12, 10), v(1), v(2), nil, nil, v(5), v(6))

	res := Process(s, hourly(Sum, 2))

	require.Equal(t, 1, res.Series.Len())
	assert.Equal(t, 14.0, res.Series.Records[0].Value)
	assert.Equal(t, "MISS", res.Series.Records[0].Flags.String())
}

func TestProcess_CompleteWindow(t *testing.T) {
	s := tenMinutes(t, at(1, 12, 10), v(1), v(7), v(2), v(3), v(5), v(6))

	for method, want := range map[Method]float64{Sum: 24, Mean: 4, Max: 7, Min: 1} {
		t.Run(string(method), func(t *testing.T) {
			res := Process(s, hourly(method, 0))
			require.Equal(t, 1, res.Series.Len())
			assert.Equal(t, want, res.Series.Records[0].Value)
			assert.Empty(t, res.Series.Records[0].Flags)
		})
	}
}

func TestProcess_MissingValuesAreIgnored(t *testing.T) {
	s := tenMinutes(t, at(1, 12, 10), v(1), v(nan), v(2), v(nan), v(3), v(6))

	res := Process(s, hourly(Mean, 3))

	require.Equal(t, 1, res.Series.Len())
	assert.Equal(t, 3.0, res.Series.Records[0].Value)
	assert.Equal(t, "MISS", res.Series.Records[0].Flags.String())
}

func TestProcess_EmptyWindow(t *testing.T) {
	s := tenMinutes(t, at(1, 12, 10),
		v(1), v(1), v(1), v(1), v(1), v(1),
		v(nan), v(nan), v(nan), v(nan), v(nan), v(nan),
		v(2), v(2), v(2), v(2), v(2), v(2))

	res := Process(s, hourly(Sum, 1))

	require.Equal(t, 3, res.Series.Len())
	empty := res.Series.Records[1]
	assert.Equal(t, at(1, 14, 0), empty.Time)
	assert.True(t, empty.IsMissing())
	assert.Empty(t, empty.Flags)
	assert.Equal(t, 12.0, res.Series.Records[2].Value)
}

func TestProcess_TrimsTrailingIncompleteWindow(t *testing.T) {
	s := tenMinutes(t, at(1, 12, 10), v(1), v(1), v(1), v(1), v(1), v(1), v(2), v(2))

	res := Process(s, hourly(Sum, 5))

	require.Equal(t, 1, res.Series.Len(), "the 14:00 window is still waiting for data")
	assert.Equal(t, at(1, 13, 0), res.Series.Records[0].Time)
	assert.Equal(t, 6.0, res.Series.Records[0].Value)
	assert.True(t, res.Trimmed)
	assert.Equal(t, 2, res.Aggregate.Windows)
}

func TestProcess_KeepsFlaggedWindowThatHasClosed(t *testing.T) {
	// the last window ends exactly at the last source record, with a gap inside it
	s := tenMinutes(t, at(1, 12, 10), v(1), nil, v(1), v(1), v(1), v(1))

	res := Process(s, hourly(Sum, 5))

	require.Equal(t, 1, res.Series.Len())
	assert.Equal(t, "MISS", res.Series.Records[0].Flags.String())
	assert.False(t, res.Trimmed)
}

func TestProcess_Offset(t *testing.T) {
	var vals []*float64
	for i := 0; i < 2*144; i++ {
		vals = append(vals, v(1))
	}
	s := tenMinutes(t, at(1, 0, 10), vals...)

	p := Params{
		Target: timestep.MustParse("D"),
		Source: timestep.MustParse("10min"),
		Method: Sum,
		Offset: time.Minute,
	}
	res := Process(s, p)

	require.Equal(t, 2, res.Series.Len())
	assert.Equal(t, at(1, 23, 59), res.Series.Records[0].Time)
	assert.Equal(t, at(2, 23, 59), res.Series.Records[1].Time)
	assert.Equal(t, 144.0, res.Series.Records[0].Value)
	assert.Empty(t, res.Series.Records[0].Flags)
}

func TestProcess_NegativeOffsetTrim(t *testing.T) {
	// last window closes at 14:00 but the source ends at 13:20; labels are shifted to 14:01
	s := tenMinutes(t, at(1, 12, 10), v(1), v(1), v(1), v(1), v(1), v(1), v(2), v(2))
	p := hourly(Sum, 5)
	p.Offset = -time.Minute

	res := Process(s, p)

	require.Equal(t, 1, res.Series.Len())
	assert.Equal(t, at(1, 13, 1), res.Series.Records[0].Time)
}

func TestProcess_MonthlyCapacity(t *testing.T) {
	start := time.Date(2024, 2, 1, 1, 0, 0, 0, time.UTC)
	var rs []timeseries.Record
	for tm := start; !tm.After(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)); tm = tm.Add(time.Hour) {
		rs = append(rs, timeseries.Record{Time: tm, Value: 1})
	}
	s, err := timeseries.New(rs...)
	require.NoError(t, err)

	res := Process(s, Params{
		Target: timestep.MustParse("M"),
		Source: timestep.MustParse("H"),
		Method: Sum,
	})

	require.Equal(t, 1, res.Series.Len())
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), res.Series.Records[0].Time)
	assert.Equal(t, float64(29*24), res.Series.Records[0].Value)
	assert.Empty(t, res.Series.Records[0].Flags)
}

func TestProcess_InferredSourceStep(t *testing.T) {
	s := tenMinutes(t, at(1, 12, 10), v(1), v(1), nil, v(1), v(1), v(1))
	p := hourly(Sum, 1)
	p.Source = timestep.Step{}

	res := Process(s, p)

	assert.True(t, res.Regularize.Inferred)
	assert.Equal(t, timestep.MustParse("10min"), res.Regularize.Step)
	require.Equal(t, 1, res.Series.Len())
	assert.Equal(t, 5.0, res.Series.Records[0].Value)
	assert.Equal(t, "MISS", res.Series.Records[0].Flags.String())
}

func TestProcess_Degenerate(t *testing.T) {
	assert.True(t, Process(timeseries.Series{}, hourly(Sum, 0)).Series.Empty())

	single := tenMinutes(t, at(1, 12, 10), v(1))
	p := hourly(Sum, 0)
	p.Source = timestep.Step{}
	assert.True(t, Process(single, p).Series.Empty(), "no step can be inferred from one record")
}

func TestProcess_Incremental(t *testing.T) {
	var vals []*float64
	for i := 0; i < 30; i++ {
		vals = append(vals, v(float64(i)))
	}
	full := tenMinutes(t, at(1, 12, 10), vals...)
	p := hourly(Mean, 2)

	whole := Process(full, p).Series

	// first run sees part of the data, second run everything after the last label
	firstRun := Process(full.Between(at(1, 12, 10), at(1, 14, 30)), p).Series
	end, ok := firstRun.EndDate()
	require.True(t, ok)
	secondRun := Process(full.After(end.Add(p.Offset)), p).Series

	combined, ok := firstRun.Append(secondRun)
	require.True(t, ok)
	assert.True(t, whole.Equal(combined), "whole: %v\ncombined: %v", whole.Records, combined.Records)
}

func TestProcess_SparseSliceKeepsEveryReading(t *testing.T) {
	s, err := timeseries.New(
		timeseries.Record{Time: at(1, 13, 10), Value: 1},
		timeseries.Record{Time: at(1, 13, 30), Value: 1},
		timeseries.Record{Time: at(1, 14, 0), Value: 100},
	)
	require.NoError(t, err)
	p := hourly(Mean, 5)
	p.Source = timestep.Step{}

	res := Process(s, p)

	assert.Equal(t, timestep.MustParse("10min"), res.Regularize.Step)
	assert.Equal(t, 0, res.Regularize.Misaligned)
	require.Equal(t, 1, res.Series.Len())
	assert.Equal(t, at(1, 14, 0), res.Series.Records[0].Time)
	assert.Equal(t, 34.0, res.Series.Records[0].Value)
	assert.Equal(t, "MISS", res.Series.Records[0].Flags.String())
	assert.False(t, res.Trimmed)
}

func TestProcess_MisalignedSliceProducesNothing(t *testing.T) {
	s, err := timeseries.New(
		timeseries.Record{Time: at(1, 12, 10), Value: 1},
		timeseries.Record{Time: at(1, 12, 13), Value: 1},
		timeseries.Record{Time: at(1, 13, 0), Value: 1},
	)
	require.NoError(t, err)

	res := Process(s, hourly(Sum, 5))

	assert.True(t, res.Series.Empty())
	assert.Equal(t, 1, res.Regularize.Misaligned)
	assert.Equal(t, 0, res.Aggregate.Windows)
}

func TestProcess_TrailingEmptyWindow(t *testing.T) {
	t.Run("open window is trimmed", func(t *testing.T) {
		// a full 13:00 window, then an observed missing value at 13:10
		s := tenMinutes(t, at(1, 12, 10), v(1), v(1), v(1), v(1), v(1), v(1), v(nan))

		res := Process(s, hourly(Sum, 5))

		require.Equal(t, 1, res.Series.Len())
		assert.Equal(t, 6.0, res.Series.Records[0].Value)
		assert.True(t, res.Trimmed)
		assert.Equal(t, 2, res.Aggregate.Windows)
	})

	t.Run("closed window is kept", func(t *testing.T) {
		s := tenMinutes(t, at(1, 12, 10),
			v(1), v(1), v(1), v(1), v(1), v(1),
			v(nan), v(nan), v(nan), v(nan), v(nan), v(nan))

		res := Process(s, hourly(Sum, 5))

		require.Equal(t, 2, res.Series.Len())
		last := res.Series.Records[1]
		assert.Equal(t, at(1, 14, 0), last.Time)
		assert.True(t, last.IsMissing())
		assert.Empty(t, last.Flags)
		assert.False(t, res.Trimmed)
	})
}

// appendOneByOne feeds full to Process one record at a time the way the engine does:
// each run reads the records after the target end plus the offset and appends the
// result.
func appendOneByOne(t *testing.T, full timeseries.Series, p Params) timeseries.Series {
	t.Helper()
	var target timeseries.Series
	for i := range full.Records {
		available := timeseries.Series{Records: full.Records[:i+1]}
		slice := available.Clone()
		if end, ok := target.EndDate(); ok {
			slice = available.After(end.Add(p.Offset))
		}
		merged, ok := target.Append(Process(slice, p).Series)
		require.True(t, ok, "run %d appended before the target end", i)
		target = merged
	}
	return target
}

func TestProcess_IncrementalInferredStep(t *testing.T) {
	// absent timestamps (13:30, 13:40, 14:50) and observed missing values, no declared step
	full := tenMinutes(t, at(1, 12, 10),
		v(1), v(2), v(3), v(4), v(5), v(6),
		v(7), v(nan), nil, nil, v(11), v(12),
		v(nan), v(nan), v(15), v(16), nil, v(18),
		v(19), v(20), v(21), v(22), v(23), v(24))

	for _, maxMissing := range []int{0, 2, 5} {
		for _, method := range []Method{Sum, Mean, Max, Min} {
			p := hourly(method, maxMissing)
			p.Source = timestep.Step{}
			p.Offset = time.Minute

			whole := Process(full, p).Series
			require.Equal(t, 4, whole.Len())

			oneByOne := appendOneByOne(t, full, p)
			assert.True(t, whole.Equal(oneByOne), "%s max_missing=%d\nwhole: %v\none by one: %v",
				method, maxMissing, whole.Records, oneByOne.Records)
		}
	}
}

func TestProcess_IncrementalEmptyWindowIsRecomputed(t *testing.T) {
	// the 14:00 window starts with observed missing values and gets readings later
	full := tenMinutes(t, at(1, 12, 10),
		v(1), v(1), v(1), v(1), v(1), v(1),
		v(nan), v(nan), v(3), v(3), v(3), v(3))
	p := hourly(Sum, 2)

	whole := Process(full, p).Series
	require.Equal(t, 2, whole.Len())
	assert.Equal(t, 12.0, whole.Records[1].Value)

	assert.True(t, whole.Equal(appendOneByOne(t, full, p)))
}

func TestParams_Validate(t *testing.T) {
	ok := hourly(Mean, 2)
	assert.NoError(t, ok.Validate())

	tests := map[string]func(*Params){
		"zero target":      func(p *Params) { p.Target = timestep.Step{} },
		"source coarser":   func(p *Params) { p.Source = timestep.MustParse("D") },
		"unknown method":   func(p *Params) { p.Method = "median" },
		"negative missing": func(p *Params) { p.MaxMissing = -1 },
		"seconds offset":   func(p *Params) { p.Offset = 30 * time.Second },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			p := hourly(Mean, 2)
			mutate(&p)
			assert.True(t, errors.IsConfig(p.Validate()))
		})
	}
}
