package rangecheck

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/autoprocess/errors"
	"github.com/c360/autoprocess/timeseries"
)

func f(v float64) *float64 { return &v }

func series(t *testing.T, values ...float64) timeseries.Series {
	t.Helper()
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rs := make([]timeseries.Record, len(values))
	for i, v := range values {
		rs[i] = timeseries.Record{Time: start.Add(time.Duration(i) * 10 * time.Minute), Value: v}
	}
	s, err := timeseries.New(rs...)
	require.NoError(t, err)
	return s
}

func TestCheck_HardAndSoft(t *testing.T) {
	cfg := Config{LowerBound: 0, UpperBound: 100, SoftLowerBound: f(10), SoftUpperBound: f(90)}
	in := series(t, 95, 150, 50, -1, 5)

	out, st := Check(in, cfg)

	require.Equal(t, 5, out.Len())
	assert.Equal(t, 95.0, out.Records[0].Value)
	assert.Equal(t, "SUSPECT", out.Records[0].Flags.String())

	assert.True(t, out.Records[1].IsMissing())
	assert.Equal(t, "RANGE", out.Records[1].Flags.String())

	assert.Equal(t, 50.0, out.Records[2].Value)
	assert.Empty(t, out.Records[2].Flags)

	assert.True(t, out.Records[3].IsMissing())
	assert.Equal(t, "RANGE", out.Records[3].Flags.String(), "removed values are not also suspect")

	assert.Equal(t, 5.0, out.Records[4].Value)
	assert.Equal(t, "SUSPECT", out.Records[4].Flags.String())

	assert.Equal(t, Stats{Checked: 5, Range: 2, Suspect: 2}, st)
}

func TestCheck_BoundsAreInclusive(t *testing.T) {
	cfg := Config{LowerBound: 0, UpperBound: 100, SoftLowerBound: f(10), SoftUpperBound: f(90)}
	out, _ := Check(series(t, 0, 100, 10, 90), cfg)

	for _, r := range out.Records {
		assert.False(t, r.IsMissing())
		assert.False(t, r.Flags.Has(timeseries.FlagRange))
	}
	assert.True(t, out.Records[0].Flags.Has(timeseries.FlagSuspect))
	assert.True(t, out.Records[1].Flags.Has(timeseries.FlagSuspect))
	assert.Empty(t, out.Records[2].Flags)
	assert.Empty(t, out.Records[3].Flags)
}

func TestCheck_ExistingFlags(t *testing.T) {
	in := series(t, 200, 200)
	in.Records[0].Flags = timeseries.Flags{"MISS"}
	in.Records[1].Flags = timeseries.Flags{"RANGE"}

	out, _ := Check(in, Config{LowerBound: 0, UpperBound: 100})

	assert.Equal(t, "MISS RANGE", out.Records[0].Flags.String())
	assert.Equal(t, "RANGE", out.Records[1].Flags.String())
	assert.Equal(t, "MISS", in.Records[0].Flags.String(), "input must not be modified")
	assert.Equal(t, 200.0, in.Records[0].Value)
}

func TestCheck_MissingIsExempt(t *testing.T) {
	in := series(t, timeseries.Missing())
	in.Records[0].Flags = timeseries.Flags{"DATEINSERT"}

	out, st := Check(in, Config{LowerBound: 0, UpperBound: 100, SoftUpperBound: f(-5)})

	assert.True(t, out.Records[0].IsMissing())
	assert.Equal(t, "DATEINSERT", out.Records[0].Flags.String())
	assert.Equal(t, 0, st.Checked)
}

func TestCheck_SingleSoftBound(t *testing.T) {
	out, _ := Check(series(t, 1, 99), Config{LowerBound: 0, UpperBound: 100, SoftUpperBound: f(90)})
	assert.Empty(t, out.Records[0].Flags)
	assert.Equal(t, "SUSPECT", out.Records[1].Flags.String())
}

func TestCheck_SoftOutsideHardFlagsEverything(t *testing.T) {
	out, _ := Check(series(t, 20, 40), Config{LowerBound: 0, UpperBound: 100, SoftLowerBound: f(60), SoftUpperBound: f(50)})
	for _, r := range out.Records {
		assert.True(t, r.Flags.Has(timeseries.FlagSuspect))
	}
}

func TestCheck_Empty(t *testing.T) {
	out, st := Check(timeseries.Series{}, Config{LowerBound: 0, UpperBound: 1})
	assert.True(t, out.Empty())
	assert.Equal(t, Stats{}, st)
}

func TestCheck_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	cfg := Config{LowerBound: -20, UpperBound: 45, SoftLowerBound: f(-5), SoftUpperBound: f(35)}

	values := make([]float64, 500)
	for i := range values {
		if rng.Intn(10) == 0 {
			values[i] = timeseries.Missing()
			continue
		}
		values[i] = rng.Float64()*100 - 40
	}
	in := series(t, values...)

	out, _ := Check(in, cfg)

	for i, r := range out.Records {
		v := in.Records[i].Value
		switch {
		case math.IsNaN(v):
			assert.True(t, r.IsMissing())
			assert.Empty(t, r.Flags)
		case v < cfg.LowerBound || v > cfg.UpperBound:
			assert.True(t, r.IsMissing())
			assert.True(t, r.Flags.Has(timeseries.FlagRange))
		default:
			assert.Equal(t, v, r.Value, "soft pass never changes values")
			inSoft := v >= *cfg.SoftLowerBound && v <= *cfg.SoftUpperBound
			assert.Equal(t, !inSoft, r.Flags.Has(timeseries.FlagSuspect))
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, Config{LowerBound: 0, UpperBound: 0}.Validate())
	assert.NoError(t, Config{LowerBound: 0, UpperBound: 10, SoftLowerBound: f(20)}.Validate())

	err := Config{LowerBound: 10, UpperBound: 0}.Validate()
	assert.True(t, errors.IsConfig(err))

	err = Config{LowerBound: math.Inf(-1), UpperBound: 0}.Validate()
	assert.True(t, errors.IsConfig(err))

	err = Config{LowerBound: 0, UpperBound: 10, SoftUpperBound: f(math.NaN())}.Validate()
	assert.True(t, errors.IsConfig(err))
}
