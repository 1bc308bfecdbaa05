package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/c360/autoprocess/timeseries"
)

// Time parses "2006-01-02 15:04" in UTC and fails the test on error.
func Time(t testing.TB, s string) time.Time {
	t.Helper()
	ts, err := time.ParseInLocation("2006-01-02 15:04", s, time.UTC)
	require.NoError(t, err)
	return ts
}

// Regular builds a series starting at start with one record per step. NaN values
// are missing.
func Regular(t testing.TB, start time.Time, step time.Duration, values ...float64) timeseries.Series {
	t.Helper()
	records := make([]timeseries.Record, len(values))
	for i, v := range values {
		records[i] = timeseries.Record{Time: start.Add(time.Duration(i) * step), Value: v}
	}
	s, err := timeseries.New(records...)
	require.NoError(t, err)
	return s
}

// CSV decodes a series from "date,value,flags" lines.
func CSV(t testing.TB, text string) timeseries.Series {
	t.Helper()
	s, err := timeseries.Unmarshal([]byte(text))
	require.NoError(t, err)
	return s
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
