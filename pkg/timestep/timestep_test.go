package timestep

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(y int, m time.Month, d, h, mi int) time.Time {
	return time.Date(y, m, d, h, mi, 0, 0, time.UTC)
}

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  Step
	}{
		{"10min", Step{10, Minute}},
		{"min", Step{1, Minute}},
		{"H", Step{1, Hour}},
		{"3H", Step{3, Hour}},
		{"D", Step{1, Day}},
		{"M", Step{1, Month}},
		{"6M", Step{6, Month}},
		{"Y", Step{1, Year}},
		{"-1min", Step{-1, Minute}},
		{" 15 min ", Step{15, Minute}},
		{"T", Step{1, Minute}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, s := range []string{"", "10", "1.5H", "10 weeks", "W", "H10"} {
		t.Run(s, func(t *testing.T) {
			_, err := Parse(s)
			assert.Error(t, err)
		})
	}
}

func TestParsePositive(t *testing.T) {
	_, err := ParsePositive("0min")
	assert.Error(t, err)
	_, err = ParsePositive("-2H")
	assert.Error(t, err)

	step, err := ParsePositive("2H")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, step.Duration())
}

func TestParseOffset(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"1min", time.Minute, false},
		{"-1min", -time.Minute, false},
		{"min", time.Minute, false},
		{"-90min", -90 * time.Minute, false},
		{"1H", 0, true},
		{"1D", 0, true},
		{"garbage", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseOffset(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "10min", Step{10, Minute}.String())
	assert.Equal(t, "H", Step{1, Hour}.String())
	assert.Equal(t, "3M", Step{3, Month}.String())
}

func TestFromDuration(t *testing.T) {
	s, err := FromDuration(10 * time.Minute)
	require.NoError(t, err)
	assert.Equal(t, Step{10, Minute}, s)

	s, err = FromDuration(48 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, Step{2, Day}, s)

	_, err = FromDuration(90 * time.Second)
	assert.Error(t, err)
}

func TestAdd(t *testing.T) {
	assert.Equal(t, at(2024, 1, 1, 0, 30), MustParse("10min").Add(at(2024, 1, 1, 0, 0), 3))
	assert.Equal(t, at(2024, 2, 29, 0, 0), MustParse("M").Add(at(2024, 1, 31, 0, 0), 1))
	assert.Equal(t, at(2023, 12, 1, 0, 0), MustParse("M").Add(at(2024, 1, 1, 0, 0), -1))
	assert.Equal(t, at(2026, 1, 1, 0, 0), MustParse("2Y").Add(at(2024, 1, 1, 0, 0), 1))
}

func TestCeil(t *testing.T) {
	tests := []struct {
		step string
		in   time.Time
		want time.Time
	}{
		{"H", at(2024, 3, 1, 12, 10), at(2024, 3, 1, 13, 0)},
		{"H", at(2024, 3, 1, 13, 0), at(2024, 3, 1, 13, 0)},
		{"D", at(2024, 3, 1, 0, 1), at(2024, 3, 2, 0, 0)},
		{"D", at(2024, 3, 1, 0, 0), at(2024, 3, 1, 0, 0)},
		{"3H", at(2024, 3, 1, 4, 0), at(2024, 3, 1, 6, 0)},
		{"M", at(2024, 2, 10, 0, 0), at(2024, 3, 1, 0, 0)},
		{"M", at(2024, 3, 1, 0, 0), at(2024, 3, 1, 0, 0)},
		{"M", at(2024, 12, 31, 23, 50), at(2025, 1, 1, 0, 0)},
		{"3M", at(2024, 2, 10, 0, 0), at(2024, 4, 1, 0, 0)},
		{"Y", at(2024, 1, 1, 0, 10), at(2025, 1, 1, 0, 0)},
		{"Y", at(2024, 1, 1, 0, 0), at(2024, 1, 1, 0, 0)},
		{"H", at(1960, 5, 5, 5, 5), at(1960, 5, 5, 6, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.step+" "+tt.in.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, MustParse(tt.step).Ceil(tt.in))
		})
	}
}

func TestSlots(t *testing.T) {
	assert.Equal(t, 6, MustParse("10min").Slots(at(2024, 3, 1, 12, 0), at(2024, 3, 1, 13, 0)))
	assert.Equal(t, 144, MustParse("10min").Slots(at(2024, 3, 1, 0, 0), at(2024, 3, 2, 0, 0)))
	assert.Equal(t, 29*24, MustParse("H").Slots(at(2024, 2, 1, 0, 0), at(2024, 3, 1, 0, 0)))
	assert.Equal(t, 12, MustParse("M").Slots(at(2024, 1, 1, 0, 0), at(2025, 1, 1, 0, 0)))
	assert.Equal(t, 3, MustParse("7min").Slots(at(2024, 1, 1, 0, 0), at(2024, 1, 1, 0, 20)))
	assert.Equal(t, 0, MustParse("H").Slots(at(2024, 1, 1, 1, 0), at(2024, 1, 1, 1, 0)))
}

func TestAligned(t *testing.T) {
	anchor := at(2024, 1, 1, 0, 5)
	assert.True(t, MustParse("10min").Aligned(anchor, at(2024, 1, 1, 3, 15)))
	assert.False(t, MustParse("10min").Aligned(anchor, at(2024, 1, 1, 3, 10)))
	assert.True(t, MustParse("M").Aligned(at(2024, 1, 1, 0, 0), at(2024, 7, 1, 0, 0)))
	assert.False(t, MustParse("M").Aligned(at(2024, 1, 1, 0, 0), at(2024, 7, 2, 0, 0)))
}

func TestCompare(t *testing.T) {
	assert.Equal(t, -1, MustParse("10min").Compare(MustParse("H")))
	assert.Equal(t, 0, MustParse("60min").Compare(MustParse("H")))
	assert.Equal(t, 1, MustParse("M").Compare(MustParse("D")))
	assert.Equal(t, -1, MustParse("M").Compare(MustParse("Y")))
}
