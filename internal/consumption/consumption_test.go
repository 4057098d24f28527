package consumption

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadProfileProvider_UsesExactSlotWhenPresent(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC) // Thursday
	samples := []ProfileSample{
		{Month: time.January, Weekday: time.Thursday, Hour: 10, EnergyWh: 500},
		{Month: time.January, Weekday: time.Thursday, Hour: 10, EnergyWh: 700},
	}
	p := NewLoadProfileProvider(time.UTC, samples)

	got, err := p.GetForecast(context.Background(), now, 1)
	require.NoError(t, err)
	assert.InDelta(t, 600, got[0], 1e-9) // averaged
}

func TestLoadProfileProvider_FallsBackToOverallAverage(t *testing.T) {
	now := time.Date(2026, 1, 15, 3, 0, 0, 0, time.UTC) // no sample for hour 3
	samples := []ProfileSample{
		{Month: time.January, Weekday: time.Thursday, Hour: 10, EnergyWh: 400},
		{Month: time.January, Weekday: time.Thursday, Hour: 11, EnergyWh: 800},
	}
	p := NewLoadProfileProvider(time.UTC, samples)

	got, err := p.GetForecast(context.Background(), now, 1)
	require.NoError(t, err)
	assert.InDelta(t, 600, got[0], 1e-9) // overall average of 400 and 800
}

type fakeHistorySource struct {
	values map[time.Time]float64 // keyed by start time
}

func (f fakeHistorySource) EnergyBetween(ctx context.Context, start, end time.Time) (float64, error) {
	if v, ok := f.values[start]; ok {
		return v, nil
	}
	return 0, assert.AnError
}

func TestWeightedHistoryProvider_WeightedAverage(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	sevenDaysAgo := now.AddDate(0, 0, -7)
	fourteenDaysAgo := now.AddDate(0, 0, -14)

	source := fakeHistorySource{values: map[time.Time]float64{
		sevenDaysAgo:    900,
		fourteenDaysAgo: 300,
	}}

	p, err := NewWeightedHistoryProvider("weighted", source, []HistoryPeriod{
		{DaysAgo: 7, Weight: 3},
		{DaysAgo: 14, Weight: 1},
	}, time.Minute)
	require.NoError(t, err)

	got, err := p.GetForecast(context.Background(), now, 1)
	require.NoError(t, err)
	// (900*3 + 300*1) / 4 = 750
	assert.InDelta(t, 750, got[0], 1e-9)
}

func TestWeightedHistoryProvider_RejectsInvalidWeight(t *testing.T) {
	_, err := NewWeightedHistoryProvider("weighted", fakeHistorySource{}, []HistoryPeriod{
		{DaysAgo: 7, Weight: 11},
	}, time.Minute)
	require.Error(t, err)
}

func TestWeightedHistoryProvider_TruncatesWhenHistoryRunsOut(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	sevenDaysAgo := now.AddDate(0, 0, -7)

	source := fakeHistorySource{values: map[time.Time]float64{
		sevenDaysAgo: 500,
	}}

	p, err := NewWeightedHistoryProvider("weighted", source, []HistoryPeriod{
		{DaysAgo: 7, Weight: 1},
	}, time.Minute)
	require.NoError(t, err)

	got, err := p.GetForecast(context.Background(), now, 3)
	require.NoError(t, err)
	assert.Len(t, got, 1) // only hour 0 has a matching sample in the fake source
}
