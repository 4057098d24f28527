package interval

import (
	"testing"

	"github.com/muexxl/batcontrol-go/internal/core"
	"github.com/stretchr/testify/assert"
)

func TestUpsampleLinear_RampsBetweenHours(t *testing.T) {
	hourly := core.Forecast{0: 1000, 1: 2000}

	got := UpsampleLinear(hourly)

	assert.InDelta(t, 250.0, got[0], 1e-9)
	assert.InDelta(t, 312.5, got[1], 1e-9)
	assert.InDelta(t, 375.0, got[2], 1e-9)
	assert.InDelta(t, 437.5, got[3], 1e-9)
	// final hour: no successor, flat division
	assert.InDelta(t, 500.0, got[4], 1e-9)
	assert.InDelta(t, 500.0, got[5], 1e-9)
	assert.InDelta(t, 500.0, got[6], 1e-9)
	assert.InDelta(t, 500.0, got[7], 1e-9)
}

func TestUpsampleEqual_DividesFlat(t *testing.T) {
	hourly := core.Forecast{0: 1000, 1: 2000}

	got := UpsampleEqual(hourly)

	for q := 0; q < 4; q++ {
		assert.InDelta(t, 250.0, got[q], 1e-9)
	}
	for q := 4; q < 8; q++ {
		assert.InDelta(t, 500.0, got[q], 1e-9)
	}
}

func TestReplicate_CopiesValueToEachQuarter(t *testing.T) {
	hourly := core.Forecast{0: 0.30, 1: 0.25}

	got := Replicate(hourly)

	for q := 0; q < 4; q++ {
		assert.InDelta(t, 0.30, got[q], 1e-9)
	}
	for q := 4; q < 8; q++ {
		assert.InDelta(t, 0.25, got[q], 1e-9)
	}
}

func TestDownsampleAvg_RoundTripsReplicate(t *testing.T) {
	hourly := core.Forecast{0: 0.30, 1: 0.25, 2: 0.42}

	got := DownsampleAvg(Replicate(hourly))

	for hour, want := range hourly {
		assert.InDelta(t, want, got[hour], 1e-9)
	}
}

func TestDownsampleSum_RoundTripsUpsampleEqual(t *testing.T) {
	hourly := core.Forecast{0: 1000, 1: 2000, 2: 1500}

	got := DownsampleSum(UpsampleEqual(hourly))

	for hour, want := range hourly {
		assert.InDelta(t, want, got[hour], 1e-9)
	}
}

func TestDownsampleAvg(t *testing.T) {
	quarters := core.Forecast{0: 10, 1: 12, 2: 14, 3: 16}

	got := DownsampleAvg(quarters)

	assert.InDelta(t, 13.0, got[0], 1e-9)
}

func TestShiftToCurrentInterval(t *testing.T) {
	f := core.Forecast{0: 1, 1: 2, 2: 3}

	got := ShiftToCurrentInterval(f, 1)

	assert.Equal(t, core.Forecast{0: 2, 1: 3}, got)
}

func TestShiftToCurrentInterval_NoShift(t *testing.T) {
	f := core.Forecast{0: 1, 1: 2}
	assert.Equal(t, f, ShiftToCurrentInterval(f, 0))
}

func TestUpsampleLinear_Empty(t *testing.T) {
	assert.Equal(t, core.Forecast{}, UpsampleLinear(core.Forecast{}))
}
