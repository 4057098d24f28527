// Package forecastalign provides the wall-clock alignment and resolution
// plumbing shared by every C3 provider (tariff, solar, consumption), so each
// provider composes this instead of inheriting from a shared base class.
package forecastalign

import (
	"time"

	"github.com/muexxl/batcontrol-go/internal/core"
	"github.com/muexxl/batcontrol-go/internal/interval"
)

// Aligner holds the target resolution a provider must present its forecast
// in, and know how to re-key a freshly fetched hourly forecast so offset 0
// always means "the interval containing now".
type Aligner struct {
	Resolution interval.Resolution
}

// NewAligner returns an Aligner for the given target resolution.
func NewAligner(res interval.Resolution) Aligner {
	return Aligner{Resolution: res}
}

// AlignEnergy takes an hourly energy forecast (fetchedAt = top of the hour
// it was retrieved in) and returns it in the target resolution, shifted so
// offset 0 corresponds to the interval containing now. Ramping forecasts
// (e.g. solar) should upsample with linear interpolation; set linear=true.
func (a Aligner) AlignEnergy(hourly core.Forecast, fetchedAt, now time.Time, linear bool) core.Forecast {
	var upsampled core.Forecast
	if a.Resolution == interval.Res60Min {
		upsampled = hourly
	} else if linear {
		upsampled = interval.UpsampleLinear(hourly)
	} else {
		upsampled = interval.UpsampleEqual(hourly)
	}

	elapsed := a.elapsedIntervals(fetchedAt, now)
	return interval.ShiftToCurrentInterval(upsampled, elapsed)
}

// AlignPrice takes an hourly price forecast and returns it in the target
// resolution (replicated, never divided or interpolated), shifted to now.
func (a Aligner) AlignPrice(hourly core.Forecast, fetchedAt, now time.Time) core.Forecast {
	var upsampled core.Forecast
	if a.Resolution == interval.Res60Min {
		upsampled = hourly
	} else {
		upsampled = interval.Replicate(hourly)
	}
	elapsed := a.elapsedIntervals(fetchedAt, now)
	return interval.ShiftToCurrentInterval(upsampled, elapsed)
}

// elapsedIntervals is how many intervals of a.Resolution have passed between
// the hour fetchedAt was anchored to and now.
func (a Aligner) elapsedIntervals(fetchedAt, now time.Time) int {
	anchor := time.Date(fetchedAt.Year(), fetchedAt.Month(), fetchedAt.Day(), fetchedAt.Hour(), 0, 0, 0, fetchedAt.Location())
	elapsed := now.Sub(anchor)
	if elapsed <= 0 {
		return 0
	}
	return int(elapsed / (time.Duration(a.Resolution) * time.Minute))
}

// IntervalStart rounds now down to the start of the interval it falls in,
// at the aligner's resolution.
func (a Aligner) IntervalStart(now time.Time) time.Time {
	minutes := now.Hour()*60 + now.Minute()
	step := int(a.Resolution)
	bucket := (minutes / step) * step
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).
		Add(time.Duration(bucket) * time.Minute)
}
