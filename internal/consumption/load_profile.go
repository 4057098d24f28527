package consumption

import (
	"context"
	"time"

	"github.com/muexxl/batcontrol-go/internal/core"
)

// profileKey identifies one (month, weekday, hour) slot of a load profile.
// Weekday follows time.Weekday (0 = Sunday), matching Go's own convention
// rather than the original implementation's Monday-indexed one.
type profileKey struct {
	Month   time.Month
	Weekday time.Weekday
	Hour    int
}

// LoadProfileProvider forecasts consumption from a static per-slot energy
// table (typically derived offline from a year of historical meter
// readings), falling back to the average of all slots when a slot has no data —
// directly generalizing the original implementation's month/weekday/hour
// median lookup.
type LoadProfileProvider struct {
	// Profile maps (month, weekday, hour) to expected Wh for that hour.
	Profile map[profileKey]float64
	// Fallback is used when a requested slot has no entry.
	Fallback float64
	Location *time.Location
}

// NewLoadProfileProvider builds a provider from a flat slice of (month,
// weekday, hour, energyWh) samples, aggregating duplicate slots by average
// and computing the overall fallback as the average across all samples.
func NewLoadProfileProvider(loc *time.Location, samples []ProfileSample) *LoadProfileProvider {
	sums := map[profileKey]float64{}
	counts := map[profileKey]int{}
	var total float64
	for _, s := range samples {
		key := profileKey{Month: s.Month, Weekday: s.Weekday, Hour: s.Hour}
		sums[key] += s.EnergyWh
		counts[key]++
		total += s.EnergyWh
	}

	profile := make(map[profileKey]float64, len(sums))
	for key, sum := range sums {
		profile[key] = sum / float64(counts[key])
	}

	fallback := 0.0
	if len(samples) > 0 {
		fallback = total / float64(len(samples))
	}

	return &LoadProfileProvider{Profile: profile, Fallback: fallback, Location: loc}
}

// ProfileSample is one raw (month, weekday, hour) -> energy observation used
// to build a LoadProfileProvider.
type ProfileSample struct {
	Month    time.Month
	Weekday  time.Weekday
	Hour     int
	EnergyWh float64
}

func (p *LoadProfileProvider) GetForecast(ctx context.Context, now time.Time, hours int) (core.Forecast, error) {
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}

	forecast := core.Forecast{}
	for h := 0; h < hours; h++ {
		target := now.In(loc).Add(time.Duration(h) * time.Hour)
		key := profileKey{Month: target.Month(), Weekday: target.Weekday(), Hour: target.Hour()}
		if v, ok := p.Profile[key]; ok {
			forecast[h] = v
		} else {
			forecast[h] = p.Fallback
		}
	}
	return forecast, nil
}
