package tariff

import (
	"context"
	"time"

	"github.com/muexxl/batcontrol-go/internal/core"
)

// TimeOfDayZone is one wall-clock band of a synthetic two-tier tariff.
// StartHour is inclusive, EndHour is exclusive; a zone wraps midnight when
// EndHour <= StartHour (e.g. a night-rate zone 22:00-06:00).
type TimeOfDayZone struct {
	StartHour int
	EndHour   int
	PriceKWh  float64
}

// contains reports whether hour (0-23) falls inside the zone, handling
// midnight wraparound.
func (z TimeOfDayZone) contains(hour int) bool {
	if z.StartHour < z.EndHour {
		return hour >= z.StartHour && hour < z.EndHour
	}
	return hour >= z.StartHour || hour < z.EndHour
}

// TimeOfDayProvider synthesizes a price forecast from a fixed day/night (or
// more generally N-zone) schedule — for households whose contract has no
// live pricing API at all, only a peak/off-peak rate table.
type TimeOfDayProvider struct {
	Zones    []TimeOfDayZone
	Location *time.Location
	Horizon  int // hours of forecast to synthesize
}

func (p *TimeOfDayProvider) GetPrices(ctx context.Context, now time.Time) (core.Forecast, error) {
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)

	horizon := p.Horizon
	if horizon <= 0 {
		horizon = 48
	}

	forecast := core.Forecast{}
	for h := 0; h < horizon; h++ {
		hourOfDay := local.Add(time.Duration(h) * time.Hour).Hour()
		price, ok := p.priceForHour(hourOfDay)
		if !ok {
			continue
		}
		forecast[h] = price
	}
	return forecast, nil
}

func (p *TimeOfDayProvider) priceForHour(hour int) (float64, bool) {
	for _, z := range p.Zones {
		if z.contains(hour) {
			return z.PriceKWh, true
		}
	}
	return 0, false
}
