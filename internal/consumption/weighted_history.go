package consumption

import (
	"context"
	"fmt"
	"time"

	"github.com/muexxl/batcontrol-go/internal/core"
	"github.com/muexxl/batcontrol-go/internal/providercache"
)

// HistorySource supplies the total energy consumed (Wh) in a single
// [start, end) window, looking back into recorded history. Implemented
// against whatever energy-monitoring backend a deployment has (a local
// database, a smart-meter API, ...).
type HistorySource interface {
	EnergyBetween(ctx context.Context, start, end time.Time) (wh float64, err error)
}

// HistoryPeriod is one look-back window contributing to the weighted
// forecast, e.g. {DaysAgo: 7, Weight: 3}. Weight must be between 1 and 10.
type HistoryPeriod struct {
	DaysAgo int
	Weight  int
}

// WeightedHistoryProvider forecasts each upcoming hour as a weighted average
// of the same hour-of-day on N days in the past (e.g. -7, -14, -21 days),
// generalizing the original implementation's HomeAssistant-statistics-based
// forecaster. A period whose sample can't be fetched is simply excluded from
// that hour's weighted average rather than failing the whole forecast.
type WeightedHistoryProvider struct {
	Source     HistorySource
	Periods    []HistoryPeriod
	ProviderID string
	cache      *providercache.Cache[core.Forecast]
}

// NewWeightedHistoryProvider validates the period weights and wires a cache.
func NewWeightedHistoryProvider(providerID string, source HistorySource, periods []HistoryPeriod, cacheTTL time.Duration) (*WeightedHistoryProvider, error) {
	for _, p := range periods {
		if p.Weight < 1 || p.Weight > 10 {
			return nil, fmt.Errorf("history weight must be between 1 and 10, got %d", p.Weight)
		}
	}
	return &WeightedHistoryProvider{
		Source:     source,
		Periods:    periods,
		ProviderID: providerID,
		cache:      providercache.NewCache[core.Forecast](cacheTTL),
	}, nil
}

func (p *WeightedHistoryProvider) GetForecast(ctx context.Context, now time.Time, hours int) (core.Forecast, error) {
	if cached, ok := p.cache.Get(); ok {
		return cached, nil
	}

	forecast := core.Forecast{}
	for h := 0; h < hours; h++ {
		basisStart := now.Add(time.Duration(h) * time.Hour)
		basisEnd := basisStart.Add(time.Hour)

		var weightSum int
		var weightedSum float64
		for _, period := range p.Periods {
			start := basisStart.AddDate(0, 0, -period.DaysAgo)
			end := basisEnd.AddDate(0, 0, -period.DaysAgo)

			wh, err := p.Source.EnergyBetween(ctx, start, end)
			if err != nil {
				continue
			}
			weightSum += period.Weight
			weightedSum += wh * float64(period.Weight)
		}

		if weightSum == 0 {
			// no history at all for this hour slot: stop, matching the
			// original implementation's behavior of truncating the forecast
			// rather than inventing a value.
			break
		}
		forecast[h] = weightedSum / float64(weightSum)
	}

	if len(forecast) == 0 {
		return nil, &core.ForecastError{Provider: p.ProviderID, Cause: fmt.Errorf("no historical samples available")}
	}

	p.cache.Set(forecast)
	return forecast, nil
}
