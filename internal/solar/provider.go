// Package solar implements the production forecast providers (C3): a
// cloud-cover/sun-angle estimator fed by a weather API, and a local PV
// sensor reader. Every provider returns an hour-offset-keyed Wh forecast
// already aligned to the current interval.
package solar

import (
	"context"
	"time"

	"github.com/muexxl/batcontrol-go/internal/core"
)

// Provider is the contract every solar source implements, replacing the
// original implementation's ForecastSolarBaseclass inheritance chain.
type Provider interface {
	// GetForecast returns the production forecast, Wh per interval, index 0
	// = current interval, for the given look-ahead horizon in hours.
	GetForecast(ctx context.Context, now time.Time, hours int) (core.Forecast, error)
}

// MinHorizonHours is the shortest forward production horizon the decision
// engine can rely on; fewer hours than this is a fatal ShortHorizonError.
const MinHorizonHours = 18
