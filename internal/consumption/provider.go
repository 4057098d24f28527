// Package consumption implements the household load forecast providers
// (C3): a load-profile lookup keyed by month/weekday/hour, and a weighted
// historical-average provider over several same-weekday-same-hour samples.
package consumption

import (
	"context"
	"time"

	"github.com/muexxl/batcontrol-go/internal/core"
)

// Provider is the contract every consumption source implements, replacing
// the original implementation's ForecastConsumption inheritance chain.
type Provider interface {
	// GetForecast returns the consumption forecast, Wh per interval, index 0
	// = current interval, for the given look-ahead horizon in hours.
	GetForecast(ctx context.Context, now time.Time, hours int) (core.Forecast, error)
}
