// Package tariff implements the price forecast providers (C3): hourly
// day-ahead market tariffs, vendor subscription tariffs, a local HTTP
// sensor/relay, and a synthetic time-of-day schedule. Every provider returns
// an hour-offset-keyed €/kWh forecast already aligned to the current
// interval.
package tariff

import (
	"context"
	"time"

	"github.com/muexxl/batcontrol-go/internal/core"
)

// Provider is the contract every tariff source implements, replacing the
// original implementation's DynamicTariffBaseclass inheritance chain.
type Provider interface {
	// GetPrices returns the price forecast, €/kWh, index 0 = current interval.
	GetPrices(ctx context.Context, now time.Time) (core.Forecast, error)
}

// applyFeesAndVAT layers per-unit fees, a proportional markup and VAT on top
// of a raw wholesale price, in that order: ((raw*(1+markup)+fees)*(1+vat)).
func applyFeesAndVAT(raw, markup, feesPerKWh, vat float64) float64 {
	return (raw*(1+markup) + feesPerKWh) * (1 + vat)
}
