package solar

import (
	"context"
	"strings"
	"time"

	"github.com/muexxl/batcontrol-go/internal/core"
	"github.com/muexxl/batcontrol-go/internal/forecastalign"
)

// LocalSensorReader polls a local inverter/meter for an instantaneous
// production reading. Implementations talk Modbus, MQTT, or a vendor API.
type LocalSensorReader interface {
	ReadProduction(ctx context.Context) (value float64, unit string, err error)
}

// LocalSensorProvider builds a flat near-term forecast from the most recent
// live PV sensor reading, for installations with no weather API but a
// working local meter. It auto-detects whether the sensor reports in Wh or
// kWh, a recurring inconsistency across home-energy sensor integrations.
type LocalSensorProvider struct {
	Reader     LocalSensorReader
	ProviderID string
	Aligner    forecastalign.Aligner
}

func (p *LocalSensorProvider) GetForecast(ctx context.Context, now time.Time, hours int) (core.Forecast, error) {
	value, unit, err := p.Reader.ReadProduction(ctx)
	if err != nil {
		return nil, &core.ForecastError{Provider: p.ProviderID, Cause: err}
	}

	wh := normalizeToWh(value, unit)

	hourly := core.Forecast{}
	for h := 0; h < hours; h++ {
		hourly[h] = wh
	}

	return p.Aligner.AlignEnergy(hourly, now, now, false), nil
}

// normalizeToWh converts a sensor reading to Wh based on its reported unit,
// defaulting to treating an unlabeled unit as already Wh.
func normalizeToWh(value float64, unit string) float64 {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "kwh", "kw":
		return value * 1000
	default:
		return value
	}
}
