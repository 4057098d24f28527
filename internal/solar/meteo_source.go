package solar

import (
	"context"
	"fmt"

	"github.com/muexxl/batcontrol-go/meteo"
)

// MeteoWeatherSource adapts the MET Norway Locationforecast client into a
// WeatherSource, so CloudAPIProvider can be fed from a real weather API
// without knowing anything about MET's JSON shape.
type MeteoWeatherSource struct {
	Client    *meteo.Client
	Latitude  float64
	Longitude float64
	Altitude  *int
}

// NewMeteoWeatherSource builds a source backed by a fresh MET Norway client.
// userAgent must identify the deployment per MET's terms of service.
func NewMeteoWeatherSource(userAgent string, latitude, longitude float64, altitude *int) *MeteoWeatherSource {
	return &MeteoWeatherSource{
		Client:    meteo.NewClient(userAgent),
		Latitude:  latitude,
		Longitude: longitude,
		Altitude:  altitude,
	}
}

func (s *MeteoWeatherSource) GetWeather(ctx context.Context) ([]WeatherStep, error) {
	forecast, err := s.Client.GetCompact(meteo.QueryParams{
		Location: meteo.Location{
			Latitude:  s.Latitude,
			Longitude: s.Longitude,
			Altitude:  s.Altitude,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("fetching MET forecast: %w", err)
	}
	if forecast.Properties == nil {
		return nil, fmt.Errorf("MET forecast response has no properties")
	}

	steps := make([]WeatherStep, 0, len(forecast.Properties.Timeseries))
	for _, entry := range forecast.Properties.Timeseries {
		step := WeatherStep{Time: entry.Time}

		if entry.Data != nil && entry.Data.Instant != nil && entry.Data.Instant.Details != nil {
			if cloud := entry.Data.Instant.Details.CloudAreaFraction; cloud != nil {
				step.CloudAreaFraction = *cloud
			}
		}

		if entry.Data != nil && entry.Data.Next1Hours != nil && entry.Data.Next1Hours.Summary != nil {
			step.SymbolCode = Symbol(entry.Data.Next1Hours.Summary.SymbolCode)
		}

		steps = append(steps, step)
	}

	return steps, nil
}
