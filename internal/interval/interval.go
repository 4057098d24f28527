// Package interval converts forecast data between time resolutions: hourly
// (as returned by most tariff/weather APIs) and 15-minute. batcontrold itself
// runs the engine and scheduler on the hourly grid.
package interval

import "github.com/muexxl/batcontrol-go/internal/core"

// Resolution is a supported grid resolution, in minutes.
type Resolution int

const (
	Res15Min Resolution = 15
	Res60Min Resolution = 60
)

const quartersPerHour = 4

// UpsampleLinear converts an hourly energy forecast (Wh per hour) to
// 15-minute intervals (Wh per interval) using linear power interpolation
// between consecutive hours. Appropriate for solar production, where power
// ramps smoothly rather than jumping at the hour boundary.
//
// Hour 0: 1000 Wh, Hour 1: 2000 Wh yields quarters
// 250, 312.5, 375, 437.5 Wh for hour 0 (power ramping 1000W -> 2000W) and
// 500, 500, 500, 500 Wh for the final hour (no next hour to interpolate to).
func UpsampleLinear(hourly core.Forecast) core.Forecast {
	if len(hourly) == 0 {
		return core.Forecast{}
	}

	out := core.Forecast{}
	maxHour := hourly.MaxHour()

	for hour := 0; hour < maxHour; hour++ {
		currentPower := hourly[hour]
		nextPower := hourly[hour+1]

		for quarter := 0; quarter < quartersPerHour; quarter++ {
			fraction := float64(quarter) / float64(quartersPerHour)
			interpolatedPower := currentPower + (nextPower-currentPower)*fraction
			out[hour*quartersPerHour+quarter] = interpolatedPower * 0.25
		}
	}

	// Last hour has no successor to interpolate toward: divide flat.
	if lastPower, ok := hourly[maxHour]; ok {
		for quarter := 0; quarter < quartersPerHour; quarter++ {
			out[maxHour*quartersPerHour+quarter] = lastPower * 0.25
		}
	}

	return out
}

// UpsampleEqual converts an hourly forecast to 15-minute intervals by
// dividing each hourly value equally across its four quarters. Appropriate
// for energy amounts such as consumption; prices use Replicate instead.
func UpsampleEqual(hourly core.Forecast) core.Forecast {
	out := core.Forecast{}
	for hour, value := range hourly {
		quarterValue := value / float64(quartersPerHour)
		for quarter := 0; quarter < quartersPerHour; quarter++ {
			out[hour*quartersPerHour+quarter] = quarterValue
		}
	}
	return out
}

// Replicate converts an hourly price forecast to 15-minute intervals by
// copying the hourly value into each of its four quarters unchanged. Unlike
// energy, a price doesn't divide when the bucket narrows — €/kWh at 10:00 is
// still €/kWh at 10:15. DownsampleAvg(Replicate(hourly)) == hourly.
func Replicate(hourly core.Forecast) core.Forecast {
	out := core.Forecast{}
	for hour, value := range hourly {
		for quarter := 0; quarter < quartersPerHour; quarter++ {
			out[hour*quartersPerHour+quarter] = value
		}
	}
	return out
}

// DownsampleSum converts 15-minute intervals to hourly by summing the four
// quarters belonging to each hour. Appropriate for energy values.
func DownsampleSum(quarterHourly core.Forecast) core.Forecast {
	out := core.Forecast{}
	for idx, value := range quarterHourly {
		hour := idx / quartersPerHour
		out[hour] += value
	}
	return out
}

// DownsampleAvg converts 15-minute intervals to hourly by averaging the
// quarters present for each hour. Appropriate for prices.
func DownsampleAvg(quarterHourly core.Forecast) core.Forecast {
	sums := map[int]float64{}
	counts := map[int]int{}
	for idx, value := range quarterHourly {
		hour := idx / quartersPerHour
		sums[hour] += value
		counts[hour]++
	}
	out := core.Forecast{}
	for hour, sum := range sums {
		out[hour] = sum / float64(counts[hour])
	}
	return out
}

// ShiftToCurrentInterval re-indexes a forecast so that offset 0 refers to the
// interval containing `elapsed` intervals have passed since the forecast was
// produced. Used when a provider's forecast was fetched some time ago and
// the scheduler needs it aligned to "now".
func ShiftToCurrentInterval(forecast core.Forecast, elapsed int) core.Forecast {
	if elapsed <= 0 {
		return forecast
	}
	out := core.Forecast{}
	for idx, value := range forecast {
		newIdx := idx - elapsed
		if newIdx < 0 {
			continue
		}
		out[newIdx] = value
	}
	return out
}
