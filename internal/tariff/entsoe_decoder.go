package tariff

import (
	"bytes"
	"fmt"
	"time"

	"github.com/muexxl/batcontrol-go/entsoe"
	"github.com/muexxl/batcontrol-go/internal/core"
)

// DecodeENTSOEPrices is a MarketDecoder for ENTSO-E's Publication_MarketDocument
// day-ahead price XML. Each TimeSeries/Period's points are projected onto
// hour offsets from dayStart, so a document whose period starts at 22:00 the
// previous day (ENTSO-E reports in UTC) still lands on the right local hours.
func DecodeENTSOEPrices(body []byte, dayStart time.Time) (core.Forecast, error) {
	doc, err := entsoe.DecodeEnergyPricesXML(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("decoding ENTSO-E document: %w", err)
	}

	forecast := core.Forecast{}
	for _, series := range doc.TimeSeries {
		resolution := series.Period.Resolution
		if resolution <= 0 {
			resolution = time.Hour
		}
		start := series.Period.TimeInterval.Start

		for _, point := range series.Period.Points {
			pointTime := start.Add(time.Duration(point.Position-1) * resolution)
			offset := int(pointTime.Sub(dayStart).Hours())
			forecast[offset] = point.PriceAmount
		}
	}

	if len(forecast) == 0 {
		return nil, fmt.Errorf("ENTSO-E document contained no price points")
	}
	return forecast, nil
}
