package tariff

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/muexxl/batcontrol-go/internal/core"
	"github.com/muexxl/batcontrol-go/internal/forecastalign"
	"github.com/muexxl/batcontrol-go/internal/providercache"
)

// MarketDecoder parses a day-ahead market document fetched from the wire
// into an hour-aligned, hour-offset-keyed €/MWh forecast anchored at the
// start of the day the document covers. Implementations are
// exchange-specific (ENTSO-E XML, Nord Pool JSON, ...); tests substitute a
// fake.
type MarketDecoder func(body []byte, dayStart time.Time) (core.Forecast, error)

// HourlyMarketProvider fetches a day-ahead wholesale tariff and, from 13:00
// local time onward, merges in the following day's published prices —
// mirroring the original implementation's ENTSO-E client, which issues a
// second request and appends its TimeSeries once "tomorrow" prices publish.
type HourlyMarketProvider struct {
	Client     *providercache.FetchClient
	Aligner    forecastalign.Aligner
	ProviderID string
	URLFormat  string // fmt.Sprintf(URLFormat, dayStart.Format("2006-01-02")) -> request URL
	Decode     MarketDecoder
	Location   *time.Location

	Markup  float64 // proportional, e.g. 0.03 for 3%
	FeesKWh float64 // absolute currency/kWh
	VAT     float64 // proportional, e.g. 0.19 for 19%

	cache *providercache.Cache[core.Forecast]
}

// NewHourlyMarketProvider wires the cache with the given TTL.
func NewHourlyMarketProvider(providerID string, client *providercache.FetchClient, aligner forecastalign.Aligner, cacheTTL time.Duration) *HourlyMarketProvider {
	return &HourlyMarketProvider{
		Client:     client,
		Aligner:    aligner,
		ProviderID: providerID,
		cache:      providercache.NewCache[core.Forecast](cacheTTL),
	}
}

func (p *HourlyMarketProvider) GetPrices(ctx context.Context, now time.Time) (core.Forecast, error) {
	if cached, ok := p.cache.Get(); ok {
		return p.Aligner.AlignPrice(cached, p.fetchedDayStart(now), now), nil
	}

	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	today, err := p.fetchDay(ctx, dayStart)
	if err != nil {
		return nil, &core.ForecastError{Provider: p.ProviderID, Cause: err}
	}

	merged := today
	if local.Hour() >= 13 {
		tomorrow, err := p.fetchDay(ctx, dayStart.AddDate(0, 0, 1))
		if err == nil {
			merged = mergeDayAhead(today, tomorrow, 24)
		}
		// tomorrow's prices may legitimately not be published yet; today's
		// forecast alone is still usable.
	}

	// Decode yields currency/MWh; fees and the returned forecast are per kWh.
	adjusted := core.Forecast{}
	for h, raw := range merged {
		adjusted[h] = applyFeesAndVAT(raw/1000, p.Markup, p.FeesKWh, p.VAT)
	}

	p.cache.Set(adjusted)
	return p.Aligner.AlignPrice(adjusted, dayStart, now), nil
}

func (p *HourlyMarketProvider) fetchDay(ctx context.Context, dayStart time.Time) (core.Forecast, error) {
	url := fmt.Sprintf(p.URLFormat, dayStart.Format("2006-01-02"))
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.Client.Do(ctx, p.ProviderID, p.ProviderID+":"+dayStart.Format("2006-01-02"), req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tariff %s: unexpected status %d", p.ProviderID, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return p.Decode(body, dayStart)
}

// fetchedDayStart recovers the anchor the cached forecast was built from —
// the start of the local day containing now.
func (p *HourlyMarketProvider) fetchedDayStart(now time.Time) time.Time {
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// mergeDayAhead appends tomorrow's hours (offset by hoursPerDay) onto
// today's forecast, skipping any hour tomorrow hasn't actually published.
func mergeDayAhead(today, tomorrow core.Forecast, hoursPerDay int) core.Forecast {
	merged := core.Forecast{}
	for h, v := range today {
		merged[h] = v
	}
	for h, v := range tomorrow {
		merged[h+hoursPerDay] = v
	}
	return merged
}
