package tariff

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/muexxl/batcontrol-go/internal/core"
	"github.com/muexxl/batcontrol-go/internal/forecastalign"
	"github.com/muexxl/batcontrol-go/internal/providercache"
)

// subscriptionPayload is the vendor JSON shape: an explicit "current" price
// for the interval in progress, plus a "today" array of hourly prices that
// may be stale relative to "current", and an optional "tomorrow" array that
// is absent until the vendor publishes it (typically ~13:00 local).
type subscriptionPayload struct {
	Current  *float64  `json:"current"`
	Today    []float64 `json:"today"`
	Tomorrow []float64 `json:"tomorrow,omitempty"`
}

// SubscriptionProvider fetches a vendor subscription tariff over a
// bearer-token JSON API. When both a "current" value and a "today[0]" value
// are present and disagree, "current" wins — it reflects the live published
// price, while "today" may have been cached by the vendor before a late
// revision.
type SubscriptionProvider struct {
	Client      *providercache.FetchClient
	Aligner     forecastalign.Aligner
	ProviderID  string
	URL         string
	BearerToken string

	cache *providercache.Cache[core.Forecast]
}

// NewSubscriptionProvider wires the cache with the given TTL.
func NewSubscriptionProvider(providerID string, client *providercache.FetchClient, aligner forecastalign.Aligner, cacheTTL time.Duration) *SubscriptionProvider {
	return &SubscriptionProvider{
		Client:     client,
		Aligner:    aligner,
		ProviderID: providerID,
		cache:      providercache.NewCache[core.Forecast](cacheTTL),
	}
}

func (p *SubscriptionProvider) GetPrices(ctx context.Context, now time.Time) (core.Forecast, error) {
	if cached, ok := p.cache.Get(); ok {
		return p.Aligner.AlignPrice(cached, now, now), nil
	}

	req, err := http.NewRequest(http.MethodGet, p.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.BearerToken)

	resp, err := p.Client.Do(ctx, p.ProviderID, p.ProviderID, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &core.NetworkError{Provider: p.ProviderID, Cause: fmt.Errorf("status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &core.ForecastError{Provider: p.ProviderID, Cause: err}
	}

	var payload subscriptionPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &core.ForecastError{Provider: p.ProviderID, Cause: err}
	}

	forecast := core.Forecast{}
	for h, v := range payload.Today {
		forecast[h] = v
	}
	for h, v := range payload.Tomorrow {
		forecast[len(payload.Today)+h] = v
	}
	if payload.Current != nil {
		// the explicit current price overrides hour 0 of "today", per
		// resolved tariff-precedence policy.
		forecast[0] = *payload.Current
	}

	p.cache.Set(forecast)
	return p.Aligner.AlignPrice(forecast, now, now), nil
}
