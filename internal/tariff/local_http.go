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
)

// LocalHTTPProvider reads a tariff forecast from a LAN-local JSON endpoint
// (e.g. a home-energy-management box relaying a utility's published rates).
// No auth, no rate limiting — the upstream is local and always-on.
type LocalHTTPProvider struct {
	HTTP       *http.Client
	Aligner    forecastalign.Aligner
	ProviderID string
	URL        string
}

func (p *LocalHTTPProvider) GetPrices(ctx context.Context, now time.Time) (core.Forecast, error) {
	client := p.HTTP
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &core.NetworkError{Provider: p.ProviderID, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &core.NetworkError{Provider: p.ProviderID, Cause: fmt.Errorf("status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &core.ForecastError{Provider: p.ProviderID, Cause: err}
	}

	var hourly map[string]float64
	if err := json.Unmarshal(body, &hourly); err != nil {
		return nil, &core.ForecastError{Provider: p.ProviderID, Cause: err}
	}

	forecast := core.Forecast{}
	for key, v := range hourly {
		var h int
		if _, err := fmt.Sscanf(key, "%d", &h); err != nil {
			continue
		}
		forecast[h] = v
	}

	return p.Aligner.AlignPrice(forecast, now, now), nil
}
