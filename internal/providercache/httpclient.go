package providercache

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// FetchClient wraps an *http.Client with a shared rate-limit registry and
// request de-duplication, so that several providers (or several components
// of the same provider) refreshing at once never cause more than one
// in-flight request per key to the same upstream.
type FetchClient struct {
	HTTP       *http.Client
	RateLimits *RateLimitRegistry
	group      singleflight.Group
}

// NewFetchClient returns a FetchClient with the given per-request timeout.
func NewFetchClient(timeout time.Duration) *FetchClient {
	return &FetchClient{
		HTTP:       &http.Client{Timeout: timeout},
		RateLimits: NewRateLimitRegistry(),
	}
}

// Do performs req under providerID's rate-limit gate and request
// de-duplication key. If providerID is currently backed off, it returns a
// RateLimitedError-shaped error without making the request. On a 429/503
// response it records the backoff from the response headers before
// returning the response to the caller for inspection.
func (c *FetchClient) Do(ctx context.Context, providerID, dedupeKey string, req *http.Request) (*http.Response, error) {
	if retry, limited := c.RateLimits.RetryAfter(providerID); limited {
		return nil, &RateLimitedError{Provider: providerID, RetryAfter: retry}
	}

	type result struct {
		resp *http.Response
		err  error
	}

	v, err, _ := c.group.Do(dedupeKey, func() (interface{}, error) {
		resp, err := c.HTTP.Do(req.WithContext(ctx))
		if err != nil {
			return result{nil, err}, nil
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
			c.RateLimits.SetFromResponse(providerID, resp)
		}
		return result{resp, nil}, nil
	})
	if err != nil {
		return nil, err
	}
	r := v.(result)
	return r.resp, r.err
}

// RateLimitedError is returned by FetchClient.Do when a provider is in an
// active backoff window; it mirrors core.RateLimitedError's shape so callers
// that only hold a providercache reference don't need to import core.
type RateLimitedError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("provider %q rate limited, retry after %s", e.Provider, e.RetryAfter)
}

// RefreshAll runs every refresh func concurrently and returns the first
// error encountered, cancelling the shared context for the rest. The
// scheduler does not use it; its refresh tasks call providers one after
// another.
func RefreshAll(ctx context.Context, refreshers ...func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, refresh := range refreshers {
		refresh := refresh
		g.Go(func() error { return refresh(gctx) })
	}
	return g.Wait()
}
