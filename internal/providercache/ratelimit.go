package providercache

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// rateLimitHeaders lists the headers probed, in fallback order, when neither
// of the two well-known headers (checked explicitly first) is present.
var rateLimitHeaders = []string{
	"X-Ratelimit-Retry-At",
	"Retry-After",
	"X-RateLimit-Reset",
	"RateLimit-Reset",
	"X-Rate-Limit-Reset",
}

// rateLimitEntry records when a provider was told to back off and for how long.
type rateLimitEntry struct {
	retryAfter time.Duration
	createdAt  time.Time
}

func (e rateLimitEntry) expiresAt() time.Time {
	return e.createdAt.Add(e.retryAfter)
}

// RateLimitRegistry tracks per-provider backoff windows, replacing the
// original implementation's RateLimitManager. Entries auto-expire the
// moment they're checked past their window: IsLimited and RetryAfter both
// delete an expired entry under the same lock that reads it.
type RateLimitRegistry struct {
	mu      sync.Mutex
	limits  map[string]rateLimitEntry
	nowFunc func() time.Time
}

// NewRateLimitRegistry returns an empty registry.
func NewRateLimitRegistry() *RateLimitRegistry {
	return &RateLimitRegistry{
		limits:  make(map[string]rateLimitEntry),
		nowFunc: time.Now,
	}
}

// IsLimited reports whether providerID is currently inside a backoff window.
func (r *RateLimitRegistry) IsLimited(providerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.limits[providerID]
	if !ok {
		return false
	}
	if r.nowFunc().After(entry.expiresAt()) || r.nowFunc().Equal(entry.expiresAt()) {
		delete(r.limits, providerID)
		return false
	}
	return true
}

// RetryAfter returns the remaining backoff duration for providerID, or false
// if it isn't currently rate limited. Like IsLimited, it deletes an expired
// entry before reporting it as gone.
func (r *RateLimitRegistry) RetryAfter(providerID string) (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.limits[providerID]
	if !ok {
		return 0, false
	}
	remaining := entry.expiresAt().Sub(r.nowFunc())
	if remaining <= 0 {
		delete(r.limits, providerID)
		return 0, false
	}
	return remaining, true
}

// SetFromResponse parses rate limit information out of an HTTP response,
// trying headers in the same priority order as the original implementation:
//  1. X-Ratelimit-Retry-At, an absolute RFC3339 timestamp (forecast.solar).
//  2. Retry-After, either a plain integer number of seconds or an HTTP-date.
//  3. Each of the fallback headers, tried first as a unix timestamp of
//     digits, then as an RFC3339 timestamp; the first one yielding a
//     positive remaining duration wins.
//
// It stores and returns the parsed backoff; it returns false if no header
// could be parsed into a usable rate limit.
func (r *RateLimitRegistry) SetFromResponse(providerID string, resp *http.Response) (time.Duration, bool) {
	if resp == nil {
		return 0, false
	}

	if v := resp.Header.Get("X-Ratelimit-Retry-At"); v != "" {
		if retryAt, err := time.Parse(time.RFC3339, v); err == nil {
			retryAfter := time.Until(retryAt)
			r.set(providerID, retryAfter)
			return retryAfter, true
		}
		return 0, false
	}

	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			retryAfter := time.Duration(secs) * time.Second
			r.set(providerID, retryAfter)
			return retryAfter, true
		}
		if retryAt, err := http.ParseTime(v); err == nil {
			retryAfter := time.Until(retryAt)
			r.set(providerID, retryAfter)
			return retryAfter, true
		}
		return 0, false
	}

	for _, header := range rateLimitHeaders {
		v := resp.Header.Get(header)
		if v == "" {
			continue
		}
		var retryAfter time.Duration
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			retryAfter = time.Until(time.Unix(unix, 0))
		} else if t, err := time.Parse(time.RFC3339, v); err == nil {
			retryAfter = time.Until(t)
		} else {
			continue
		}
		if retryAfter > 0 {
			r.set(providerID, retryAfter)
			return retryAfter, true
		}
	}

	return 0, false
}

// SetManual records a backoff window without reference to a response, used
// for provider-specific errors that don't carry rate-limit headers.
func (r *RateLimitRegistry) SetManual(providerID string, retryAfter time.Duration) {
	r.set(providerID, retryAfter)
}

func (r *RateLimitRegistry) set(providerID string, retryAfter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limits[providerID] = rateLimitEntry{retryAfter: retryAfter, createdAt: r.nowFunc()}
}

// Clear removes any rate limit recorded for providerID.
func (r *RateLimitRegistry) Clear(providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.limits, providerID)
}

// ClearAll removes every tracked rate limit.
func (r *RateLimitRegistry) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limits = make(map[string]rateLimitEntry)
}

// Snapshot returns the remaining backoff, keyed by provider, for every
// currently tracked rate limit. Used by the status/health surface.
func (r *RateLimitRegistry) Snapshot() map[string]time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]time.Duration, len(r.limits))
	for providerID, entry := range r.limits {
		remaining := entry.expiresAt().Sub(r.nowFunc())
		if remaining < 0 {
			remaining = 0
		}
		out[providerID] = remaining
	}
	return out
}
