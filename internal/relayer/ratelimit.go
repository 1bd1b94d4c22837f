package relayer

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter paces calls per relayer endpoint with a token bucket. One
// limiter is shared by every client in the process, so accounts that relay
// through the same endpoint draw from one bucket.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	every   rate.Limit
	burst   int
}

// NewRateLimiter allows ratePerSecond calls per relayer with bursts of up to
// burst calls.
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*rate.Limiter),
		every:   rate.Limit(ratePerSecond),
		burst:   burst,
	}
}

// DefaultRateLimiter allows 5 calls per second per relayer, bursting to 10.
func DefaultRateLimiter() *RateLimiter {
	return NewRateLimiter(5, 10)
}

// Wait blocks until relayerURL has a free slot or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context, relayerURL string) error {
	return r.bucket(relayerURL).Wait(ctx)
}

func (r *RateLimiter) bucket(relayerURL string) *rate.Limiter {
	key := endpointKey(relayerURL)

	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buckets[key]
	if !ok {
		b = rate.NewLimiter(r.every, r.burst)
		r.buckets[key] = b
	}
	return b
}

// endpointKey folds spellings of the same relayer URL together: the scheme
// and host are case-insensitive and a trailing slash is ignored. Query
// strings are dropped so API keys never end up as map keys.
func endpointKey(relayerURL string) string {
	u, err := url.Parse(strings.TrimSpace(relayerURL))
	if err != nil || u.Host == "" {
		return strings.TrimRight(relayerURL, "/")
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + strings.TrimRight(u.Path, "/")
}
