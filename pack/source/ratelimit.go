package source

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// lowWatermark is the provider-reported remaining-call count below which
// we wait for the window to reset instead of spending the budget.
const lowWatermark = 10

// maxResetWait caps how long a fetch blocks waiting for a rate window.
const maxResetWait = 60 * time.Second

// RateLimiter is a token-aware bucket per forge provider. The local bucket
// smooths our own call rate; provider-reported headers (remaining/reset)
// gate hard when the remote budget runs low.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[Provider]*providerBucket
	perMin  int
	burst   int
}

type providerBucket struct {
	limiter   *rate.Limiter
	remaining int
	resetAt   time.Time
}

// NewRateLimiter creates a limiter allowing perMin calls per minute with
// the given burst per provider.
func NewRateLimiter(perMin, burst int) *RateLimiter {
	return &RateLimiter{
		buckets: map[Provider]*providerBucket{},
		perMin:  perMin,
		burst:   burst,
	}
}

func (r *RateLimiter) bucket(p Provider) *providerBucket {
	b, ok := r.buckets[p]
	if !ok {
		b = &providerBucket{
			limiter:   rate.NewLimiter(rate.Limit(float64(r.perMin)/60.0), r.burst),
			remaining: -1, // unknown until first response
		}
		r.buckets[p] = b
	}
	return b
}

// Wait blocks until a call to the provider may proceed. When the remote
// budget is nearly exhausted it waits for the reported reset, capped at
// maxResetWait; past the cap it returns RateLimited.
func (r *RateLimiter) Wait(ctx context.Context, p Provider) error {
	r.mu.Lock()
	b := r.bucket(p)
	var resetWait time.Duration
	if b.remaining >= 0 && b.remaining < lowWatermark && time.Now().Before(b.resetAt) {
		resetWait = time.Until(b.resetAt)
	}
	limiter := b.limiter
	r.mu.Unlock()

	if resetWait > 0 {
		if resetWait > maxResetWait {
			return &RateLimited{Provider: p, ResetSecs: int(resetWait.Seconds())}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(resetWait):
		}
		// Window expired; forget the stale remote budget.
		r.mu.Lock()
		b.remaining = -1
		r.mu.Unlock()
	}

	return limiter.Wait(ctx)
}

// Observe records provider-reported budget headers after a call.
func (r *RateLimiter) Observe(p Provider, remaining int, resetAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.bucket(p)
	b.remaining = remaining
	b.resetAt = resetAt
}

// Remaining returns the last provider-reported budget, -1 when unknown.
func (r *RateLimiter) Remaining(p Provider) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bucket(p).remaining
}
