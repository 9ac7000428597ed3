package pncp

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

const (
	// How long a caller waits for a token before being throttled.
	acquireTimeout = 2 * time.Second
	// Fixed pause before re-trying acquisition after a throttle.
	throttleBackoff = 100 * time.Millisecond
)

// RateLimiter is the process-wide token bucket gating every outbound
// PNCP request. All fetchers share one instance so that the total
// request rate stays under the API's enforced ceiling no matter how
// many organizations or modalities are being processed concurrently.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter builds a bucket holding perSecond tokens, replenished
// at perSecond tokens per second.
func NewRateLimiter(perSecond int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), perSecond),
	}
}

// Acquire blocks until a permit is granted or ctx is cancelled. When
// the bucket stays exhausted past the acquire timeout the caller is
// throttled: it backs off briefly and retries, never bypassing the
// bucket.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	for {
		waitCtx, cancel := context.WithTimeout(ctx, acquireTimeout)
		err := r.limiter.Wait(waitCtx)
		cancel()

		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		select {
		case <-time.After(throttleBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
