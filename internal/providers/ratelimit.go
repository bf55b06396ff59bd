package providers

import (
	"context"
	"math"
	"sync"
	"time"
)

// RateLimiter is a token bucket shared by every credential of a provider.
// A nil *RateLimiter never blocks.
type RateLimiter struct {
	mu sync.Mutex

	perSecond float64
	burst     float64

	tokens     float64
	lastUpdate time.Time
	blockUntil time.Time

	totalConsumed int64
	totalWaited   time.Duration
	last429Time   time.Time
}

// RateLimiterStatus reports current limiter state.
type RateLimiterStatus struct {
	RequestsPerSecond float64       `json:"requests_per_second"`
	TokensAvailable   int           `json:"tokens_available"`
	TotalConsumed     int64         `json:"total_consumed"`
	TotalWaited       time.Duration `json:"total_waited"`
	Last429Time       time.Time     `json:"last_429_time,omitempty"`
}

// NewRateLimiter returns a limiter for perSecond requests, or nil when
// perSecond is not positive.
func NewRateLimiter(perSecond float64) *RateLimiter {
	if perSecond <= 0 {
		return nil
	}
	burst := math.Max(1, math.Ceil(perSecond))
	return &RateLimiter{
		perSecond:  perSecond,
		burst:      burst,
		tokens:     burst,
		lastUpdate: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return ctx.Err()
	}
	for {
		r.mu.Lock()
		now := time.Now()
		r.refill(now)

		var wait time.Duration
		switch {
		case now.Before(r.blockUntil):
			wait = r.blockUntil.Sub(now)
		case r.tokens >= 1:
			r.tokens--
			r.totalConsumed++
			r.mu.Unlock()
			return nil
		default:
			wait = time.Duration((1 - r.tokens) / r.perSecond * float64(time.Second))
		}
		r.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			r.mu.Lock()
			r.totalWaited += wait
			r.mu.Unlock()
		}
	}
}

// Record429 drains the bucket and, when retryAfter is set, holds every
// caller back for that long.
func (r *RateLimiter) Record429(retryAfter time.Duration) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.last429Time = now
	r.tokens = 0
	if retryAfter > 0 {
		if until := now.Add(retryAfter); until.After(r.blockUntil) {
			r.blockUntil = until
		}
	}
}

// Status returns current limiter state.
func (r *RateLimiter) Status() RateLimiterStatus {
	if r == nil {
		return RateLimiterStatus{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refill(time.Now())
	return RateLimiterStatus{
		RequestsPerSecond: r.perSecond,
		TokensAvailable:   int(r.tokens),
		TotalConsumed:     r.totalConsumed,
		TotalWaited:       r.totalWaited,
		Last429Time:       r.last429Time,
	}
}

// refill must be called with the lock held.
func (r *RateLimiter) refill(now time.Time) {
	elapsed := now.Sub(r.lastUpdate).Seconds()
	r.lastUpdate = now
	r.tokens = math.Min(r.burst, r.tokens+elapsed*r.perSecond)
}

// observe feeds a provider error back into the limiter.
func (r *RateLimiter) observe(err error) {
	if apiErr, ok := err.(*APIError); ok && apiErr.StatusCode == 429 {
		r.Record429(apiErr.RetryAfter)
	}
}
