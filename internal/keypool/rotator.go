package keypool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/jackzampolin/temario/internal/fault"
)

// Class is the outcome category of a failed call.
type Class int

const (
	// Hard errors stop the rotation and are returned as-is.
	Hard Class = iota
	// Soft errors (rate limit, overload, quota) move on to the next credential.
	Soft
)

// StatusCoder is implemented by provider errors that carry an HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// QuotaSignaler is implemented by provider errors that can report a
// provider-specific quota condition independent of the status code.
type QuotaSignaler interface {
	QuotaExceeded() bool
}

// Classify is the default error classifier.
func Classify(err error) Class {
	if err == nil {
		return Hard
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Hard
	}
	var q QuotaSignaler
	if errors.As(err, &q) && q.QuotaExceeded() {
		return Soft
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		switch sc.HTTPStatus() {
		case http.StatusTooManyRequests, http.StatusServiceUnavailable:
			return Soft
		}
	}
	return Hard
}

// Rotator runs calls across a Pool.
type Rotator struct {
	logger   *slog.Logger
	classify func(error) Class

	mu         sync.Mutex
	softCounts map[string]int64
}

// Config configures a Rotator.
type Config struct {
	Logger *slog.Logger
	// Classify overrides the default classifier (tests, custom providers).
	Classify func(error) Class
}

// NewRotator creates a Rotator.
func NewRotator(cfg Config) *Rotator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Classify == nil {
		cfg.Classify = Classify
	}
	return &Rotator{
		logger:     cfg.Logger,
		classify:   cfg.Classify,
		softCounts: make(map[string]int64),
	}
}

// Stats returns soft-failure counts per credential label.
func (r *Rotator) Stats() map[string]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int64, len(r.softCounts))
	for k, v := range r.softCounts {
		out[k] = v
	}
	return out
}

func (r *Rotator) recordSoft(label string) {
	r.mu.Lock()
	r.softCounts[label]++
	r.mu.Unlock()
}

// Call invokes fn with each credential of pool in order until one succeeds.
// A soft failure moves to the next credential; a hard failure is returned
// immediately. Each credential is used at most once. When every credential
// soft-fails the result is a fault.RateLimitExhausted error wrapping the last
// failure.
func Call[T any](ctx context.Context, r *Rotator, pool *Pool, fn func(context.Context, Credential) (T, error)) (T, error) {
	var zero T
	if pool == nil || pool.Len() == 0 {
		return zero, ErrEmptyPool
	}

	var lastErr error
	for i, cred := range pool.creds {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx, cred)
		if err == nil {
			if i > 0 {
				r.logger.Debug("call succeeded after rotation",
					"provider", pool.provider, "credential", cred.Label, "attempt", i+1)
			}
			return result, nil
		}

		if r.classify(err) == Hard {
			return zero, err
		}

		r.recordSoft(cred.Label)
		r.logger.Warn("credential soft-failed, rotating",
			"provider", pool.provider, "credential", cred.Label, "error", err)
		lastErr = err
	}

	return zero, &fault.Error{
		Kind: fault.RateLimitExhausted,
		Op:   "keypool." + pool.provider,
		Err:  fmt.Errorf("all %d credentials soft-failed: %w", pool.Len(), lastErr),
	}
}
