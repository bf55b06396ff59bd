package keypool

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/jackzampolin/temario/internal/fault"
)

// Backoff controls how often a full rotation is repeated.
type Backoff struct {
	Attempts uint          // total rotations, including the first (0 or 1 = no retry)
	Delay    time.Duration // base delay, doubled after every attempt
	MaxDelay time.Duration
	// OnRetry is called before each repeated rotation.
	OnRetry func(attempt uint, err error)
}

// Retry repeats fn while it fails with fault.RateLimitExhausted, backing off
// between attempts. Any other error ends the loop. It is meant to wrap a
// whole Call, never a single credential attempt.
func Retry[T any](ctx context.Context, b Backoff, fn func(context.Context) (T, error)) (T, error) {
	if b.Attempts <= 1 {
		return fn(ctx)
	}
	if b.Delay <= 0 {
		b.Delay = time.Second
	}

	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(b.Attempts),
		retry.Delay(b.Delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return fault.Is(err, fault.RateLimitExhausted)
		}),
	}
	if b.MaxDelay > 0 {
		opts = append(opts, retry.MaxDelay(b.MaxDelay))
	}
	if b.OnRetry != nil {
		opts = append(opts, retry.OnRetry(retry.OnRetryFunc(b.OnRetry)))
	}

	return retry.DoWithData(func() (T, error) {
		return fn(ctx)
	}, opts...)
}
