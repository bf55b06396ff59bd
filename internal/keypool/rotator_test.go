package keypool

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackzampolin/temario/internal/fault"
)

type statusErr struct{ code int }

func (e *statusErr) Error() string   { return fmt.Sprintf("status %d", e.code) }
func (e *statusErr) HTTPStatus() int { return e.code }

type quotaErr struct{}

func (quotaErr) Error() string        { return "monthly quota reached" }
func (quotaErr) QuotaExceeded() bool { return true }

func mustPool(t *testing.T, keys ...string) *Pool {
	t.Helper()
	p, err := NewPool("test", keys)
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	return p
}

func TestNewPool(t *testing.T) {
	t.Run("drops blanks and duplicates", func(t *testing.T) {
		p := mustPool(t, "k1", "", "  ", "k2", "k1", "k3")
		if p.Len() != 3 {
			t.Fatalf("Len() = %d, want 3", p.Len())
		}
		got := p.Credentials()
		want := []string{"k1", "k2", "k3"}
		for i, c := range got {
			if c.Key != want[i] {
				t.Errorf("cred %d = %q, want %q", i, c.Key, want[i])
			}
		}
		if got[1].Label != "test#2" {
			t.Errorf("label = %q, want test#2", got[1].Label)
		}
	})

	t.Run("empty", func(t *testing.T) {
		_, err := NewPool("test", []string{"", ""})
		if !errors.Is(err, ErrEmptyPool) {
			t.Errorf("error = %v, want ErrEmptyPool", err)
		}
	})

	t.Run("string hides key", func(t *testing.T) {
		p := mustPool(t, "secret-key")
		if s := fmt.Sprint(p.Credentials()[0]); s != "test#1" {
			t.Errorf("String() = %q", s)
		}
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"429", &statusErr{429}, Soft},
		{"503", &statusErr{503}, Soft},
		{"wrapped 429", fmt.Errorf("ocr: %w", &statusErr{429}), Soft},
		{"quota", quotaErr{}, Soft},
		{"500", &statusErr{500}, Hard},
		{"401", &statusErr{401}, Hard},
		{"plain", errors.New("bad request"), Hard},
		{"cancelled", context.Canceled, Hard},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCall_RotatesOnSoftFailure(t *testing.T) {
	pool := mustPool(t, "k1", "k2")
	r := NewRotator(Config{})

	var calls []string
	got, err := Call(context.Background(), r, pool, func(ctx context.Context, c Credential) (string, error) {
		calls = append(calls, c.Key)
		if c.Key == "k1" {
			return "", &statusErr{503}
		}
		return "X", nil
	})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got != "X" {
		t.Errorf("result = %q, want X", got)
	}
	if len(calls) != 2 {
		t.Errorf("calls = %v, want exactly 2", calls)
	}
	if r.Stats()["test#1"] != 1 {
		t.Errorf("stats = %v, want one soft failure for test#1", r.Stats())
	}
}

func TestCall_AllSoftFailuresExhaust(t *testing.T) {
	for _, n := range []int{1, 3, 5} {
		t.Run(fmt.Sprintf("pool of %d", n), func(t *testing.T) {
			keys := make([]string, n)
			for i := range keys {
				keys[i] = fmt.Sprintf("k%d", i)
			}
			pool := mustPool(t, keys...)

			calls := 0
			_, err := Call(context.Background(), NewRotator(Config{}), pool, func(ctx context.Context, c Credential) (int, error) {
				calls++
				return 0, &statusErr{429}
			})
			if !fault.Is(err, fault.RateLimitExhausted) {
				t.Fatalf("error = %v, want RateLimitExhausted", err)
			}
			if calls != n {
				t.Errorf("calls = %d, want %d", calls, n)
			}
			var se *statusErr
			if !errors.As(err, &se) {
				t.Error("expected last provider error in chain")
			}
		})
	}
}

func TestCall_HardFailureStops(t *testing.T) {
	pool := mustPool(t, "k1", "k2", "k3")
	hard := errors.New("invalid document")

	calls := 0
	_, err := Call(context.Background(), NewRotator(Config{}), pool, func(ctx context.Context, c Credential) (string, error) {
		calls++
		if c.Key == "k2" {
			return "", hard
		}
		return "", &statusErr{429}
	})
	if !errors.Is(err, hard) {
		t.Fatalf("error = %v, want hard error", err)
	}
	if fault.Is(err, fault.RateLimitExhausted) {
		t.Error("hard error must not be reported as exhaustion")
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestCall_ContextCancelled(t *testing.T) {
	pool := mustPool(t, "k1", "k2")
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, err := Call(ctx, NewRotator(Config{}), pool, func(ctx context.Context, c Credential) (string, error) {
		calls++
		cancel()
		return "", &statusErr{429}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestCall_NilPool(t *testing.T) {
	_, err := Call(context.Background(), NewRotator(Config{}), nil, func(ctx context.Context, c Credential) (string, error) {
		t.Fatal("fn must not be called")
		return "", nil
	})
	if !errors.Is(err, ErrEmptyPool) {
		t.Errorf("error = %v, want ErrEmptyPool", err)
	}
}

func TestRetry(t *testing.T) {
	pool := mustPool(t, "k1", "k2")
	r := NewRotator(Config{})

	t.Run("repeats rotation after exhaustion", func(t *testing.T) {
		calls := 0
		got, err := Retry(context.Background(), Backoff{Attempts: 3, Delay: time.Millisecond}, func(ctx context.Context) (string, error) {
			return Call(ctx, r, pool, func(ctx context.Context, c Credential) (string, error) {
				calls++
				if calls <= 2 {
					return "", &statusErr{429}
				}
				return "ok", nil
			})
		})
		if err != nil {
			t.Fatalf("Retry() error = %v", err)
		}
		if got != "ok" {
			t.Errorf("result = %q", got)
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})

	t.Run("does not retry hard errors", func(t *testing.T) {
		attempts := 0
		hard := errors.New("bad prompt")
		_, err := Retry(context.Background(), Backoff{Attempts: 5, Delay: time.Millisecond}, func(ctx context.Context) (string, error) {
			attempts++
			return "", hard
		})
		if !errors.Is(err, hard) {
			t.Errorf("error = %v", err)
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1", attempts)
		}
	})

	t.Run("gives up after attempts", func(t *testing.T) {
		attempts := 0
		_, err := Retry(context.Background(), Backoff{Attempts: 2, Delay: time.Millisecond}, func(ctx context.Context) (string, error) {
			attempts++
			return "", fault.New(fault.RateLimitExhausted, "test", "all keys limited")
		})
		if !fault.Is(err, fault.RateLimitExhausted) {
			t.Errorf("error = %v", err)
		}
		if attempts != 2 {
			t.Errorf("attempts = %d, want 2", attempts)
		}
	})
}
