package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"plain", base, ""},
		{"direct", Wrap(Persistence, "store.put", base), Persistence},
		{"wrapped by fmt", fmt.Errorf("outer: %w", Wrap(OCRService, "ocr", base)), OCRService},
		{"inner kind wins", Wrap(OCRService, "ingest", Wrap(RateLimitExhausted, "keypool", base)), RateLimitExhausted},
		{"new", New(InvalidInput, "commit", "bad range %d-%d", 3, 1), InvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWrapNil(t *testing.T) {
	if err := Wrap(Persistence, "op", nil); err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}
}

func TestWrapKeepsChain(t *testing.T) {
	base := errors.New("disk full")
	err := Wrap(Persistence, "pages.upsert", base)
	if !errors.Is(err, base) {
		t.Error("expected errors.Is to reach the wrapped error")
	}
	if !Is(err, Persistence) {
		t.Error("expected Is(Persistence)")
	}
	if Is(err, NotFound) {
		t.Error("unexpected Is(NotFound)")
	}
}

func TestRetryable(t *testing.T) {
	soft := []Kind{OCRService, StructuringParse, RateLimitExhausted, Persistence}
	hard := []Kind{UnsupportedSource, UnsupportedFormat, InvalidState, InvalidInput, NotFound}

	for _, k := range soft {
		if !k.Retryable() {
			t.Errorf("%s should be retryable", k)
		}
	}
	for _, k := range hard {
		if k.Retryable() {
			t.Errorf("%s should not be retryable", k)
		}
	}
}

func TestErrorString(t *testing.T) {
	err := Wrap(UnsupportedSource, "ingest.resolve", errors.New("folder link"))
	want := "ingest.resolve: unsupported_source: folder link"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
