// Package fault defines the error taxonomy shared by the pipeline stages.
// Stage code wraps failures in *Error so callers (HTTP handlers, batch
// workers, CLI) can decide between retrying and asking for new input.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	// UnsupportedSource is a folder/collection reference instead of a single document.
	UnsupportedSource Kind = "unsupported_source"
	// UnsupportedFormat means the downloaded bytes are not a supported document.
	UnsupportedFormat Kind = "unsupported_format"
	// OCRService means the extraction provider failed.
	OCRService Kind = "ocr_service"
	// StructuringParse means the LLM output could not be read as the expected JSON.
	StructuringParse Kind = "structuring_parse"
	// RateLimitExhausted means every credential in a pool soft-failed.
	RateLimitExhausted Kind = "rate_limit_exhausted"
	// Persistence is a storage layer failure.
	Persistence Kind = "persistence"

	// InvalidState means the area status does not allow the requested stage.
	InvalidState Kind = "invalid_state"
	// InvalidInput is a malformed request (bad ranges, missing fields).
	InvalidInput Kind = "invalid_input"
	// NotFound means the referenced area, topic or job does not exist.
	NotFound Kind = "not_found"
)

// Retryable reports whether the same input may succeed on a later attempt.
func (k Kind) Retryable() bool {
	switch k {
	case OCRService, StructuringParse, RateLimitExhausted, Persistence:
		return true
	default:
		return false
	}
}

// Error is a classified pipeline error.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "ingest.download"
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error with a formatted message.
func New(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies err. It returns nil for a nil err and keeps the innermost
// kind when err is already classified.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return &Error{Kind: fe.Kind, Op: op, Err: err}
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
