// Package blob is the storage collaborator: it fetches source documents by
// reference and stores generated artifacts (cover images) under a key,
// returning a public URL.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// ErrNotConfigured is returned for references whose backend is not set up,
// e.g. a gs:// URL when no GCS client exists.
var ErrNotConfigured = errors.New("blob backend not configured")

// Object is an open blob. Callers must close Body.
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64 // -1 when unknown
	Name        string
}

// Fetcher reads objects by reference (URL or backend-specific ref).
type Fetcher interface {
	GetObject(ctx context.Context, ref string) (*Object, error)
}

// Storage writes objects and returns where the public can read them.
type Storage interface {
	PutObject(ctx context.Context, key string, r io.Reader, contentType string) (publicURL string, err error)
}

// Store is a Fetcher and Storage in one.
type Store interface {
	Fetcher
	Storage
}

// StatusError is a non-2xx response from an HTTP source.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
}

// HTTPStatus lets the key rotator and error mappers read the status.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }

// Mux routes GetObject by scheme: http(s) to HTTP, gs:// to GCS, and
// file:// or bare keys to the primary store. PutObject always goes to the
// primary store.
type Mux struct {
	HTTP    Fetcher
	GCS     Fetcher // nil when no GCS client is configured
	Primary Store
}

// GetObject implements Fetcher.
func (m *Mux) GetObject(ctx context.Context, ref string) (*Object, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("parse ref %q: %w", ref, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return m.HTTP.GetObject(ctx, ref)
	case "gs":
		if m.GCS == nil {
			return nil, fmt.Errorf("%s: %w", ref, ErrNotConfigured)
		}
		return m.GCS.GetObject(ctx, ref)
	case "file", "":
		if m.Primary == nil {
			return nil, fmt.Errorf("%s: %w", ref, ErrNotConfigured)
		}
		return m.Primary.GetObject(ctx, ref)
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}

// PutObject implements Storage.
func (m *Mux) PutObject(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	if m.Primary == nil {
		return "", fmt.Errorf("put %s: %w", key, ErrNotConfigured)
	}
	return m.Primary.PutObject(ctx, key, r, contentType)
}

// ContentTypeForKey guesses a content type from the key's extension.
func ContentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	if i := strings.Index(s, "?"); i >= 0 {
		s = s[:i]
	}
	switch {
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".webp"):
		return "image/webp"
	case strings.HasSuffix(s, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(s, ".json"):
		return "application/json"
	case strings.HasSuffix(s, ".txt"):
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// cleanKey strips leading slashes and rejects keys that escape the root.
func cleanKey(key string) (string, error) {
	k := strings.TrimLeft(strings.TrimSpace(key), "/")
	if k == "" {
		return "", fmt.Errorf("empty key")
	}
	for _, part := range strings.Split(k, "/") {
		if part == ".." {
			return "", fmt.Errorf("invalid key %q", key)
		}
	}
	return k, nil
}

// joinURL appends key to base with exactly one slash between them.
func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
