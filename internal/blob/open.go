package blob

import (
	"context"
	"fmt"
	"net/http"
)

// Config selects and configures the primary backend.
type Config struct {
	Backend         string // "local" (default) or "gcs"
	LocalDir        string
	Bucket          string
	PublicBaseURL   string
	CredentialsFile string
	Endpoint        string
	HTTPClient      *http.Client
}

// Open builds a Mux for cfg. The returned close func releases backend
// clients and is never nil.
func Open(ctx context.Context, cfg Config) (*Mux, func() error, error) {
	mux := &Mux{HTTP: NewHTTPFetcher(cfg.HTTPClient)}
	noop := func() error { return nil }

	switch cfg.Backend {
	case "", "local":
		if cfg.LocalDir == "" {
			return nil, noop, fmt.Errorf("blob: local_dir is required for the local backend")
		}
		local, err := NewLocal(cfg.LocalDir, cfg.PublicBaseURL)
		if err != nil {
			return nil, noop, err
		}
		mux.Primary = local
		return mux, noop, nil

	case "gcs":
		g, err := NewGCS(ctx, GCSConfig{
			Bucket:          cfg.Bucket,
			PublicBaseURL:   cfg.PublicBaseURL,
			CredentialsFile: cfg.CredentialsFile,
			Endpoint:        cfg.Endpoint,
		})
		if err != nil {
			return nil, noop, err
		}
		mux.Primary = g
		mux.GCS = g
		return mux, g.Close, nil

	default:
		return nil, noop, fmt.Errorf("blob: unknown backend %q", cfg.Backend)
	}
}
