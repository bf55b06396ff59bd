package blob

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSConfig configures the Google Cloud Storage backend.
type GCSConfig struct {
	Bucket          string
	PublicBaseURL   string // e.g. a CDN domain; default https://storage.googleapis.com/<bucket>
	CredentialsFile string // empty = application default credentials
	Endpoint        string // emulator endpoint for local runs
}

// GCS stores objects in one bucket and can read any gs:// reference.
type GCS struct {
	client *storage.Client
	cfg    GCSConfig
}

// NewGCS creates a GCS backend.
func NewGCS(ctx context.Context, cfg GCSConfig) (*GCS, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs: bucket is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}
	opts = append(opts, option.WithScopes(storage.ScopeReadWrite))

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs: create client: %w", err)
	}
	return &GCS{client: client, cfg: cfg}, nil
}

// Close releases the underlying client.
func (g *GCS) Close() error {
	return g.client.Close()
}

// PutObject uploads r to the configured bucket.
func (g *GCS) PutObject(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := g.client.Bucket(g.cfg.Bucket).Object(k).NewWriter(ctx)
	if contentType == "" {
		contentType = ContentTypeForKey(k)
	}
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs: write %s: %w", k, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs: close %s: %w", k, err)
	}
	return g.PublicURL(k), nil
}

// PublicURL returns the public address of key in the configured bucket.
func (g *GCS) PublicURL(key string) string {
	return publicGCSURL(g.cfg, key)
}

func publicGCSURL(cfg GCSConfig, key string) string {
	key = strings.TrimLeft(key, "/")
	if cfg.PublicBaseURL != "" {
		return joinURL(cfg.PublicBaseURL, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", cfg.Bucket, key)
}

// GetObject opens gs://bucket/key, or a bare key in the configured bucket.
// The returned body keeps its own context alive until closed.
func (g *GCS) GetObject(ctx context.Context, ref string) (*Object, error) {
	bucket, key, err := parseGSRef(ref, g.cfg.Bucket)
	if err != nil {
		return nil, err
	}

	rctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	r, err := g.client.Bucket(bucket).Object(key).NewReader(rctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("gcs: open %s: %w", ref, err)
	}
	return &Object{
		Body:        &readCloserWithCancel{ReadCloser: r, cancel: cancel},
		ContentType: r.Attrs.ContentType,
		Size:        r.Attrs.Size,
		Name:        key[strings.LastIndex(key, "/")+1:],
	}, nil
}

// parseGSRef splits gs://bucket/key. A ref without scheme is a key in
// defaultBucket.
func parseGSRef(ref, defaultBucket string) (bucket, key string, err error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", "", fmt.Errorf("parse %q: %w", ref, err)
	}
	switch u.Scheme {
	case "gs":
		bucket, key = u.Host, strings.TrimLeft(u.Path, "/")
	case "":
		bucket, key = defaultBucket, strings.TrimLeft(ref, "/")
	default:
		return "", "", fmt.Errorf("not a gs:// reference: %s", ref)
	}
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("incomplete gs:// reference: %s", ref)
	}
	return bucket, key, nil
}

// readCloserWithCancel cancels the read context when the body is closed.
type readCloserWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *readCloserWithCancel) Close() error {
	err := r.ReadCloser.Close()
	r.cancel()
	return err
}
