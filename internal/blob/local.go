package blob

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Local stores objects as files under a directory. Public URLs are
// PublicBaseURL/<key> when set, file:// URLs otherwise.
type Local struct {
	dir           string
	publicBaseURL string
}

// NewLocal creates the directory if needed.
func NewLocal(dir, publicBaseURL string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &Local{dir: abs, publicBaseURL: publicBaseURL}, nil
}

// Dir returns the root directory.
func (l *Local) Dir() string { return l.dir }

// PutObject writes r to <dir>/<key> through a temp file and rename.
func (l *Local) PutObject(_ context.Context, key string, r io.Reader, _ string) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(l.dir, filepath.FromSlash(k))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".put-*")
	if err != nil {
		return "", fmt.Errorf("create temp: %w", err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write %s: %w", k, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close %s: %w", k, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("rename %s: %w", k, err)
	}
	return l.publicURL(k, dst), nil
}

func (l *Local) publicURL(key, path string) string {
	if l.publicBaseURL != "" {
		return joinURL(l.publicBaseURL, key)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

// GetObject opens a key, a file:// URL inside the directory, or a public
// URL previously returned by PutObject.
func (l *Local) GetObject(_ context.Context, ref string) (*Object, error) {
	key := ref
	if l.publicBaseURL != "" && strings.HasPrefix(ref, strings.TrimRight(l.publicBaseURL, "/")+"/") {
		key = strings.TrimPrefix(ref, strings.TrimRight(l.publicBaseURL, "/")+"/")
	} else if u, err := url.Parse(ref); err == nil && u.Scheme == "file" {
		rel, err := filepath.Rel(l.dir, filepath.FromSlash(u.Path))
		if err != nil {
			return nil, fmt.Errorf("%s is outside %s", ref, l.dir)
		}
		key = filepath.ToSlash(rel)
	}

	k, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(l.dir, filepath.FromSlash(k)))
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Object{Body: f, ContentType: ContentTypeForKey(k), Size: info.Size(), Name: filepath.Base(k)}, nil
}
