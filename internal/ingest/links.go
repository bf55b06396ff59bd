package ingest

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/jackzampolin/temario/internal/fault"
)

// Source is a resolved document reference.
type Source struct {
	// URL is what gets downloaded.
	URL string `json:"url"`
	// Original is the reference as submitted.
	Original string `json:"original"`
	// Rewritten is set when a share link was turned into a download link.
	// Such URLs often answer with an interstitial page to third parties, so
	// they are never handed to the OCR provider directly.
	Rewritten bool `json:"rewritten"`
}

// Remote reports whether URL is a plain http(s) URL.
func (s Source) Remote() bool {
	return strings.HasPrefix(s.URL, "https://") || strings.HasPrefix(s.URL, "http://")
}

var (
	driveFileID = regexp.MustCompile(`/file/d/([A-Za-z0-9_-]+)`)
	docsID      = regexp.MustCompile(`^/(document|presentation|spreadsheets)/d/([A-Za-z0-9_-]+)`)
	validID     = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

const driveDownload = "https://drive.google.com/uc?export=download&id="

// ResolveSourceURL turns a submitted document reference into something
// that can be downloaded as a single file. Google Drive and Docs share
// links are rewritten to their direct-download form; folder links cannot
// be downloaded as one document and fail with fault.UnsupportedSource.
// gs:// references pass through for the blob store.
func ResolveSourceURL(raw string) (Source, error) {
	const op = "ingest.resolve"
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Source{}, fault.New(fault.InvalidInput, op, "document_url is required")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Source{}, fault.New(fault.UnsupportedSource, op, "unparseable url %q", raw)
	}
	src := Source{URL: raw, Original: raw}

	switch strings.ToLower(u.Scheme) {
	case "gs":
		if u.Host == "" || strings.Trim(u.Path, "/") == "" {
			return Source{}, fault.New(fault.UnsupportedSource, op, "gs reference needs bucket and object: %q", raw)
		}
		return src, nil
	case "http", "https":
	default:
		return Source{}, fault.New(fault.UnsupportedSource, op, "unsupported scheme %q", u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	switch host {
	case "drive.google.com":
		return resolveDrive(src, u)
	case "docs.google.com":
		if m := driveFileID.FindStringSubmatch(u.Path); m != nil {
			return rewritten(src, driveDownload+m[1]), nil
		}
		if m := docsID.FindStringSubmatch(u.Path); m != nil {
			id := m[2]
			switch m[1] {
			case "presentation":
				return rewritten(src, "https://docs.google.com/presentation/d/"+id+"/export/pdf"), nil
			default:
				return rewritten(src, "https://docs.google.com/"+m[1]+"/d/"+id+"/export?format=pdf"), nil
			}
		}
		return Source{}, fault.New(fault.UnsupportedSource, op, "unrecognized Google Docs link %q", raw)
	}
	return src, nil
}

func resolveDrive(src Source, u *url.URL) (Source, error) {
	const op = "ingest.resolve"
	path := u.Path
	if strings.Contains(path, "/folders/") || strings.Contains(path, "folderview") {
		return Source{}, fault.New(fault.UnsupportedSource, op, "folder links cannot be downloaded as a document: %q", src.Original)
	}
	if m := driveFileID.FindStringSubmatch(path); m != nil {
		return rewritten(src, driveDownload+m[1]), nil
	}
	if id := u.Query().Get("id"); id != "" && validID.MatchString(id) {
		switch strings.TrimSuffix(path, "/") {
		case "/open", "/uc":
			return rewritten(src, driveDownload+id), nil
		}
	}
	if u.Query().Get("usp") == "drive_link" {
		return Source{}, fault.New(fault.UnsupportedSource, op, "folder links cannot be downloaded as a document: %q", src.Original)
	}
	return Source{}, fault.New(fault.UnsupportedSource, op, "unrecognized Google Drive link %q", src.Original)
}

func rewritten(src Source, to string) Source {
	src.URL = to
	src.Rewritten = to != src.Original
	return src
}
