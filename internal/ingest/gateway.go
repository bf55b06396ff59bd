// Package ingest is the IngestionGateway: it turns a document reference
// into stored per-page text for a content area.
package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/jackzampolin/temario/internal/areastatus"
	"github.com/jackzampolin/temario/internal/blob"
	"github.com/jackzampolin/temario/internal/fault"
	"github.com/jackzampolin/temario/internal/keypool"
	"github.com/jackzampolin/temario/internal/pages"
	"github.com/jackzampolin/temario/internal/providers"
	"github.com/jackzampolin/temario/internal/store"
	"github.com/jackzampolin/temario/internal/types"
)

// DefaultMaxDownloadMB caps a single source document.
const DefaultMaxDownloadMB = 200

// Mode selects how the document reaches the OCR provider.
type Mode string

const (
	// ModeAuto submits plain https sources by URL and everything else inline.
	ModeAuto Mode = "auto"
	// ModeURL lets the provider fetch the source URL itself.
	ModeURL Mode = "url"
	// ModeInline streams the downloaded file as a base64 payload.
	ModeInline Mode = "inline"
)

// ParseMode validates a configured mode; "" means auto.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeURL, ModeInline:
		return m, nil
	default:
		return "", fmt.Errorf("unknown OCR submit mode %q", s)
	}
}

// OCRProviders looks up an OCR client and its credential pool by name.
type OCRProviders interface {
	OCR(name string) (providers.OCR, *keypool.Pool, error)
}

// PageCounter returns the number of pages of a PDF, failing for anything
// that is not a readable PDF.
type PageCounter func(r io.ReadSeeker) (int, error)

// PDFPageCount reads the page count with pdfcpu.
func PDFPageCount(r io.ReadSeeker) (int, error) {
	return api.PageCount(r, nil)
}

// Config configures a Gateway.
type Config struct {
	Areas     store.Areas
	Status    *areastatus.Machine
	Pages     *pages.Store
	Fetcher   blob.Fetcher
	Providers OCRProviders
	Rotator   *keypool.Rotator
	// Backoff repeats a whole key rotation when every key was rate limited.
	Backoff keypool.Backoff

	OCRProvider   string // "" = registry default
	Mode          Mode
	MaxDownloadMB int
	TempDir       string
	CountPages    PageCounter
	Logger        *slog.Logger
}

// Gateway runs the extraction stage.
type Gateway struct {
	cfg      Config
	maxBytes int64
	logger   *slog.Logger
}

// New creates a Gateway.
func New(cfg Config) *Gateway {
	if cfg.Mode == "" {
		cfg.Mode = ModeAuto
	}
	if cfg.MaxDownloadMB <= 0 {
		cfg.MaxDownloadMB = DefaultMaxDownloadMB
	}
	if cfg.CountPages == nil {
		cfg.CountPages = PDFPageCount
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Rotator == nil {
		cfg.Rotator = keypool.NewRotator(keypool.Config{Logger: cfg.Logger})
	}
	return &Gateway{
		cfg:      cfg,
		maxBytes: int64(cfg.MaxDownloadMB) << 20,
		logger:   cfg.Logger.With("component", "ingest"),
	}
}

// Request asks for one document to be extracted into an area.
type Request struct {
	AreaID      string `json:"area_id"`
	DocumentURL string `json:"document_url"`
	// Provider overrides the configured OCR provider.
	Provider string `json:"provider,omitempty"`
}

// Result describes a finished extraction.
type Result struct {
	AreaID        string           `json:"area_id"`
	Source        Source           `json:"source"`
	ContentType   string           `json:"content_type"`
	DocumentPages int              `json:"document_pages"`
	OCRPages      int              `json:"ocr_pages"`
	EmptyPages    []int            `json:"empty_pages,omitempty"`
	Stats         pages.WriteStats `json:"stats"`
	Mode          Mode             `json:"mode"`
	Status        types.AreaStatus `json:"status"`
	Duration      time.Duration    `json:"duration"`
}

// Ingest downloads the document, runs OCR and stores the pages. The area is
// created on first use, moves to extracting on entry, to analyzing on
// success and to error on any failure after entry.
func (g *Gateway) Ingest(ctx context.Context, req Request) (*Result, error) {
	const op = "ingest"
	start := time.Now()

	if strings.TrimSpace(req.AreaID) == "" {
		return nil, fault.New(fault.InvalidInput, op, "area id is required")
	}
	if strings.TrimSpace(req.DocumentURL) == "" {
		return nil, fault.New(fault.InvalidInput, op, "document_url is required")
	}
	log := g.logger.With("area_id", req.AreaID)

	if _, err := g.cfg.Areas.EnsureArea(ctx, req.AreaID); err != nil {
		return nil, fault.Wrap(fault.Persistence, op+".area", err)
	}
	raw := strings.TrimSpace(req.DocumentURL)
	if _, err := g.cfg.Status.Transition(ctx, req.AreaID, types.AreaExtracting, types.AreaUpdate{SourceURL: &raw}); err != nil {
		return nil, err
	}
	log.Info("extraction started", "document_url", raw)

	res, err := g.extract(ctx, log, req)
	if err != nil {
		// A cancelled request must still record the failure.
		failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if ferr := g.cfg.Status.Fail(failCtx, req.AreaID, types.AreaExtracting, err); ferr != nil {
			log.Error("failed to record extraction failure", "error", ferr)
		}
		return nil, err
	}

	total := res.DocumentPages
	if _, err := g.cfg.Status.Transition(ctx, req.AreaID, types.AreaAnalyzing, types.AreaUpdate{
		SourceURL:  &res.Source.URL,
		TotalPages: &total,
	}); err != nil {
		return nil, err
	}
	res.Status = types.AreaAnalyzing
	res.Duration = time.Since(start)

	log.Info("extraction finished",
		"pages", res.Stats.Written, "noise", res.Stats.Noise, "empty", len(res.EmptyPages),
		"document_pages", res.DocumentPages, "mode", res.Mode, "duration", res.Duration)
	return res, nil
}

func (g *Gateway) extract(ctx context.Context, log *slog.Logger, req Request) (*Result, error) {
	src, err := ResolveSourceURL(req.DocumentURL)
	if err != nil {
		return nil, err
	}
	if src.Rewritten {
		log.Debug("share link rewritten", "from", src.Original, "to", src.URL)
	}

	doc, err := g.download(ctx, src)
	if err != nil {
		return nil, err
	}
	defer os.Remove(doc.path)

	mode := g.mode(src)
	ref := providers.DocumentRef{ContentType: doc.contentType}
	if mode == ModeURL {
		ref.URL = src.URL
	} else {
		ref.Path = doc.path
	}

	ocrPages, err := g.runOCR(ctx, req.Provider, ref)
	if err != nil {
		return nil, err
	}

	res := &Result{
		AreaID:        req.AreaID,
		Source:        src,
		ContentType:   doc.contentType,
		DocumentPages: doc.pages,
		OCRPages:      len(ocrPages),
		Mode:          mode,
	}

	kept := make([]types.Page, 0, len(ocrPages))
	for _, p := range ocrPages {
		if strings.TrimSpace(p.Text) == "" {
			res.EmptyPages = append(res.EmptyPages, p.Number)
			log.Warn("skipping empty OCR page", "page", p.Number)
			continue
		}
		if p.Number > res.DocumentPages {
			res.DocumentPages = p.Number
		}
		kept = append(kept, types.Page{AreaID: req.AreaID, PageNumber: p.Number, Text: p.Text})
	}
	if len(kept) == 0 {
		return nil, fault.New(fault.OCRService, "ingest.ocr", "no text extracted from %d pages", len(ocrPages))
	}

	stats, err := g.cfg.Pages.Supersede(ctx, req.AreaID, kept)
	if err != nil {
		return nil, err
	}
	if stats.Written == 0 {
		return nil, fault.New(fault.OCRService, "ingest.ocr", "all %d pages were shorter than %d characters", len(kept), g.cfg.Pages.MinChars())
	}
	res.Stats = stats
	return res, nil
}

func (g *Gateway) mode(src Source) Mode {
	switch {
	case !src.Remote():
		return ModeInline
	case g.cfg.Mode == ModeAuto:
		if strings.HasPrefix(src.URL, "https://") && !src.Rewritten {
			return ModeURL
		}
		return ModeInline
	default:
		return g.cfg.Mode
	}
}

func (g *Gateway) runOCR(ctx context.Context, name string, ref providers.DocumentRef) ([]providers.OCRPage, error) {
	const op = "ingest.ocr"
	if name == "" {
		name = g.cfg.OCRProvider
	}
	client, pool, err := g.cfg.Providers.OCR(name)
	if err != nil {
		return nil, fault.Wrap(fault.OCRService, op, err)
	}

	out, err := keypool.Retry(ctx, g.cfg.Backoff, func(ctx context.Context) ([]providers.OCRPage, error) {
		return keypool.Call(ctx, g.cfg.Rotator, pool, func(ctx context.Context, cred keypool.Credential) ([]providers.OCRPage, error) {
			return client.Extract(ctx, ref, cred)
		})
	})
	if err != nil {
		return nil, fault.Wrap(fault.OCRService, op, err)
	}
	return out, nil
}

type downloaded struct {
	path        string
	contentType string
	pages       int
}

// download streams the source into a temp file, bounded by the size cap,
// and identifies the document type from its content.
func (g *Gateway) download(ctx context.Context, src Source) (*downloaded, error) {
	const op = "ingest.download"

	obj, err := g.cfg.Fetcher.GetObject(ctx, src.URL)
	if err != nil {
		var se *blob.StatusError
		if errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500 {
			return nil, fault.Wrap(fault.UnsupportedSource, op, err)
		}
		return nil, fault.Wrap(fault.Persistence, op, err)
	}
	defer obj.Body.Close()

	if isHTML(obj.ContentType) {
		return nil, fault.New(fault.UnsupportedFormat, op, "source answered with an HTML page (%s), not a document", obj.ContentType)
	}
	if obj.Size > g.maxBytes {
		return nil, fault.New(fault.UnsupportedFormat, op, "document is %d bytes, limit is %d MB", obj.Size, g.cfg.MaxDownloadMB)
	}

	br := bufio.NewReaderSize(obj.Body, 512)
	head, _ := br.Peek(512)
	sniffed := http.DetectContentType(head)
	if isHTML(sniffed) {
		return nil, fault.New(fault.UnsupportedFormat, op, "downloaded content is an HTML page")
	}

	f, err := os.CreateTemp(g.cfg.TempDir, "temario-src-*")
	if err != nil {
		return nil, fault.Wrap(fault.Persistence, op, err)
	}
	d := &downloaded{path: f.Name()}
	ok := false
	defer func() {
		if !ok {
			f.Close()
			os.Remove(d.path)
		}
	}()

	n, err := io.Copy(f, io.LimitReader(br, g.maxBytes+1))
	if err != nil {
		return nil, fault.Wrap(fault.Persistence, op, fmt.Errorf("read %s: %w", src.URL, err))
	}
	if n > g.maxBytes {
		return nil, fault.New(fault.UnsupportedFormat, op, "document exceeds %d MB", g.cfg.MaxDownloadMB)
	}
	if n == 0 {
		return nil, fault.New(fault.UnsupportedFormat, op, "document is empty")
	}

	switch sniffed {
	case "application/pdf":
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, fault.Wrap(fault.Persistence, op, err)
		}
		count, err := g.cfg.CountPages(f)
		if err != nil {
			return nil, fault.Wrap(fault.UnsupportedFormat, op, fmt.Errorf("invalid PDF: %w", err))
		}
		if count == 0 {
			return nil, fault.New(fault.UnsupportedFormat, op, "PDF has no pages")
		}
		d.contentType, d.pages = sniffed, count
	case "image/png", "image/jpeg":
		d.contentType, d.pages = sniffed, 1
	default:
		return nil, fault.New(fault.UnsupportedFormat, op, "unsupported document type %s", sniffed)
	}

	if err := f.Close(); err != nil {
		return nil, fault.Wrap(fault.Persistence, op, err)
	}
	ok = true
	return d, nil
}

func isHTML(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}
