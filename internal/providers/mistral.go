package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/jackzampolin/temario/internal/keypool"
)

const (
	MistralOCRName    = "mistral-ocr"
	MistralOCRBaseURL = "https://api.mistral.ai/v1"
	MistralOCRModel   = "mistral-ocr-latest"
)

// MistralOCRConfig holds configuration for the Mistral OCR client.
type MistralOCRConfig struct {
	BaseURL    string
	Model      string
	Timeout    time.Duration
	RateLimit  float64 // requests per second, 0 = unlimited
	HTTPClient *http.Client
}

// MistralOCRClient implements OCR using the Mistral OCR API.
type MistralOCRClient struct {
	baseURL string
	model   string
	limiter *RateLimiter
	client  *http.Client
}

// NewMistralOCRClient creates a new Mistral OCR client.
func NewMistralOCRClient(cfg MistralOCRConfig) *MistralOCRClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = MistralOCRBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = MistralOCRModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &MistralOCRClient{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		limiter: NewRateLimiter(cfg.RateLimit),
		client:  cfg.HTTPClient,
	}
}

// Name returns the provider identifier.
func (c *MistralOCRClient) Name() string {
	return MistralOCRName
}

// Extract runs OCR over the whole document. Inline documents are streamed
// as a base64 data URL so the file is never held in memory as one string.
func (c *MistralOCRClient) Extract(ctx context.Context, doc DocumentRef, cred keypool.Credential) ([]OCRPage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var body io.Reader
	if doc.Inline() {
		f, err := os.Open(doc.Path)
		if err != nil {
			return nil, fmt.Errorf("open document: %w", err)
		}
		defer f.Close()
		body = c.inlineBody(f, doc)
	} else {
		if doc.URL == "" {
			return nil, fmt.Errorf("document has neither path nor url")
		}
		b, err := json.Marshal(c.urlRequest(doc))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	resp, err := c.doRequest(ctx, "/ocr", body, cred)
	if err != nil {
		c.limiter.observe(err)
		return nil, err
	}
	if len(resp.Pages) == 0 {
		return nil, fmt.Errorf("no pages in OCR response")
	}

	sort.Slice(resp.Pages, func(i, j int) bool { return resp.Pages[i].Index < resp.Pages[j].Index })
	pages := make([]OCRPage, 0, len(resp.Pages))
	for _, p := range resp.Pages {
		pages = append(pages, OCRPage{Number: p.Index + 1, Text: p.Markdown})
	}
	return pages, nil
}

func (c *MistralOCRClient) urlRequest(doc DocumentRef) mistralOCRRequest {
	req := mistralOCRRequest{Model: c.model}
	if doc.IsImage() {
		req.Document = mistralDocument{Type: "image_url", ImageURL: &mistralImageURL{URL: doc.URL}}
	} else {
		req.Document = mistralDocument{Type: "document_url", DocumentURL: doc.URL}
	}
	return req
}

// inlineBody writes the request JSON through a pipe, base64 encoding the
// file chunk by chunk. The base64 alphabet needs no JSON escaping.
func (c *MistralOCRClient) inlineBody(f io.Reader, doc DocumentRef) io.Reader {
	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}
	model, _ := json.Marshal(c.model)

	var prefix string
	suffix := `"}}`
	if doc.IsImage() {
		prefix = fmt.Sprintf(`{"model":%s,"document":{"type":"image_url","image_url":{"url":"data:%s;base64,`, model, contentType)
		suffix = `"}}}`
	} else {
		prefix = fmt.Sprintf(`{"model":%s,"document":{"type":"document_url","document_url":"data:%s;base64,`, model, contentType)
	}

	pr, pw := io.Pipe()
	go func() {
		if _, err := io.WriteString(pw, prefix); err != nil {
			pw.CloseWithError(err)
			return
		}
		enc := base64.NewEncoder(base64.StdEncoding, pw)
		if _, err := io.Copy(enc, f); err != nil {
			pw.CloseWithError(fmt.Errorf("encode document: %w", err))
			return
		}
		if err := enc.Close(); err != nil {
			pw.CloseWithError(err)
			return
		}
		_, err := io.WriteString(pw, suffix)
		pw.CloseWithError(err)
	}()
	return pr
}

func (c *MistralOCRClient) doRequest(ctx context.Context, path string, body io.Reader, cred keypool.Credential) (*mistralOCRResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cred.Key)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(MistralOCRName, resp)
	}

	var ocrResp mistralOCRResponse
	if err := json.NewDecoder(resp.Body).Decode(&ocrResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &ocrResp, nil
}

// Mistral OCR API types

type mistralOCRRequest struct {
	Model    string          `json:"model"`
	Document mistralDocument `json:"document"`
}

type mistralDocument struct {
	Type        string           `json:"type"` // "image_url" or "document_url"
	ImageURL    *mistralImageURL `json:"image_url,omitempty"`
	DocumentURL string           `json:"document_url,omitempty"`
}

type mistralImageURL struct {
	URL string `json:"url"`
}

type mistralOCRResponse struct {
	Model string           `json:"model"`
	Pages []mistralOCRPage `json:"pages"`
}

type mistralOCRPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

var _ OCR = (*MistralOCRClient)(nil)
