// Package providers holds the external OCR, LLM and image collaborators.
//
// Clients never hold an API key. Every call receives the keypool.Credential
// to use so that the rotator decides which key is tried next.
package providers

import (
	"context"
	"time"

	"github.com/jackzampolin/temario/internal/keypool"
)

// DocumentRef points at the document an OCR provider should read.
// When Path is set the file is sent inline; otherwise the provider fetches URL.
type DocumentRef struct {
	URL         string
	Path        string
	ContentType string // application/pdf, image/png, image/jpeg
}

// Inline reports whether the document is sent as an encoded payload.
func (d DocumentRef) Inline() bool {
	return d.Path != ""
}

// IsImage reports whether the document is a single raster image.
func (d DocumentRef) IsImage() bool {
	return d.ContentType == "image/png" || d.ContentType == "image/jpeg"
}

// OCRPage is one extracted page, numbered from 1.
type OCRPage struct {
	Number int    `json:"page"`
	Text   string `json:"text"`
}

// OCR extracts per-page text from a document.
type OCR interface {
	Name() string
	Extract(ctx context.Context, doc DocumentRef, cred keypool.Credential) ([]OCRPage, error)
}

// GenerateRequest is a single-turn text generation request.
type GenerateRequest struct {
	System      string
	Prompt      string
	Model       string // client default when empty
	Temperature float64
	MaxTokens   int
	// JSON asks the provider for a JSON object response.
	JSON bool
}

// Generator produces text from a prompt.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req GenerateRequest, cred keypool.Credential) (string, error)
}

// Image is generated image data.
type Image struct {
	Data        []byte
	ContentType string
}

// ImageGenerator produces an image from a prompt.
type ImageGenerator interface {
	Name() string
	GenerateImage(ctx context.Context, prompt string, cred keypool.Credential) (*Image, error)
}

const defaultTimeout = 120 * time.Second
