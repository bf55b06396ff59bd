package providers

import (
	"context"
	"sync"

	"github.com/jackzampolin/temario/internal/keypool"
)

const MockName = "mock"

// mockCalls records the credential label of every call.
type mockCalls struct {
	mu     sync.Mutex
	labels []string
}

func (m *mockCalls) record(cred keypool.Credential) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.labels = append(m.labels, cred.Label)
	return len(m.labels)
}

// Calls returns the credential labels used so far, in call order.
func (m *mockCalls) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.labels))
	copy(out, m.labels)
	return out
}

// MockOCR is an OCR for tests. ExtractFunc, when set, wins over Pages/Err.
type MockOCR struct {
	mockCalls
	Pages       []OCRPage
	Err         error
	ExtractFunc func(ctx context.Context, doc DocumentRef, cred keypool.Credential) ([]OCRPage, error)

	mu   sync.Mutex
	docs []DocumentRef
}

func (m *MockOCR) Name() string { return MockName }

func (m *MockOCR) Extract(ctx context.Context, doc DocumentRef, cred keypool.Credential) ([]OCRPage, error) {
	m.record(cred)
	m.mu.Lock()
	m.docs = append(m.docs, doc)
	m.mu.Unlock()
	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, doc, cred)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]OCRPage, len(m.Pages))
	copy(out, m.Pages)
	return out, nil
}

// Docs returns the documents submitted so far.
func (m *MockOCR) Docs() []DocumentRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DocumentRef, len(m.docs))
	copy(out, m.docs)
	return out
}

// MockGenerator is a Generator for tests.
type MockGenerator struct {
	mockCalls
	Response     string
	Err          error
	GenerateFunc func(ctx context.Context, req GenerateRequest, cred keypool.Credential) (string, error)

	mu   sync.Mutex
	reqs []GenerateRequest
}

func (m *MockGenerator) Name() string { return MockName }

func (m *MockGenerator) Generate(ctx context.Context, req GenerateRequest, cred keypool.Credential) (string, error) {
	m.record(cred)
	m.mu.Lock()
	m.reqs = append(m.reqs, req)
	m.mu.Unlock()
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req, cred)
	}
	return m.Response, m.Err
}

// Requests returns the requests received so far.
func (m *MockGenerator) Requests() []GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]GenerateRequest, len(m.reqs))
	copy(out, m.reqs)
	return out
}

// MockImageGenerator is an ImageGenerator for tests.
type MockImageGenerator struct {
	mockCalls
	Data      []byte
	Err       error
	ImageFunc func(ctx context.Context, prompt string, cred keypool.Credential) (*Image, error)
}

func (m *MockImageGenerator) Name() string { return MockName }

func (m *MockImageGenerator) GenerateImage(ctx context.Context, prompt string, cred keypool.Credential) (*Image, error) {
	m.record(cred)
	if m.ImageFunc != nil {
		return m.ImageFunc(ctx, prompt, cred)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	data := m.Data
	if data == nil {
		data = []byte("\x89PNG\r\n\x1a\n")
	}
	return &Image{Data: data, ContentType: "image/png"}, nil
}

var (
	_ OCR            = (*MockOCR)(nil)
	_ Generator      = (*MockGenerator)(nil)
	_ ImageGenerator = (*MockImageGenerator)(nil)
)
