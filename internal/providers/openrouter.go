package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/temario/internal/keypool"
)

const (
	OpenRouterName         = "openrouter"
	OpenRouterBaseURL      = "https://openrouter.ai/api/v1"
	OpenRouterDefaultModel = "google/gemini-2.5-flash"
)

// OpenRouterConfig holds configuration for the OpenRouter client.
type OpenRouterConfig struct {
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
	RateLimit    float64 // requests per second, 0 = unlimited
	HTTPClient   *http.Client
}

// OpenRouterClient implements Generator using the OpenRouter chat API.
type OpenRouterClient struct {
	baseURL      string
	defaultModel string
	limiter      *RateLimiter
	client       *http.Client
}

// NewOpenRouterClient creates a new OpenRouter client.
func NewOpenRouterClient(cfg OpenRouterConfig) *OpenRouterClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = OpenRouterBaseURL
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = OpenRouterDefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &OpenRouterClient{
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		defaultModel: cfg.DefaultModel,
		limiter:      NewRateLimiter(cfg.RateLimit),
		client:       cfg.HTTPClient,
	}
}

// Name returns the client identifier.
func (c *OpenRouterClient) Name() string {
	return OpenRouterName
}

// Generate sends one chat completion and returns the assistant text.
func (c *OpenRouterClient) Generate(ctx context.Context, req GenerateRequest, cred keypool.Credential) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	model := req.Model
	if model == "" {
		model = c.defaultModel
	}
	orReq := openRouterRequest{
		Model:       model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.System != "" {
		orReq.Messages = append(orReq.Messages, openRouterMessage{Role: "system", Content: req.System})
	}
	orReq.Messages = append(orReq.Messages, openRouterMessage{Role: "user", Content: req.Prompt})
	if req.JSON {
		orReq.ResponseFormat = &openRouterResponseFormat{Type: "json_object"}
	}

	orResp, err := c.doRequest(ctx, "/chat/completions", &orReq, cred)
	if err != nil {
		c.limiter.observe(err)
		return "", err
	}
	if orResp.Error != nil {
		return "", &APIError{Provider: OpenRouterName, StatusCode: errorCode(orResp.Error.Code), Message: orResp.Error.Message}
	}
	if len(orResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	content := strings.TrimSpace(orResp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("empty completion (finish_reason=%s)", orResp.Choices[0].FinishReason)
	}
	return content, nil
}

func (c *OpenRouterClient) doRequest(ctx context.Context, path string, orReq *openRouterRequest, cred keypool.Credential) (*openRouterResponse, error) {
	bodyBytes, err := json.Marshal(orReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cred.Key)
	req.Header.Set("HTTP-Referer", "https://github.com/jackzampolin/temario")
	req.Header.Set("X-Title", "Temario")
	req.Header.Set("X-Request-ID", uuid.New().String())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(OpenRouterName, resp)
	}

	var orResp openRouterResponse
	if err := json.NewDecoder(resp.Body).Decode(&orResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &orResp, nil
}

// errorCode maps an in-body OpenRouter error code to a status, which it
// mirrors for upstream failures (429 from the routed provider, 502, ...).
func errorCode(code any) int {
	if n, ok := code.(float64); ok && n >= 400 && n < 600 {
		return int(n)
	}
	return http.StatusBadGateway
}

// OpenRouter API types

type openRouterRequest struct {
	Model          string                    `json:"model"`
	Messages       []openRouterMessage       `json:"messages"`
	Temperature    float64                   `json:"temperature,omitempty"`
	MaxTokens      int                       `json:"max_tokens,omitempty"`
	ResponseFormat *openRouterResponseFormat `json:"response_format,omitempty"`
}

type openRouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openRouterResponseFormat struct {
	Type string `json:"type"`
}

type openRouterResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *openRouterError `json:"error,omitempty"`
}

type openRouterError struct {
	Message string `json:"message"`
	Code    any    `json:"code,omitempty"`
}

var _ Generator = (*OpenRouterClient)(nil)
