package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/jackzampolin/temario/internal/keypool"
)

const (
	OpenAIName              = "openai"
	OpenAIDefaultChatModel  = "gpt-4o-mini"
	OpenAIDefaultImageModel = "gpt-image-1"
	OpenAIDefaultImageSize  = "1024x1024"
)

// OpenAIConfig holds configuration shared by the OpenAI clients.
type OpenAIConfig struct {
	BaseURL    string
	Model      string
	ImageSize  string // images only
	Timeout    time.Duration
	RateLimit  float64
	HTTPClient *http.Client
}

func newOpenAIClient(cfg OpenAIConfig) openai.Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	// Retries belong to the key rotator, not the SDK.
	opts := []option.RequestOption{
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return openai.NewClient(opts...)
}

// OpenAIChatClient implements Generator with the chat completions API.
type OpenAIChatClient struct {
	client  openai.Client
	model   string
	limiter *RateLimiter
}

// NewOpenAIChatClient creates a chat client.
func NewOpenAIChatClient(cfg OpenAIConfig) *OpenAIChatClient {
	if cfg.Model == "" {
		cfg.Model = OpenAIDefaultChatModel
	}
	return &OpenAIChatClient{
		client:  newOpenAIClient(cfg),
		model:   cfg.Model,
		limiter: NewRateLimiter(cfg.RateLimit),
	}
}

// Name returns the client identifier.
func (c *OpenAIChatClient) Name() string {
	return OpenAIName
}

// Generate sends one chat completion and returns the assistant text.
func (c *OpenAIChatClient) Generate(ctx context.Context, req GenerateRequest, cred keypool.Credential) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
	}
	if req.System != "" {
		params.Messages = append(params.Messages, openai.SystemMessage(req.System))
	}
	params.Messages = append(params.Messages, openai.UserMessage(req.Prompt))
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	completion, err := c.client.Chat.Completions.New(ctx, params, option.WithAPIKey(cred.Key))
	if err != nil {
		err = mapOpenAIError(err)
		c.limiter.observe(err)
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("empty completion (finish_reason=%s)", completion.Choices[0].FinishReason)
	}
	return content, nil
}

// OpenAIImageClient implements ImageGenerator with the images API.
type OpenAIImageClient struct {
	client  openai.Client
	model   string
	size    string
	limiter *RateLimiter
}

// NewOpenAIImageClient creates an image client.
func NewOpenAIImageClient(cfg OpenAIConfig) *OpenAIImageClient {
	if cfg.Model == "" {
		cfg.Model = OpenAIDefaultImageModel
	}
	if cfg.ImageSize == "" {
		cfg.ImageSize = OpenAIDefaultImageSize
	}
	return &OpenAIImageClient{
		client:  newOpenAIClient(cfg),
		model:   cfg.Model,
		size:    cfg.ImageSize,
		limiter: NewRateLimiter(cfg.RateLimit),
	}
}

// Name returns the client identifier.
func (c *OpenAIImageClient) Name() string {
	return OpenAIName
}

// GenerateImage returns one PNG for prompt.
func (c *OpenAIImageClient) GenerateImage(ctx context.Context, prompt string, cred keypool.Credential) (*Image, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := openai.ImageGenerateParams{
		Prompt: prompt,
		Model:  openai.ImageModel(c.model),
		N:      openai.Int(1),
		Size:   openai.ImageGenerateParamsSize(c.size),
	}
	// gpt-image models always answer with base64 and reject the parameter.
	if strings.HasPrefix(c.model, "dall-e") {
		params.ResponseFormat = openai.ImageGenerateParamsResponseFormatB64JSON
	}

	resp, err := c.client.Images.Generate(ctx, params, option.WithAPIKey(cred.Key))
	if err != nil {
		err = mapOpenAIError(err)
		c.limiter.observe(err)
		return nil, err
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("no image data in response")
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return &Image{Data: data, ContentType: http.DetectContentType(data)}, nil
}

// mapOpenAIError turns SDK errors into *APIError so the rotator can
// classify them.
func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	out := &APIError{
		Provider:   OpenAIName,
		StatusCode: apiErr.StatusCode,
		Message:    apiErr.Message,
		Code:       apiErr.Code,
	}
	if apiErr.Response != nil {
		out.RetryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
	}
	return out
}

var (
	_ Generator      = (*OpenAIChatClient)(nil)
	_ ImageGenerator = (*OpenAIImageClient)(nil)
)
