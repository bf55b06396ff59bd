package providers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/jackzampolin/temario/internal/keypool"
)

// ErrNotConfigured is returned when no provider of the requested kind and
// name is registered.
var ErrNotConfigured = errors.New("provider not configured")

// Provider types accepted in configuration.
const (
	TypeMistralOCR  = "mistral-ocr"
	TypeOpenRouter  = "openrouter"
	TypeOpenAI      = "openai"
	TypeOpenAIImage = "openai-image"
)

// ProviderConfig is one configured provider with its unresolved key list.
type ProviderConfig struct {
	Type           string
	Model          string
	BaseURL        string
	APIKeys        []string
	TimeoutSeconds int
	RateLimit      float64
	ImageSize      string
}

// RegistryConfig defines the providers to instantiate.
type RegistryConfig struct {
	OCR   map[string]ProviderConfig
	LLM   map[string]ProviderConfig
	Image map[string]ProviderConfig

	DefaultOCR   string
	DefaultLLM   string
	DefaultImage string

	// HTTPClient overrides the per-provider client (tests).
	HTTPClient *http.Client
}

type entry[T any] struct {
	client T
	pool   *keypool.Pool
}

// Registry maps provider names to clients and their credential pools.
// Reload swaps the whole set, so callers holding a client keep a
// consistent client/pool pair.
type Registry struct {
	mu     sync.RWMutex
	ocr    map[string]entry[OCR]
	llm    map[string]entry[Generator]
	image  map[string]entry[ImageGenerator]
	defs   [3]string // ocr, llm, image
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		ocr:    make(map[string]entry[OCR]),
		llm:    make(map[string]entry[Generator]),
		image:  make(map[string]entry[ImageGenerator]),
		logger: logger,
	}
}

// NewRegistryFromConfig builds a registry from configuration.
func NewRegistryFromConfig(cfg RegistryConfig, logger *slog.Logger) *Registry {
	r := NewRegistry(logger)
	r.Reload(cfg)
	return r
}

// Reload replaces every provider with the ones in cfg. Providers whose
// keys all resolve to blanks are skipped with a warning.
func (r *Registry) Reload(cfg RegistryConfig) {
	ocr := make(map[string]entry[OCR])
	llm := make(map[string]entry[Generator])
	image := make(map[string]entry[ImageGenerator])

	for name, pc := range cfg.OCR {
		pool, ok := r.pool(name, pc)
		if !ok {
			continue
		}
		client, err := createOCR(pc, cfg.HTTPClient)
		if err != nil {
			r.logger.Warn("skipping OCR provider", "name", name, "error", err)
			continue
		}
		ocr[name] = entry[OCR]{client, pool}
	}
	for name, pc := range cfg.LLM {
		pool, ok := r.pool(name, pc)
		if !ok {
			continue
		}
		client, err := createGenerator(pc, cfg.HTTPClient)
		if err != nil {
			r.logger.Warn("skipping LLM provider", "name", name, "error", err)
			continue
		}
		llm[name] = entry[Generator]{client, pool}
	}
	for name, pc := range cfg.Image {
		pool, ok := r.pool(name, pc)
		if !ok {
			continue
		}
		client, err := createImageGenerator(pc, cfg.HTTPClient)
		if err != nil {
			r.logger.Warn("skipping image provider", "name", name, "error", err)
			continue
		}
		image[name] = entry[ImageGenerator]{client, pool}
	}

	r.mu.Lock()
	r.ocr, r.llm, r.image = ocr, llm, image
	r.defs = [3]string{cfg.DefaultOCR, cfg.DefaultLLM, cfg.DefaultImage}
	r.mu.Unlock()

	r.logger.Info("providers loaded",
		"ocr", keys(ocr), "llm", keys(llm), "image", keys(image))
}

func (r *Registry) pool(name string, pc ProviderConfig) (*keypool.Pool, bool) {
	pool, err := keypool.NewPool(name, pc.APIKeys)
	if err != nil {
		r.logger.Warn("provider has no usable API keys", "name", name, "type", pc.Type)
		return nil, false
	}
	return pool, true
}

// RegisterOCR adds or replaces an OCR provider.
func (r *Registry) RegisterOCR(name string, client OCR, pool *keypool.Pool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ocr[name] = entry[OCR]{client, pool}
}

// RegisterLLM adds or replaces a text generator.
func (r *Registry) RegisterLLM(name string, client Generator, pool *keypool.Pool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = entry[Generator]{client, pool}
}

// RegisterImage adds or replaces an image generator.
func (r *Registry) RegisterImage(name string, client ImageGenerator, pool *keypool.Pool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.image[name] = entry[ImageGenerator]{client, pool}
}

// SetDefaults sets the provider names used when a caller passes "".
func (r *Registry) SetDefaults(ocr, llm, image string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs = [3]string{ocr, llm, image}
}

// OCR returns the named OCR provider, or the default one for "".
func (r *Registry) OCR(name string) (OCR, *keypool.Pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, err := lookup(r.ocr, name, r.defs[0], "ocr")
	return e.client, e.pool, err
}

// LLM returns the named text generator, or the default one for "".
func (r *Registry) LLM(name string) (Generator, *keypool.Pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, err := lookup(r.llm, name, r.defs[1], "llm")
	return e.client, e.pool, err
}

// Image returns the named image generator, or the default one for "".
func (r *Registry) Image(name string) (ImageGenerator, *keypool.Pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, err := lookup(r.image, name, r.defs[2], "image")
	return e.client, e.pool, err
}

// Summary lists configured providers and their credential labels.
type Summary struct {
	OCR   map[string][]string `json:"ocr"`
	LLM   map[string][]string `json:"llm"`
	Image map[string][]string `json:"image"`
}

// Summary returns the configured providers with credential labels.
func (r *Registry) Summary() Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Summary{OCR: labels(r.ocr), LLM: labels(r.llm), Image: labels(r.image)}
}

// lookup falls back to def, then to the only entry when there is one.
func lookup[T any](m map[string]entry[T], name, def, kind string) (entry[T], error) {
	if name == "" {
		name = def
	}
	if name == "" && len(m) == 1 {
		for _, e := range m {
			return e, nil
		}
	}
	e, ok := m[name]
	if !ok {
		return e, fmt.Errorf("%w: %s provider %q", ErrNotConfigured, kind, name)
	}
	return e, nil
}

func keys[T any](m map[string]entry[T]) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func labels[T any](m map[string]entry[T]) map[string][]string {
	out := make(map[string][]string, len(m))
	for k, e := range m {
		out[k] = e.pool.Labels()
	}
	return out
}

func timeout(pc ProviderConfig) time.Duration {
	if pc.TimeoutSeconds > 0 {
		return time.Duration(pc.TimeoutSeconds) * time.Second
	}
	return defaultTimeout
}

func createOCR(pc ProviderConfig, hc *http.Client) (OCR, error) {
	switch pc.Type {
	case TypeMistralOCR, "mistral":
		return NewMistralOCRClient(MistralOCRConfig{
			BaseURL:    pc.BaseURL,
			Model:      pc.Model,
			Timeout:    timeout(pc),
			RateLimit:  pc.RateLimit,
			HTTPClient: hc,
		}), nil
	default:
		return nil, fmt.Errorf("unknown OCR provider type %q", pc.Type)
	}
}

func createGenerator(pc ProviderConfig, hc *http.Client) (Generator, error) {
	switch pc.Type {
	case TypeOpenRouter:
		return NewOpenRouterClient(OpenRouterConfig{
			BaseURL:      pc.BaseURL,
			DefaultModel: pc.Model,
			Timeout:      timeout(pc),
			RateLimit:    pc.RateLimit,
			HTTPClient:   hc,
		}), nil
	case TypeOpenAI:
		return NewOpenAIChatClient(OpenAIConfig{
			BaseURL:    pc.BaseURL,
			Model:      pc.Model,
			Timeout:    timeout(pc),
			RateLimit:  pc.RateLimit,
			HTTPClient: hc,
		}), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider type %q", pc.Type)
	}
}

func createImageGenerator(pc ProviderConfig, hc *http.Client) (ImageGenerator, error) {
	switch pc.Type {
	case TypeOpenAI, TypeOpenAIImage:
		return NewOpenAIImageClient(OpenAIConfig{
			BaseURL:    pc.BaseURL,
			Model:      pc.Model,
			ImageSize:  pc.ImageSize,
			Timeout:    timeout(pc),
			RateLimit:  pc.RateLimit,
			HTTPClient: hc,
		}), nil
	default:
		return nil, fmt.Errorf("unknown image provider type %q", pc.Type)
	}
}
