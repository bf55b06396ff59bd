package config

// Config holds temario configuration.
// Stored at: ~/.temario/config.yaml (or ./config.yaml)
type Config struct {
	Providers ProvidersCfg `mapstructure:"providers" yaml:"providers"`
	Defaults  DefaultsCfg  `mapstructure:"defaults" yaml:"defaults"`
	Pipeline  PipelineCfg  `mapstructure:"pipeline" yaml:"pipeline"`
	Batch     BatchCfg     `mapstructure:"batch" yaml:"batch"`
	Storage   StorageCfg   `mapstructure:"storage" yaml:"storage"`
	Store     StoreCfg     `mapstructure:"store" yaml:"store"`
	Defra     DefraConfig  `mapstructure:"defra" yaml:"defra"`
}

// ProvidersCfg groups providers by capability, each keyed by name.
type ProvidersCfg struct {
	OCR   map[string]ProviderCfg `mapstructure:"ocr" yaml:"ocr"`
	LLM   map[string]ProviderCfg `mapstructure:"llm" yaml:"llm"`
	Image map[string]ProviderCfg `mapstructure:"image" yaml:"image"`
}

// ProviderCfg configures one provider. APIKeys is ordered: the first key is
// tried first on every call.
type ProviderCfg struct {
	Type           string   `mapstructure:"type" yaml:"type"`         // "mistral-ocr", "openrouter", "openai", "openai-image"
	Model          string   `mapstructure:"model" yaml:"model"`
	BaseURL        string   `mapstructure:"base_url" yaml:"base_url,omitempty"`
	APIKeys        []string `mapstructure:"api_keys" yaml:"api_keys"` // supports ${ENV_VAR} syntax
	TimeoutSeconds int      `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	RateLimit      float64  `mapstructure:"rate_limit" yaml:"rate_limit"` // requests per second, 0 = unlimited
	ImageSize      string   `mapstructure:"image_size" yaml:"image_size,omitempty"`
}

// DefaultsCfg specifies default provider selections.
type DefaultsCfg struct {
	OCRProvider   string `mapstructure:"ocr_provider" yaml:"ocr_provider"`
	LLMProvider   string `mapstructure:"llm_provider" yaml:"llm_provider"`
	ImageProvider string `mapstructure:"image_provider" yaml:"image_provider"`
}

// PipelineCfg tunes the structuring stages.
type PipelineCfg struct {
	MinPageChars     int    `mapstructure:"min_page_chars" yaml:"min_page_chars"`
	AnalyzerMaxPages int    `mapstructure:"analyzer_max_pages" yaml:"analyzer_max_pages"`
	AnalyzerMaxChars int    `mapstructure:"analyzer_max_chars" yaml:"analyzer_max_chars"`
	RepairAttempts   int    `mapstructure:"repair_attempts" yaml:"repair_attempts"`
	MaxDownloadMB    int    `mapstructure:"max_download_mb" yaml:"max_download_mb"`
	OCRSubmitMode    string `mapstructure:"ocr_submit_mode" yaml:"ocr_submit_mode"` // auto, url, inline
	RepairOverlaps   bool   `mapstructure:"repair_overlaps" yaml:"repair_overlaps"`
	// ProviderAttempts is the number of full key rotations per stage call.
	ProviderAttempts int `mapstructure:"provider_attempts" yaml:"provider_attempts"`
}

// BatchCfg tunes the batch orchestrator.
type BatchCfg struct {
	Concurrency  int `mapstructure:"concurrency" yaml:"concurrency"`
	PauseMS      int `mapstructure:"pause_ms" yaml:"pause_ms"`
	ItemAttempts int `mapstructure:"item_attempts" yaml:"item_attempts"`
	RetryDelayMS int `mapstructure:"retry_delay_ms" yaml:"retry_delay_ms"`
	QueueSize    int `mapstructure:"queue_size" yaml:"queue_size"`
	Consumers    int `mapstructure:"consumers" yaml:"consumers"`
}

// StorageCfg selects where generated objects are written.
type StorageCfg struct {
	Backend         string `mapstructure:"backend" yaml:"backend"` // local, gcs
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	PublicBaseURL   string `mapstructure:"public_base_url" yaml:"public_base_url"`
	LocalDir        string `mapstructure:"local_dir" yaml:"local_dir"` // empty = <home>/data/blobs
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file,omitempty"`
}

// StoreCfg selects the persistence backend.
type StoreCfg struct {
	Backend string `mapstructure:"backend" yaml:"backend"` // defra, memory
}

// DefraConfig holds DefraDB container configuration.
type DefraConfig struct {
	// ContainerName is the Docker container name (default: temario-defra)
	ContainerName string `mapstructure:"container_name" yaml:"container_name"`
	// Image is the Docker image to use (default: sourcenetwork/defradb:latest)
	Image string `mapstructure:"image" yaml:"image"`
	// Port is the host port to bind (default: 9181)
	Port string `mapstructure:"port" yaml:"port"`
	// URL points at an already running node; the container is not managed.
	URL string `mapstructure:"url" yaml:"url,omitempty"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Providers: ProvidersCfg{
			OCR: map[string]ProviderCfg{
				"mistral": {
					Type:           "mistral-ocr",
					Model:          "mistral-ocr-latest",
					APIKeys:        []string{"${MISTRAL_API_KEY}", "${MISTRAL_API_KEY_2}"},
					TimeoutSeconds: 500,
					RateLimit:      6.0,
				},
			},
			LLM: map[string]ProviderCfg{
				"openrouter": {
					Type:           "openrouter",
					Model:          "google/gemini-2.5-flash",
					APIKeys:        []string{"${OPENROUTER_API_KEY}", "${OPENROUTER_API_KEY_2}"},
					TimeoutSeconds: 300,
					RateLimit:      10.0,
				},
			},
			Image: map[string]ProviderCfg{
				"openai": {
					Type:           "openai-image",
					Model:          "gpt-image-1",
					APIKeys:        []string{"${OPENAI_API_KEY}"},
					TimeoutSeconds: 300,
					ImageSize:      "1024x1024",
				},
			},
		},
		Defaults: DefaultsCfg{
			OCRProvider:   "mistral",
			LLMProvider:   "openrouter",
			ImageProvider: "openai",
		},
		Pipeline: PipelineCfg{
			MinPageChars:     20,
			AnalyzerMaxPages: 40,
			AnalyzerMaxChars: 60000,
			RepairAttempts:   1,
			MaxDownloadMB:    200,
			OCRSubmitMode:    "auto",
			RepairOverlaps:   true,
			ProviderAttempts: 3,
		},
		Batch: BatchCfg{
			Concurrency:  4,
			PauseMS:      1500,
			ItemAttempts: 3,
			RetryDelayMS: 2000,
			QueueSize:    100,
			Consumers:    2,
		},
		Storage: StorageCfg{
			Backend:       "local",
			PublicBaseURL: "http://127.0.0.1:8080/static",
		},
		Store: StoreCfg{
			Backend: "defra",
		},
		Defra: DefraConfig{
			ContainerName: "temario-defra",
			Image:         "sourcenetwork/defradb:latest",
			Port:          "9181",
		},
	}
}
