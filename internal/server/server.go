package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jackzampolin/temario/internal/api"
	"github.com/jackzampolin/temario/internal/blob"
	"github.com/jackzampolin/temario/internal/config"
	"github.com/jackzampolin/temario/internal/defra"
	"github.com/jackzampolin/temario/internal/home"
	"github.com/jackzampolin/temario/internal/ingest"
	"github.com/jackzampolin/temario/internal/keypool"
	"github.com/jackzampolin/temario/internal/pipeline"
	"github.com/jackzampolin/temario/internal/providers"
	"github.com/jackzampolin/temario/internal/schema"
	"github.com/jackzampolin/temario/internal/server/endpoints"
	"github.com/jackzampolin/temario/internal/store"
	"github.com/jackzampolin/temario/internal/svcctx"
)

// Server is the main temario HTTP server.
// With the defra store it manages the DefraDB container lifecycle, starting
// it on server start and stopping it on shutdown, unless defra.url points at
// a node it does not own.
type Server struct {
	httpServer   *http.Server
	defraManager *defra.DockerManager
	defraClient  *defra.Client
	pipeline     *pipeline.Service
	registry     *providers.Registry
	rotator      *keypool.Rotator
	configMgr    *config.Manager
	home         *home.Dir
	logger       *slog.Logger
	cfg          Config

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	stopJobs  context.CancelFunc
	jobsDone  chan struct{}
	closeBlob func() error

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8080)
	Port string
	// StoreBackend overrides store.backend from the config file.
	StoreBackend string
	// DefraConfig holds DefraDB container settings. Empty fields are filled
	// from the config file and the home directory.
	DefraConfig defra.DockerConfig
	// ConfigManager provides configuration with hot-reload support.
	// When nil the defaults are used.
	ConfigManager *config.Manager
	// Home is the temario home directory (default: ~/.temario)
	Home *home.Dir
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Home == nil {
		h, err := home.New("")
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		cfg.Home = h
	}
	if err := cfg.Home.EnsureExists(); err != nil {
		return nil, fmt.Errorf("failed to create home directory: %w", err)
	}

	conf := config.DefaultConfig()
	if cfg.ConfigManager != nil {
		conf = cfg.ConfigManager.Get()
	}
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = conf.Store.Backend
	}
	switch cfg.StoreBackend {
	case "", "defra":
		cfg.StoreBackend = "defra"
	case "memory":
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	s := &Server{
		registry:  providers.NewRegistryFromConfig(conf.ToProviderRegistryConfig(), cfg.Logger),
		rotator:   keypool.NewRotator(keypool.Config{Logger: cfg.Logger}),
		configMgr: cfg.ConfigManager,
		home:      cfg.Home,
		logger:    cfg.Logger,
	}

	if cfg.StoreBackend == "defra" && conf.Defra.URL == "" {
		dc := cfg.DefraConfig
		if dc.ContainerName == "" {
			dc.ContainerName = conf.Defra.ContainerName
		}
		if dc.Image == "" {
			dc.Image = conf.Defra.Image
		}
		if dc.HostPort == "" {
			dc.HostPort = conf.Defra.Port
		}
		if dc.DataPath == "" {
			dc.DataPath = cfg.Home.DefraDir()
		}
		m, err := defra.NewDockerManager(dc)
		if err != nil {
			return nil, fmt.Errorf("failed to create defra manager: %w", err)
		}
		s.defraManager = m
	}

	// Watch for config changes
	if cfg.ConfigManager != nil {
		cfg.ConfigManager.OnChange(func(c *config.Config) {
			s.registry.Reload(c.ToProviderRegistryConfig())
			cfg.Logger.Info("provider registry reloaded from config")
		})
	}
	s.cfg = cfg

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{
		DefraManager: s.defraManager,
		StoreBackend: cfg.StoreBackend,
	}) {
		s.endpointRegistry.Register(ep)
	}

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)
	if conf.Storage.Backend == "" || conf.Storage.Backend == "local" {
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(localBlobDir(conf, cfg.Home)))))
	}

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      s.withServices(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute, // ingestion waits for OCR
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start opens the store, builds the pipeline and serves HTTP.
// It blocks until the context is cancelled or an error occurs.
// If an existing DefraDB container exists, it validates the configuration matches.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	st, err := s.openStore(ctx)
	if err != nil {
		_ = s.shutdown()
		return err
	}

	conf := config.DefaultConfig()
	if s.configMgr != nil {
		conf = s.configMgr.Get()
	}

	blobs, closeBlob, err := blob.Open(ctx, blob.Config{
		Backend:         conf.Storage.Backend,
		LocalDir:        localBlobDir(conf, s.home),
		Bucket:          conf.Storage.Bucket,
		PublicBaseURL:   conf.Storage.PublicBaseURL,
		CredentialsFile: conf.Storage.CredentialsFile,
	})
	if err != nil {
		_ = s.shutdown()
		return fmt.Errorf("failed to open blob storage: %w", err)
	}
	s.closeBlob = closeBlob

	settings, err := SettingsFromConfig(conf, s.home)
	if err != nil {
		_ = s.shutdown()
		return err
	}
	s.pipeline = pipeline.New(pipeline.Config{
		Store:     st,
		Providers: s.registry,
		Rotator:   s.rotator,
		Fetcher:   blobs,
		Storage:   blobs,
		Settings:  settings,
		Logger:    s.logger,
	})

	// The orchestrator outlives request contexts and stops on shutdown.
	jobsCtx, stopJobs := context.WithCancel(context.WithoutCancel(ctx))
	s.stopJobs = stopJobs
	s.jobsDone = make(chan struct{})
	go func() {
		defer close(s.jobsDone)
		s.pipeline.Jobs().Run(jobsCtx)
	}()

	// Create services struct for context enrichment
	s.mu.Lock()
	s.services = &svcctx.Services{
		DefraClient: s.defraClient,
		Pipeline:    s.pipeline,
		Jobs:        s.pipeline.Jobs(),
		Registry:    s.registry,
		Rotator:     s.rotator,
		Config:      s.configMgr,
		Logger:      s.logger,
		Home:        s.home,
	}
	s.mu.Unlock()

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr, "store", s.cfg.StoreBackend)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// openStore connects the configured store backend.
func (s *Server) openStore(ctx context.Context) (store.Store, error) {
	if s.cfg.StoreBackend == "memory" {
		s.logger.Warn("using the in-memory store; nothing survives a restart")
		return store.NewMemory(), nil
	}

	url := ""
	if s.defraManager != nil {
		if err := s.defraManager.ValidateExisting(ctx); err != nil {
			return nil, fmt.Errorf("existing DefraDB container incompatible: %w", err)
		}
		s.logger.Info("starting DefraDB")
		if err := s.defraManager.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to start DefraDB: %w", err)
		}
		url = s.defraManager.URL()
	} else if s.configMgr != nil {
		url = s.configMgr.Get().Defra.URL
	}

	// Create client after DefraDB is up
	s.defraClient = defra.NewClient(url)

	// Verify DefraDB is healthy
	if err := s.defraClient.HealthCheck(ctx); err != nil {
		return nil, fmt.Errorf("DefraDB health check failed: %w", err)
	}
	s.logger.Info("DefraDB is ready", "url", url)

	// Initialize schemas
	s.logger.Info("initializing schemas")
	if err := schema.Initialize(ctx, s.defraClient, s.logger); err != nil {
		return nil, fmt.Errorf("schema initialization failed: %w", err)
	}

	return store.NewDefra(s.defraClient), nil
}

// shutdown performs graceful shutdown of the HTTP server, the job
// orchestrator and DefraDB.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	// Shutdown HTTP server with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	// Jobs interrupted here stay running and resume on the next start.
	if s.stopJobs != nil {
		s.stopJobs()
		select {
		case <-s.jobsDone:
		case <-shutdownCtx.Done():
			s.logger.Warn("job orchestrator did not stop in time")
		}
	}

	if s.closeBlob != nil {
		if err := s.closeBlob(); err != nil {
			s.logger.Error("blob storage close error", "error", err)
		}
	}

	if s.defraManager != nil {
		s.logger.Info("stopping DefraDB")
		if err := s.defraManager.Stop(shutdownCtx); err != nil {
			s.logger.Error("DefraDB stop error", "error", err)
		}

		// Close Docker client
		if err := s.defraManager.Close(); err != nil {
			s.logger.Error("DefraDB manager close error", "error", err)
		}
	}

	s.mu.Lock()
	s.services = nil
	s.mu.Unlock()

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Pipeline returns the pipeline service.
// Returns nil if the server hasn't started yet.
func (s *Server) Pipeline() *pipeline.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.services == nil {
		return nil
	}
	return s.services.Pipeline
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Registry returns the provider registry.
func (s *Server) Registry() *providers.Registry {
	return s.registry
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		s.mu.RLock()
		services := s.services
		s.mu.RUnlock()
		if services != nil {
			ctx = svcctx.WithServices(ctx, services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable until the store and pipeline are ready.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Pipeline() == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}

func localBlobDir(conf *config.Config, h *home.Dir) string {
	if conf.Storage.LocalDir != "" {
		return conf.Storage.LocalDir
	}
	return h.BlobDir()
}

// SettingsFromConfig converts the pipeline and batch sections into
// pipeline settings.
func SettingsFromConfig(c *config.Config, h *home.Dir) (pipeline.Settings, error) {
	mode, err := ingest.ParseMode(c.Pipeline.OCRSubmitMode)
	if err != nil {
		return pipeline.Settings{}, err
	}
	s := pipeline.Settings{
		OCRProvider:      c.Defaults.OCRProvider,
		LLMProvider:      c.Defaults.LLMProvider,
		ImageProvider:    c.Defaults.ImageProvider,
		MinPageChars:     c.Pipeline.MinPageChars,
		MaxDownloadMB:    c.Pipeline.MaxDownloadMB,
		OCRMode:          mode,
		AnalyzerMaxPages: c.Pipeline.AnalyzerMaxPages,
		AnalyzerMaxChars: c.Pipeline.AnalyzerMaxChars,
		RepairAttempts:   c.Pipeline.RepairAttempts,
		RepairOverlaps:   c.Pipeline.RepairOverlaps,
		ProviderBackoff: keypool.Backoff{
			Attempts: uint(max(c.Pipeline.ProviderAttempts, 0)),
			Delay:    2 * time.Second,
			MaxDelay: 30 * time.Second,
		},
		Concurrency: c.Batch.Concurrency,
		Pause:       time.Duration(c.Batch.PauseMS) * time.Millisecond,
		ItemBackoff: keypool.Backoff{
			Attempts: uint(max(c.Batch.ItemAttempts, 0)),
			Delay:    time.Duration(c.Batch.RetryDelayMS) * time.Millisecond,
			MaxDelay: time.Minute,
		},
		QueueSize: c.Batch.QueueSize,
		Consumers: c.Batch.Consumers,
	}
	if h != nil {
		s.TempDir = h.TempDir()
	}
	return s, nil
}
