package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackzampolin/temario/internal/config"
	"github.com/jackzampolin/temario/internal/home"
	"github.com/jackzampolin/temario/internal/ingest"
	"github.com/jackzampolin/temario/internal/server/endpoints"
	"github.com/jackzampolin/temario/internal/testutil"
)

// waitForServer polls /health until it answers or the timeout expires.
func waitForServer(ctx context.Context, baseURL string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		resp, err := http.Get(baseURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server at %s not ready after %s", baseURL, timeout)
}

func newMemoryServer(t *testing.T, configYAML string) (*Server, *home.Dir, string) {
	t.Helper()

	h, err := home.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cfgFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgFile, []byte(configYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	mgr, err := config.NewManager(cfgFile)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	port, err := testutil.FindFreePort()
	if err != nil {
		t.Fatal(err)
	}
	srv, err := New(Config{
		Host:          "127.0.0.1",
		Port:          port,
		ConfigManager: mgr,
		Home:          h,
		Logger:        testutil.Logger(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv, h, cfgFile
}

func startServer(t *testing.T, srv *Server) (string, func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	serverErr := make(chan error, 1)
	go func() { serverErr <- srv.Start(ctx) }()

	baseURL := "http://" + srv.Addr()
	if err := waitForServer(ctx, baseURL, 10*time.Second); err != nil {
		cancel()
		t.Fatalf("server did not start: %v", err)
	}
	stop := func() {
		cancel()
		select {
		case err := <-serverErr:
			if err != nil {
				t.Errorf("Start() returned %v", err)
			}
		case <-time.After(30 * time.Second):
			t.Fatal("server did not shut down within timeout")
		}
	}
	return baseURL, stop
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("GET %s: decode: %v", url, err)
		}
	}
	return resp.StatusCode
}

const memoryConfig = `
store:
  backend: memory
providers:
  llm:
    local:
      type: openai
      base_url: http://127.0.0.1:1/v1
      api_keys: ["k1", "k2"]
defaults:
  llm_provider: local
`

func TestNew_InvalidBackend(t *testing.T) {
	h, _ := home.New(t.TempDir())
	_, err := New(Config{StoreBackend: "postgres", Home: h, Logger: testutil.Logger()})
	if err == nil {
		t.Fatal("expected error for unknown store backend")
	}
}

func TestServer_RequireInitBeforeStart(t *testing.T) {
	srv, _, _ := newMemoryServer(t, memoryConfig)

	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/areas", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /api/areas before start = %d, want 503", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET /health before start = %d, want 200", rec.Code)
	}
}

func TestServer_MemoryLifecycle(t *testing.T) {
	srv, h, _ := newMemoryServer(t, memoryConfig)
	baseURL, stop := startServer(t, srv)

	t.Run("ready", func(t *testing.T) {
		var ready endpoints.HealthResponse
		if code := getJSON(t, baseURL+"/ready", &ready); code != http.StatusOK {
			t.Errorf("ready = %d %+v", code, ready)
		}
	})

	t.Run("status", func(t *testing.T) {
		var status endpoints.StatusResponse
		getJSON(t, baseURL+"/status", &status)
		if status.Store != "memory" {
			t.Errorf("store = %q", status.Store)
		}
		if labels := status.Providers.LLM["local"]; len(labels) != 2 {
			t.Errorf("llm labels = %v", labels)
		}
	})

	t.Run("areas", func(t *testing.T) {
		var areas endpoints.ListAreasResponse
		if code := getJSON(t, baseURL+"/api/areas", &areas); code != http.StatusOK || len(areas.Areas) != 0 {
			t.Errorf("areas = %d %+v", code, areas)
		}
	})

	t.Run("static_blobs", func(t *testing.T) {
		dir := filepath.Join(h.BlobDir(), "covers", "civil")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "t1.png"), []byte("png"), 0o644); err != nil {
			t.Fatal(err)
		}
		resp, err := http.Get(baseURL + "/static/covers/civil/t1.png")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK || string(body) != "png" {
			t.Errorf("static = %d %q", resp.StatusCode, body)
		}
	})

	t.Run("is_running", func(t *testing.T) {
		if !srv.IsRunning() || srv.Pipeline() == nil {
			t.Error("server should be running with a pipeline")
		}
	})

	stop()

	if srv.IsRunning() {
		t.Error("IsRunning() = true after shutdown, want false")
	}
	if srv.Pipeline() != nil {
		t.Error("Pipeline() should be nil after shutdown")
	}
}

func TestServer_ReloadsProviders(t *testing.T) {
	srv, _, cfgFile := newMemoryServer(t, memoryConfig)
	srv.configMgr.WatchConfig()
	time.Sleep(100 * time.Millisecond)

	updated := `
store:
  backend: memory
providers:
  llm:
    local:
      type: openai
      base_url: http://127.0.0.1:1/v1
      api_keys: ["k1", "k2", "k3"]
defaults:
  llm_provider: local
`
	if err := os.WriteFile(cfgFile, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if len(srv.Registry().Summary().LLM["local"]) == 3 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Errorf("registry not reloaded: %v", srv.Registry().Summary().LLM)
}

func TestSettingsFromConfig(t *testing.T) {
	h, _ := home.New("/tmp/temario-home")

	t.Run("defaults", func(t *testing.T) {
		s, err := SettingsFromConfig(config.DefaultConfig(), h)
		if err != nil {
			t.Fatal(err)
		}
		if s.OCRMode != ingest.ModeAuto || s.OCRProvider != "mistral" || s.LLMProvider != "openrouter" {
			t.Errorf("settings = %+v", s)
		}
		if s.Pause != 1500*time.Millisecond || s.ItemBackoff.Attempts != 3 || s.ItemBackoff.Delay != 2*time.Second {
			t.Errorf("batch settings = %+v", s)
		}
		if s.ProviderBackoff.Attempts != 3 || !s.RepairOverlaps || s.Consumers != 2 {
			t.Errorf("pipeline settings = %+v", s)
		}
		if s.TempDir != h.TempDir() {
			t.Errorf("temp dir = %q", s.TempDir)
		}
	})

	t.Run("bad mode", func(t *testing.T) {
		c := config.DefaultConfig()
		c.Pipeline.OCRSubmitMode = "fax"
		if _, err := SettingsFromConfig(c, h); err == nil {
			t.Error("expected error for unknown submit mode")
		}
	})
}
