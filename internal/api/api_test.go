package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

type fakeEndpoint struct {
	method, path, use string
}

func (e fakeEndpoint) Route() (string, string, http.HandlerFunc) {
	return e.method, e.path, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"path":"` + e.path + `"}`))
	}
}

func (e fakeEndpoint) RequiresInit() bool { return strings.HasPrefix(e.path, "/api/") }

func (e fakeEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{Use: e.use, RunE: func(*cobra.Command, []string) error { return nil }}
}

func TestGroupOf(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", ""},
		{"/swagger.json", ""},
		{"/api/areas", "areas"},
		{"/api/areas/{id}/topics", "areas"},
		{"/api/topics/{id}/pages", "topics"},
		{"/api/jobs/{id}/status", "jobs"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := GroupOf(tt.path); got != tt.want {
				t.Errorf("GroupOf(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestRegistry_BuildCommands(t *testing.T) {
	r := NewRegistry()
	r.Register(fakeEndpoint{"GET", "/health", "health"})
	r.Register(fakeEndpoint{"GET", "/api/areas", "list"})
	r.Register(fakeEndpoint{"GET", "/api/areas/{id}/topics", "topics"})
	r.Register(fakeEndpoint{"GET", "/api/jobs", "list"})
	r.Register(fakeEndpoint{"GET", "/api/topics/{id}/pages", "pages"})

	root := r.BuildCommands(func() string { return "http://localhost:8080" })

	want := map[string][]string{
		"areas":  {"list", "topics"},
		"jobs":   {"list"},
		"topics": {"pages"},
	}
	for group, subs := range want {
		cmd, _, err := root.Find([]string{group})
		if err != nil || cmd.Name() != group {
			t.Fatalf("group %q not found: %v", group, err)
		}
		for _, sub := range subs {
			if c, _, err := root.Find([]string{group, sub}); err != nil || c.Name() != sub {
				t.Errorf("command %s %s not found", group, sub)
			}
		}
	}
	if c, _, err := root.Find([]string{"health"}); err != nil || c.Name() != "health" {
		t.Error("health should be a top-level command")
	}
}

func TestRegistry_RegisterRoutes(t *testing.T) {
	r := NewRegistry()
	r.Register(fakeEndpoint{"GET", "/health", "health"})
	r.Register(fakeEndpoint{"GET", "/api/areas", "list"})

	var wrapped []string
	mux := http.NewServeMux()
	r.RegisterRoutes(mux, func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, req *http.Request) {
			wrapped = append(wrapped, req.URL.Path)
			next(w, req)
		}
	})

	for _, path := range []string{"/health", "/api/areas"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d", path, rec.Code)
		}
	}
	if len(wrapped) != 1 || wrapped[0] != "/api/areas" {
		t.Errorf("init middleware wrapped %v, want only /api/areas", wrapped)
	}
	if len(r.Endpoints()) != 2 {
		t.Errorf("Endpoints() = %d", len(r.Endpoints()))
	}
}

func TestClient_ErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/kind":
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(ErrorResponse{Error: "area is analyzing", Kind: "invalid_state"})
		case "/plain":
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("upstream down"))
		default:
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			json.NewEncoder(w).Encode(map[string]string{"echo": body["v"]})
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	ctx := context.Background()

	err := client.Get(ctx, "/kind", nil)
	if err == nil || !strings.Contains(err.Error(), "409, invalid_state") {
		t.Errorf("err = %v, want kind in message", err)
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict || apiErr.Kind != "invalid_state" {
		t.Errorf("errors.As(*Error) = %+v", apiErr)
	}
	err = client.Get(ctx, "/plain", nil)
	if err == nil || !strings.Contains(err.Error(), "upstream down") {
		t.Errorf("err = %v, want raw body in message", err)
	}

	var resp map[string]string
	if err := client.Post(ctx, "/echo", map[string]string{"v": "ok"}, &resp); err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if resp["echo"] != "ok" {
		t.Errorf("resp = %v", resp)
	}
}

func TestOutputToFile(t *testing.T) {
	dir := t.TempDir()
	data := []map[string]any{{"titulo": "Contratos", "paginaInicial": 4}}

	jsonPath := filepath.Join(dir, "themes.json")
	if err := OutputToFile(data, jsonPath); err != nil {
		t.Fatalf("OutputToFile() error = %v", err)
	}
	raw, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatal(err)
	}
	var back []map[string]any
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("json file is not JSON: %v\n%s", err, raw)
	}
	if back[0]["titulo"] != "Contratos" {
		t.Errorf("round trip = %v", back)
	}

	yamlPath := filepath.Join(dir, "themes.yaml")
	if err := OutputToFile(data, yamlPath); err != nil {
		t.Fatalf("OutputToFile() error = %v", err)
	}
	raw, _ = os.ReadFile(yamlPath)
	if !strings.Contains(string(raw), "titulo: Contratos") {
		t.Errorf("yaml output = %s", raw)
	}
}

func TestSetOutputFormat(t *testing.T) {
	defer SetOutputFormat("yaml")

	SetOutputFormat("json")
	if GetOutputFormat() != OutputFormatJSON {
		t.Errorf("format = %s", GetOutputFormat())
	}
	SetOutputFormat("xml")
	if GetOutputFormat() != DefaultOutput {
		t.Errorf("unknown format should fall back to %s", DefaultOutput)
	}
}
