package endpoints

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/temario/internal/api"
	"github.com/jackzampolin/temario/internal/blob"
	"github.com/jackzampolin/temario/internal/fault"
	"github.com/jackzampolin/temario/internal/keypool"
	"github.com/jackzampolin/temario/internal/pipeline"
	"github.com/jackzampolin/temario/internal/providers"
	"github.com/jackzampolin/temario/internal/store"
	"github.com/jackzampolin/temario/internal/structure"
	"github.com/jackzampolin/temario/internal/svcctx"
	"github.com/jackzampolin/temario/internal/testutil"
	"github.com/jackzampolin/temario/internal/types"
)

const themesJSON = `{"temas": [
  {"ordem": 1, "titulo": "Parte Geral - I", "paginaInicial": 1, "paginaFinal": 2},
  {"ordem": 2, "titulo": "Parte Geral - II", "paginaInicial": 3, "paginaFinal": 3},
  {"ordem": 3, "titulo": "Contratos", "paginaInicial": 4, "paginaFinal": 6}
]}`

type testEnv struct {
	handler http.Handler
	docURL  string
}

// newTestEnv serves every endpoint over a memory store with mock providers.
// The orchestrator runs until the test ends.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := testutil.Logger()

	docs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("x"), 256)...))
	}))
	t.Cleanup(docs.Close)

	ocr := &providers.MockOCR{}
	for n := 1; n <= 6; n++ {
		ocr.Pages = append(ocr.Pages, providers.OCRPage{Number: n, Text: fmt.Sprintf("texto da página %d sobre direito civil", n)})
	}

	reg := providers.NewRegistry(logger)
	pool, err := keypool.NewPool("mock", []string{"k1", "k2"})
	if err != nil {
		t.Fatal(err)
	}
	reg.RegisterOCR("mock", ocr, pool)
	reg.RegisterLLM("mock", &providers.MockGenerator{Response: themesJSON}, pool)
	reg.RegisterImage("mock", &providers.MockImageGenerator{Data: []byte("\x89PNG\r\n\x1a\ncover")}, pool)

	local, err := blob.NewLocal(t.TempDir(), "http://127.0.0.1:8080/static")
	if err != nil {
		t.Fatal(err)
	}

	rot := keypool.NewRotator(keypool.Config{Logger: logger})
	svc := pipeline.New(pipeline.Config{
		Store:     store.NewMemory(),
		Providers: reg,
		Rotator:   rot,
		Fetcher:   blob.NewHTTPFetcher(docs.Client()),
		Storage:   local,
		Settings: pipeline.Settings{
			RepairOverlaps: true,
			Concurrency:    2,
			TempDir:        t.TempDir(),
		},
		CountPages: func(io.ReadSeeker) (int, error) { return 6, nil },
		Logger:     logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.Jobs().Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	services := &svcctx.Services{
		Pipeline: svc,
		Jobs:     svc.Jobs(),
		Registry: reg,
		Rotator:  rot,
		Logger:   logger,
	}
	return &testEnv{handler: serve(services, "memory"), docURL: docs.URL + "/civil.pdf"}
}

func serve(services *svcctx.Services, backend string) http.Handler {
	registry := api.NewRegistry()
	for _, ep := range All(Config{StoreBackend: backend}) {
		registry.Register(ep)
	}
	mux := http.NewServeMux()
	registry.RegisterRoutes(mux, func(next http.HandlerFunc) http.HandlerFunc { return next })
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, r.WithContext(svcctx.WithServices(r.Context(), services)))
	})
}

func (e *testEnv) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code
}

func TestStatusForKind(t *testing.T) {
	tests := []struct {
		kind fault.Kind
		want int
	}{
		{fault.InvalidInput, http.StatusBadRequest},
		{fault.NotFound, http.StatusNotFound},
		{fault.InvalidState, http.StatusConflict},
		{fault.UnsupportedSource, http.StatusUnprocessableEntity},
		{fault.UnsupportedFormat, http.StatusUnprocessableEntity},
		{fault.RateLimitExhausted, http.StatusTooManyRequests},
		{fault.OCRService, http.StatusBadGateway},
		{fault.StructuringParse, http.StatusBadGateway},
		{fault.Persistence, http.StatusServiceUnavailable},
		{"", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := StatusForKind(tt.kind); got != tt.want {
				t.Errorf("StatusForKind(%q) = %d, want %d", tt.kind, got, tt.want)
			}
		})
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	var health HealthResponse
	if code := env.do(t, "GET", "/health", nil, &health); code != http.StatusOK || health.Status != "ok" {
		t.Errorf("health = %d %+v", code, health)
	}

	var ready HealthResponse
	if code := env.do(t, "GET", "/ready", nil, &ready); code != http.StatusOK || ready.Store != "ok" {
		t.Errorf("ready = %d %+v", code, ready)
	}

	var status StatusResponse
	if code := env.do(t, "GET", "/status", nil, &status); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if status.Store != "memory" || status.Defra != nil {
		t.Errorf("status store = %q defra = %+v", status.Store, status.Defra)
	}
	if labels := status.Providers.OCR["mock"]; len(labels) != 2 {
		t.Errorf("ocr labels = %v", labels)
	}
	if strings.Join(status.JobTypes, ",") != "cover_image,text_generate" {
		t.Errorf("job types = %v", status.JobTypes)
	}
}

func TestReady_NotInitialized(t *testing.T) {
	h := serve(&svcctx.Services{}, "defra")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ready = %d, want 503", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/areas", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("areas = %d, want 503", rec.Code)
	}
}

func TestAreaWorkflow(t *testing.T) {
	env := newTestEnv(t)

	var ing struct {
		DocumentPages int              `json:"document_pages"`
		Status        types.AreaStatus `json:"status"`
	}
	if code := env.do(t, "POST", "/api/areas/civil/ingest", IngestRequest{DocumentURL: env.docURL}, &ing); code != http.StatusOK {
		t.Fatalf("ingest = %d", code)
	}
	if ing.DocumentPages != 6 || ing.Status != types.AreaAnalyzing {
		t.Errorf("ingest result = %+v", ing)
	}

	var report pipeline.AreaReport
	env.do(t, "GET", "/api/areas/civil", nil, &report)
	if report.StoredPages != 6 || strings.Join(report.NextStages, ",") != "ingest,analyze,commit" {
		t.Errorf("report = %+v", report)
	}

	var analysis structure.Analysis
	if code := env.do(t, "POST", "/api/areas/civil/analyze", nil, &analysis); code != http.StatusOK {
		t.Fatalf("analyze = %d", code)
	}
	if len(analysis.Normalized) != 2 {
		t.Fatalf("normalized = %+v", analysis.Normalized)
	}

	var commit structure.CommitResult
	if code := env.do(t, "POST", "/api/areas/civil/commit", CommitRequest{Themes: analysis.Normalized}, &commit); code != http.StatusOK {
		t.Fatalf("commit = %d", code)
	}
	if commit.TopicsCreated != 2 || commit.PagesLinked != 6 {
		t.Errorf("commit = %+v", commit)
	}

	var topics ListTopicsResponse
	env.do(t, "GET", "/api/areas/civil/topics", nil, &topics)
	if len(topics.Topics) != 2 || topics.Topics[0].Title != "Parte Geral" {
		t.Fatalf("topics = %+v", topics.Topics)
	}

	var tp TopicPagesResponse
	if code := env.do(t, "GET", "/api/topics/"+topics.Topics[1].ID+"/pages", nil, &tp); code != http.StatusOK {
		t.Fatalf("topic pages = %d", code)
	}
	if len(tp.Pages) != 3 || tp.Pages[0].PageNumber != 4 {
		t.Errorf("topic pages = %+v", tp.Pages)
	}

	var pages ListPagesResponse
	env.do(t, "GET", "/api/areas/civil/pages?start=2&end=3", nil, &pages)
	if pages.Total != 2 || pages.Pages[0].PageNumber != 2 {
		t.Errorf("pages = %+v", pages)
	}

	var areas ListAreasResponse
	env.do(t, "GET", "/api/areas", nil, &areas)
	if len(areas.Areas) != 1 || areas.Areas[0].Status != types.AreaReady {
		t.Errorf("areas = %+v", areas.Areas)
	}

	// Covers run in the background; poll until the job finishes.
	var cover pipeline.CoverJob
	if code := env.do(t, "POST", "/api/areas/civil/covers", CoversRequest{AreaDefault: true}, &cover); code != http.StatusAccepted {
		t.Fatalf("covers = %d", code)
	}
	if cover.Items != 3 {
		t.Errorf("cover items = %d, want 3", cover.Items)
	}

	deadline := time.Now().Add(5 * time.Second)
	var progress types.BatchProgress
	for time.Now().Before(deadline) {
		env.do(t, "GET", "/api/jobs/"+cover.JobID+"/status", nil, &progress)
		if progress.Status.Terminal() {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if progress.Status != types.BatchCompleted || progress.CompletedItems != 3 {
		t.Fatalf("progress = %+v", progress)
	}

	env.do(t, "GET", "/api/areas/civil/topics", nil, &topics)
	for _, topic := range topics.Topics {
		if topic.CoverRef == "" {
			t.Errorf("topic %q has no cover", topic.Title)
		}
	}
}

func TestAreaErrors(t *testing.T) {
	env := newTestEnv(t)
	if code := env.do(t, "POST", "/api/areas/civil/ingest", IngestRequest{DocumentURL: env.docURL}, nil); code != http.StatusOK {
		t.Fatalf("ingest = %d", code)
	}

	tests := []struct {
		name     string
		method   string
		path     string
		body     any
		wantCode int
		wantKind fault.Kind
	}{
		{"unknown area", "GET", "/api/areas/penal", nil, http.StatusNotFound, fault.NotFound},
		{"bad page param", "GET", "/api/areas/civil/pages?start=x", nil, http.StatusBadRequest, fault.InvalidInput},
		{"inverted range", "GET", "/api/areas/civil/pages?start=5&end=2", nil, http.StatusBadRequest, fault.InvalidInput},
		{"covers before commit", "POST", "/api/areas/civil/covers", nil, http.StatusConflict, fault.InvalidState},
		{"unknown topic", "GET", "/api/topics/nope/pages", nil, http.StatusNotFound, fault.NotFound},
		{"ingest without url", "POST", "/api/areas/civil/ingest", IngestRequest{}, http.StatusBadRequest, fault.InvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp ErrorResponse
			code := env.do(t, tt.method, tt.path, tt.body, &resp)
			if code != tt.wantCode {
				t.Errorf("code = %d, want %d (%s)", code, tt.wantCode, resp.Error)
			}
			if fault.Kind(resp.Kind) != tt.wantKind {
				t.Errorf("kind = %q, want %q", resp.Kind, tt.wantKind)
			}
		})
	}
}

func TestJobEndpoints(t *testing.T) {
	env := newTestEnv(t)

	req := map[string]any{
		"type":    "text_generate",
		"items":   []map[string]string{{"id": "a", "prompt": "resuma"}, {"id": "b", "prompt": "liste"}},
		"context": map[string]string{"system": "você é um professor"},
	}
	var created CreateJobResponse
	if code := env.do(t, "POST", "/api/jobs", req, &created); code != http.StatusAccepted || created.JobID == "" {
		t.Fatalf("create = %d %+v", code, created)
	}

	deadline := time.Now().Add(5 * time.Second)
	var job types.BatchJob
	for time.Now().Before(deadline) {
		env.do(t, "GET", "/api/jobs/"+created.JobID, nil, &job)
		if job.Status.Terminal() {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if job.Status != types.BatchCompleted || len(job.Results) != 2 {
		t.Fatalf("job = %+v", job)
	}

	var list ListJobsResponse
	env.do(t, "GET", "/api/jobs?status=completed", nil, &list)
	if len(list.Jobs) != 1 || list.Jobs[0].ID != created.JobID {
		t.Errorf("completed jobs = %+v", list.Jobs)
	}

	tests := []struct {
		name     string
		method   string
		path     string
		body     any
		wantCode int
	}{
		{"unknown type", "POST", "/api/jobs", map[string]any{"type": "ocr_book", "items": []map[string]string{{"prompt": "x"}}}, http.StatusBadRequest},
		{"no type", "POST", "/api/jobs", map[string]any{}, http.StatusBadRequest},
		{"no items", "POST", "/api/jobs", map[string]any{"type": "text_generate"}, http.StatusBadRequest},
		{"missing job", "GET", "/api/jobs/nope/status", nil, http.StatusNotFound},
		{"bad status filter", "GET", "/api/jobs?status=done", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := env.do(t, tt.method, tt.path, tt.body, nil); code != tt.wantCode {
				t.Errorf("code = %d, want %d", code, tt.wantCode)
			}
		})
	}
}

func TestSwaggerEndpoint(t *testing.T) {
	env := newTestEnv(t)

	var spec map[string]any
	if code := env.do(t, "GET", "/swagger.json", nil, &spec); code != http.StatusOK {
		t.Fatalf("swagger = %d", code)
	}
	info, _ := spec["info"].(map[string]any)
	if info["title"] != "temario API" {
		t.Errorf("title = %v", info["title"])
	}
	paths, _ := spec["paths"].(map[string]any)
	if _, ok := paths["/api/areas/{id}/ingest"]; !ok {
		t.Error("ingest path missing from spec")
	}
}

func TestDecodeBody_Invalid(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("POST", "/api/areas/civil/commit", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400", rec.Code)
	}
}
