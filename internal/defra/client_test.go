package defra

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClient_HealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    bool
	}{
		{"healthy", http.StatusOK, false},
		{"unhealthy_500", http.StatusInternalServerError, true},
		{"unhealthy_503", http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/health-check" {
					t.Errorf("unexpected path: %s", r.URL.Path)
				}
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			client := NewClient(server.URL)
			err := client.HealthCheck(context.Background())

			if (err != nil) != tt.wantErr {
				t.Errorf("HealthCheck() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestClient_HealthCheck_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	err := client.HealthCheck(ctx)
	if err == nil {
		t.Error("expected error from cancelled context")
	}
}

func TestClient_Execute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v0/graphql" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != "POST" {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content-type: %s", ct)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": {"Topic": [{"_docID": "abc123", "title": "Direito Civil"}]}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	resp, err := client.Execute(context.Background(), `{ Topic { _docID title } }`, nil)

	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if resp.Error() != "" {
		t.Errorf("unexpected GraphQL error: %s", resp.Error())
	}
	docs := resp.Docs("Topic")
	if len(docs) != 1 || docs[0]["title"] != "Direito Civil" {
		t.Errorf("Docs() = %v", docs)
	}
}

func TestClient_Execute_WithVariables(t *testing.T) {
	var received GQLRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": {"ContentArea": []}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	vars := map[string]any{"v0": "area-1"}
	_, err := client.Execute(context.Background(), `query($v0: String) { ContentArea(filter: {area_id: {_eq: $v0}}) { status } }`, vars)

	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if received.Variables["v0"] != "area-1" {
		t.Errorf("variables not sent: %v", received.Variables)
	}
}

func TestClient_Execute_GraphQLError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"errors": [{"message": "field not found"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	resp, err := client.Execute(context.Background(), `{ Invalid }`, nil)

	if err != nil {
		t.Fatalf("Execute() returned transport error: %v", err)
	}
	if resp.Error() == "" {
		t.Error("expected GraphQL error in response")
	}
	if resp.Error() != "field not found" {
		t.Errorf("unexpected error message: %s", resp.Error())
	}
}

func TestClient_Execute_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.Write([]byte(`{"data": {}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Execute(ctx, `{ Topic { title } }`, nil)
	if err == nil {
		t.Error("expected error from cancelled context")
	}
}

func TestClient_AddSchema(t *testing.T) {
	var receivedSchema string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v0/schema" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != "POST" {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "text/plain" {
			t.Errorf("unexpected content-type: %s", ct)
		}

		body := make([]byte, r.ContentLength)
		r.Body.Read(body)
		receivedSchema = string(body)

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	schema := `type Page { area_id: String }`
	err := client.AddSchema(context.Background(), schema)

	if err != nil {
		t.Fatalf("AddSchema() error = %v", err)
	}
	if receivedSchema != schema {
		t.Errorf("schema mismatch: got %q, want %q", receivedSchema, schema)
	}
}

func TestClient_AddSchema_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("invalid schema syntax"))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	err := client.AddSchema(context.Background(), `invalid {`)

	if err == nil {
		t.Error("expected error for invalid schema")
	}
}

func TestClient_Create(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": {"create_BatchJob": [{"_docID": "bae-abc123"}]}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	docID, err := client.Create(context.Background(), "BatchJob", map[string]any{
		"job_type": "cover_image",
		"status":   "pending",
	})

	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if docID != "bae-abc123" {
		t.Errorf("unexpected docID: %s", docID)
	}
}

// captureServer answers every GraphQL request with body and records the
// last query it saw.
func captureServer(t *testing.T, body string) (*httptest.Server, *string) {
	t.Helper()
	var last string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		var req GQLRequest
		if err := json.Unmarshal(b, &req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		last = req.Query
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, &last
}

func TestClient_Query_GraphQLErrorBecomesError(t *testing.T) {
	server, _ := captureServer(t, `{"errors": [{"message": "unknown collection"}]}`)
	client := NewClient(server.URL)

	_, err := client.Query(context.Background(), `{ Nope { _docID } }`, nil)
	if err == nil || !strings.Contains(err.Error(), "unknown collection") {
		t.Fatalf("Query() error = %v, want GraphQL message", err)
	}
}

func TestClient_Upsert(t *testing.T) {
	server, last := captureServer(t, `{"data": {"upsert_Page": [{"_docID": "bae-page"}]}}`)
	client := NewClient(server.URL)

	id, err := client.Upsert(context.Background(), "Page",
		Eq(map[string]any{"area_id": "a1", "page_number": 3}),
		map[string]any{"area_id": "a1", "page_number": 3, "text": "Art. 5º"},
		map[string]any{"text": "Art. 5º"},
	)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if id != "bae-page" {
		t.Errorf("Upsert() id = %q", id)
	}
	want := `upsert_Page(filter: {area_id: {_eq: "a1"}, page_number: {_eq: 3}}`
	if !strings.Contains(*last, want) {
		t.Errorf("query %q does not contain %q", *last, want)
	}
}

func TestClient_CreateMany(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"all created", `{"data": {"create_Topic": [{"_docID": "b", "position": 2}, {"_docID": "a", "position": 1}]}}`, false},
		{"short response", `{"data": {"create_Topic": [{"_docID": "a", "position": 1}]}}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, last := captureServer(t, tt.body)
			client := NewClient(server.URL)

			docs, err := client.CreateMany(context.Background(), "Topic", []map[string]any{
				{"title": "Contratos", "position": 1},
				{"title": "Posse", "position": 2},
			}, "position")
			if (err != nil) != tt.wantErr {
				t.Fatalf("CreateMany() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !strings.Contains(*last, "{ _docID position }") {
				t.Errorf("return fields missing from %q", *last)
			}
			if !tt.wantErr && len(docs) != 2 {
				t.Errorf("got %d docs", len(docs))
			}
		})
	}
}

func TestClient_CreateMany_Empty(t *testing.T) {
	client := NewClient("http://127.0.0.1:1")
	docs, err := client.CreateMany(context.Background(), "Topic", nil)
	if err != nil || docs != nil {
		t.Errorf("CreateMany(nil) = %v, %v", docs, err)
	}
}

func TestClient_DeleteWhere(t *testing.T) {
	server, last := captureServer(t, `{"data": {"delete_TopicPage": [{"_docID": "x"}, {"_docID": "y"}]}}`)
	client := NewClient(server.URL)

	n, err := client.DeleteWhere(context.Background(), "TopicPage", map[string]any{
		"topic_id": map[string]any{"_in": []string{"t1", "t2"}},
	})
	if err != nil {
		t.Fatalf("DeleteWhere() error = %v", err)
	}
	if n != 2 {
		t.Errorf("DeleteWhere() = %d, want 2", n)
	}
	if !strings.Contains(*last, `topic_id: {_in: ["t1", "t2"]}`) {
		t.Errorf("unexpected filter in %q", *last)
	}
}

func TestClient_Update_RejectsUnsafeID(t *testing.T) {
	client := NewClient("http://127.0.0.1:1")
	err := client.Update(context.Background(), "Topic", `x") { _docID } } mutation {`, map[string]any{"title": "t"})
	if err == nil {
		t.Fatal("expected error for unsafe ID")
	}
}

func TestClient_URLNormalization(t *testing.T) {
	if got := NewClient("http://localhost:9181/").URL(); got != "http://localhost:9181" {
		t.Errorf("URL not normalized: %s", got)
	}
	if got := NewClient("http://localhost:9181").URL(); got != "http://localhost:9181" {
		t.Errorf("URL changed unexpectedly: %s", got)
	}
}

func TestMapToGraphQLInput(t *testing.T) {
	tests := []struct {
		name  string
		input map[string]any
		want  string
	}{
		{"string value", map[string]any{"title": "Teoria Geral"}, `{title: "Teoria Geral"}`},
		{"quotes escaped", map[string]any{"title": `"x"`}, `{title: "\"x\""}`},
		{"int value", map[string]any{"count": 42}, `{count: 42}`},
		{"bool value", map[string]any{"active": true}, `{active: true}`},
		{"nil value", map[string]any{"cover_ref": nil}, `{cover_ref: null}`},
		{"string list", map[string]any{"subtopics": []string{"a", "b"}}, `{subtopics: ["a", "b"]}`},
		{"sorted keys", map[string]any{"b": 1, "a": 2}, `{a: 2, b: 1}`},
		{"nested", map[string]any{"n": map[string]any{"_eq": 1}}, `{n: {_eq: 1}}`},
		{"empty map", map[string]any{}, `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mapToGraphQLInput(tt.input)
			if err != nil {
				t.Fatalf("mapToGraphQLInput() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("mapToGraphQLInput() = %s, want %s", got, tt.want)
			}
		})
	}
}
