package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackzampolin/temario/internal/defra"
)

// fakeNode answers health checks and collection listings. Collections
// absent from docs produce a GraphQL error.
func fakeNode(t *testing.T, docs map[string]int, healthyAfter int32) *httptest.Server {
	t.Helper()
	var checks atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health-check":
			if checks.Add(1) <= healthyAfter {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		case "/api/v0/graphql":
			var req defra.GQLRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode request: %v", err)
				return
			}
			coll := strings.Fields(req.Query)[1]
			n, ok := docs[coll]
			if !ok {
				json.NewEncoder(w).Encode(map[string]any{
					"errors": []map[string]any{{"message": "unknown collection " + coll}},
				})
				return
			}
			list := make([]map[string]any, n)
			for i := range list {
				list[i] = map[string]any{"_docID": "bae-" + coll}
			}
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{coll: list}})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestPrintCollectionCounts(t *testing.T) {
	server := fakeNode(t, map[string]int{
		"ContentArea": 2, "Page": 40, "Topic": 6, "TopicPage": 40, "BatchJob": 1,
	}, 0)

	var out bytes.Buffer
	if err := printCollectionCounts(context.Background(), &out, defra.NewClient(server.URL)); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	for _, want := range []string{"ContentArea  2", "Page         40", "Topic        6", "BatchJob     1"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if !strings.Contains(got, "BatchResult  missing") {
		t.Errorf("unknown collection not reported as missing:\n%s", got)
	}
}

func TestWaitHealthy(t *testing.T) {
	t.Run("becomes healthy", func(t *testing.T) {
		server := fakeNode(t, nil, 1)
		if err := waitHealthy(context.Background(), defra.NewClient(server.URL), 5*time.Second); err != nil {
			t.Errorf("waitHealthy() error = %v", err)
		}
	})

	t.Run("never healthy", func(t *testing.T) {
		server := fakeNode(t, nil, 1000)
		if err := waitHealthy(context.Background(), defra.NewClient(server.URL), 2*time.Second); err == nil {
			t.Error("waitHealthy() should fail for an unhealthy node")
		}
	})
}

func TestDefraTarget_CloseUnmanaged(t *testing.T) {
	target := &defraTarget{url: "http://defra.internal:9181"}
	if err := target.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
