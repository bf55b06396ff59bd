package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackzampolin/temario/internal/keypool"
)

func TestOpenAIChatClient_Generate(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected authorization: %s", auth)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "olá"}}]
		}`))
	}))
	defer server.Close()

	client := NewOpenAIChatClient(OpenAIConfig{BaseURL: server.URL + "/"})
	text, err := client.Generate(context.Background(), GenerateRequest{Prompt: "oi", JSON: true}, testCred)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if text != "olá" {
		t.Errorf("Generate() = %q", text)
	}
	if got["model"] != OpenAIDefaultChatModel {
		t.Errorf("model = %v", got["model"])
	}
	rf, _ := got["response_format"].(map[string]any)
	if rf["type"] != "json_object" {
		t.Errorf("response_format = %v", got["response_format"])
	}
}

func TestOpenAIChatClient_RateLimited(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "slow down", "type": "requests", "code": "rate_limit_exceeded"}}`))
	}))
	defer server.Close()

	client := NewOpenAIChatClient(OpenAIConfig{BaseURL: server.URL + "/"})
	_, err := client.Generate(context.Background(), GenerateRequest{Prompt: "x"}, testCred)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Generate() error = %v (%T), want *APIError", err, err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests || apiErr.RetryAfter.Seconds() != 2 {
		t.Errorf("APIError = %+v", apiErr)
	}
	if keypool.Classify(err) != keypool.Soft {
		t.Error("429 must classify as soft")
	}
	if calls != 1 {
		t.Errorf("SDK retried: %d calls, want 1", calls)
	}
}

func TestOpenAIImageClient_GenerateImage(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/images/generations") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"created": 1,
			"data":    []map[string]any{{"b64_json": base64.StdEncoding.EncodeToString(png)}},
		})
	}))
	defer server.Close()

	t.Run("gpt-image", func(t *testing.T) {
		client := NewOpenAIImageClient(OpenAIConfig{BaseURL: server.URL + "/"})
		img, err := client.GenerateImage(context.Background(), "capa sobre contratos", testCred)
		if err != nil {
			t.Fatalf("GenerateImage() error = %v", err)
		}
		if string(img.Data) != string(png) || img.ContentType != "image/png" {
			t.Errorf("image = %d bytes, %s", len(img.Data), img.ContentType)
		}
		if got["prompt"] != "capa sobre contratos" || got["size"] != OpenAIDefaultImageSize {
			t.Errorf("request = %v", got)
		}
		if _, ok := got["response_format"]; ok {
			t.Error("gpt-image request must not set response_format")
		}
	})

	t.Run("dall-e asks for base64", func(t *testing.T) {
		client := NewOpenAIImageClient(OpenAIConfig{BaseURL: server.URL + "/", Model: "dall-e-3"})
		if _, err := client.GenerateImage(context.Background(), "x", testCred); err != nil {
			t.Fatalf("GenerateImage() error = %v", err)
		}
		if got["response_format"] != "b64_json" {
			t.Errorf("response_format = %v", got["response_format"])
		}
	})
}

func TestOpenAIImageClient_NoData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"created": 1, "data": []}`))
	}))
	defer server.Close()

	client := NewOpenAIImageClient(OpenAIConfig{BaseURL: server.URL + "/"})
	if _, err := client.GenerateImage(context.Background(), "x", testCred); err == nil {
		t.Fatal("expected error for empty data")
	}
}
