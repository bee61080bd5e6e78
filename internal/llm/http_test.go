package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPClientGenerate(t *testing.T) {
	var captured struct {
		Model    string    `json:"model"`
		Messages []Message `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing auth header")
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "It began in 1910."}},
			},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "test-key", "test-model", 5*time.Second)
	got, err := c.Generate(context.Background(), []Message{{Role: "user", Content: "when?"}}, "The Revolution began in 1910.", "You are an expert.")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "It began in 1910." {
		t.Fatalf("Generate = %q", got)
	}

	if captured.Model != "test-model" {
		t.Fatalf("model = %q", captured.Model)
	}
	if len(captured.Messages) != 3 {
		t.Fatalf("messages = %+v", captured.Messages)
	}
	if captured.Messages[0].Role != "system" || captured.Messages[2].Role != "user" {
		t.Fatalf("message order = %+v", captured.Messages)
	}
}

func TestHTTPClientGenerateErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "over quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", "m", time.Second)
	if _, err := c.Generate(context.Background(), []Message{{Role: "user", Content: "hi"}}, "", ""); err == nil {
		t.Fatalf("expected error on 429")
	}
}

func TestHTTPClientFlatTextResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"text": "plain answer"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", "m", time.Second)
	got, err := c.Generate(context.Background(), []Message{{Role: "user", Content: "hi"}}, "", "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "plain answer" {
		t.Fatalf("Generate = %q", got)
	}
}
