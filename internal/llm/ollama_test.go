package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOllamaInvoke(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q, want /api/chat", r.URL.Path)
		}
		var req ollamaChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("streaming requested for a structured call")
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
			t.Errorf("messages = %+v", req.Messages)
		}
		if len(req.Format) == 0 {
			t.Error("schema not passed as format")
		}
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{
			Message: ollamaChatMessage{Role: "assistant", Content: ` {"root_cause": "creative_fatigue"} `},
		})
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL, "llama3.1:8b")
	raw, err := p.Invoke(context.Background(), Request{
		System:      "You diagnose campaigns.",
		Prompt:      "Diagnose this.",
		Schema:      &Schema{Type: "object"},
		Temperature: 0.2,
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	// Whitespace around the model output is trimmed.
	if string(raw) != `{"root_cause": "creative_fatigue"}` {
		t.Errorf("raw = %q", raw)
	}
}

func TestOllamaInvokeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL, "llama3.1:8b")
	_, err := p.Invoke(context.Background(), Request{Prompt: "x"})
	if err == nil {
		t.Fatal("server error accepted")
	}
	if !strings.Contains(err.Error(), "model not found") {
		t.Errorf("error %v does not carry the upstream body", err)
	}
}

func TestOllamaInvokeEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{})
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL, "llama3.1:8b")
	_, err := p.Invoke(context.Background(), Request{Prompt: "x"})
	if err == nil || !strings.Contains(err.Error(), "empty response") {
		t.Fatalf("err = %v, want empty response error", err)
	}
}

func TestOllamaName(t *testing.T) {
	p := NewOllamaProvider("", "llama3.1:8b")
	if p.Name() != "ollama/llama3.1:8b" {
		t.Errorf("name = %q", p.Name())
	}
}

func TestReachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	if !Reachable(server.URL) {
		t.Error("running server reported unreachable")
	}

	server.Close()
	if Reachable(server.URL) {
		t.Error("closed server reported reachable")
	}
}
