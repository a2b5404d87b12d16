package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOllamaEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("path = %q, want /api/embeddings", r.URL.Path)
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "mxbai-embed-large" {
			t.Errorf("model = %q", req.Model)
		}
		if req.Prompt == "" {
			t.Error("empty prompt")
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{
			Embedding: []float32{0.1, 0.2, 0.3, 0.4},
		})
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL, "mxbai-embed-large", 4)
	vec, err := p.Embed(context.Background(), "root_cause: creative_fatigue")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if got := vec.Slice(); len(got) != 4 || got[0] != 0.1 {
		t.Errorf("vector = %v", got)
	}
}

func TestOllamaEmbedDimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{0.1, 0.2}})
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL, "mxbai-embed-large", 1024)
	_, err := p.Embed(context.Background(), "text")
	if err == nil {
		t.Fatal("dimension mismatch accepted")
	}
	if !strings.Contains(err.Error(), "dimensions") {
		t.Errorf("error = %v", err)
	}
}

func TestOllamaEmbedServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL, "mxbai-embed-large", 4)
	_, err := p.Embed(context.Background(), "text")
	if err == nil {
		t.Fatal("server error accepted")
	}
	if !strings.Contains(err.Error(), "model not loaded") {
		t.Errorf("error %v does not carry the upstream body", err)
	}
}

func TestNoopProvider(t *testing.T) {
	p := NewNoopProvider(8)
	if p.Dimensions() != 8 {
		t.Errorf("dimensions = %d, want 8", p.Dimensions())
	}

	vec, err := p.Embed(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	vals := vec.Slice()
	if len(vals) != 8 {
		t.Fatalf("vector length = %d, want 8", len(vals))
	}
	for i, v := range vals {
		if v != 0 {
			t.Fatalf("vals[%d] = %v, want 0", i, v)
		}
	}
}
