package michibiki

import (
	"context"
	"encoding/json"
	"net/http"
)

// ModelRequest is one structured-output model call. Schema is raw JSON
// Schema text so external providers don't depend on internal schema types.
type ModelRequest struct {
	System      string
	Prompt      string
	Schema      json.RawMessage
	Temperature float32
}

// ModelProvider executes structured-output model calls.
// When provided via WithModelProvider, replaces the auto-detected
// Gemini/Ollama provider for every pipeline stage.
type ModelProvider interface {
	Invoke(ctx context.Context, req ModelRequest) (json.RawMessage, error)
	Name() string
}

// EmbeddingProvider generates vector embeddings from text.
// When provided via WithEmbeddingProvider, replaces auto-detected
// Ollama/noop. Uses []float32 (not pgvector.Vector) to avoid forcing the
// pgvector dependency on external consumers.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// ContextCollector fetches live campaign context from an ad platform.
// Required when MICHIBIKI_COLLECTOR_MODE=live; ignored in simulated mode.
// All three collect calls may run concurrently for the same run.
type ContextCollector interface {
	CollectCampaignMetrics(ctx context.Context, campaignID string, lookbackDays int) (CampaignSnapshot, error)
	CollectCreativeMetrics(ctx context.Context, campaignID string, lookbackDays int) (CreativeSnapshot, error)
	CollectCompetitorSignals(ctx context.Context, campaignID string, lookbackDays int) (CompetitorSnapshot, error)
}

// EventHook receives notifications after ledger lifecycle events commit.
// Multiple hooks may be registered via multiple WithEventHook calls.
// Hook methods are called synchronously after the durable write — they must
// not block. Failures are the hook's own problem.
type EventHook interface {
	OnRecommendationFinalized(ctx context.Context, rec Recommendation)
	OnDecisionRecorded(ctx context.Context, rec Recommendation)
}

// RouteRegistrar registers additional routes on the shared HTTP mux.
// Extra routes share the mux, middleware chain, and OTEL instrumentation
// with built-in routes. Called once during New() after built-in routes.
type RouteRegistrar func(mux *http.ServeMux)

// Middleware wraps the root HTTP handler.
// Applied outermost (before routing), so it sees all requests including
// /health. Multiple middlewares are applied in registration order
// (first-registered = outermost).
type Middleware func(http.Handler) http.Handler
