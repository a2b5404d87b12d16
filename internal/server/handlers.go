package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/michibiki-ai/michibiki/internal/agent"
	"github.com/michibiki-ai/michibiki/internal/collect"
	"github.com/michibiki-ai/michibiki/internal/model"
	"github.com/michibiki-ai/michibiki/internal/service/advisor"
	"github.com/michibiki-ai/michibiki/internal/storage"
)

// Advisor is the slice of advisor.Service the handlers use. Declared here so
// handler tests can substitute a fake.
type Advisor interface {
	RunAnalysis(ctx context.Context, req model.AnalyzeRequest, onProgress agent.ProgressFunc) (model.Recommendation, error)
	GetRecommendation(ctx context.Context, id uuid.UUID) (model.Recommendation, error)
	ListRecommendations(ctx context.Context, filters model.RecommendationFilters, limit, offset int) ([]model.Recommendation, error)
	RecordDecision(ctx context.Context, id uuid.UUID, req model.DecisionRequest) (model.Recommendation, error)
	Scenarios() []model.ScenarioInfo
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	advisor             Advisor
	db                  *storage.DB
	broker              *Broker
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	providerName        string
	maxRequestBodyBytes int64
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): Broker.
type HandlersDeps struct {
	Advisor             Advisor
	DB                  *storage.DB
	Broker              *Broker
	Logger              *slog.Logger
	Version             string
	ProviderName        string
	MaxRequestBodyBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		advisor:             d.Advisor,
		db:                  d.DB,
		broker:              d.Broker,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		providerName:        d.ProviderName,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
	}
}

// HandleAnalyze handles POST /v1/analyze. The run executes synchronously and
// the finalized recommendation comes back in one response. Clients that want
// progress use the stream variant.
func (h *Handlers) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req model.AnalyzeRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	rec, err := h.advisor.RunAnalysis(r.Context(), req, nil)
	if err != nil {
		h.writeRunError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, rec)
}

// HandleAnalyzeStream handles GET /v1/analyze/stream. Pipeline progress is
// streamed as SSE progress events, terminated by a recommendation event on
// success or an error event on failure.
func (h *Handlers) HandleAnalyzeStream(w http.ResponseWriter, r *http.Request) {
	req := model.AnalyzeRequest{
		CampaignID:   r.URL.Query().Get("campaign_id"),
		Scenario:     r.URL.Query().Get("scenario"),
		LookbackDays: queryInt(r, "lookback_days", 0),
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Disable the server's WriteTimeout for this long-lived connection.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})
	_ = rc.Flush()

	// Progress events arrive from the orchestrator's goroutine; the buffer
	// covers the handful of state transitions one run emits. All writes stay
	// on this goroutine.
	events := make(chan model.ProgressEvent, 16)
	type runResult struct {
		rec model.Recommendation
		err error
	}
	result := make(chan runResult, 1)

	go func() {
		rec, err := h.advisor.RunAnalysis(r.Context(), req, func(ev model.ProgressEvent) {
			select {
			case events <- ev:
			case <-r.Context().Done():
			}
		})
		close(events)
		result <- runResult{rec: rec, err: err}
	}()

	for ev := range events {
		if !h.writeSSE(w, rc, "progress", ev) {
			return
		}
	}

	res := <-result
	if res.err != nil {
		if r.Context().Err() == nil {
			h.writeSSE(w, rc, "error", map[string]string{"message": res.err.Error()})
		}
		return
	}
	h.writeSSE(w, rc, "recommendation", res.rec)
}

// writeSSE marshals the payload as one SSE event. Returns false when the
// client has gone away.
func (h *Handlers) writeSSE(w http.ResponseWriter, rc *http.ResponseController, event string, payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("sse marshal failed", "event", event, "error", err)
		return true
	}
	if _, err := w.Write(formatSSE(event, string(data))); err != nil {
		return false
	}
	_ = rc.Flush()
	return true
}

// HandleListRecommendations handles GET /v1/recommendations.
func (h *Handlers) HandleListRecommendations(w http.ResponseWriter, r *http.Request) {
	filters, err := recommendationFilters(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	limit := queryLimit(r, 50)
	offset := queryOffset(r)

	// Fetch one extra row to compute has_more without a count query.
	recs, err := h.advisor.ListRecommendations(r.Context(), filters, limit+1, offset)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "list recommendations failed")
		return
	}
	hasMore := len(recs) > limit
	if hasMore {
		recs = recs[:limit]
	}
	writeList(w, r, recs, hasMore, limit, offset)
}

// HandleGetRecommendation handles GET /v1/recommendations/{id}.
func (h *Handlers) HandleGetRecommendation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid recommendation id")
		return
	}

	rec, err := h.advisor.GetRecommendation(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "recommendation not found")
		return
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "get recommendation failed")
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}

// HandleDecision handles POST /v1/recommendations/{id}/decision.
func (h *Handlers) HandleDecision(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid recommendation id")
		return
	}

	var req model.DecisionRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, model.ErrCodeInvalidInput, err.Error())
		return
	}

	rec, err := h.advisor.RecordDecision(r.Context(), id, req)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "recommendation not found")
		return
	case errors.Is(err, storage.ErrDecisionConflict):
		writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "decision already recorded")
		return
	case errors.Is(err, advisor.ErrInvalidRequest):
		writeError(w, r, http.StatusUnprocessableEntity, model.ErrCodeInvalidInput, err.Error())
		return
	case err != nil:
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "record decision failed")
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}

// HandleScenarios handles GET /v1/scenarios.
func (h *Handlers) HandleScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.advisor.Scenarios())
}

// HandleSubscribe handles GET /v1/subscribe: a firehose of recommendation
// and decision notifications over SSE.
func (h *Handlers) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	if h.broker == nil {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeInternalError,
			"SSE not available (LISTEN/NOTIFY not configured)")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Disable the server's WriteTimeout for this long-lived connection.
	// Without this, idle SSE connections are killed after WriteTimeout.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})
	_ = rc.Flush()

	ch := h.broker.Subscribe()
	defer h.broker.Unsubscribe(ch)

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			if _, err := w.Write([]byte(":keepalive\n\n")); err != nil {
				return
			}
			_ = rc.Flush()
		case event, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(event); err != nil {
				return
			}
			_ = rc.Flush()
		}
	}
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	pgStatus := "connected"
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.db.Ping(r.Context()); err != nil {
		pgStatus = "disconnected"
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	broker := ""
	if h.broker != nil {
		broker = "running"
	}

	writeJSON(w, r, httpStatus, model.HealthResponse{
		Status:        status,
		Version:       h.version,
		Postgres:      pgStatus,
		ModelProvider: h.providerName,
		SSEBroker:     broker,
		Uptime:        int64(time.Since(h.startedAt).Seconds()),
	})
}

// writeRunError maps a failed analysis run to the right status code.
func (h *Handlers) writeRunError(w http.ResponseWriter, r *http.Request, err error) {
	var collectErr *collect.ContextCollectionError
	var invokeErr *agent.ModelInvocationError
	var schemaErr *agent.SchemaValidationError

	switch {
	case errors.Is(err, advisor.ErrInvalidRequest):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
	case errors.As(err, &collectErr):
		writeError(w, r, http.StatusBadGateway, model.ErrCodeUpstreamFailure,
			"context collection failed: "+collectErr.Source)
	case errors.As(err, &invokeErr), errors.As(err, &schemaErr):
		writeError(w, r, http.StatusBadGateway, model.ErrCodeUpstreamFailure,
			"model invocation failed: "+err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// 499-style: the client is usually gone, but write something sane
		// in case it isn't.
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeInternalError, "run cancelled")
	default:
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "analysis run failed")
	}
}

// recommendationFilters parses list query params, validating enum values.
func recommendationFilters(r *http.Request) (model.RecommendationFilters, error) {
	var filters model.RecommendationFilters
	q := r.URL.Query()

	if v := q.Get("campaign_id"); v != "" {
		filters.CampaignID = &v
	}
	if v := q.Get("decision"); v != "" {
		if v != string(model.DecisionPending) && !model.ValidDecision(v) {
			return filters, fmt.Errorf("invalid decision filter %q", v)
		}
		d := model.DecisionStatus(v)
		filters.Decision = &d
	}
	if v := q.Get("workflow"); v != "" {
		if !model.ValidWorkflowType(v) {
			return filters, fmt.Errorf("invalid workflow filter %q", v)
		}
		wf := model.WorkflowType(v)
		filters.Workflow = &wf
	}
	if v := q.Get("needs_review"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filters, fmt.Errorf("invalid needs_review filter %q", v)
		}
		filters.NeedsReview = &b
	}
	return filters, nil
}

// maxQueryLimit is the maximum allowed value for limit query parameters.
const maxQueryLimit = 1000

// maxQueryOffset prevents absurdly large offsets that force expensive scans.
const maxQueryOffset = 100_000

func queryInt(r *http.Request, key string, defaultVal int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

// queryOffset returns a bounded, non-negative offset from query params.
func queryOffset(r *http.Request) int {
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		return 0
	}
	if offset > maxQueryOffset {
		return maxQueryOffset
	}
	return offset
}

// queryLimit returns a bounded limit value from query params.
// Values are clamped to [1, maxQueryLimit].
func queryLimit(r *http.Request, defaultVal int) int {
	limit := queryInt(r, "limit", defaultVal)
	if limit < 1 {
		return 1
	}
	if limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}
