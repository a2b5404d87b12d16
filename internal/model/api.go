package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Field length limits for decision requests. These keep reviewer-supplied
// text from filling Postgres TEXT columns with unbounded input.
const (
	MaxFeedbackLen  = 16 * 1024 // 16 KB
	MaxDecidedByLen = 200
)

// AnalyzeRequest is the request body for POST /v1/analyze.
type AnalyzeRequest struct {
	CampaignID   string `json:"campaign_id"`
	LookbackDays int    `json:"lookback_days,omitempty"` // Defaults to 7 when zero.
	Scenario     string `json:"scenario,omitempty"`      // Simulated-collector fixture name; empty uses live collectors.
}

// Validate checks request fields that the pipeline depends on.
func (r AnalyzeRequest) Validate() error {
	if r.CampaignID == "" {
		return fmt.Errorf("campaign_id is required")
	}
	if r.LookbackDays < 0 || r.LookbackDays > 90 {
		return fmt.Errorf("lookback_days must be in [0, 90]")
	}
	return nil
}

// DecisionRequest is the request body for POST /v1/recommendations/{id}/decision.
type DecisionRequest struct {
	Decision  string  `json:"decision"` // "approved", "rejected", or "needs_revision".
	Feedback  *string `json:"feedback,omitempty"`
	DecidedBy string  `json:"decided_by"`
}

// Validate checks a decision request against the ledger contract.
func (r DecisionRequest) Validate() error {
	if !ValidDecision(r.Decision) {
		return fmt.Errorf("decision must be one of approved, rejected, needs_revision (got %q)", r.Decision)
	}
	if r.DecidedBy == "" {
		return fmt.Errorf("decided_by is required")
	}
	if len(r.DecidedBy) > MaxDecidedByLen {
		return fmt.Errorf("decided_by exceeds maximum length of %d characters", MaxDecidedByLen)
	}
	if r.Feedback != nil && len(*r.Feedback) > MaxFeedbackLen {
		return fmt.Errorf("feedback exceeds maximum length of %d bytes", MaxFeedbackLen)
	}
	return nil
}

// RecommendationFilters narrows recommendation list queries.
type RecommendationFilters struct {
	CampaignID  *string
	Decision    *DecisionStatus
	Workflow    *WorkflowType
	NeedsReview *bool
}

// ScenarioInfo describes one simulated-collector fixture for the catalog
// endpoint.
type ScenarioInfo struct {
	Name        string `json:"name"`
	CampaignID  string `json:"campaign_id"`
	Description string `json:"description"`
}

// ProgressEvent is one pipeline state transition, as streamed to clients.
type ProgressEvent struct {
	RunID  uuid.UUID `json:"run_id"`
	State  string    `json:"state"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// ListResponse is the standard envelope for paginated list endpoints.
type ListResponse struct {
	Data    any          `json:"data"`
	HasMore bool         `json:"has_more"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
	Meta    ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput    = "INVALID_INPUT"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeConflict        = "CONFLICT"
	ErrCodeUpstreamFailure = "UPSTREAM_FAILURE"
	ErrCodeInternalError   = "INTERNAL_ERROR"
)

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Postgres      string `json:"postgres"`
	ModelProvider string `json:"model_provider"`
	SSEBroker     string `json:"sse_broker,omitempty"`
	Uptime        int64  `json:"uptime_seconds"`
}
