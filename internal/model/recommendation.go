package model

import (
	"time"

	"github.com/google/uuid"
)

// WorkflowType names the marketing workflow a recommendation proposes.
type WorkflowType string

const (
	WorkflowBidAdjustment      WorkflowType = "BID_ADJUSTMENT"
	WorkflowCreativeRefresh    WorkflowType = "CREATIVE_REFRESH"
	WorkflowAudienceExpansion  WorkflowType = "AUDIENCE_EXPANSION"
	WorkflowBudgetReallocation WorkflowType = "BUDGET_REALLOCATION"
	WorkflowPauseCampaign      WorkflowType = "PAUSE_CAMPAIGN"
	WorkflowContinueMonitoring WorkflowType = "CONTINUE_MONITORING"
)

// ValidWorkflowType reports whether s is a known workflow label.
func ValidWorkflowType(s string) bool {
	switch WorkflowType(s) {
	case WorkflowBidAdjustment, WorkflowCreativeRefresh, WorkflowAudienceExpansion,
		WorkflowBudgetReallocation, WorkflowPauseCampaign, WorkflowContinueMonitoring:
		return true
	}
	return false
}

// Irreversible reports whether executing the workflow cannot be trivially
// undone. Irreversible workflows carry a HIGH risk floor.
func (w WorkflowType) Irreversible() bool {
	return w == WorkflowPauseCampaign
}

// RiskLevel grades the downside of acting on a recommendation.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ValidRiskLevel reports whether s is a known risk label.
func ValidRiskLevel(s string) bool {
	switch RiskLevel(s) {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// riskRank orders risk levels for floor comparisons.
func riskRank(r RiskLevel) int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	}
	return -1
}

// AtLeast returns the higher of r and floor.
func (r RiskLevel) AtLeast(floor RiskLevel) RiskLevel {
	if riskRank(r) < riskRank(floor) {
		return floor
	}
	return r
}

// DecisionStatus is the human review state of a recommendation.
// Transitions: pending -> approved | rejected | needs_revision, exactly once.
type DecisionStatus string

const (
	DecisionPending       DecisionStatus = "pending"
	DecisionApproved      DecisionStatus = "approved"
	DecisionRejected      DecisionStatus = "rejected"
	DecisionNeedsRevision DecisionStatus = "needs_revision"
)

// ValidDecision reports whether s is a recordable (non-pending) decision.
func ValidDecision(s string) bool {
	switch DecisionStatus(s) {
	case DecisionApproved, DecisionRejected, DecisionNeedsRevision:
		return true
	}
	return false
}

// Alternative is a considered-but-rejected workflow attached to a
// recommendation for reviewer context.
type Alternative struct {
	Workflow        WorkflowType `json:"workflow"`
	Confidence      float64      `json:"confidence"`
	RejectionReason string       `json:"rejection_reason"`
}

// Recommendation is the finalized output of one analysis run, as stored in
// the ledger and returned by the API.
type Recommendation struct {
	ID              uuid.UUID       `json:"id"`
	CampaignID      string          `json:"campaign_id"`
	Workflow        WorkflowType    `json:"workflow"`
	Confidence      float64         `json:"confidence"`
	Risk            RiskLevel       `json:"risk"`
	Reasoning       string          `json:"reasoning"`
	SpecificActions []string        `json:"specific_actions"`
	ExpectedImpact  string          `json:"expected_impact,omitempty"`
	Timeline        string          `json:"timeline,omitempty"`
	SuccessCriteria []string        `json:"success_criteria,omitempty"`
	Alternatives    []Alternative   `json:"alternatives,omitempty"`
	Analysis        SignalAnalysis  `json:"analysis"`
	Context         AnalysisContext `json:"context"`

	// Review surface.
	NeedsReview   bool     `json:"needs_review"`
	CritiqueNotes []string `json:"critique_notes,omitempty"`

	// Human decision. Feedback, DecidedBy and DecidedAt are set once the
	// decision leaves pending.
	Decision  DecisionStatus `json:"decision"`
	Feedback  *string        `json:"feedback,omitempty"`
	DecidedBy *string        `json:"decided_by,omitempty"`
	DecidedAt *time.Time     `json:"decided_at,omitempty"`

	// Generation metadata.
	ModelVersion    string    `json:"model_version,omitempty"`
	Regenerations   int       `json:"regenerations"`
	GenerationMS    int64     `json:"generation_ms"`
	CreatedAt       time.Time `json:"created_at"`
}
