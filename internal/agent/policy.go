package agent

import (
	"fmt"

	"github.com/michibiki-ai/michibiki/internal/model"
)

// workflowPolicy maps each root cause to the workflows a recommendation may
// propose for it. The generator prompt states the same table; this is the
// enforcement side.
var workflowPolicy = map[model.RootCause][]model.WorkflowType{
	model.CauseCompetitivePressure: {model.WorkflowBidAdjustment, model.WorkflowBudgetReallocation},
	model.CauseCreativeFatigue:     {model.WorkflowCreativeRefresh},
	model.CauseAudienceSaturation:  {model.WorkflowAudienceExpansion},
	model.CauseCompound: {
		model.WorkflowBidAdjustment,
		model.WorkflowCreativeRefresh,
		model.WorkflowAudienceExpansion,
		model.WorkflowBudgetReallocation,
		model.WorkflowPauseCampaign,
	},
	model.CauseNone: {model.WorkflowContinueMonitoring},
}

// workflowAllowed reports whether wf is a permitted response to cause.
func workflowAllowed(cause model.RootCause, wf model.WorkflowType) bool {
	for _, allowed := range workflowPolicy[cause] {
		if allowed == wf {
			return true
		}
	}
	return false
}

// riskFloor returns the minimum risk level a recommendation must carry.
// Irreversible workflows are always HIGH; acting on a low-confidence
// analysis is HIGH regardless of the workflow.
func riskFloor(wf model.WorkflowType, analysisConfidence float64) model.RiskLevel {
	if wf.Irreversible() {
		return model.RiskHigh
	}
	if analysisConfidence < 0.5 && wf != model.WorkflowContinueMonitoring {
		return model.RiskHigh
	}
	return model.RiskLow
}

// maxConfidenceForHighRisk is the calibration ceiling: a HIGH risk
// recommendation claiming more certainty than this is a contract violation.
const maxConfidenceForHighRisk = 0.9

// checkPolicy runs the deterministic safety gate over a draft. Returned
// violations flag the recommendation for human review; the critique around
// them decides whether a regeneration is worth attempting.
func checkPolicy(d Draft, analysis model.SignalAnalysis) []PolicyViolation {
	var violations []PolicyViolation

	if !workflowAllowed(analysis.RootCause, d.Workflow) {
		violations = append(violations, PolicyViolation{
			Rule:   "workflow_policy",
			Detail: fmt.Sprintf("workflow %s is not a permitted response to root cause %s", d.Workflow, analysis.RootCause),
		})
	}

	if floor := riskFloor(d.Workflow, analysis.Confidence); riskBelow(d.Risk, floor) {
		violations = append(violations, PolicyViolation{
			Rule:   "risk_floor",
			Detail: fmt.Sprintf("risk %s is below the %s floor for workflow %s at analysis confidence %.2f", d.Risk, floor, d.Workflow, analysis.Confidence),
		})
	}

	if d.Risk == model.RiskHigh && d.Confidence > maxConfidenceForHighRisk {
		violations = append(violations, PolicyViolation{
			Rule:   "confidence_calibration",
			Detail: fmt.Sprintf("high risk with confidence %.2f exceeds the %.1f calibration ceiling", d.Confidence, maxConfidenceForHighRisk),
		})
	}

	if len(d.SpecificActions) == 0 {
		violations = append(violations, PolicyViolation{
			Rule:   "actionability",
			Detail: "recommendation carries no specific actions",
		})
	}

	return violations
}

func riskBelow(r, floor model.RiskLevel) bool {
	return r.AtLeast(floor) != r
}
