package agent

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/michibiki-ai/michibiki/internal/collect"
	"github.com/michibiki-ai/michibiki/internal/model"
)

// End-to-end runs over the fixture scenarios: the real analyzer, generator,
// and critic stages execute against a scripted provider, so prompt assembly,
// schema wiring, and output normalization are all on the path.

const passVerdict = `{"verdict": "pass", "issues": []}`

func scenarioOrchestrator(t *testing.T, scenarioName string, script []scriptedCall) (*Orchestrator, *scriptedProvider) {
	t.Helper()

	src, err := collect.NewSimulatedSource(scenarioName)
	if err != nil {
		t.Fatalf("NewSimulatedSource(%q): %v", scenarioName, err)
	}
	provider := &scriptedProvider{script: script}
	builder := collect.NewBuilder(src, src, src, 5*time.Second, testLogger())
	cfg := fastStage()

	o := NewOrchestrator(
		builder,
		NewAnalyzer(provider, cfg, testLogger()),
		NewGenerator(provider, cfg, 2, testLogger()),
		NewCritic(provider, cfg, testLogger()),
		nil,
		OrchestratorConfig{ReviewConfidenceFloor: 0.4, ModelVersion: "scripted"},
		testLogger(),
	)
	return o, provider
}

func TestRunScenarioFixtures(t *testing.T) {
	cases := []struct {
		scenario       string
		campaignID     string
		analysis       string
		draft          string
		wantWorkflow   model.WorkflowType
		wantRisk       model.RiskLevel
		wantConfidence float64
	}{
		{
			scenario:   "competitive_pressure",
			campaignID: "camp-cp-001",
			analysis: `{"root_cause": "competitive_pressure", "confidence": 0.85,
				"primary_signals": [{"name": "cpa_change_pct", "value": 32.5}, {"name": "auction_competition_score", "value": 87.5}],
				"key_observation": "CPA inflation tracks the auction competition score"}`,
			draft: `{"workflow": "BID_ADJUSTMENT", "confidence": 0.8, "risk": "medium",
				"reasoning": "Three new entrants are inflating CPM; adjust bids before budget burns out.",
				"specific_actions": ["Raise the target CPA cap by 10% on prospecting", "Add bid caps on the overlapping audiences"],
				"expected_impact": "CPA back within 10% of target",
				"timeline": "14 days",
				"success_criteria": ["CPA change under +10%"],
				"alternatives": [{"workflow": "BUDGET_REALLOCATION", "confidence": 0.55, "rejection_reason": "Does not address the auction pressure directly"}]}`,
			wantWorkflow:   model.WorkflowBidAdjustment,
			wantRisk:       model.RiskMedium,
			wantConfidence: 0.80,
		},
		{
			scenario:   "creative_fatigue",
			campaignID: "camp-cf-002",
			analysis: `{"root_cause": "creative_fatigue", "confidence": 0.9,
				"primary_signals": [{"name": "ctr_change_pct", "value": -38.5}, {"name": "avg_creative_age_days", "value": 42}],
				"key_observation": "CTR collapse tracks creative age and frequency"}`,
			draft: `{"workflow": "CREATIVE_REFRESH", "confidence": 0.82, "risk": "medium",
				"reasoning": "All active creatives exceed 30 days with frequency above 5; the audience has seen everything.",
				"specific_actions": ["Launch three new video variants", "Pause cr-201 and cr-202"],
				"expected_impact": "CTR recovery toward the pre-decline baseline",
				"timeline": "7 days",
				"success_criteria": ["CTR trend flat or improving"],
				"alternatives": []}`,
			wantWorkflow:   model.WorkflowCreativeRefresh,
			wantRisk:       model.RiskMedium,
			wantConfidence: 0.82,
		},
		{
			scenario:   "audience_saturation",
			campaignID: "camp-as-003",
			analysis: `{"root_cause": "audience_saturation", "confidence": 0.8,
				"primary_signals": [{"name": "avg_frequency", "value": 8.5}, {"name": "cvr_change_pct", "value": -11.3}],
				"key_observation": "Fresh creatives decline anyway; frequency is past saturation"}`,
			draft: `{"workflow": "AUDIENCE_EXPANSION", "confidence": 0.75, "risk": "medium",
				"reasoning": "The lookalike is exhausted; new creatives cannot buy reach that does not exist.",
				"specific_actions": ["Widen the lookalike from 1% to 3%", "Add an interest-stack test cell"],
				"expected_impact": "Frequency below 5 within two weeks",
				"timeline": "14 days",
				"success_criteria": ["Frequency under 5", "CVR decline halted"],
				"alternatives": []}`,
			wantWorkflow:   model.WorkflowAudienceExpansion,
			wantRisk:       model.RiskMedium,
			wantConfidence: 0.75,
		},
		{
			scenario:   "winning_campaign",
			campaignID: "camp-ok-004",
			analysis: `{"root_cause": "none", "confidence": 0.92,
				"primary_signals": [],
				"key_observation": "All efficiency metrics beat their targets"}`,
			draft: `{"workflow": "CONTINUE_MONITORING", "confidence": 0.9, "risk": "low",
				"reasoning": "The campaign beats its targets across the board; any change risks the streak.",
				"specific_actions": ["Hold budget and bids steady", "Re-check in one week"],
				"expected_impact": "Sustained performance",
				"timeline": "7 days",
				"success_criteria": ["CPA holds within 5% of current"],
				"alternatives": []}`,
			wantWorkflow: model.WorkflowContinueMonitoring,
			wantRisk:     model.RiskLow,
			// Novel pattern, no approved precedent: capped at 0.85.
			wantConfidence: 0.85,
		},
	}

	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			o, provider := scenarioOrchestrator(t, tc.scenario, []scriptedCall{
				{response: tc.analysis}, {response: tc.draft}, {response: passVerdict},
			})

			var events []model.ProgressEvent
			rec, err := o.Run(context.Background(), tc.campaignID, 7, collectEvents(&events))
			if err != nil {
				t.Fatalf("Run: %v", err)
			}

			if !equalStates(statesOf(events), "collecting", "analyzing", "recommending", "critiquing", "finalized") {
				t.Fatalf("event states = %v", statesOf(events))
			}
			if provider.calls != 3 {
				t.Errorf("model calls = %d, want 3 (analyzer, generator, critic)", provider.calls)
			}
			if rec.Workflow != tc.wantWorkflow {
				t.Errorf("workflow = %s, want %s", rec.Workflow, tc.wantWorkflow)
			}
			if rec.Risk != tc.wantRisk {
				t.Errorf("risk = %s, want %s", rec.Risk, tc.wantRisk)
			}
			if math.Abs(rec.Confidence-tc.wantConfidence) > 1e-9 {
				t.Errorf("confidence = %v, want %v", rec.Confidence, tc.wantConfidence)
			}
			if rec.NeedsReview {
				t.Errorf("clean scenario flagged for review: %v", rec.CritiqueNotes)
			}
			if rec.Decision != model.DecisionPending {
				t.Errorf("decision = %s, want pending", rec.Decision)
			}
			if rec.CampaignID != tc.campaignID {
				t.Errorf("campaign id = %q, want %q", rec.CampaignID, tc.campaignID)
			}
			if rec.Context.Campaign.CampaignID != tc.campaignID {
				t.Error("collected context not carried onto the recommendation")
			}
			if rec.Analysis.RootCause == "" {
				t.Error("analysis not carried onto the recommendation")
			}
		})
	}
}

func TestRunScenarioFixturesDeterministic(t *testing.T) {
	script := func() []scriptedCall {
		return []scriptedCall{
			{response: `{"root_cause": "competitive_pressure", "confidence": 0.85,
				"primary_signals": [{"name": "cpa_change_pct", "value": 32.5}],
				"key_observation": "CPA inflation tracks the auction competition score"}`},
			{response: `{"workflow": "BID_ADJUSTMENT", "confidence": 0.8, "risk": "medium",
				"reasoning": "Auction pressure is the driver.",
				"specific_actions": ["Raise the target CPA cap by 10%"],
				"alternatives": []}`},
			{response: passVerdict},
		}
	}

	var workflows []model.WorkflowType
	var risks []model.RiskLevel
	var confidences []float64
	for range 2 {
		o, _ := scenarioOrchestrator(t, "competitive_pressure", script())
		rec, err := o.Run(context.Background(), "camp-cp-001", 7, nil)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		workflows = append(workflows, rec.Workflow)
		risks = append(risks, rec.Risk)
		confidences = append(confidences, rec.Confidence)
	}

	if workflows[0] != workflows[1] {
		t.Errorf("workflow differs across identical runs: %s vs %s", workflows[0], workflows[1])
	}
	if risks[0] != risks[1] {
		t.Errorf("risk differs across identical runs: %s vs %s", risks[0], risks[1])
	}
	if math.Abs(confidences[0]-confidences[1]) > 1e-9 {
		t.Errorf("confidence differs across identical runs: %v vs %v", confidences[0], confidences[1])
	}
}
