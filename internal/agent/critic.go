package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/michibiki-ai/michibiki/internal/llm"
	"github.com/michibiki-ai/michibiki/internal/model"
)

// Critic is the review stage. The deterministic policy gate runs first and
// is authoritative for the rules it can check; the model call then looks
// for the judgment problems a rule table cannot express. A draft passes
// only when both agree.
type Critic struct {
	provider llm.Provider
	cfg      StageConfig
	logger   *slog.Logger
}

// NewCritic creates the review stage over the given provider.
func NewCritic(provider llm.Provider, cfg StageConfig, logger *slog.Logger) *Critic {
	return &Critic{provider: provider, cfg: cfg, logger: logger}
}

type criticOutput struct {
	Verdict string   `json:"verdict"`
	Issues  []string `json:"issues"`
}

func (o *criticOutput) validate() error {
	if o.Verdict != "pass" && o.Verdict != "fail" {
		return fmt.Errorf("unknown verdict %q", o.Verdict)
	}
	if o.Verdict == "fail" && len(o.Issues) == 0 {
		return fmt.Errorf("fail verdict with no issues")
	}
	return nil
}

// draftView is the critic-facing serialization of a draft.
type draftView struct {
	Workflow        model.WorkflowType  `json:"workflow"`
	Confidence      float64             `json:"confidence"`
	Risk            model.RiskLevel     `json:"risk"`
	Reasoning       string              `json:"reasoning"`
	SpecificActions []string            `json:"specific_actions"`
	ExpectedImpact  string              `json:"expected_impact,omitempty"`
	Timeline        string              `json:"timeline,omitempty"`
	SuccessCriteria []string            `json:"success_criteria,omitempty"`
	Alternatives    []model.Alternative `json:"alternatives,omitempty"`
}

// Critique reviews one draft against its diagnosis.
func (c *Critic) Critique(ctx context.Context, d Draft, analysis model.SignalAnalysis) (Critique, error) {
	violations := checkPolicy(d, analysis)

	draftJSON, err := json.MarshalIndent(draftView{
		Workflow:        d.Workflow,
		Confidence:      d.Confidence,
		Risk:            d.Risk,
		Reasoning:       d.Reasoning,
		SpecificActions: d.SpecificActions,
		ExpectedImpact:  d.ExpectedImpact,
		Timeline:        d.Timeline,
		SuccessCriteria: d.SuccessCriteria,
		Alternatives:    d.Alternatives,
	}, "", "  ")
	if err != nil {
		return Critique{}, fmt.Errorf("agent: critic: marshal draft: %w", err)
	}
	analysisJSON, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		return Critique{}, fmt.Errorf("agent: critic: marshal analysis: %w", err)
	}

	req := llm.Request{
		System:      criticSystem,
		Prompt:      fmt.Sprintf(criticPromptFmt, string(draftJSON), string(analysisJSON)),
		Schema:      critiqueSchema(),
		Temperature: 0.1,
	}

	var out criticOutput
	if err := invokeStructured(ctx, c.provider, "critic", req, &out, c.cfg, c.logger); err != nil {
		return Critique{}, err
	}

	crit := Critique{
		Passed:     out.Verdict == "pass" && len(violations) == 0,
		Issues:     out.Issues,
		Violations: violations,
	}
	if out.Verdict == "pass" && len(out.Issues) > 0 && crit.Passed {
		// Non-blocking observations from a passing review still reach the
		// reviewer as notes.
		c.logger.Debug("critique passed with observations", "issues", len(out.Issues))
	}

	c.logger.Debug("critique complete",
		"passed", crit.Passed,
		"issues", len(crit.Issues),
		"violations", len(crit.Violations),
	)
	return crit, nil
}
