package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/michibiki-ai/michibiki/internal/collect"
	"github.com/michibiki-ai/michibiki/internal/llm"
	"github.com/michibiki-ai/michibiki/internal/model"
)

// Draft is an unreviewed recommendation produced by the generator. The
// orchestrator promotes a draft to a model.Recommendation once the critique
// loop settles.
type Draft struct {
	Workflow        model.WorkflowType
	Confidence      float64
	Risk            model.RiskLevel
	Reasoning       string
	SpecificActions []string
	ExpectedImpact  string
	Timeline        string
	SuccessCriteria []string
	Alternatives    []model.Alternative
}

// PrecedentStats summarizes how often similar past recommendations were
// approved by reviewers. Feeds confidence shaping: a pattern with approved
// precedent supports more certainty than a novel one.
type PrecedentStats struct {
	ApprovedMatches int
	TotalMatches    int
}

// GenerateInput is everything the generator stage needs for one draft.
type GenerateInput struct {
	Context     model.AnalysisContext
	Analysis    model.SignalAnalysis
	Precedents  PrecedentStats
	ReviseNotes []string // Critique feedback; non-empty only on regeneration.
}

// Generator is the recommendation stage: one structured-output model call
// plus deterministic normalization of the draft against the workflow policy.
type Generator struct {
	provider        llm.Provider
	cfg             StageConfig
	maxAlternatives int
	logger          *slog.Logger
}

// NewGenerator creates the recommendation stage over the given provider.
func NewGenerator(provider llm.Provider, cfg StageConfig, maxAlternatives int, logger *slog.Logger) *Generator {
	return &Generator{provider: provider, cfg: cfg, maxAlternatives: maxAlternatives, logger: logger}
}

type generatedAlternative struct {
	Workflow        string  `json:"workflow"`
	Confidence      float64 `json:"confidence"`
	RejectionReason string  `json:"rejection_reason"`
}

type generatorOutput struct {
	Workflow        string                 `json:"workflow"`
	Confidence      float64                `json:"confidence"`
	Risk            string                 `json:"risk"`
	Reasoning       string                 `json:"reasoning"`
	SpecificActions []string               `json:"specific_actions"`
	ExpectedImpact  string                 `json:"expected_impact"`
	Timeline        string                 `json:"timeline"`
	SuccessCriteria []string               `json:"success_criteria"`
	Alternatives    []generatedAlternative `json:"alternatives"`
}

func (o *generatorOutput) validate() error {
	if !model.ValidWorkflowType(o.Workflow) {
		return fmt.Errorf("unknown workflow %q", o.Workflow)
	}
	if o.Confidence < 0 || o.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0, 1]", o.Confidence)
	}
	if !model.ValidRiskLevel(o.Risk) {
		return fmt.Errorf("unknown risk level %q", o.Risk)
	}
	if o.Reasoning == "" {
		return fmt.Errorf("reasoning is empty")
	}
	for i, alt := range o.Alternatives {
		if !model.ValidWorkflowType(alt.Workflow) {
			return fmt.Errorf("alternatives[%d]: unknown workflow %q", i, alt.Workflow)
		}
	}
	return nil
}

// Generate produces one draft recommendation for the diagnosis.
func (g *Generator) Generate(ctx context.Context, in GenerateInput) (Draft, error) {
	analysisJSON, err := json.MarshalIndent(in.Analysis, "", "  ")
	if err != nil {
		return Draft{}, fmt.Errorf("agent: generator: marshal analysis: %w", err)
	}

	reviseBlock := ""
	if len(in.ReviseNotes) > 0 {
		notes := ""
		for _, n := range in.ReviseNotes {
			notes += "- " + n + "\n"
		}
		reviseBlock = fmt.Sprintf(reviseBlockFmt, notes)
	}

	req := llm.Request{
		System: generatorSystem,
		Prompt: fmt.Sprintf(generatorPromptFmt,
			collect.FormatContext(in.Context),
			string(analysisJSON),
			precedentLine(in.Precedents),
			reviseBlock,
		),
		Schema:      recommendationSchema(),
		Temperature: 0.3,
	}

	var out generatorOutput
	if err := invokeStructured(ctx, g.provider, "generator", req, &out, g.cfg, g.logger); err != nil {
		return Draft{}, err
	}

	draft := g.normalize(out, in)
	g.logger.Debug("draft generated",
		"campaign_id", in.Context.CampaignID,
		"workflow", draft.Workflow,
		"confidence", draft.Confidence,
		"risk", draft.Risk,
		"regeneration", len(in.ReviseNotes) > 0,
	)
	return draft, nil
}

// normalize applies the deterministic post-processing the policy gate
// expects: risk floors, confidence shaping, and the alternatives cap. The
// model is prompted to do all of this itself; normalization makes the
// guarantees hold even when it does not.
func (g *Generator) normalize(out generatorOutput, in GenerateInput) Draft {
	wf := model.WorkflowType(out.Workflow)

	risk := model.RiskLevel(out.Risk).AtLeast(riskFloor(wf, in.Analysis.Confidence))

	conf := shapeConfidence(out.Confidence, in.Analysis.Confidence, in.Precedents)
	if risk == model.RiskHigh && conf > maxConfidenceForHighRisk {
		conf = maxConfidenceForHighRisk
	}

	alts := make([]model.Alternative, 0, len(out.Alternatives))
	for _, alt := range out.Alternatives {
		if len(alts) == g.maxAlternatives {
			break
		}
		if model.WorkflowType(alt.Workflow) == wf {
			continue // The chosen workflow is not its own alternative.
		}
		alts = append(alts, model.Alternative{
			Workflow:        model.WorkflowType(alt.Workflow),
			Confidence:      clamp01(alt.Confidence),
			RejectionReason: alt.RejectionReason,
		})
	}

	return Draft{
		Workflow:        wf,
		Confidence:      conf,
		Risk:            risk,
		Reasoning:       out.Reasoning,
		SpecificActions: out.SpecificActions,
		ExpectedImpact:  out.ExpectedImpact,
		Timeline:        out.Timeline,
		SuccessCriteria: out.SuccessCriteria,
		Alternatives:    alts,
	}
}

// shapeConfidence blends the model's self-reported confidence with the
// diagnosis confidence and the precedent record. A recommendation can never
// be more certain than its diagnosis, and only an approved-precedent track
// record pushes it near the top of the range.
func shapeConfidence(draftConf, analysisConf float64, p PrecedentStats) float64 {
	conf := clamp01(draftConf)
	if analysisConf < conf {
		conf = analysisConf
	}

	// Up to +0.10 for approved precedent, +0.02 per match.
	boost := 0.02 * float64(p.ApprovedMatches)
	if boost > 0.10 {
		boost = 0.10
	}

	// Novel patterns cap below full certainty.
	if p.ApprovedMatches == 0 && conf > 0.85 {
		conf = 0.85
	}

	return clamp01(conf + boost)
}

func precedentLine(p PrecedentStats) string {
	if p.TotalMatches == 0 {
		return "No similar past recommendations on record; treat this pattern as novel."
	}
	return fmt.Sprintf("%d similar past recommendations on record, %d of them approved by reviewers.",
		p.TotalMatches, p.ApprovedMatches)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
