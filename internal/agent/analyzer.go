package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/michibiki-ai/michibiki/internal/collect"
	"github.com/michibiki-ai/michibiki/internal/llm"
	"github.com/michibiki-ai/michibiki/internal/model"
)

// Analyzer is the signal analysis stage: one structured-output model call
// that diagnoses the root cause behind the collected context.
type Analyzer struct {
	provider llm.Provider
	cfg      StageConfig
	logger   *slog.Logger
}

// NewAnalyzer creates the analysis stage over the given provider.
func NewAnalyzer(provider llm.Provider, cfg StageConfig, logger *slog.Logger) *Analyzer {
	return &Analyzer{provider: provider, cfg: cfg, logger: logger}
}

// analysisOutput is the model-facing response shape.
type analysisOutput struct {
	RootCause        string         `json:"root_cause"`
	Confidence       float64        `json:"confidence"`
	PrimarySignals   []model.Signal `json:"primary_signals"`
	SecondarySignals []model.Signal `json:"secondary_signals"`
	KeyObservation   string         `json:"key_observation"`
	Correlation      string         `json:"correlation"`
	Evidence         []string       `json:"supporting_evidence"`
	AltHypotheses    []string       `json:"alternate_hypotheses"`
}

func (o *analysisOutput) validate() error {
	if !model.ValidRootCause(o.RootCause) {
		return fmt.Errorf("unknown root cause %q", o.RootCause)
	}
	if o.Confidence < 0 || o.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0, 1]", o.Confidence)
	}
	if len(o.PrimarySignals) == 0 && model.RootCause(o.RootCause) != model.CauseNone {
		return fmt.Errorf("root cause %s reported without primary signals", o.RootCause)
	}
	if o.KeyObservation == "" {
		return fmt.Errorf("key observation is empty")
	}
	return nil
}

// Analyze diagnoses the root cause for one collected context.
func (a *Analyzer) Analyze(ctx context.Context, actx model.AnalysisContext) (model.SignalAnalysis, error) {
	req := llm.Request{
		System:      analyzerSystem,
		Prompt:      fmt.Sprintf(analyzerPromptFmt, collect.FormatContext(actx)),
		Schema:      analysisSchema(),
		Temperature: 0.2,
	}

	var out analysisOutput
	if err := invokeStructured(ctx, a.provider, "analyzer", req, &out, a.cfg, a.logger); err != nil {
		return model.SignalAnalysis{}, err
	}

	a.logger.Debug("signal analysis complete",
		"campaign_id", actx.CampaignID,
		"root_cause", out.RootCause,
		"confidence", out.Confidence,
	)

	return model.SignalAnalysis{
		RootCause:        model.RootCause(out.RootCause),
		Confidence:       out.Confidence,
		PrimarySignals:   out.PrimarySignals,
		SecondarySignals: out.SecondarySignals,
		KeyObservation:   out.KeyObservation,
		Correlation:      out.Correlation,
		Evidence:         out.Evidence,
		AltHypotheses:    out.AltHypotheses,
	}, nil
}
