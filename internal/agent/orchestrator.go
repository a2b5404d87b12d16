package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/michibiki-ai/michibiki/internal/model"
)

// State is one pipeline phase. Runs move strictly forward except for the
// single critique-driven regeneration loop.
type State string

const (
	StateCollecting   State = "collecting"
	StateAnalyzing    State = "analyzing"
	StateRecommending State = "recommending"
	StateCritiquing   State = "critiquing"
	StateRegenerating State = "regenerating"
	StateFinalized    State = "finalized"
	StateFailed       State = "failed"
)

// MaxRegenerations bounds the critique loop. One regeneration is structural:
// a draft that fails review twice ships flagged instead of looping.
const MaxRegenerations = 1

// ProgressFunc receives exactly one event per state transition.
type ProgressFunc func(model.ProgressEvent)

// ContextBuilder assembles the analysis context. Implemented by
// collect.Builder.
type ContextBuilder interface {
	Build(ctx context.Context, campaignID string, lookbackDays int) (model.AnalysisContext, error)
}

// SignalAnalyzer diagnoses a collected context. Implemented by Analyzer.
type SignalAnalyzer interface {
	Analyze(ctx context.Context, actx model.AnalysisContext) (model.SignalAnalysis, error)
}

// DraftGenerator produces draft recommendations. Implemented by Generator.
type DraftGenerator interface {
	Generate(ctx context.Context, in GenerateInput) (Draft, error)
}

// DraftCritic reviews drafts. Implemented by Critic.
type DraftCritic interface {
	Critique(ctx context.Context, d Draft, analysis model.SignalAnalysis) (Critique, error)
}

// PrecedentFinder looks up how similar past recommendations were received.
// Nil disables the lookup; the generator then treats every pattern as novel.
type PrecedentFinder interface {
	FindPrecedents(ctx context.Context, analysis model.SignalAnalysis, actx model.AnalysisContext) (PrecedentStats, error)
}

// OrchestratorConfig carries the finalization policy knobs.
type OrchestratorConfig struct {
	ReviewConfidenceFloor float64 // Final confidence below this flags needs_review.
	ModelVersion          string  // Recorded on every recommendation.
}

// Orchestrator drives one analysis run through the pipeline states. All
// per-run state lives in the run frame; an Orchestrator is safe for
// concurrent runs.
type Orchestrator struct {
	builder    ContextBuilder
	analyzer   SignalAnalyzer
	generator  DraftGenerator
	critic     DraftCritic
	precedents PrecedentFinder
	cfg        OrchestratorConfig
	logger     *slog.Logger
}

// NewOrchestrator wires the pipeline stages. precedents may be nil.
func NewOrchestrator(builder ContextBuilder, analyzer SignalAnalyzer, generator DraftGenerator, critic DraftCritic, precedents PrecedentFinder, cfg OrchestratorConfig, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		builder:    builder,
		analyzer:   analyzer,
		generator:  generator,
		critic:     critic,
		precedents: precedents,
		cfg:        cfg,
		logger:     logger,
	}
}

var (
	tracer     = otel.Tracer("michibiki/agent")
	agentMeter = otel.GetMeterProvider().Meter("michibiki/agent")
)

// run is the per-run frame. It exists so progress emission and failure
// handling don't thread five parameters through every step.
type run struct {
	id         uuid.UUID
	campaignID string
	onProgress ProgressFunc
	logger     *slog.Logger
}

func (r *run) emit(state State, detail string) {
	if r.onProgress == nil {
		return
	}
	r.onProgress(model.ProgressEvent{
		RunID:  r.id,
		State:  string(state),
		Detail: detail,
		At:     time.Now().UTC(),
	})
}

// fail emits the failed event and returns err. Cancelled runs return
// without emitting: the client is gone and the run simply stops.
func (r *run) fail(ctx context.Context, state State, err error) error {
	if ctx.Err() != nil {
		r.logger.Info("run cancelled", "run_id", r.id, "state", state)
		return ctx.Err()
	}
	r.emit(StateFailed, fmt.Sprintf("%s: %v", state, err))
	r.logger.Warn("run failed", "run_id", r.id, "state", state, "error", err)
	return err
}

// Run executes one analysis run and returns the finalized recommendation.
// Failed runs return a zero recommendation and the terminal error.
func (o *Orchestrator) Run(ctx context.Context, campaignID string, lookbackDays int, onProgress ProgressFunc) (model.Recommendation, error) {
	runID := uuid.New()
	start := time.Now()

	ctx, span := tracer.Start(ctx, "agent.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("michibiki.run_id", runID.String()),
		attribute.String("michibiki.campaign_id", campaignID),
	)

	r := &run{id: runID, campaignID: campaignID, onProgress: onProgress, logger: o.logger}

	// Collect.
	r.emit(StateCollecting, "")
	actx, err := o.stageContext(ctx, r, campaignID, lookbackDays)
	if err != nil {
		return model.Recommendation{}, r.fail(ctx, StateCollecting, err)
	}

	// Analyze.
	r.emit(StateAnalyzing, "")
	analysis, err := o.stageAnalysis(ctx, actx)
	if err != nil {
		return model.Recommendation{}, r.fail(ctx, StateAnalyzing, err)
	}

	// Precedent lookup feeds confidence shaping; a failed lookup degrades
	// to the novel-pattern default rather than failing the run.
	precedents := PrecedentStats{}
	if o.precedents != nil {
		if p, err := o.precedents.FindPrecedents(ctx, analysis, actx); err != nil {
			o.logger.Warn("precedent lookup failed", "run_id", runID, "error", err)
		} else {
			precedents = p
		}
	}

	// Generate.
	r.emit(StateRecommending, string(analysis.RootCause))
	draft, err := o.stageDraft(ctx, GenerateInput{Context: actx, Analysis: analysis, Precedents: precedents})
	if err != nil {
		return model.Recommendation{}, r.fail(ctx, StateRecommending, err)
	}

	// Critique, regenerating at most once.
	var critique Critique
	regenerations := 0
	for {
		r.emit(StateCritiquing, string(draft.Workflow))
		critique, err = o.stageCritique(ctx, draft, analysis)
		if err != nil {
			return model.Recommendation{}, r.fail(ctx, StateCritiquing, err)
		}
		if critique.Passed || regenerations == MaxRegenerations {
			break
		}

		regenerations++
		r.emit(StateRegenerating, critique.Summary())
		draft, err = o.stageDraft(ctx, GenerateInput{
			Context:     actx,
			Analysis:    analysis,
			Precedents:  precedents,
			ReviseNotes: critique.Notes(),
		})
		if err != nil {
			return model.Recommendation{}, r.fail(ctx, StateRegenerating, err)
		}
	}

	if ctx.Err() != nil {
		return model.Recommendation{}, r.fail(ctx, StateCritiquing, ctx.Err())
	}

	rec := o.finalize(runID, actx, analysis, draft, critique, regenerations, time.Since(start))
	r.emit(StateFinalized, string(rec.Workflow))
	o.logger.Info("run finalized",
		"run_id", runID,
		"campaign_id", campaignID,
		"workflow", rec.Workflow,
		"confidence", rec.Confidence,
		"risk", rec.Risk,
		"needs_review", rec.NeedsReview,
		"regenerations", regenerations,
		"duration_ms", rec.GenerationMS,
	)
	return rec, nil
}

// finalize promotes the surviving draft to a recommendation and applies the
// review flags: unresolved critique issues, policy violations, or final
// confidence under the floor all require a human to look twice.
func (o *Orchestrator) finalize(runID uuid.UUID, actx model.AnalysisContext, analysis model.SignalAnalysis, draft Draft, critique Critique, regenerations int, elapsed time.Duration) model.Recommendation {
	needsReview := !critique.Passed || draft.Confidence < o.cfg.ReviewConfidenceFloor

	var notes []string
	if !critique.Passed {
		notes = critique.Notes()
	}
	if draft.Confidence < o.cfg.ReviewConfidenceFloor {
		notes = append(notes, fmt.Sprintf("confidence %.2f is below the %.2f review floor", draft.Confidence, o.cfg.ReviewConfidenceFloor))
	}

	return model.Recommendation{
		ID:              runID,
		CampaignID:      actx.CampaignID,
		Workflow:        draft.Workflow,
		Confidence:      draft.Confidence,
		Risk:            draft.Risk,
		Reasoning:       draft.Reasoning,
		SpecificActions: draft.SpecificActions,
		ExpectedImpact:  draft.ExpectedImpact,
		Timeline:        draft.Timeline,
		SuccessCriteria: draft.SuccessCriteria,
		Alternatives:    draft.Alternatives,
		Analysis:        analysis,
		Context:         actx,
		NeedsReview:     needsReview,
		CritiqueNotes:   notes,
		Decision:        model.DecisionPending,
		ModelVersion:    o.cfg.ModelVersion,
		Regenerations:   regenerations,
		GenerationMS:    elapsed.Milliseconds(),
		CreatedAt:       time.Now().UTC(),
	}
}

// ── Stage wrappers (span + duration metric per stage) ──────────────────────────

func (o *Orchestrator) stageContext(ctx context.Context, r *run, campaignID string, lookbackDays int) (model.AnalysisContext, error) {
	ctx, span := tracer.Start(ctx, "agent.collect")
	defer span.End()
	defer recordStageDuration(ctx, "collect")(nil)
	return o.builder.Build(ctx, campaignID, lookbackDays)
}

func (o *Orchestrator) stageAnalysis(ctx context.Context, actx model.AnalysisContext) (model.SignalAnalysis, error) {
	ctx, span := tracer.Start(ctx, "agent.analyze")
	defer span.End()
	defer recordStageDuration(ctx, "analyze")(nil)
	return o.analyzer.Analyze(ctx, actx)
}

func (o *Orchestrator) stageDraft(ctx context.Context, in GenerateInput) (Draft, error) {
	ctx, span := tracer.Start(ctx, "agent.generate")
	defer span.End()
	defer recordStageDuration(ctx, "generate")(nil)
	return o.generator.Generate(ctx, in)
}

func (o *Orchestrator) stageCritique(ctx context.Context, d Draft, analysis model.SignalAnalysis) (Critique, error) {
	ctx, span := tracer.Start(ctx, "agent.critique")
	defer span.End()
	defer recordStageDuration(ctx, "critique")(nil)
	return o.critic.Critique(ctx, d, analysis)
}

// recordStageDuration records a per-stage duration histogram sample.
// Instruments are lazily created; recording is best-effort.
func recordStageDuration(ctx context.Context, stage string) func(error) {
	start := time.Now()
	return func(error) {
		if hist, err := agentMeter.Float64Histogram("agent.stage.duration",
			otelmetric.WithUnit("ms")); err == nil {
			hist.Record(ctx, float64(time.Since(start).Milliseconds()),
				otelmetric.WithAttributes(attribute.String("stage", stage)))
		}
	}
}
