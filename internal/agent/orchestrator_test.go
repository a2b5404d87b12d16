package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/michibiki-ai/michibiki/internal/model"
)

// Fake stages. Each returns queued results in call order so tests can script
// the regeneration loop.

type fakeBuilder struct {
	actx model.AnalysisContext
	err  error
}

func (f *fakeBuilder) Build(ctx context.Context, campaignID string, lookbackDays int) (model.AnalysisContext, error) {
	if f.err != nil {
		return model.AnalysisContext{}, f.err
	}
	actx := f.actx
	actx.CampaignID = campaignID
	actx.LookbackDays = lookbackDays
	return actx, nil
}

type fakeAnalyzer struct {
	analysis model.SignalAnalysis
	err      error
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, actx model.AnalysisContext) (model.SignalAnalysis, error) {
	return f.analysis, f.err
}

type fakeGenerator struct {
	drafts []Draft
	inputs []GenerateInput
	err    error
}

func (f *fakeGenerator) Generate(ctx context.Context, in GenerateInput) (Draft, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return Draft{}, f.err
	}
	d := f.drafts[0]
	if len(f.drafts) > 1 {
		f.drafts = f.drafts[1:]
	}
	return d, nil
}

type fakeCritic struct {
	critiques []Critique
	calls     int
	err       error
}

func (f *fakeCritic) Critique(ctx context.Context, d Draft, analysis model.SignalAnalysis) (Critique, error) {
	f.calls++
	if f.err != nil {
		return Critique{}, f.err
	}
	c := f.critiques[0]
	if len(f.critiques) > 1 {
		f.critiques = f.critiques[1:]
	}
	return c, nil
}

type fakePrecedents struct {
	stats PrecedentStats
	err   error
}

func (f *fakePrecedents) FindPrecedents(ctx context.Context, analysis model.SignalAnalysis, actx model.AnalysisContext) (PrecedentStats, error) {
	return f.stats, f.err
}

func passingPipeline() (*fakeBuilder, *fakeAnalyzer, *fakeGenerator, *fakeCritic) {
	builder := &fakeBuilder{}
	analyzer := &fakeAnalyzer{analysis: competitiveAnalysis()}
	generator := &fakeGenerator{drafts: []Draft{cleanDraft()}}
	critic := &fakeCritic{critiques: []Critique{{Passed: true}}}
	return builder, analyzer, generator, critic
}

func collectEvents(events *[]model.ProgressEvent) ProgressFunc {
	return func(ev model.ProgressEvent) { *events = append(*events, ev) }
}

func statesOf(events []model.ProgressEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.State
	}
	return out
}

func equalStates(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestRunHappyPath(t *testing.T) {
	builder, analyzer, generator, critic := passingPipeline()
	o := NewOrchestrator(builder, analyzer, generator, critic, nil,
		OrchestratorConfig{ReviewConfidenceFloor: 0.6, ModelVersion: "scripted"}, testLogger())

	var events []model.ProgressEvent
	rec, err := o.Run(context.Background(), "camp-cp-001", 7, collectEvents(&events))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !equalStates(statesOf(events), "collecting", "analyzing", "recommending", "critiquing", "finalized") {
		t.Fatalf("event states = %v", statesOf(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].RunID != events[0].RunID {
			t.Fatal("events carry different run ids")
		}
	}

	if rec.CampaignID != "camp-cp-001" {
		t.Errorf("campaign id = %q", rec.CampaignID)
	}
	if rec.Workflow != model.WorkflowBidAdjustment {
		t.Errorf("workflow = %s", rec.Workflow)
	}
	if rec.NeedsReview {
		t.Error("clean run flagged for review")
	}
	if rec.Decision != model.DecisionPending {
		t.Errorf("decision = %s, want pending", rec.Decision)
	}
	if rec.Regenerations != 0 {
		t.Errorf("regenerations = %d, want 0", rec.Regenerations)
	}
	if rec.ModelVersion != "scripted" {
		t.Errorf("model version = %q", rec.ModelVersion)
	}
	if rec.ID != events[0].RunID {
		t.Error("recommendation id differs from run id")
	}
}

func TestRunRegeneratesOnceThenPasses(t *testing.T) {
	builder, analyzer, _, _ := passingPipeline()
	generator := &fakeGenerator{drafts: []Draft{cleanDraft(), cleanDraft()}}
	critic := &fakeCritic{critiques: []Critique{
		{Passed: false, Issues: []string{"timeline is vague"}},
		{Passed: true},
	}}
	o := NewOrchestrator(builder, analyzer, generator, critic, nil,
		OrchestratorConfig{ReviewConfidenceFloor: 0.6}, testLogger())

	var events []model.ProgressEvent
	rec, err := o.Run(context.Background(), "camp-cp-001", 7, collectEvents(&events))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !equalStates(statesOf(events),
		"collecting", "analyzing", "recommending", "critiquing", "regenerating", "critiquing", "finalized") {
		t.Fatalf("event states = %v", statesOf(events))
	}
	if rec.Regenerations != 1 {
		t.Errorf("regenerations = %d, want 1", rec.Regenerations)
	}
	if rec.NeedsReview {
		t.Error("passing regeneration flagged for review")
	}
	if len(generator.inputs) != 2 {
		t.Fatalf("generator calls = %d, want 2", len(generator.inputs))
	}
	if len(generator.inputs[0].ReviseNotes) != 0 {
		t.Error("first generation carried revise notes")
	}
	if len(generator.inputs[1].ReviseNotes) == 0 {
		t.Error("regeneration carried no revise notes")
	}
}

func TestRunSecondFailureShipsFlagged(t *testing.T) {
	builder, analyzer, _, _ := passingPipeline()
	generator := &fakeGenerator{drafts: []Draft{cleanDraft()}}
	critic := &fakeCritic{critiques: []Critique{
		{Passed: false, Issues: []string{"timeline is vague"}},
		{Passed: false, Issues: []string{"still vague"}},
	}}
	o := NewOrchestrator(builder, analyzer, generator, critic, nil,
		OrchestratorConfig{ReviewConfidenceFloor: 0.6}, testLogger())

	rec, err := o.Run(context.Background(), "camp-cp-001", 7, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if critic.calls != 2 {
		t.Fatalf("critic calls = %d, want 2 (one regeneration)", critic.calls)
	}
	if !rec.NeedsReview {
		t.Fatal("twice-failed draft not flagged for review")
	}
	if rec.Regenerations != 1 {
		t.Errorf("regenerations = %d, want 1", rec.Regenerations)
	}
	if len(rec.CritiqueNotes) == 0 {
		t.Error("critique notes missing on a flagged recommendation")
	}
}

func TestRunLowConfidenceFlagged(t *testing.T) {
	builder, analyzer, _, critic := passingPipeline()
	draft := cleanDraft()
	draft.Confidence = 0.4
	generator := &fakeGenerator{drafts: []Draft{draft}}
	o := NewOrchestrator(builder, analyzer, generator, critic, nil,
		OrchestratorConfig{ReviewConfidenceFloor: 0.6}, testLogger())

	rec, err := o.Run(context.Background(), "camp-cp-001", 7, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !rec.NeedsReview {
		t.Fatal("sub-floor confidence not flagged for review")
	}
	if len(rec.CritiqueNotes) == 0 {
		t.Error("review floor note missing")
	}
}

func TestRunCollectFailure(t *testing.T) {
	builder := &fakeBuilder{err: errors.New("campaign_metrics: rate limited")}
	_, analyzer, generator, critic := passingPipeline()
	o := NewOrchestrator(builder, analyzer, generator, critic, nil, OrchestratorConfig{}, testLogger())

	var events []model.ProgressEvent
	_, err := o.Run(context.Background(), "camp-cp-001", 7, collectEvents(&events))
	if err == nil {
		t.Fatal("Run succeeded with a failing builder")
	}
	if !equalStates(statesOf(events), "collecting", "failed") {
		t.Fatalf("event states = %v", statesOf(events))
	}
}

func TestRunStageFailureEmitsFailedState(t *testing.T) {
	builder, analyzer, _, critic := passingPipeline()
	generator := &fakeGenerator{err: &ModelInvocationError{Stage: "generator", Attempts: 3, Err: errors.New("unavailable")}}
	o := NewOrchestrator(builder, analyzer, generator, critic, nil, OrchestratorConfig{}, testLogger())

	var events []model.ProgressEvent
	_, err := o.Run(context.Background(), "camp-cp-001", 7, collectEvents(&events))

	var mErr *ModelInvocationError
	if !errors.As(err, &mErr) {
		t.Fatalf("error type = %T, want *ModelInvocationError", err)
	}
	if !equalStates(statesOf(events), "collecting", "analyzing", "recommending", "failed") {
		t.Fatalf("event states = %v", statesOf(events))
	}
}

func TestRunCancelledEmitsNoTerminalEvent(t *testing.T) {
	builder, analyzer, generator, critic := passingPipeline()
	analyzer.err = context.Canceled
	o := NewOrchestrator(builder, analyzer, generator, critic, nil, OrchestratorConfig{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var events []model.ProgressEvent
	_, err := o.Run(ctx, "camp-cp-001", 7, collectEvents(&events))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	for _, ev := range events {
		if ev.State == string(StateFailed) || ev.State == string(StateFinalized) {
			t.Fatalf("cancelled run emitted terminal event %q", ev.State)
		}
	}
}

func TestRunPrecedentLookupFailureDegrades(t *testing.T) {
	builder, analyzer, generator, critic := passingPipeline()
	precedents := &fakePrecedents{err: errors.New("vector index offline")}
	o := NewOrchestrator(builder, analyzer, generator, critic, precedents,
		OrchestratorConfig{ReviewConfidenceFloor: 0.6}, testLogger())

	rec, err := o.Run(context.Background(), "camp-cp-001", 7, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.Workflow == "" {
		t.Fatal("run did not finalize")
	}
	if len(generator.inputs) != 1 || generator.inputs[0].Precedents != (PrecedentStats{}) {
		t.Error("failed precedent lookup should degrade to zero stats")
	}
}

func TestRunPrecedentStatsReachGenerator(t *testing.T) {
	builder, analyzer, generator, critic := passingPipeline()
	precedents := &fakePrecedents{stats: PrecedentStats{ApprovedMatches: 4, TotalMatches: 6}}
	o := NewOrchestrator(builder, analyzer, generator, critic, precedents,
		OrchestratorConfig{ReviewConfidenceFloor: 0.6}, testLogger())

	if _, err := o.Run(context.Background(), "camp-cp-001", 7, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := generator.inputs[0].Precedents; got != (PrecedentStats{ApprovedMatches: 4, TotalMatches: 6}) {
		t.Errorf("precedents = %+v", got)
	}
}
