// Package advisor provides the shared business logic for analysis runs and
// the decision ledger.
//
// Both the HTTP API and MCP server delegate to this service so that
// persistence, precedent lookup, notification, and hook dispatch behave
// identically across interfaces.
package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/michibiki-ai/michibiki/internal/agent"
	"github.com/michibiki-ai/michibiki/internal/collect"
	"github.com/michibiki-ai/michibiki/internal/llm"
	"github.com/michibiki-ai/michibiki/internal/model"
	"github.com/michibiki-ai/michibiki/internal/service/embedding"
	"github.com/michibiki-ai/michibiki/internal/storage"
	"github.com/michibiki-ai/michibiki/internal/telemetry"
)

// ErrInvalidRequest marks request validation failures so transport layers
// can map them to a 400 without inspecting message text.
var ErrInvalidRequest = errors.New("advisor: invalid request")

// Hook receives lifecycle callbacks after durable writes. Implementations
// must not block; failures are the hook's own problem.
type Hook interface {
	OnRecommendationFinalized(ctx context.Context, rec model.Recommendation)
	OnDecisionRecorded(ctx context.Context, rec model.Recommendation)
}

// LiveCollectors bundles the three platform collectors for live mode.
type LiveCollectors struct {
	Campaign   collect.CampaignMetricsCollector
	Creative   collect.CreativeMetricsCollector
	Competitor collect.CompetitorSignalsCollector
}

// Config carries the pipeline policy knobs the service wires into each run.
type Config struct {
	CollectorMode         string // "simulated" or "live".
	DefaultLookbackDays   int
	CollectTimeout        time.Duration
	Stage                 agent.StageConfig
	MaxAlternatives       int
	ReviewConfidenceFloor float64
	PrecedentMaxDistance  float64
	ModelVersion          string
}

// Service encapsulates run and ledger logic shared by HTTP and MCP handlers.
type Service struct {
	db       *storage.DB
	provider llm.Provider
	embedder embedding.Provider
	live     *LiveCollectors
	hook     Hook
	cfg      Config
	logger   *slog.Logger

	runDuration metric.Float64Histogram
	runCount    metric.Int64Counter
}

// New creates the advisor service. live may be nil in simulated mode; hook
// may be nil.
func New(db *storage.DB, provider llm.Provider, embedder embedding.Provider, live *LiveCollectors, hook Hook, cfg Config, logger *slog.Logger) *Service {
	meter := telemetry.Meter("michibiki/advisor")
	runDur, _ := meter.Float64Histogram("michibiki.run.duration",
		metric.WithDescription("End-to-end analysis run time (ms)"),
		metric.WithUnit("ms"),
	)
	runCount, _ := meter.Int64Counter("michibiki.run.count",
		metric.WithDescription("Analysis runs by outcome"),
	)
	return &Service{
		db:          db,
		provider:    provider,
		embedder:    embedder,
		live:        live,
		hook:        hook,
		cfg:         cfg,
		logger:      logger,
		runDuration: runDur,
		runCount:    runCount,
	}
}

// RunAnalysis executes one full pipeline run and persists the finalized
// recommendation to the ledger in the pending state. onProgress may be nil.
func (s *Service) RunAnalysis(ctx context.Context, req model.AnalyzeRequest, onProgress agent.ProgressFunc) (model.Recommendation, error) {
	if err := req.Validate(); err != nil {
		return model.Recommendation{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	lookback := req.LookbackDays
	if lookback == 0 {
		lookback = s.cfg.DefaultLookbackDays
	}

	builder, err := s.resolveBuilder(req)
	if err != nil {
		return model.Recommendation{}, err
	}

	orch := agent.NewOrchestrator(
		builder,
		agent.NewAnalyzer(s.provider, s.cfg.Stage, s.logger),
		agent.NewGenerator(s.provider, s.cfg.Stage, s.cfg.MaxAlternatives, s.logger),
		agent.NewCritic(s.provider, s.cfg.Stage, s.logger),
		s,
		agent.OrchestratorConfig{
			ReviewConfidenceFloor: s.cfg.ReviewConfidenceFloor,
			ModelVersion:          s.cfg.ModelVersion,
		},
		s.logger,
	)

	start := time.Now()
	rec, err := orch.Run(ctx, req.CampaignID, lookback, onProgress)
	s.runDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	if err != nil {
		s.runCount.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))
		return model.Recommendation{}, err
	}
	s.runCount.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "finalized")))

	// Embed the diagnosis fingerprint so later runs can find this row as a
	// precedent. Embedding failure degrades to an unembedded row.
	var emb *pgvector.Vector
	if vec, err := s.embedder.Embed(ctx, fingerprint(rec.Analysis)); err != nil {
		s.logger.Warn("fingerprint embedding failed, storing without", "run_id", rec.ID, "error", err)
	} else {
		emb = &vec
	}

	if err := s.db.CreateRecommendation(ctx, rec, emb); err != nil {
		return model.Recommendation{}, fmt.Errorf("advisor: persist recommendation: %w", err)
	}
	s.notify(ctx, storage.ChannelRecommendations, rec)
	if s.hook != nil {
		s.hook.OnRecommendationFinalized(ctx, rec)
	}
	return rec, nil
}

// GetRecommendation fetches one ledger entry.
func (s *Service) GetRecommendation(ctx context.Context, id uuid.UUID) (model.Recommendation, error) {
	return s.db.GetRecommendation(ctx, id)
}

// ListRecommendations lists ledger entries, newest first.
func (s *Service) ListRecommendations(ctx context.Context, filters model.RecommendationFilters, limit, offset int) ([]model.Recommendation, error) {
	return s.db.ListRecommendations(ctx, filters, limit, offset)
}

// RecordDecision applies a human decision to a pending recommendation.
// Decisions are at-most-once: a second write returns
// storage.ErrDecisionConflict no matter which decision it carries.
func (s *Service) RecordDecision(ctx context.Context, id uuid.UUID, req model.DecisionRequest) (model.Recommendation, error) {
	if err := req.Validate(); err != nil {
		return model.Recommendation{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	var rec model.Recommendation
	err := storage.WithRetry(ctx, 3, 100*time.Millisecond, func() error {
		var err error
		rec, err = s.db.RecordDecision(ctx, id, model.DecisionStatus(req.Decision), req.Feedback, req.DecidedBy)
		return err
	})
	if err != nil {
		return model.Recommendation{}, err
	}

	s.logger.Info("decision recorded",
		"recommendation_id", id,
		"decision", req.Decision,
		"decided_by", req.DecidedBy,
	)
	s.notify(ctx, storage.ChannelDecisions, rec)
	if s.hook != nil {
		s.hook.OnDecisionRecorded(ctx, rec)
	}
	return rec, nil
}

// Scenarios lists the simulated-collector fixtures.
func (s *Service) Scenarios() []model.ScenarioInfo {
	return collect.Scenarios()
}

// FindPrecedents counts stored recommendations whose diagnosis fingerprint
// sits near this run's. Implements the orchestrator's precedent lookup.
func (s *Service) FindPrecedents(ctx context.Context, analysis model.SignalAnalysis, _ model.AnalysisContext) (agent.PrecedentStats, error) {
	vec, err := s.embedder.Embed(ctx, fingerprint(analysis))
	if err != nil {
		return agent.PrecedentStats{}, fmt.Errorf("advisor: embed fingerprint: %w", err)
	}
	if isZeroVector(vec) {
		// Noop embedder: every zero vector would match every other zero
		// vector, so skip the lookup entirely.
		return agent.PrecedentStats{}, nil
	}

	approved, total, err := s.db.CountPrecedents(ctx, analysis.RootCause, vec, s.cfg.PrecedentMaxDistance)
	if err != nil {
		return agent.PrecedentStats{}, err
	}
	return agent.PrecedentStats{ApprovedMatches: approved, TotalMatches: total}, nil
}

// resolveBuilder picks the collector set for this run. Simulated mode pins
// all three collectors to one scenario fixture; live mode uses the injected
// platform collectors.
func (s *Service) resolveBuilder(req model.AnalyzeRequest) (*collect.Builder, error) {
	switch s.cfg.CollectorMode {
	case "simulated":
		name := req.Scenario
		if name == "" {
			var ok bool
			if name, ok = collect.ScenarioForCampaign(req.CampaignID); !ok {
				return nil, fmt.Errorf("%w: campaign %q matches no scenario fixture; pass a scenario name (see /v1/scenarios)", ErrInvalidRequest, req.CampaignID)
			}
		}
		src, err := collect.NewSimulatedSource(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		return collect.NewBuilder(src, src, src, s.cfg.CollectTimeout, s.logger), nil

	case "live":
		if s.live == nil {
			return nil, fmt.Errorf("advisor: live collector mode requires injected collectors")
		}
		return collect.NewBuilder(s.live.Campaign, s.live.Creative, s.live.Competitor, s.cfg.CollectTimeout, s.logger), nil

	default:
		return nil, fmt.Errorf("advisor: unknown collector mode %q", s.cfg.CollectorMode)
	}
}

// notify publishes a compact payload on a Postgres channel. Best-effort;
// the ledger write already committed.
func (s *Service) notify(ctx context.Context, channel string, rec model.Recommendation) {
	payload, err := json.Marshal(map[string]any{
		"id":           rec.ID,
		"campaign_id":  rec.CampaignID,
		"workflow":     rec.Workflow,
		"decision":     rec.Decision,
		"needs_review": rec.NeedsReview,
	})
	if err != nil {
		return
	}
	if err := s.db.Notify(ctx, channel, string(payload)); err != nil {
		s.logger.Warn("notify failed", "channel", channel, "error", err)
	}
}

// fingerprint renders a diagnosis as stable text for embedding. Similar
// diagnoses should produce similar fingerprints, so it carries the signals
// and observation rather than raw metric values.
func fingerprint(analysis model.SignalAnalysis) string {
	var b strings.Builder
	b.WriteString("root_cause: ")
	b.WriteString(string(analysis.RootCause))
	b.WriteString("\nkey_observation: ")
	b.WriteString(analysis.KeyObservation)
	if len(analysis.PrimarySignals) > 0 {
		b.WriteString("\nsignals:")
		for _, sig := range analysis.PrimarySignals {
			b.WriteString(" ")
			b.WriteString(sig.Name)
		}
	}
	return b.String()
}

func isZeroVector(v pgvector.Vector) bool {
	for _, f := range v.Slice() {
		if f != 0 {
			return false
		}
	}
	return true
}
