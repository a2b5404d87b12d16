// Package collect gathers the three context snapshots an analysis run needs
// and assembles them into an immutable AnalysisContext.
package collect

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/michibiki-ai/michibiki/internal/model"
)

// Source names identify which collector failed in a ContextCollectionError.
const (
	SourceCampaign   = "campaign_metrics"
	SourceCreative   = "creative_metrics"
	SourceCompetitor = "competitor_signals"
)

// ContextCollectionError reports a failed context gather. It names the
// collector that failed; the run carries no partial context past this point.
type ContextCollectionError struct {
	Source string
	Err    error
}

func (e *ContextCollectionError) Error() string {
	return fmt.Sprintf("collect: %s: %v", e.Source, e.Err)
}

func (e *ContextCollectionError) Unwrap() error { return e.Err }

// CampaignMetricsCollector fetches campaign-level performance.
type CampaignMetricsCollector interface {
	CollectCampaignMetrics(ctx context.Context, campaignID string, lookbackDays int) (model.CampaignMetrics, error)
}

// CreativeMetricsCollector fetches creative health signals.
type CreativeMetricsCollector interface {
	CollectCreativeMetrics(ctx context.Context, campaignID string, lookbackDays int) (model.CreativeMetrics, error)
}

// CompetitorSignalsCollector fetches auction pressure signals.
type CompetitorSignalsCollector interface {
	CollectCompetitorSignals(ctx context.Context, campaignID string, lookbackDays int) (model.CompetitorSignals, error)
}

// Builder runs the three collectors concurrently and assembles the result.
type Builder struct {
	campaign   CampaignMetricsCollector
	creative   CreativeMetricsCollector
	competitor CompetitorSignalsCollector
	timeout    time.Duration
	logger     *slog.Logger
}

// NewBuilder creates a Builder over the three collectors.
// timeout bounds the whole gather; zero disables the bound.
func NewBuilder(campaign CampaignMetricsCollector, creative CreativeMetricsCollector, competitor CompetitorSignalsCollector, timeout time.Duration, logger *slog.Logger) *Builder {
	return &Builder{
		campaign:   campaign,
		creative:   creative,
		competitor: competitor,
		timeout:    timeout,
		logger:     logger,
	}
}

// Build gathers all three snapshots concurrently. The first failure cancels
// the remaining collectors and the whole gather fails: downstream stages
// never see partial context. Collector errors are not retried here — a
// failed gather is terminal for the run.
func (b *Builder) Build(ctx context.Context, campaignID string, lookbackDays int) (model.AnalysisContext, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	start := time.Now()

	var (
		campaign   model.CampaignMetrics
		creative   model.CreativeMetrics
		competitor model.CompetitorSignals
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		campaign, err = b.campaign.CollectCampaignMetrics(gctx, campaignID, lookbackDays)
		if err != nil {
			return &ContextCollectionError{Source: SourceCampaign, Err: err}
		}
		return nil
	})
	g.Go(func() error {
		var err error
		creative, err = b.creative.CollectCreativeMetrics(gctx, campaignID, lookbackDays)
		if err != nil {
			return &ContextCollectionError{Source: SourceCreative, Err: err}
		}
		return nil
	})
	g.Go(func() error {
		var err error
		competitor, err = b.competitor.CollectCompetitorSignals(gctx, campaignID, lookbackDays)
		if err != nil {
			return &ContextCollectionError{Source: SourceCompetitor, Err: err}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return model.AnalysisContext{}, err
	}

	elapsed := time.Since(start)
	b.logger.Debug("context collected",
		"campaign_id", campaignID,
		"lookback_days", lookbackDays,
		"duration_ms", elapsed.Milliseconds(),
	)

	return model.AnalysisContext{
		CampaignID:   campaignID,
		LookbackDays: lookbackDays,
		Campaign:     campaign,
		Creative:     creative,
		Competitor:   competitor,
		CollectedAt:  time.Now().UTC(),
		CollectionMS: elapsed.Milliseconds(),
	}, nil
}
