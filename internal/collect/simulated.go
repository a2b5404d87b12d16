package collect

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/michibiki-ai/michibiki/internal/model"
)

// scenario is one simulated campaign situation. Each bundles the three
// snapshots the live collectors would return for that situation.
type scenario struct {
	name        string
	description string
	campaign    model.CampaignMetrics
	creative    model.CreativeMetrics
	competitor  model.CompetitorSignals
}

// SimulatedSource serves fixture snapshots in place of live ad-platform
// APIs. A source is pinned to one scenario; the demo server keeps one
// source per scenario name.
type SimulatedSource struct {
	sc    scenario
	delay time.Duration // Simulated API latency per collector call.
}

// NewSimulatedSource returns a source for the named scenario.
// Known names are listed by Scenarios().
func NewSimulatedSource(name string) (*SimulatedSource, error) {
	sc, ok := scenarios[name]
	if !ok {
		return nil, fmt.Errorf("collect: unknown scenario %q", name)
	}
	return &SimulatedSource{sc: sc, delay: 50 * time.Millisecond}, nil
}

// Scenarios lists the available fixture scenarios, sorted by name.
func Scenarios() []model.ScenarioInfo {
	out := make([]model.ScenarioInfo, 0, len(scenarios))
	for _, sc := range scenarios {
		out = append(out, model.ScenarioInfo{
			Name:        sc.name,
			CampaignID:  sc.campaign.CampaignID,
			Description: sc.description,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ScenarioForCampaign returns the scenario whose fixture default matches the
// campaign ID. Lets callers omit the scenario name when the campaign ID is a
// fixture default.
func ScenarioForCampaign(campaignID string) (string, bool) {
	for name, sc := range scenarios {
		if sc.campaign.CampaignID == campaignID {
			return name, true
		}
	}
	return "", false
}

func (s *SimulatedSource) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.delay):
		return nil
	}
}

// CollectCampaignMetrics returns the scenario's campaign snapshot.
func (s *SimulatedSource) CollectCampaignMetrics(ctx context.Context, campaignID string, lookbackDays int) (model.CampaignMetrics, error) {
	if err := s.wait(ctx); err != nil {
		return model.CampaignMetrics{}, err
	}
	m := s.campaignMetricsFor(campaignID, lookbackDays)
	return m, nil
}

// CollectCreativeMetrics returns the scenario's creative snapshot.
func (s *SimulatedSource) CollectCreativeMetrics(ctx context.Context, campaignID string, lookbackDays int) (model.CreativeMetrics, error) {
	if err := s.wait(ctx); err != nil {
		return model.CreativeMetrics{}, err
	}
	m := s.sc.creative
	m.CampaignID = campaignID
	return m, nil
}

// CollectCompetitorSignals returns the scenario's competitor snapshot.
func (s *SimulatedSource) CollectCompetitorSignals(ctx context.Context, campaignID string, lookbackDays int) (model.CompetitorSignals, error) {
	if err := s.wait(ctx); err != nil {
		return model.CompetitorSignals{}, err
	}
	m := s.sc.competitor
	m.CampaignID = campaignID
	return m, nil
}

func (s *SimulatedSource) campaignMetricsFor(campaignID string, lookbackDays int) model.CampaignMetrics {
	m := s.sc.campaign
	m.CampaignID = campaignID
	now := time.Now().UTC()
	m.PeriodEnd = now
	m.PeriodStart = now.AddDate(0, 0, -lookbackDays)
	return m
}

// scenarios holds the fixture catalog. Values are chosen so each scenario's
// dominant signal is unambiguous under the analysis heuristics (frequency
// above 5, creative age above 30 days, competition score above 80).
var scenarios = map[string]scenario{
	"competitive_pressure": {
		name:        "competitive_pressure",
		description: "Rising CPA driven by a sharp increase in auction competition and three new entrants.",
		campaign: model.CampaignMetrics{
			CampaignID:        "camp-cp-001",
			CampaignName:      "Spring Sale - Prospecting",
			Platform:          "meta",
			Impressions:       1_840_000,
			Clicks:            23_900,
			Conversions:       612,
			SpendUSD:          48_350,
			CPA:               79.00,
			CTR:               0.0130,
			CVR:               0.0256,
			CPM:               26.30,
			CPAChangePct:      32.5,
			CTRChangePct:      -2.1,
			CVRChangePct:      -1.4,
			CPMChangePct:      28.7,
			BudgetUtilization: 0.97,
		},
		creative: model.CreativeMetrics{
			AvgCreativeAge:   18,
			AvgFrequency:     3.2,
			CTRTrend:         model.TrendStable,
			FatigueDetected:  false,
			DaysSinceRefresh: 18,
			Creatives: []model.CreativeAsset{
				{CreativeID: "cr-101", Name: "Spring Hero Video", Format: "video", AgeDays: 18, CTR: 0.0142, CTRTrend: model.TrendStable, Frequency: 3.4, SpendShare: 0.55},
				{CreativeID: "cr-102", Name: "Carousel - Bestsellers", Format: "carousel", AgeDays: 14, CTR: 0.0115, CTRTrend: model.TrendStable, Frequency: 2.9, SpendShare: 0.45},
			},
			TopPerformers: []string{"cr-101"},
		},
		competitor: model.CompetitorSignals{
			AuctionCompetitionScore: 87.5,
			ScoreChangePct:          24.1,
			NewEntrants:             3,
			PressureLevel:           "severe",
			PressureReasoning:       "Three new entrants bidding aggressively on overlapping audiences; CPM inflation tracks the competition score.",
			TopCompetitors: []model.CompetitorActivity{
				{Name: "BrandAlpha", OverlapRate: 0.62, EstimatedBidDelta: 35, NewEntrant: true},
				{Name: "ShopNorth", OverlapRate: 0.48, EstimatedBidDelta: 22, NewEntrant: true},
				{Name: "ValueMart", OverlapRate: 0.41, EstimatedBidDelta: 15, NewEntrant: true},
			},
		},
	},
	"creative_fatigue": {
		name:        "creative_fatigue",
		description: "CTR collapse on aging creatives with high frequency; competitive landscape quiet.",
		campaign: model.CampaignMetrics{
			CampaignID:        "camp-cf-002",
			CampaignName:      "Evergreen Retargeting",
			Platform:          "meta",
			Impressions:       960_000,
			Clicks:            7_300,
			Conversions:       401,
			SpendUSD:          21_200,
			CPA:               52.87,
			CTR:               0.0076,
			CVR:               0.0549,
			CPM:               22.08,
			CPAChangePct:      18.9,
			CTRChangePct:      -38.5,
			CVRChangePct:      0.8,
			CPMChangePct:      2.3,
			BudgetUtilization: 0.88,
		},
		creative: model.CreativeMetrics{
			AvgCreativeAge:   42,
			AvgFrequency:     7.8,
			CTRTrend:         model.TrendDeclining,
			FatigueDetected:  true,
			FatigueReasoning: "All active creatives exceed 30 days of age with frequency above 5; CTR decline is steepest on the oldest asset.",
			DaysSinceRefresh: 42,
			Creatives: []model.CreativeAsset{
				{CreativeID: "cr-201", Name: "Testimonial Loop", Format: "video", AgeDays: 51, CTR: 0.0061, CTRTrend: model.TrendDeclining, Frequency: 8.6, SpendShare: 0.40},
				{CreativeID: "cr-202", Name: "Static Offer", Format: "static", AgeDays: 42, CTR: 0.0079, CTRTrend: model.TrendDeclining, Frequency: 7.9, SpendShare: 0.35},
				{CreativeID: "cr-203", Name: "UGC Compilation", Format: "video", AgeDays: 33, CTR: 0.0094, CTRTrend: model.TrendDeclining, Frequency: 6.8, SpendShare: 0.25},
			},
			UnderPerformers: []string{"cr-201", "cr-202"},
		},
		competitor: model.CompetitorSignals{
			AuctionCompetitionScore: 44.0,
			ScoreChangePct:          -3.2,
			NewEntrants:             0,
			PressureLevel:           "low",
		},
	},
	"audience_saturation": {
		name:        "audience_saturation",
		description: "Frequency far past saturation on a narrow audience; fresh creatives cannot fix reach.",
		campaign: model.CampaignMetrics{
			CampaignID:        "camp-as-003",
			CampaignName:      "Lookalike 1% - Conversions",
			Platform:          "meta",
			Impressions:       2_310_000,
			Clicks:            19_400,
			Conversions:       488,
			SpendUSD:          39_800,
			CPA:               81.56,
			CTR:               0.0084,
			CVR:               0.0252,
			CPM:               17.23,
			CPAChangePct:      24.2,
			CTRChangePct:      -19.6,
			CVRChangePct:      -11.3,
			CPMChangePct:      6.1,
			BudgetUtilization: 1.02,
		},
		creative: model.CreativeMetrics{
			AvgCreativeAge:   12,
			AvgFrequency:     8.5,
			CTRTrend:         model.TrendDeclining,
			FatigueDetected:  false,
			FatigueReasoning: "Creatives are fresh; the decline tracks frequency, not asset age.",
			DaysSinceRefresh: 12,
			Creatives: []model.CreativeAsset{
				{CreativeID: "cr-301", Name: "New Collection Video", Format: "video", AgeDays: 12, CTR: 0.0088, CTRTrend: model.TrendDeclining, Frequency: 8.9, SpendShare: 0.60},
				{CreativeID: "cr-302", Name: "Product Grid", Format: "carousel", AgeDays: 9, CTR: 0.0078, CTRTrend: model.TrendDeclining, Frequency: 7.9, SpendShare: 0.40},
			},
		},
		competitor: model.CompetitorSignals{
			AuctionCompetitionScore: 51.0,
			ScoreChangePct:          1.8,
			NewEntrants:             0,
			PressureLevel:           "moderate",
		},
	},
	"winning_campaign": {
		name:        "winning_campaign",
		description: "Healthy campaign beating its targets across the board; the right move is no move.",
		campaign: model.CampaignMetrics{
			CampaignID:        "camp-ok-004",
			CampaignName:      "Brand Search - Core",
			Platform:          "google",
			Impressions:       412_000,
			Clicks:            30_100,
			Conversions:       1_260,
			SpendUSD:          27_400,
			CPA:               21.75,
			CTR:               0.0731,
			CVR:               0.0419,
			CPM:               66.50,
			CPAChangePct:      -15.5,
			CTRChangePct:      12.3,
			CVRChangePct:      4.6,
			CPMChangePct:      -1.9,
			BudgetUtilization: 0.91,
		},
		creative: model.CreativeMetrics{
			AvgCreativeAge:   21,
			AvgFrequency:     2.4,
			CTRTrend:         model.TrendImproving,
			FatigueDetected:  false,
			DaysSinceRefresh: 21,
			Creatives: []model.CreativeAsset{
				{CreativeID: "cr-401", Name: "RSA - Core Terms", Format: "static", AgeDays: 21, CTR: 0.0745, CTRTrend: model.TrendImproving, Frequency: 2.4, SpendShare: 1.0},
			},
			TopPerformers: []string{"cr-401"},
		},
		competitor: model.CompetitorSignals{
			AuctionCompetitionScore: 38.0,
			ScoreChangePct:          -5.4,
			NewEntrants:             0,
			PressureLevel:           "low",
		},
	},
	"multi_signal": {
		name:        "multi_signal",
		description: "Compound problem: fatigued creatives and rising competition at the same time.",
		campaign: model.CampaignMetrics{
			CampaignID:        "camp-ms-005",
			CampaignName:      "Q3 Prospecting - Broad",
			Platform:          "meta",
			Impressions:       3_020_000,
			Clicks:            24_200,
			Conversions:       530,
			SpendUSD:          61_900,
			CPA:               116.79,
			CTR:               0.0080,
			CVR:               0.0219,
			CPM:               20.50,
			CPAChangePct:      41.7,
			CTRChangePct:      -27.9,
			CVRChangePct:      -8.5,
			CPMChangePct:      19.2,
			BudgetUtilization: 1.05,
		},
		creative: model.CreativeMetrics{
			AvgCreativeAge:   38,
			AvgFrequency:     6.4,
			CTRTrend:         model.TrendDeclining,
			FatigueDetected:  true,
			FatigueReasoning: "Aging creatives with high frequency; decline predates the competition shift but both are now active.",
			DaysSinceRefresh: 38,
			Creatives: []model.CreativeAsset{
				{CreativeID: "cr-501", Name: "Summer Launch Video", Format: "video", AgeDays: 45, CTR: 0.0071, CTRTrend: model.TrendDeclining, Frequency: 7.1, SpendShare: 0.50},
				{CreativeID: "cr-502", Name: "Feature Carousel", Format: "carousel", AgeDays: 31, CTR: 0.0089, CTRTrend: model.TrendDeclining, Frequency: 5.7, SpendShare: 0.50},
			},
			UnderPerformers: []string{"cr-501"},
		},
		competitor: model.CompetitorSignals{
			AuctionCompetitionScore: 81.0,
			ScoreChangePct:          17.6,
			NewEntrants:             2,
			PressureLevel:           "elevated",
			PressureReasoning:       "Two new entrants and steady CPM inflation across the category.",
			TopCompetitors: []model.CompetitorActivity{
				{Name: "TrendCart", OverlapRate: 0.53, EstimatedBidDelta: 27, NewEntrant: true},
				{Name: "DirectHaus", OverlapRate: 0.37, EstimatedBidDelta: 18, NewEntrant: true},
			},
		},
	},
}
