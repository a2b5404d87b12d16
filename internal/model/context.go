// Package model defines the domain types shared across the analysis pipeline,
// storage layer, and API surfaces.
package model

import "time"

// CampaignMetrics is a snapshot of campaign-level performance over the
// lookback window, with period-over-period deltas against the preceding
// window of the same length.
type CampaignMetrics struct {
	CampaignID        string    `json:"campaign_id"`
	CampaignName      string    `json:"campaign_name"`
	Platform          string    `json:"platform"`
	PeriodStart       time.Time `json:"period_start"`
	PeriodEnd         time.Time `json:"period_end"`
	Impressions       int64     `json:"impressions"`
	Clicks            int64     `json:"clicks"`
	Conversions       int64     `json:"conversions"`
	SpendUSD          float64   `json:"spend_usd"`
	CPA               float64   `json:"cpa"`
	CTR               float64   `json:"ctr"`
	CVR               float64   `json:"cvr"`
	CPM               float64   `json:"cpm"`
	CPAChangePct      float64   `json:"cpa_change_pct"`
	CTRChangePct      float64   `json:"ctr_change_pct"`
	CVRChangePct      float64   `json:"cvr_change_pct"`
	CPMChangePct      float64   `json:"cpm_change_pct"`
	BudgetUtilization float64   `json:"budget_utilization"` // Fraction of daily budget spent, 0..1+.
}

// CreativeTrend labels the direction of a creative's CTR over the window.
type CreativeTrend string

const (
	TrendImproving CreativeTrend = "improving"
	TrendStable    CreativeTrend = "stable"
	TrendDeclining CreativeTrend = "declining"
)

// CreativeAsset is per-creative performance within a campaign.
type CreativeAsset struct {
	CreativeID string        `json:"creative_id"`
	Name       string        `json:"name"`
	Format     string        `json:"format"` // "video", "static", "carousel"
	AgeDays    int           `json:"age_days"`
	CTR        float64       `json:"ctr"`
	CTRTrend   CreativeTrend `json:"ctr_trend"`
	Frequency  float64       `json:"frequency"` // Average exposures per user.
	SpendShare float64       `json:"spend_share"`
}

// CreativeMetrics aggregates creative health signals for a campaign.
type CreativeMetrics struct {
	CampaignID       string          `json:"campaign_id"`
	Creatives        []CreativeAsset `json:"creatives"`
	AvgCreativeAge   float64         `json:"avg_creative_age_days"`
	AvgFrequency     float64         `json:"avg_frequency"`
	CTRTrend         CreativeTrend   `json:"ctr_trend"`
	FatigueDetected  bool            `json:"fatigue_detected"`
	FatigueReasoning string          `json:"fatigue_reasoning,omitempty"`
	TopPerformers    []string        `json:"top_performers,omitempty"`    // Creative IDs.
	UnderPerformers  []string        `json:"under_performers,omitempty"`  // Creative IDs.
	DaysSinceRefresh int             `json:"days_since_last_refresh"`
}

// CompetitorActivity is one observed competitor in the campaign's auctions.
type CompetitorActivity struct {
	Name              string  `json:"name"`
	OverlapRate       float64 `json:"overlap_rate"` // Share of auctions also entered by this competitor.
	EstimatedBidDelta float64 `json:"estimated_bid_delta_pct"`
	NewEntrant        bool    `json:"new_entrant"`
}

// CompetitorSignals summarizes auction pressure around a campaign.
type CompetitorSignals struct {
	CampaignID              string               `json:"campaign_id"`
	AuctionCompetitionScore float64              `json:"auction_competition_score"` // 0..100.
	ScoreChangePct          float64              `json:"score_change_pct"`
	NewEntrants             int                  `json:"new_entrants"`
	PressureLevel           string               `json:"pressure_level"` // "low", "moderate", "elevated", "severe"
	PressureReasoning       string               `json:"pressure_reasoning,omitempty"`
	TopCompetitors          []CompetitorActivity `json:"top_competitors,omitempty"`
}

// AnalysisContext is the immutable input bundle for one analysis run.
// All three snapshots are present: runs never proceed on partial context.
type AnalysisContext struct {
	CampaignID   string            `json:"campaign_id"`
	LookbackDays int               `json:"lookback_days"`
	Campaign     CampaignMetrics   `json:"campaign"`
	Creative     CreativeMetrics   `json:"creative"`
	Competitor   CompetitorSignals `json:"competitor"`
	CollectedAt  time.Time         `json:"collected_at"`
	CollectionMS int64             `json:"collection_ms"`
}
