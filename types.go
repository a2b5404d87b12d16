package michibiki

import (
	"time"

	"github.com/google/uuid"
)

// Recommendation is the public view of a ledger entry, passed to event hooks.
// It is a curated view of the internal recommendation — no internal package
// imports, safe to use from outside the module.
type Recommendation struct {
	ID            uuid.UUID
	CampaignID    string
	Workflow      string
	Confidence    float64
	Risk          string
	Reasoning     string
	RootCause     string
	NeedsReview   bool
	Decision      string
	DecidedBy     *string
	Regenerations int
	CreatedAt     time.Time
}

// CampaignSnapshot mirrors the internal campaign metrics snapshot field for
// field. The JSON tags match the internal type so adapter conversion can go
// through the shared wire shape.
type CampaignSnapshot struct {
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
	BudgetUtilization float64   `json:"budget_utilization"`
}

// CreativeAssetSnapshot is per-creative performance within a campaign.
type CreativeAssetSnapshot struct {
	CreativeID string  `json:"creative_id"`
	Name       string  `json:"name"`
	Format     string  `json:"format"`
	AgeDays    int     `json:"age_days"`
	CTR        float64 `json:"ctr"`
	CTRTrend   string  `json:"ctr_trend"` // "improving", "stable", "declining"
	Frequency  float64 `json:"frequency"`
	SpendShare float64 `json:"spend_share"`
}

// CreativeSnapshot mirrors the internal creative health snapshot.
type CreativeSnapshot struct {
	CampaignID       string                  `json:"campaign_id"`
	Creatives        []CreativeAssetSnapshot `json:"creatives"`
	AvgCreativeAge   float64                 `json:"avg_creative_age_days"`
	AvgFrequency     float64                 `json:"avg_frequency"`
	CTRTrend         string                  `json:"ctr_trend"`
	FatigueDetected  bool                    `json:"fatigue_detected"`
	FatigueReasoning string                  `json:"fatigue_reasoning,omitempty"`
	TopPerformers    []string                `json:"top_performers,omitempty"`
	UnderPerformers  []string                `json:"under_performers,omitempty"`
	DaysSinceRefresh int                     `json:"days_since_last_refresh"`
}

// CompetitorEntry is one observed competitor in the campaign's auctions.
type CompetitorEntry struct {
	Name              string  `json:"name"`
	OverlapRate       float64 `json:"overlap_rate"`
	EstimatedBidDelta float64 `json:"estimated_bid_delta_pct"`
	NewEntrant        bool    `json:"new_entrant"`
}

// CompetitorSnapshot mirrors the internal auction pressure snapshot.
type CompetitorSnapshot struct {
	CampaignID              string            `json:"campaign_id"`
	AuctionCompetitionScore float64           `json:"auction_competition_score"`
	ScoreChangePct          float64           `json:"score_change_pct"`
	NewEntrants             int               `json:"new_entrants"`
	PressureLevel           string            `json:"pressure_level"`
	PressureReasoning       string            `json:"pressure_reasoning,omitempty"`
	TopCompetitors          []CompetitorEntry `json:"top_competitors,omitempty"`
}
