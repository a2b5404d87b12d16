package michibiki

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/michibiki-ai/michibiki/internal/llm"
	"github.com/michibiki-ai/michibiki/internal/model"
)

func TestToPublicRecommendation(t *testing.T) {
	decidedBy := "alice@example.com"
	internal := model.Recommendation{
		ID:          uuid.New(),
		CampaignID:  "camp-cp-001",
		Workflow:    model.WorkflowBidAdjustment,
		Confidence:  0.78,
		Risk:        model.RiskMedium,
		Reasoning:   "auction pressure",
		Analysis:    model.SignalAnalysis{RootCause: model.CauseCompetitivePressure},
		NeedsReview: true,
		Decision:    model.DecisionApproved,
		DecidedBy:   &decidedBy,
		CreatedAt:   time.Now().UTC(),
	}

	pub := toPublicRecommendation(internal)
	if pub.ID != internal.ID || pub.CampaignID != internal.CampaignID {
		t.Error("identity fields not carried")
	}
	if pub.Workflow != "BID_ADJUSTMENT" || pub.Risk != "medium" {
		t.Errorf("workflow/risk = %q/%q", pub.Workflow, pub.Risk)
	}
	if pub.RootCause != "competitive_pressure" {
		t.Errorf("root cause = %q", pub.RootCause)
	}
	if !pub.NeedsReview || pub.Decision != "approved" {
		t.Error("review surface not carried")
	}
	if pub.DecidedBy == nil || *pub.DecidedBy != decidedBy {
		t.Error("decided_by not carried")
	}
}

// staticCollector returns fixed public snapshots, standing in for an external
// ad-platform integration.
type staticCollector struct{}

func (staticCollector) CollectCampaignMetrics(_ context.Context, campaignID string, _ int) (CampaignSnapshot, error) {
	return CampaignSnapshot{
		CampaignID:   campaignID,
		CampaignName: "External Campaign",
		Platform:     "meta",
		Impressions:  1000,
		CPA:          42.5,
		CPAChangePct: 12.0,
	}, nil
}

func (staticCollector) CollectCreativeMetrics(_ context.Context, campaignID string, _ int) (CreativeSnapshot, error) {
	return CreativeSnapshot{
		CampaignID: campaignID,
		Creatives: []CreativeAssetSnapshot{
			{CreativeID: "cr-1", Name: "Hero", Format: "video", AgeDays: 40, CTRTrend: "declining"},
		},
		FatigueDetected: true,
	}, nil
}

func (staticCollector) CollectCompetitorSignals(_ context.Context, campaignID string, _ int) (CompetitorSnapshot, error) {
	return CompetitorSnapshot{
		CampaignID:              campaignID,
		AuctionCompetitionScore: 70,
		TopCompetitors:          []CompetitorEntry{{Name: "Rival", OverlapRate: 0.5, NewEntrant: true}},
	}, nil
}

func TestCollectorAdapterRoundTrip(t *testing.T) {
	a := &collectorAdapter{c: staticCollector{}}
	ctx := context.Background()

	campaign, err := a.CollectCampaignMetrics(ctx, "camp-x", 7)
	if err != nil {
		t.Fatalf("CollectCampaignMetrics: %v", err)
	}
	if campaign.CampaignID != "camp-x" || campaign.CPA != 42.5 || campaign.CPAChangePct != 12.0 {
		t.Errorf("campaign snapshot did not convert: %+v", campaign)
	}

	creative, err := a.CollectCreativeMetrics(ctx, "camp-x", 7)
	if err != nil {
		t.Fatalf("CollectCreativeMetrics: %v", err)
	}
	if !creative.FatigueDetected || len(creative.Creatives) != 1 || creative.Creatives[0].CTRTrend != model.TrendDeclining {
		t.Errorf("creative snapshot did not convert: %+v", creative)
	}

	competitor, err := a.CollectCompetitorSignals(ctx, "camp-x", 7)
	if err != nil {
		t.Fatalf("CollectCompetitorSignals: %v", err)
	}
	if competitor.AuctionCompetitionScore != 70 || len(competitor.TopCompetitors) != 1 || !competitor.TopCompetitors[0].NewEntrant {
		t.Errorf("competitor snapshot did not convert: %+v", competitor)
	}
}

// echoProvider records the request it received and returns a fixed payload.
type echoProvider struct {
	last ModelRequest
}

func (p *echoProvider) Invoke(_ context.Context, req ModelRequest) (json.RawMessage, error) {
	p.last = req
	return json.RawMessage(`{"ok": true}`), nil
}

func (p *echoProvider) Name() string { return "echo" }

func TestModelProviderAdapterMarshalsSchema(t *testing.T) {
	echo := &echoProvider{}
	a := &modelProviderAdapter{p: echo}

	raw, err := a.Invoke(context.Background(), llm.Request{
		System: "sys",
		Prompt: "prompt",
		Schema: &llm.Schema{
			Type:       "object",
			Properties: map[string]*llm.Schema{"verdict": {Type: "string", Enum: []string{"pass", "fail"}}},
			Required:   []string{"verdict"},
		},
		Temperature: 0.3,
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if string(raw) != `{"ok": true}` {
		t.Errorf("raw = %q", raw)
	}
	if echo.last.System != "sys" || echo.last.Prompt != "prompt" || echo.last.Temperature != 0.3 {
		t.Errorf("request not forwarded: %+v", echo.last)
	}

	var schema struct {
		Type     string   `json:"type"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(echo.last.Schema, &schema); err != nil {
		t.Fatalf("schema not valid JSON: %v", err)
	}
	if schema.Type != "object" || len(schema.Required) != 1 {
		t.Errorf("schema = %+v", schema)
	}
}

func TestEmbeddingAdapter(t *testing.T) {
	a := &embeddingAdapter{p: staticEmbedder{}}

	vec, err := a.Embed(context.Background(), "text")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if got := vec.Slice(); len(got) != 3 || got[1] != 0.5 {
		t.Errorf("vector = %v", got)
	}
	if a.Dimensions() != 3 {
		t.Errorf("dimensions = %d", a.Dimensions())
	}
}

type staticEmbedder struct{}

func (staticEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{0.1, 0.5, 0.9}, nil
}

func (staticEmbedder) Dimensions() int { return 3 }
