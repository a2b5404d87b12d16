package collect

import (
	"fmt"
	"strings"

	"github.com/michibiki-ai/michibiki/internal/model"
)

// FormatContext renders an AnalysisContext as markdown for model prompts.
// Sections mirror the three collectors so the model can attribute signals
// to their source.
func FormatContext(c model.AnalysisContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Campaign Context: %s (%s)\n", c.Campaign.CampaignName, c.CampaignID)
	fmt.Fprintf(&b, "Platform: %s | Lookback: %d days\n\n", c.Campaign.Platform, c.LookbackDays)

	fmt.Fprintf(&b, "## Campaign Performance\n")
	fmt.Fprintf(&b, "- Spend: $%.2f (budget utilization %.0f%%)\n", c.Campaign.SpendUSD, c.Campaign.BudgetUtilization*100)
	fmt.Fprintf(&b, "- Impressions: %d | Clicks: %d | Conversions: %d\n",
		c.Campaign.Impressions, c.Campaign.Clicks, c.Campaign.Conversions)
	fmt.Fprintf(&b, "- CPA: $%.2f (%+.1f%% vs prior period)\n", c.Campaign.CPA, c.Campaign.CPAChangePct)
	fmt.Fprintf(&b, "- CTR: %.2f%% (%+.1f%% vs prior period)\n", c.Campaign.CTR*100, c.Campaign.CTRChangePct)
	fmt.Fprintf(&b, "- CVR: %.2f%% (%+.1f%% vs prior period)\n", c.Campaign.CVR*100, c.Campaign.CVRChangePct)
	fmt.Fprintf(&b, "- CPM: $%.2f (%+.1f%% vs prior period)\n\n", c.Campaign.CPM, c.Campaign.CPMChangePct)

	fmt.Fprintf(&b, "## Creative Health\n")
	fmt.Fprintf(&b, "- Average creative age: %.0f days | Average frequency: %.1f\n",
		c.Creative.AvgCreativeAge, c.Creative.AvgFrequency)
	fmt.Fprintf(&b, "- CTR trend: %s | Days since last refresh: %d\n",
		c.Creative.CTRTrend, c.Creative.DaysSinceRefresh)
	fmt.Fprintf(&b, "- Fatigue detected: %t\n", c.Creative.FatigueDetected)
	if c.Creative.FatigueReasoning != "" {
		fmt.Fprintf(&b, "- Fatigue assessment: %s\n", c.Creative.FatigueReasoning)
	}
	for _, cr := range c.Creative.Creatives {
		fmt.Fprintf(&b, "- Creative %q (%s, %d days old): CTR %.2f%%, trend %s, frequency %.1f\n",
			cr.Name, cr.Format, cr.AgeDays, cr.CTR*100, cr.CTRTrend, cr.Frequency)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## Competitive Landscape\n")
	fmt.Fprintf(&b, "- Auction competition score: %.1f/100 (%+.1f%% vs prior period)\n",
		c.Competitor.AuctionCompetitionScore, c.Competitor.ScoreChangePct)
	fmt.Fprintf(&b, "- New entrants this period: %d | Pressure: %s\n",
		c.Competitor.NewEntrants, c.Competitor.PressureLevel)
	if c.Competitor.PressureReasoning != "" {
		fmt.Fprintf(&b, "- Assessment: %s\n", c.Competitor.PressureReasoning)
	}
	for _, comp := range c.Competitor.TopCompetitors {
		marker := ""
		if comp.NewEntrant {
			marker = " [new entrant]"
		}
		fmt.Fprintf(&b, "- Competitor %q%s: auction overlap %.0f%%, estimated bid delta %+.0f%%\n",
			comp.Name, marker, comp.OverlapRate*100, comp.EstimatedBidDelta)
	}

	return b.String()
}
