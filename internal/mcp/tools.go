package mcp

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/michibiki-ai/michibiki/internal/model"
)

func (s *Server) registerTools() {
	// michibiki_analyze — run the full pipeline for a campaign.
	s.mcpServer.AddTool(
		mcplib.NewTool("michibiki_analyze",
			mcplib.WithDescription(`Run a full analysis for a campaign and get a workflow recommendation.

The pipeline collects campaign, creative, and competitor context, diagnoses
the root cause of any performance change, drafts a workflow recommendation,
and self-critiques it before finalizing. The result lands in the decision
ledger in the pending state; a human records the final decision with
michibiki_decide.

WHAT YOU GET BACK: the finalized recommendation — workflow type, confidence,
risk level, reasoning, specific actions, alternatives, and whether it was
flagged for extra review.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("campaign_id",
				mcplib.Description("Campaign to analyze. In simulated mode, fixture defaults like camp-cp-001 work without a scenario name."),
				mcplib.Required(),
			),
			mcplib.WithString("scenario",
				mcplib.Description("Simulated scenario name (see the michibiki://scenarios resource). Omit to use the campaign's fixture or live collectors."),
			),
			mcplib.WithNumber("lookback_days",
				mcplib.Description("How many days of history to analyze"),
				mcplib.Min(1),
				mcplib.Max(90),
			),
		),
		s.handleAnalyze,
	)

	// michibiki_get — fetch one ledger entry.
	s.mcpServer.AddTool(
		mcplib.NewTool("michibiki_get",
			mcplib.WithDescription("Fetch a recommendation from the decision ledger by ID, including its decision status and any reviewer feedback."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("id",
				mcplib.Description("Recommendation UUID"),
				mcplib.Required(),
			),
		),
		s.handleGet,
	)

	// michibiki_decide — record the human decision.
	s.mcpServer.AddTool(
		mcplib.NewTool("michibiki_decide",
			mcplib.WithDescription(`Record a human decision on a pending recommendation.

Decisions are at-most-once: once a recommendation leaves the pending state
it cannot be decided again, and this tool returns a conflict error.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("id",
				mcplib.Description("Recommendation UUID"),
				mcplib.Required(),
			),
			mcplib.WithString("decision",
				mcplib.Description("One of: approved, rejected, needs_revision"),
				mcplib.Required(),
				mcplib.Enum("approved", "rejected", "needs_revision"),
			),
			mcplib.WithString("decided_by",
				mcplib.Description("Who is making this decision"),
				mcplib.Required(),
			),
			mcplib.WithString("feedback",
				mcplib.Description("Optional reviewer feedback, especially useful with needs_revision"),
			),
		),
		s.handleDecide,
	)
}

func (s *Server) handleAnalyze(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	req := model.AnalyzeRequest{
		CampaignID:   request.GetString("campaign_id", ""),
		Scenario:     request.GetString("scenario", ""),
		LookbackDays: request.GetInt("lookback_days", 0),
	}
	if req.CampaignID == "" {
		return errorResult("campaign_id is required"), nil
	}

	rec, err := s.svc.RunAnalysis(ctx, req, nil)
	if err != nil {
		return errorResult(fmt.Sprintf("analysis failed: %v", err)), nil
	}
	return jsonResult(rec), nil
}

func (s *Server) handleGet(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, err := uuid.Parse(request.GetString("id", ""))
	if err != nil {
		return errorResult("invalid recommendation id"), nil
	}

	rec, err := s.svc.GetRecommendation(ctx, id)
	if err != nil {
		return errorResult(fmt.Sprintf("get failed: %v", err)), nil
	}
	return jsonResult(rec), nil
}

func (s *Server) handleDecide(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, err := uuid.Parse(request.GetString("id", ""))
	if err != nil {
		return errorResult("invalid recommendation id"), nil
	}

	req := model.DecisionRequest{
		Decision:  request.GetString("decision", ""),
		DecidedBy: request.GetString("decided_by", ""),
	}
	if fb := request.GetString("feedback", ""); fb != "" {
		req.Feedback = &fb
	}

	rec, err := s.svc.RecordDecision(ctx, id, req)
	if err != nil {
		return errorResult(fmt.Sprintf("decide failed: %v", err)), nil
	}
	return jsonResult(rec), nil
}
