// Package mcp implements the Model Context Protocol server for Michibiki.
//
// The MCP server exposes the same capabilities as the HTTP API through MCP
// resources and tools, so MCP-compatible agents can run analyses and work
// the decision ledger without speaking the REST surface.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/michibiki-ai/michibiki/internal/model"
	"github.com/michibiki-ai/michibiki/internal/service/advisor"
)

// Server wraps the MCP server with Michibiki's service layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	svc       *advisor.Service
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all resources and tools.
func New(svc *advisor.Service, version string, logger *slog.Logger) *Server {
	s := &Server{
		svc:    svc,
		logger: logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"michibiki",
		version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
	)

	s.registerResources()
	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerResources() {
	// michibiki://recommendations/recent — latest ledger entries.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"michibiki://recommendations/recent",
			"Recent Recommendations",
			mcplib.WithResourceDescription("The most recent recommendations and their decision status"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleRecentRecommendations,
	)

	// michibiki://scenarios — simulated-collector fixture catalog.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"michibiki://scenarios",
			"Scenario Catalog",
			mcplib.WithResourceDescription("Simulated campaign scenarios available for analysis runs"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleScenarios,
	)
}

func (s *Server) handleRecentRecommendations(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	recs, err := s.svc.ListRecommendations(ctx, model.RecommendationFilters{}, 10, 0)
	if err != nil {
		return nil, fmt.Errorf("mcp: recent recommendations: %w", err)
	}

	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal recommendations: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      "michibiki://recommendations/recent",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleScenarios(_ context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	data, err := json.MarshalIndent(s.svc.Scenarios(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal scenarios: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      "michibiki://scenarios",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

func jsonResult(v any) *mcplib.CallToolResult {
	data, _ := json.MarshalIndent(v, "", "  ")
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}
