package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/michibiki-ai/michibiki/internal/storage"
)

// Server is the Michibiki HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Middleware wraps the fully assembled handler. Applied outermost-first.
type Middleware func(http.Handler) http.Handler

// RouteRegistrar adds extra routes to the mux before the server starts.
type RouteRegistrar func(mux *http.ServeMux)

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Broker, MCPServer, ExtraRoutes, ExtraMiddleware.
type ServerConfig struct {
	// Required dependencies.
	DB      *storage.DB
	Advisor Advisor
	Logger  *slog.Logger

	// Optional dependencies (nil = disabled).
	Broker    *Broker
	MCPServer *mcpserver.MCPServer

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	ProviderName        string
	MaxRequestBodyBytes int64

	// Extension points for embedders.
	ExtraRoutes     []RouteRegistrar
	ExtraMiddleware []Middleware
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Advisor:             cfg.Advisor,
		DB:                  cfg.DB,
		Broker:              cfg.Broker,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		ProviderName:        cfg.ProviderName,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	mux := http.NewServeMux()

	// Analysis runs.
	mux.HandleFunc("POST /v1/analyze", h.HandleAnalyze)
	mux.HandleFunc("GET /v1/analyze/stream", h.HandleAnalyzeStream)

	// Decision ledger.
	mux.HandleFunc("GET /v1/recommendations", h.HandleListRecommendations)
	mux.HandleFunc("GET /v1/recommendations/{id}", h.HandleGetRecommendation)
	mux.HandleFunc("POST /v1/recommendations/{id}/decision", h.HandleDecision)

	// Scenario catalog.
	mux.HandleFunc("GET /v1/scenarios", h.HandleScenarios)

	// Notification firehose (long-lived connection).
	mux.HandleFunc("GET /v1/subscribe", h.HandleSubscribe)

	// MCP StreamableHTTP transport.
	if cfg.MCPServer != nil {
		mcpHTTP := mcpserver.NewStreamableHTTPServer(cfg.MCPServer)
		mux.Handle("/mcp", mcpHTTP)
	}

	// Health.
	mux.HandleFunc("GET /health", h.HandleHealth)

	for _, register := range cfg.ExtraRoutes {
		register(mux)
	}

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)
	for i := len(cfg.ExtraMiddleware) - 1; i >= 0; i-- {
		handler = cfg.ExtraMiddleware[i](handler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
