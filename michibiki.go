// Package michibiki is the public API for embedding the Michibiki
// recommendation server.
//
// Consumers import this package to construct and extend the server without
// forking it:
//
//	app, err := michibiki.New(
//	    michibiki.WithVersion(version),
//	    michibiki.WithLogger(logger),
//	    michibiki.WithEventHook(mySlackNotifier{}),
//	    michibiki.WithCollectors(myPlatformClient{}),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: michibiki (root) imports
// internal/*, but internal/* never imports michibiki (root). Public types
// (Recommendation, the snapshots) are standalone structs with no internal
// imports; conversion helpers live here because this is the only file that
// sees both sides of the boundary.
package michibiki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/pgvector/pgvector-go"

	"github.com/michibiki-ai/michibiki/internal/agent"
	"github.com/michibiki-ai/michibiki/internal/config"
	"github.com/michibiki-ai/michibiki/internal/llm"
	"github.com/michibiki-ai/michibiki/internal/mcp"
	"github.com/michibiki-ai/michibiki/internal/model"
	"github.com/michibiki-ai/michibiki/internal/server"
	"github.com/michibiki-ai/michibiki/internal/service/advisor"
	"github.com/michibiki-ai/michibiki/internal/service/embedding"
	"github.com/michibiki-ai/michibiki/internal/storage"
	"github.com/michibiki-ai/michibiki/internal/telemetry"
	"github.com/michibiki-ai/michibiki/migrations"
)

// App is the Michibiki server lifecycle. Construct with New(), run with Run().
// App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	db           *storage.DB
	srv          *server.Server
	broker       *server.Broker // nil when no notify connection
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initialises the Michibiki server. It connects to the database, runs
// migrations, wires all subsystems, and returns a ready-to-run App.
// It does NOT start any goroutines or accept HTTP connections — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration (env vars), then apply option overrides.
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.notifyURL != "" {
		cfg.NotifyURL = o.notifyURL
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("michibiki starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	// Connect to database.
	db, err := storage.New(context.Background(), cfg.DatabaseURL, cfg.NotifyURL, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("storage: %w", err)
	}

	fail := func(err error) (*App, error) {
		db.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, err
	}

	// Run built-in migrations, then any extra (embedder-supplied) ones.
	if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
		return fail(fmt.Errorf("migrations: %w", err))
	}
	for i, extraFS := range o.extraMigrations {
		if err := db.RunMigrations(context.Background(), extraFS); err != nil {
			return fail(fmt.Errorf("extra migrations[%d]: %w", i, err))
		}
	}

	// Verify the ledger table exists after migration.
	var schemaOK bool
	if err := db.Pool().QueryRow(context.Background(),
		`SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'recommendations')`,
	).Scan(&schemaOK); err != nil {
		return fail(fmt.Errorf("schema verification: %w", err))
	}
	if !schemaOK {
		return fail(fmt.Errorf("critical table 'recommendations' does not exist after migration — check that the pgvector extension is available"))
	}

	// Model provider — external override takes priority over auto-detect.
	var provider llm.Provider
	if o.modelProvider != nil {
		provider = &modelProviderAdapter{p: o.modelProvider}
	} else {
		provider, err = newModelProvider(cfg, logger)
		if err != nil {
			return fail(err)
		}
	}
	logger.Info("model provider", "name", provider.Name())

	// Embedding provider — same override rule.
	var embedder embedding.Provider
	if o.embeddingProvider != nil {
		embedder = &embeddingAdapter{p: o.embeddingProvider}
	} else {
		embedder = newEmbeddingProvider(cfg, logger)
	}

	// Live collectors.
	var live *advisor.LiveCollectors
	if o.collector != nil {
		ca := &collectorAdapter{c: o.collector}
		live = &advisor.LiveCollectors{Campaign: ca, Creative: ca, Competitor: ca}
	}
	if cfg.CollectorMode == "live" && live == nil {
		return fail(fmt.Errorf("MICHIBIKI_COLLECTOR_MODE=live requires WithCollectors"))
	}

	// Event hooks.
	var hook advisor.Hook
	if len(o.eventHooks) > 0 {
		hook = &hookAdapter{hooks: o.eventHooks}
	}

	// Advisor service.
	svc := advisor.New(db, provider, embedder, live, hook, advisor.Config{
		CollectorMode:       cfg.CollectorMode,
		DefaultLookbackDays: cfg.DefaultLookbackDays,
		CollectTimeout:      cfg.CollectTimeout,
		Stage: agent.StageConfig{
			CallTimeout:    cfg.ModelCallTimeout,
			RetryAttempts:  cfg.ModelRetryAttempts,
			RetryBaseDelay: cfg.ModelRetryBaseDelay,
		},
		MaxAlternatives:       cfg.MaxAlternatives,
		ReviewConfidenceFloor: cfg.ReviewConfidenceFloor,
		PrecedentMaxDistance:  cfg.PrecedentMaxDistance,
		ModelVersion:          provider.Name(),
	}, logger)

	// MCP server.
	mcpSrv := mcp.New(svc, version, logger)

	// SSE broker.
	var broker *server.Broker
	if db.HasNotifyConn() {
		broker = server.NewBroker(db, logger)
	} else {
		logger.Info("SSE broker: disabled (no notify connection)")
	}

	// Adapt extension points to internal server types.
	var extraRoutes []server.RouteRegistrar
	for _, fn := range o.routeRegistrars {
		extraRoutes = append(extraRoutes, server.RouteRegistrar(fn))
	}
	var middlewares []server.Middleware
	for _, mw := range o.middlewares {
		middlewares = append(middlewares, server.Middleware(mw))
	}

	srv := server.New(server.ServerConfig{
		DB:                  db,
		Advisor:             svc,
		Logger:              logger,
		Broker:              broker,
		MCPServer:           mcpSrv.MCPServer(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		ProviderName:        provider.Name(),
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		ExtraRoutes:         extraRoutes,
		ExtraMiddleware:     middlewares,
	})

	return &App{
		cfg:          cfg,
		db:           db,
		srv:          srv,
		broker:       broker,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Run starts the broker and the HTTP server, then blocks until ctx is
// cancelled or a fatal server error occurs. On return, Shutdown is called
// automatically — callers should not call Shutdown separately.
func (a *App) Run(ctx context.Context) error {
	if a.broker != nil {
		go a.broker.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown drains in-flight HTTP requests, then closes the OTEL providers
// and the database pool.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("michibiki shutting down")

	httpCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}

	_ = a.otelShutdown(context.Background())
	a.db.Close(context.Background())

	a.logger.Info("michibiki stopped")
	return nil
}

// newModelProvider resolves the configured chat model backend. In auto mode
// a Gemini API key wins; otherwise a reachable Ollama server is used.
func newModelProvider(cfg config.Config, logger *slog.Logger) (llm.Provider, error) {
	switch cfg.ModelProvider {
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("model provider gemini requires GEMINI_API_KEY")
		}
		return llm.NewGeminiProvider(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
	case "ollama":
		return llm.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaChatModel), nil
	case "auto":
		if cfg.GeminiAPIKey != "" {
			return llm.NewGeminiProvider(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
		}
		if llm.Reachable(cfg.OllamaURL) {
			return llm.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaChatModel), nil
		}
		return nil, fmt.Errorf("no model provider available: set GEMINI_API_KEY or run Ollama at %s", cfg.OllamaURL)
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.ModelProvider)
	}
}

// newEmbeddingProvider resolves the embedding backend. Falls back to zero
// vectors when nothing is reachable — runs still work, precedent lookup is
// just disabled.
func newEmbeddingProvider(cfg config.Config, logger *slog.Logger) embedding.Provider {
	switch cfg.EmbeddingProvider {
	case "ollama":
		return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	case "noop":
		return embedding.NewNoopProvider(cfg.EmbeddingDimensions)
	default: // "auto"
		if llm.Reachable(cfg.OllamaURL) {
			logger.Info("embeddings: ollama", "model", cfg.EmbeddingModel, "dims", cfg.EmbeddingDimensions)
			return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
		}
		logger.Info("embeddings: disabled (no reachable backend), precedent lookup off")
		return embedding.NewNoopProvider(cfg.EmbeddingDimensions)
	}
}

// ── Adapters between public extension interfaces and internal types ────────────

type modelProviderAdapter struct {
	p ModelProvider
}

func (a *modelProviderAdapter) Invoke(ctx context.Context, req llm.Request) (json.RawMessage, error) {
	var schema json.RawMessage
	if req.Schema != nil {
		data, err := json.Marshal(req.Schema)
		if err != nil {
			return nil, fmt.Errorf("marshal schema: %w", err)
		}
		schema = data
	}
	return a.p.Invoke(ctx, ModelRequest{
		System:      req.System,
		Prompt:      req.Prompt,
		Schema:      schema,
		Temperature: req.Temperature,
	})
}

func (a *modelProviderAdapter) Name() string {
	return a.p.Name()
}

type embeddingAdapter struct {
	p EmbeddingProvider
}

func (a *embeddingAdapter) Embed(ctx context.Context, text string) (pgvector.Vector, error) {
	vec, err := a.p.Embed(ctx, text)
	if err != nil {
		return pgvector.Vector{}, err
	}
	return pgvector.NewVector(vec), nil
}

func (a *embeddingAdapter) Dimensions() int {
	return a.p.Dimensions()
}

// collectorAdapter bridges the public ContextCollector to the three internal
// collector interfaces. The public snapshots mirror the internal ones field
// for field, so conversion goes through the shared JSON shape.
type collectorAdapter struct {
	c ContextCollector
}

func (a *collectorAdapter) CollectCampaignMetrics(ctx context.Context, campaignID string, lookbackDays int) (model.CampaignMetrics, error) {
	snap, err := a.c.CollectCampaignMetrics(ctx, campaignID, lookbackDays)
	if err != nil {
		return model.CampaignMetrics{}, err
	}
	var out model.CampaignMetrics
	return out, convertJSON(snap, &out)
}

func (a *collectorAdapter) CollectCreativeMetrics(ctx context.Context, campaignID string, lookbackDays int) (model.CreativeMetrics, error) {
	snap, err := a.c.CollectCreativeMetrics(ctx, campaignID, lookbackDays)
	if err != nil {
		return model.CreativeMetrics{}, err
	}
	var out model.CreativeMetrics
	return out, convertJSON(snap, &out)
}

func (a *collectorAdapter) CollectCompetitorSignals(ctx context.Context, campaignID string, lookbackDays int) (model.CompetitorSignals, error) {
	snap, err := a.c.CollectCompetitorSignals(ctx, campaignID, lookbackDays)
	if err != nil {
		return model.CompetitorSignals{}, err
	}
	var out model.CompetitorSignals
	return out, convertJSON(snap, &out)
}

func convertJSON(src, dst any) error {
	data, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

// hookAdapter fans internal ledger events out to all registered public hooks.
type hookAdapter struct {
	hooks []EventHook
}

func (a *hookAdapter) OnRecommendationFinalized(ctx context.Context, rec model.Recommendation) {
	pub := toPublicRecommendation(rec)
	for _, h := range a.hooks {
		h.OnRecommendationFinalized(ctx, pub)
	}
}

func (a *hookAdapter) OnDecisionRecorded(ctx context.Context, rec model.Recommendation) {
	pub := toPublicRecommendation(rec)
	for _, h := range a.hooks {
		h.OnDecisionRecorded(ctx, pub)
	}
}

func toPublicRecommendation(rec model.Recommendation) Recommendation {
	return Recommendation{
		ID:            rec.ID,
		CampaignID:    rec.CampaignID,
		Workflow:      string(rec.Workflow),
		Confidence:    rec.Confidence,
		Risk:          string(rec.Risk),
		Reasoning:     rec.Reasoning,
		RootCause:     string(rec.Analysis.RootCause),
		NeedsReview:   rec.NeedsReview,
		Decision:      string(rec.Decision),
		DecidedBy:     rec.DecidedBy,
		Regenerations: rec.Regenerations,
		CreatedAt:     rec.CreatedAt,
	}
}
