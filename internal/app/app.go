// Package app assembles storage, classification and ingestion from configuration
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Viphunter83/userbot-orders/internal/analysis"
	"github.com/Viphunter83/userbot-orders/internal/export"
	"github.com/Viphunter83/userbot-orders/internal/health"
	"github.com/Viphunter83/userbot-orders/internal/ingest"
	"github.com/Viphunter83/userbot-orders/internal/llm"
	"github.com/Viphunter83/userbot-orders/internal/models"
	"github.com/Viphunter83/userbot-orders/internal/ratelimit"
	"github.com/Viphunter83/userbot-orders/internal/repository"
	"github.com/Viphunter83/userbot-orders/internal/stats"
	"github.com/Viphunter83/userbot-orders/internal/storage"
	"github.com/Viphunter83/userbot-orders/internal/triggers"
	"github.com/Viphunter83/userbot-orders/migrations"
)

// App holds the wired components shared by the userbot and the CLI
type App struct {
	Config   *models.Config
	Location *time.Location

	Gateway *storage.Gateway
	Direct  *storage.DirectStore // nil without DATABASE_URL

	Chats    *repository.Chats
	Messages *repository.Messages
	Orders   *repository.Orders
	Stats    *repository.Stats

	Catalog     *triggers.Catalog
	Classifier  *analysis.Classifier
	Coordinator *ingest.Coordinator
	Reporter    *stats.Reporter
	Exporter    *export.Exporter
	Health      *health.Checker

	Limiter     *ratelimit.Limiter // nil when the LLM tier is disabled
	MemoryCache *llm.MemoryCache   // nil when verdicts are cached in Redis or not at all

	closers []func() error
	base    zerolog.Logger
	logger  zerolog.Logger
}

// New wires every component. The storage gateway is initialized before it returns.
func New(ctx context.Context, cfg *models.Config, logger zerolog.Logger) (*App, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %s: %w", cfg.Timezone, err)
	}

	a := &App{
		Config:   cfg,
		Location: loc,
		base:     logger,
		logger:   logger.With().Str("component", "app").Logger(),
	}

	if err := a.openStorage(ctx, logger); err != nil {
		a.Close()
		return nil, err
	}

	a.Chats = repository.NewChats(a.Gateway, logger)
	a.Messages = repository.NewMessages(a.Gateway, logger)
	a.Orders = repository.NewOrders(a.Gateway, logger)
	a.Stats = repository.NewStats(a.Gateway, loc, logger)

	if err := a.buildClassifier(ctx, logger); err != nil {
		a.Close()
		return nil, err
	}

	a.Coordinator = ingest.NewCoordinator(a.Chats, a.Messages, a.Orders, a.Stats, a.Classifier, logger)
	a.Reporter = stats.NewReporter(a.Stats, a.Orders, logger)
	a.Exporter = export.NewExporter(cfg.ExportDir, loc, logger)

	a.Health = health.NewChecker(a.Gateway, cfg.ExportDir, loc, logger)
	if a.Limiter != nil {
		a.Health.WithLLM(string(cfg.LLMProvider), a.Limiter)
	}
	return a, nil
}

func (a *App) openStorage(ctx context.Context, logger zerolog.Logger) error {
	cfg := a.Config

	if cfg.StorageBackend == models.StorageMemory {
		a.logger.Warn().Msg("Using in-memory storage, data is lost on exit")
		gw, err := storage.NewGateway(nil, storage.NewMemoryStore(), cfg.StorageTimeout, logger)
		if err != nil {
			return err
		}
		a.useGateway(gw)
		return gw.Init(ctx)
	}

	var direct, rest storage.Backend
	if cfg.DatabaseURL != "" {
		logger.Info().Msg("Initializing Postgres client...")
		ds, err := storage.OpenPostgres(cfg.DatabaseURL, logger)
		if err != nil {
			return err
		}
		a.Direct = ds
		direct = ds
	}
	if cfg.SupabaseURL != "" {
		logger.Info().Msg("Initializing Supabase client...")
		rs, err := storage.NewRestStore(cfg.SupabaseURL, cfg.SupabaseKey, logger)
		if err != nil {
			if a.Direct != nil {
				_ = a.Direct.Close()
			}
			return err
		}
		rest = rs
	}

	gw, err := storage.NewGateway(direct, rest, cfg.StorageTimeout, logger)
	if err != nil {
		return err
	}
	a.useGateway(gw)

	if err := gw.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	if cfg.AutoMigrate {
		switch mode := gw.Mode(); mode {
		case storage.ModeDirectReady, storage.ModeDirectOnly:
			if err := a.Migrate(ctx); err != nil {
				return err
			}
		default:
			a.logger.Warn().
				Str("mode", mode.String()).
				Msg("Direct store not in use, skipping automatic migrations")
		}
	}
	return nil
}

// useGateway adopts gw; closing it closes every backend it routes to
func (a *App) useGateway(gw *storage.Gateway) {
	a.Gateway = gw
	a.closers = append(a.closers, gw.Close)
}

// Migrate applies the embedded schema over the direct connection
func (a *App) Migrate(ctx context.Context) error {
	if a.Direct == nil {
		return fmt.Errorf("migrations need DATABASE_URL; apply migrations/*.sql in the Supabase SQL editor instead")
	}
	statements, err := migrations.Statements()
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	if err := a.Direct.ApplySQL(ctx, statements); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

func (a *App) buildClassifier(ctx context.Context, logger zerolog.Logger) error {
	cfg := a.Config

	catalog, err := triggers.Load(cfg.TriggersFile)
	if err != nil {
		return fmt.Errorf("failed to load triggers: %w", err)
	}
	a.Catalog = catalog

	var port analysis.LLMPort
	if cfg.LLMEnabled() {
		port, err = a.buildLLM(ctx, logger)
		if err != nil {
			return err
		}
	}

	classifier, err := analysis.NewClassifier(catalog, port, analysis.Options{
		Threshold:       cfg.RegexThreshold,
		UncertainMin:    cfg.LLMUncertainMin,
		AcceptThreshold: cfg.LLMAcceptThreshold,
		EscalateNoMatch: cfg.LLMEscalateNoMatch,
		MinTextLength:   cfg.LLMMinTextLength,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create classifier: %w", err)
	}
	a.Classifier = classifier
	return nil
}

// buildLLM stacks provider, budget/rate limiter and verdict cache. Cache hits
// never reach the limiter.
func (a *App) buildLLM(ctx context.Context, logger zerolog.Logger) (analysis.LLMPort, error) {
	cfg := a.Config
	settings := llm.Settings{
		APIKey:     cfg.LLMAPIKey,
		BaseURL:    cfg.LLMBaseURL,
		Model:      cfg.LLMModel,
		Timeout:    cfg.LLMTimeout,
		Categories: a.Catalog.Names(),
		Pricing: llm.Pricing{
			InputPer1K:  cfg.LLMInputPricePer1K,
			OutputPer1K: cfg.LLMOutputPricePer1K,
		},
		MaxRetries: 2,
	}

	var provider analysis.LLMPort
	switch cfg.LLMProvider {
	case models.LLMProviderOpenAI:
		provider = llm.NewOpenAIClassifier(settings, logger)
	case models.LLMProviderGemini:
		gemini := llm.NewGeminiClassifier(settings, logger)
		a.closers = append(a.closers, gemini.Close)
		provider = gemini
	default:
		return nil, fmt.Errorf("unsupported LLM provider %s", cfg.LLMProvider)
	}

	limiter, err := ratelimit.NewLimiter(provider, cfg.LLMDailyBudgetUSD, cfg.LLMRequestsPerMin, cfg.Timezone, logger)
	if err != nil {
		return nil, err
	}
	a.Limiter = limiter
	a.seedBudget(ctx)

	if cfg.LLMCacheTTL <= 0 {
		return limiter, nil
	}

	var cache llm.Cache
	if cfg.RedisURL != "" {
		rc, err := llm.NewRedisCache(ctx, cfg.RedisURL, cfg.LLMCacheTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		a.closers = append(a.closers, rc.Close)
		cache = rc
	} else {
		a.MemoryCache = llm.NewMemoryCache(cfg.LLMCacheTTL)
		cache = a.MemoryCache
	}

	a.logger.Info().
		Str("provider", string(cfg.LLMProvider)).
		Bool("redis_cache", cfg.RedisURL != "").
		Float64("daily_budget_usd", cfg.LLMDailyBudgetUSD).
		Msg("LLM tier enabled")
	return llm.NewCachedClassifier(limiter, cache, logger), nil
}

// seedBudget restores today's spend after a restart
func (a *App) seedBudget(ctx context.Context) {
	stat, err := a.Stats.Get(ctx, a.Stats.Today())
	switch {
	case err == nil:
		a.Limiter.Seed(stat.LLMCost)
		a.logger.Info().Float64("spent_usd", stat.LLMCost).Msg("LLM budget seeded from today's stats")
	case errors.Is(err, models.ErrNotFound):
	default:
		a.logger.Warn().Err(err).Msg("Failed to read today's LLM spend, budget starts at zero")
	}
}

// Logger returns the logger the components were built with
func (a *App) Logger() zerolog.Logger {
	return a.base
}

// Close releases connections in reverse order of acquisition
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close resource")
		}
	}
	a.closers = nil
}
