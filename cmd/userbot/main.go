package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Viphunter83/userbot-orders/internal/app"
	"github.com/Viphunter83/userbot-orders/internal/bot"
	"github.com/Viphunter83/userbot-orders/internal/config"
	"github.com/Viphunter83/userbot-orders/internal/health"
	"github.com/Viphunter83/userbot-orders/internal/ingest"
	"github.com/Viphunter83/userbot-orders/internal/scheduler"
	"github.com/Viphunter83/userbot-orders/internal/stats"
)

const drainTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load(config.ScopeBot)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.Environment)

	// Every component logger derives from this one and feeds the monitor
	monitor := health.NewErrorMonitor(cfg.ErrorAlertThreshold, cfg.ErrorAlertWindow)
	logger = logger.Hook(monitor)
	logger.Info().
		Str("environment", cfg.Environment).
		Str("timezone", cfg.Timezone).
		Str("storage", string(cfg.StorageBackend)).
		Str("llm_provider", string(cfg.LLMProvider)).
		Float64("regex_threshold", cfg.RegexThreshold).
		Int("workers", cfg.IngestWorkers).
		Msg("Starting order detection userbot")

	// Create context that listens for termination signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer a.Close()

	logger.Info().Str("mode", a.Gateway.Mode().String()).Msg("Storage ready")

	dispatcher := ingest.NewDispatcher(a.Coordinator, ingest.DispatcherOptions{Workers: cfg.IngestWorkers}, logger)

	// Initialize bot
	logger.Info().Msg("Initializing Telegram bot...")
	deps := bot.Deps{
		Feed:     dispatcher,
		Reviewer: a.Coordinator,
		Reporter: a.Reporter,
		Orders:   a.Orders,
		Exporter: a.Exporter,
		Health:   a.Health.WithMonitor(monitor),
	}
	if a.Limiter != nil {
		deps.Budget = a.Limiter
	}
	telegramBot, err := bot.New(cfg, deps, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create bot")
	}
	a.Coordinator.SetNotifier(telegramBot)
	a.Health.WithTelegram(telegramBot.Ping)
	monitor.SetAlert(func(text string) error {
		return telegramBot.SendReport(stats.EscapeMarkdown(text))
	})

	// Initialize scheduler
	sched := scheduler.NewScheduler(a.Location, logger)
	jobs := []scheduler.Job{
		scheduler.DailyReportJob(cfg.DailyReportCron, a.Reporter, telegramBot.SendReport),
		scheduler.ReprocessJob(cfg.ReprocessCron, a.Coordinator),
		scheduler.ExportJob(cfg.ExportCron, a.Exporter, a.Orders, telegramBot.SendReport),
	}
	if a.Limiter != nil {
		jobs = append(jobs, scheduler.BudgetResetJob(a.Limiter))
	}
	if a.MemoryCache != nil {
		jobs = append(jobs, scheduler.CacheCleanupJob(a.MemoryCache))
	}
	for _, job := range jobs {
		if err := sched.Add(job); err != nil {
			logger.Fatal().Err(err).Msg("Failed to schedule job")
		}
	}

	// The dispatcher outlives ctx so queued messages can drain on shutdown
	dispatchCtx, dispatchCancel := context.WithCancel(context.Background())
	defer dispatchCancel()
	dispatchDone := make(chan error, 1)
	go func() {
		dispatchDone <- dispatcher.Run(dispatchCtx)
	}()

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		_ = sched.Start(ctx)
	}()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	// Start bot in a goroutine
	botErrChan := make(chan error, 1)
	botDone := make(chan struct{})
	go func() {
		defer close(botDone)
		if err := telegramBot.Start(ctx); err != nil {
			botErrChan <- err
		}
	}()

	logger.Info().Msg("Userbot is running. Press Ctrl+C to stop.")

	// Wait for termination signal or bot error
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Received termination signal")
	case err := <-botErrChan:
		logger.Error().Err(err).Msg("Bot stopped with error")
	case err := <-dispatchDone:
		logger.Error().Err(err).Msg("Dispatcher stopped unexpectedly")
	}

	// Graceful shutdown
	logger.Info().Msg("Initiating graceful shutdown...")
	cancel()
	<-botDone
	<-schedDone

	// Drain what the bot already queued
	dispatcher.Close()
	select {
	case <-dispatchDone:
		logger.Info().Msg("Graceful shutdown completed")
	case <-time.After(drainTimeout):
		logger.Warn().Msg("Shutdown timeout exceeded, queued messages will be reprocessed on next start")
		dispatchCancel()
		<-dispatchDone
	}

	logger.Info().Msg("Userbot stopped")
}

// setupLogger configures and returns a zerolog logger
func setupLogger(level, environment string) zerolog.Logger {
	// Parse log level
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)

	// Configure output format
	var logger zerolog.Logger
	if environment == "development" {
		// Pretty console output for development
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Caller().Logger()
	} else {
		// JSON output for production
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	return logger
}
