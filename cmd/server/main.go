// Package main is the entrypoint for the Pipehunter API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/pipehunter/internal/ai"
	"github.com/kiranshivaraju/pipehunter/internal/api"
	"github.com/kiranshivaraju/pipehunter/internal/api/handler"
	mw "github.com/kiranshivaraju/pipehunter/internal/api/middleware"
	"github.com/kiranshivaraju/pipehunter/internal/cache"
	"github.com/kiranshivaraju/pipehunter/internal/config"
	"github.com/kiranshivaraju/pipehunter/internal/gitlab"
	"github.com/kiranshivaraju/pipehunter/internal/orchestrator"
	"github.com/kiranshivaraju/pipehunter/internal/store"
)

const shutdownTimeout = 30 * time.Second

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"ai_provider", cfg.AI.Provider,
		"trigger_mode", cfg.Analysis.TriggerMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create GitLab API client
	gitlabClient := gitlab.NewHTTPClient(cfg.GitLab.BaseURL, gitlab.Options{
		Token:           cfg.GitLab.Token,
		Timeout:         cfg.GitLab.Timeout,
		MaxRetries:      cfg.GitLab.MaxRetries,
		MaxLogSizeMB:    cfg.GitLab.MaxLogSizeMB,
		LogContextLines: cfg.GitLab.LogContextLines,
	})
	defer gitlabClient.Close()

	// 6. Create AI providers and analysis service
	providers, err := ai.NewRegistryFromConfig(cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI providers: %w", err)
	}
	aiService := ai.NewAnalysisService(providers, cfg.AI.Provider, logger)
	slog.Info("AI providers initialized", "providers", providers.Names())

	// 7. Create store and orchestration engine
	pgStore := store.NewPostgresStore(pool)

	runs := orchestrator.NewRegistry()
	engine := orchestrator.NewEngine(gitlabClient, aiService, redisCache, runs, orchestrator.Config{
		AnalysisTimeout:        cfg.Analysis.Timeout,
		AITimeout:              cfg.AI.AnalysisTimeout,
		MaxConcurrent:          cfg.Analysis.MaxConcurrent,
		IncludeContext:         cfg.Analysis.IncludeContext,
		IncludeRepositoryFiles: cfg.Analysis.IncludeFiles,
	}, logger)

	// 8. Start the email poller when the trigger mode asks for it. The
	// mailbox transport is pluggable and none is bundled yet, so until one
	// is configured the email path only logs its absence.
	if cfg.EmailEnabled() {
		slog.Warn("email trigger mode is enabled but no mailbox transport is configured, email intake is inactive",
			"expected_sender", cfg.Email.ExpectedSender)
	}

	// 9. Build router with dependencies
	var webhookHandler http.HandlerFunc
	if cfg.WebhookEnabled() {
		webhookHandler = handler.NewWebhookHandler(engine, logger)
	}

	deps := api.Dependencies{
		WebhookAuth: mw.NewWebhookAuth(cfg.Server.WebhookSecret),
		RateLimit:   mw.NewRateLimit(redisCache, cfg.Server.RateLimit),

		HealthHandler: handler.NewHealthHandler(handler.HealthDeps{
			Store:   pgStore,
			Cache:   redisCache,
			GitLab:  gitlabClient,
			AI:      aiService,
			Version: version,
		}),
		WebhookHandler:     webhookHandler,
		GetAnalysisHandler: handler.NewGetAnalysisHandler(runs, redisCache),
		ListAnalyses:       handler.NewListAnalysesHandler(runs),
		ListEmails:         handler.NewListEmailsHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 10. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
