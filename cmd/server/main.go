package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/voxhub/webhook-dispatcher/internal/api"
	"github.com/voxhub/webhook-dispatcher/internal/config"
	"github.com/voxhub/webhook-dispatcher/internal/dispatch"
	"github.com/voxhub/webhook-dispatcher/internal/engine"
	"github.com/voxhub/webhook-dispatcher/internal/metrics"
	"github.com/voxhub/webhook-dispatcher/internal/store"
	ws "github.com/voxhub/webhook-dispatcher/internal/websocket"
	"github.com/voxhub/webhook-dispatcher/migrations"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	if err := pgStore.RunMigrations(ctx, migrations.FS); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	redisClient, err := store.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	logger.Info("connected to Redis")

	promRegistry := prometheus.NewRegistry()
	m := metrics.New(promRegistry)

	hub := ws.NewHub(logger)
	go hub.Run()

	tracker := engine.NewHealthTracker(redisClient, logger)
	limiter := engine.NewRateLimiter(redisClient, logger)

	webhookSource := store.NewCachedWebhooks(pgStore, redisClient, logger, cfg.ConfigCacheTTL)

	dispatcher := dispatch.NewDispatcher(webhookSource, logger, m, hub, tracker, cfg.MaxBackoff)

	router := api.NewRouter(
		api.NewTriggerHandler(webhookSource, dispatcher, limiter, logger),
		api.NewWebhookHandler(pgStore, webhookSource, tracker),
		api.NewLogHandler(pgStore),
		api.NewStatsHandler(pgStore, hub),
		hub,
		promRegistry,
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout: 15 * time.Second,
		// A trigger holds its connection through every retry and backoff,
		// so the write timeout must cover the whole delivery budget.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
