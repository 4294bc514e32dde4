package main

import (
	"context"
	"crypto/tls"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"opsagent.app/history/common/logger"
	"opsagent.app/history/common/otel"
	"opsagent.app/history/core/config"
	"opsagent.app/history/core/db"
	"opsagent.app/history/internal/cache"
	"opsagent.app/history/internal/reconcile"
	"opsagent.app/history/internal/store"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeReconciler)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if !cfg.Mode.CacheEnabled() {
		slog.ErrorContext(ctx, "reconciler requires a cache-enabled mode", "mode", cfg.Mode)
		os.Exit(1)
	}

	slog.InfoContext(ctx, "reconciler starting", "env", cfg.Env, "mode", cfg.Mode)

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	redisOpts := &redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	}
	if cfg.Redis.TLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "redis connected", "addr", cfg.Redis.Addr())

	historyCache := cache.NewRedisCache(redisClient, cache.Config{
		TTL:     cfg.History.CacheTTL,
		Timeout: cfg.History.CacheTimeout,
	})
	conversations := store.NewConversationStore(database)

	reconciler := reconcile.New(conversations, historyCache, reconcile.Config{
		Interval: cfg.History.ReconcileInterval,
		Window:   time.Duration(cfg.History.WindowDays) * 24 * time.Hour,
	})

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reconciler.Run(runCtx)

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 10*time.Second)
	defer shutdownCancel()

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}
