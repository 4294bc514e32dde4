package main

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"opsagent.app/history/common/id"
	"opsagent.app/history/common/logger"
	"opsagent.app/history/common/otel"
	"opsagent.app/history/core/config"
	"opsagent.app/history/core/db"
	"opsagent.app/history/internal/cache"
	"opsagent.app/history/internal/history"
	"opsagent.app/history/internal/http/middleware"
	httprouter "opsagent.app/history/internal/http/router"
	"opsagent.app/history/internal/model"
	"opsagent.app/history/internal/store"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		// Can't use slog yet — OTel failed before logger setup
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "chat-history starting", "env", cfg.Env, "mode", cfg.Mode)

	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to apply schema", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "database connected")

	var historyCache cache.HistoryCache
	if cfg.Mode.CacheEnabled() {
		redisClient := newRedisClient(cfg.Redis)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			// The cache is an accelerator, not a dependency: start degraded
			// and let per-request availability checks pick it up when it
			// comes back.
			slog.WarnContext(ctx, "redis unreachable at startup, serving from postgres only", "error", err)
		} else {
			slog.InfoContext(ctx, "redis connected", "addr", cfg.Redis.Addr())
		}
		historyCache = cache.NewRedisCache(redisClient, cache.Config{
			TTL:     cfg.History.CacheTTL,
			Timeout: cfg.History.CacheTimeout,
		})
	}

	conversations := store.NewConversationStore(database)
	svc := history.NewService(conversations, historyCache, history.Config{
		WindowDays: cfg.History.WindowDays,
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, svc)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func newRedisClient(cfg config.RedisConfig) *redis.Client {
	opts := &redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewClient(opts)
}

func setupRouter(cfg config.Config, svc history.Service) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.OTel.ServiceName))

	httprouter.SetupRoutes(router, svc, httprouter.RouterConfig{
		Identity: middleware.IdentityConfig{
			UseLocal: cfg.Mode.LocalIdentity(),
			Local: model.Identity{
				OwnerID:     cfg.LocalUser.ID,
				DisplayName: cfg.LocalUser.Name,
			},
		},
	})

	return router
}
