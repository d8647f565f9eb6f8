package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campus-platform/internal/access"
	"campus-platform/internal/auth"
	"campus-platform/internal/blocklist"
	"campus-platform/internal/config"
	"campus-platform/internal/events"
	"campus-platform/internal/httpapi"
	"campus-platform/internal/patterns"
	"campus-platform/internal/ratelimit"
	"campus-platform/pkg/logger"
	"campus-platform/pkg/metrics"
	"campus-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)
	metrics.Init()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// The event store is the source of truth for denials, blocks, and alerts;
	// it lives in Postgres. Rate-limit counters are hot and disposable, so
	// they live in Redis with a retention-bounded index.
	eventSvc := events.NewService(events.NewPostgresStore(db))
	counterStore := ratelimit.NewRedisStore(rdb, cfg.Security.CounterRetention)

	rateLimits := ratelimit.NewService(counterStore, eventSvc, log, ratelimit.Options{
		Retention: cfg.Security.CounterRetention,
	})
	blocks := blocklist.NewService(eventSvc)
	guard := access.NewGuard(eventSvc, log, cfg.Security.EscalationThreshold, cfg.Security.EscalationLookback)
	analyzer := patterns.NewAnalyzer(eventSvc, patterns.Thresholds{
		SuspiciousMinEvents: cfg.Security.SuspiciousMinEvents,
		SuspiciousMinRatio:  cfg.Security.SuspiciousMinRatio,
		CrossTenantHigh:     cfg.Security.CrossTenantPatternThreshold,
		CrossTenantCritical: cfg.Security.CriticalPatternThreshold,
	})

	go runCounterCleanup(rootCtx, rateLimits, log)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(metrics.Middleware())

	h := httpapi.Handlers{
		Auth:       authManager,
		RateLimits: rateLimits,
		Blocks:     blocks,
		Guard:      guard,
		Analyzer:   analyzer,
	}
	registerRoutes(r, h, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}

// runCounterCleanup purges stale rate-limit counters on a fixed cadence.
// Cleanup failures are logged inside the service and never abort the loop.
func runCounterCleanup(ctx context.Context, svc *ratelimit.Service, log *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.CleanupExpiredEntries(ctx)
			log.Info("rate limit cleanup pass")
		}
	}
}
