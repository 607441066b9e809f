package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/ems-program-api/api/swagger"
	"github.com/noah-isme/ems-program-api/internal/handler"
	"github.com/noah-isme/ems-program-api/internal/repository"
	"github.com/noah-isme/ems-program-api/internal/service"
	"github.com/noah-isme/ems-program-api/pkg/cache"
	"github.com/noah-isme/ems-program-api/pkg/config"
	"github.com/noah-isme/ems-program-api/pkg/database"
	"github.com/noah-isme/ems-program-api/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

// @title EMS Program API
// @version 1.0.0
// @description Bulk record operations for program administrators: preview, execute, audit and roll back.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database unavailable", "error", err)
	}
	defer db.Close()

	metrics := service.NewMetricsService()

	var (
		cacheRepo service.CacheRepository
		cachePing handler.CachePinger
	)
	if cfg.BulkOperations.HistoryCache {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, history cache disabled", zap.Error(err))
		} else {
			repo := repository.NewCacheRepository(client, repository.HistoryCachePrefix, logr)
			defer repo.Close() //nolint:errcheck
			cacheRepo = repo
			cachePing = repo
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.BulkOperations.HistoryCacheTTL, logr, cacheRepo != nil)

	bulkSvc := service.NewBulkOperationService(
		repository.NewBulkRecordRepository(db),
		repository.NewBulkOperationLogRepository(db),
		db,
		validator.New(),
		logr,
		service.BulkOperationConfig{
			PreviewLimit:    cfg.BulkOperations.PreviewLimit,
			HistoryLimit:    cfg.BulkOperations.HistoryLimit,
			ExportMaxRows:   cfg.BulkOperations.ExportMaxRows,
			HistoryCacheTTL: cfg.BulkOperations.HistoryCacheTTL,
		},
		service.WithBulkHistoryCache(cacheSvc),
		service.WithBulkMetrics(metrics),
	)

	authSvc := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
		Audience:          cfg.JWT.Audience,
		Leeway:            30 * time.Second,
	})

	r := newRouter(cfg, logr, routerDeps{
		metrics:        metrics,
		metricsHandler: handler.NewMetricsHandler(metrics, db, cachePing),
		bulkHandler:    handler.NewBulkOperationHandler(bulkSvc),
		tokens:         authSvc,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "bulk_operations", cfg.BulkOperations.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
