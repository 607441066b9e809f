package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/ems-program-api/internal/handler"
	"github.com/noah-isme/ems-program-api/internal/middleware"
	"github.com/noah-isme/ems-program-api/internal/models"
	"github.com/noah-isme/ems-program-api/internal/service"
	"github.com/noah-isme/ems-program-api/pkg/config"
	"github.com/noah-isme/ems-program-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/ems-program-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/ems-program-api/pkg/middleware/requestid"
)

type routerDeps struct {
	metrics        *service.MetricsService
	metricsHandler *handler.MetricsHandler
	bulkHandler    *handler.BulkOperationHandler
	tokens         middleware.TokenValidator
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", deps.metricsHandler.Health)
	r.GET("/ready", deps.metricsHandler.Ready)
	r.GET("/metrics", deps.metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	if cfg.BulkOperations.Enabled {
		bulk := api.Group("/bulk-operations",
			middleware.JWT(deps.tokens),
			middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin),
		)
		bulk.POST("", deps.bulkHandler.Execute)
		bulk.GET("", deps.bulkHandler.List)
		bulk.GET("/tables", deps.bulkHandler.Tables)
		bulk.GET("/:id", deps.bulkHandler.Get)
		bulk.GET("/:id/receipt", deps.bulkHandler.Receipt)
		bulk.POST("/:id/rollback", deps.bulkHandler.Rollback)
	} else {
		logr.Info("bulk operations disabled")
	}

	return r
}
