package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/ems-program-api/internal/handler"
	"github.com/noah-isme/ems-program-api/internal/service"
	"github.com/noah-isme/ems-program-api/pkg/config"
)

func testRouter(enabled bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Env:            config.EnvProduction,
		APIPrefix:      "/api/v1",
		BulkOperations: config.BulkOperationsConfig{Enabled: enabled},
	}
	metrics := service.NewMetricsService()
	return newRouter(cfg, zap.NewNop(), routerDeps{
		metrics:        metrics,
		metricsHandler: handler.NewMetricsHandler(metrics, nil, nil),
		bulkHandler:    handler.NewBulkOperationHandler(nil),
		tokens:         service.NewAuthService(zap.NewNop(), service.AuthConfig{AccessTokenSecret: "secret"}),
	})
}

func TestRouterRegistersBulkRoutes(t *testing.T) {
	r := testRouter(true)

	registered := map[string]bool{}
	for _, route := range r.Routes() {
		registered[route.Method+" "+route.Path] = true
	}
	for _, want := range []string{
		"POST /api/v1/bulk-operations",
		"GET /api/v1/bulk-operations",
		"GET /api/v1/bulk-operations/tables",
		"GET /api/v1/bulk-operations/:id",
		"GET /api/v1/bulk-operations/:id/receipt",
		"POST /api/v1/bulk-operations/:id/rollback",
		"GET /health",
		"GET /ready",
		"GET /metrics",
	} {
		assert.True(t, registered[want], want)
	}
	assert.False(t, registered["GET /docs/*any"])
}

func TestRouterRequiresBearerToken(t *testing.T) {
	r := testRouter(true)

	w := httptest.NewRecorder()
	req, err := http.NewRequest(http.MethodGet, "/api/v1/bulk-operations", nil)
	require.NoError(t, err)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRouterOmitsBulkRoutesWhenDisabled(t *testing.T) {
	r := testRouter(false)

	w := httptest.NewRecorder()
	req, err := http.NewRequest(http.MethodGet, "/api/v1/bulk-operations", nil)
	require.NoError(t, err)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	req, err = http.NewRequest(http.MethodGet, "/health", nil)
	require.NoError(t, err)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
