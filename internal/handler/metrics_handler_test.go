package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/ems-program-api/internal/service"
)

type pingerStub struct {
	err error
}

func (p pingerStub) PingContext(context.Context) error {
	return p.err
}

func TestMetricsHandlerReady(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name   string
		db     Pinger
		status int
	}{
		{name: "ready", db: pingerStub{}, status: http.StatusOK},
		{name: "db down", db: pingerStub{err: errors.New("dial tcp: refused")}, status: http.StatusServiceUnavailable},
		{name: "no db", db: nil, status: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewMetricsHandler(nil, tc.db, nil)
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request, _ = http.NewRequest(http.MethodGet, "/ready", nil)
			handler.Ready(c)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

type cachePingerStub struct {
	err error
}

func (p cachePingerStub) Ping(context.Context) error {
	return p.err
}

func TestMetricsHandlerReadyReportsCache(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := NewMetricsHandler(nil, pingerStub{}, cachePingerStub{err: errors.New("connection refused")})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/ready", nil)
	handler.Ready(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cache":"degraded"`)
}

func TestMetricsHandlerPrometheus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	metrics.RecordBulkOperation("update_status", "students", "completed", 3, 0)

	handler := NewMetricsHandler(metrics, nil, nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/metrics", nil)
	handler.Prometheus(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `bulk_operations_total{operation="update_status",outcome="completed",table="students"} 1`)
}
