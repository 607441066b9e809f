package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 20, cfg.BulkOperations.PreviewLimit)
	assert.Equal(t, 50, cfg.BulkOperations.HistoryLimit)
	assert.Equal(t, time.Minute, cfg.BulkOperations.HistoryCacheTTL)
	assert.True(t, cfg.BulkOperations.Enabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("BULK_PREVIEW_LIMIT", "5")
	t.Setenv("BULK_HISTORY_CACHE_TTL", "30s")
	t.Setenv("JWT_AUDIENCE", "portal, admin ")
	t.Setenv("ALLOWED_ORIGINS", "https://portal.example.edu")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.BulkOperations.PreviewLimit)
	assert.Equal(t, 30*time.Second, cfg.BulkOperations.HistoryCacheTTL)
	assert.Equal(t, []string{"portal", "admin"}, cfg.JWT.Audience)
	assert.Equal(t, []string{"https://portal.example.edu"}, cfg.CORS.AllowedOrigins)
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Hour, parseDuration("not-a-duration", time.Hour))
	assert.Equal(t, time.Hour, parseDuration("", time.Hour))
	assert.Equal(t, 2*time.Second, parseDuration("2s", time.Hour))
}

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
