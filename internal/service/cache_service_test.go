package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/ems-program-api/pkg/errors"
)

type memoryCacheRepo struct {
	mu      sync.Mutex
	items   map[string][]byte
	failGet bool
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{items: map[string][]byte{}}
}

func (m *memoryCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return errors.New("redis down")
	}
	raw, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.items[key] = raw
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.items {
		if strings.HasPrefix(key, prefix) {
			delete(m.items, key)
		}
	}
	return nil
}

func TestCacheServiceRoundTripAndInvalidate(t *testing.T) {
	repo := newMemoryCacheRepo()
	svc := NewCacheService(repo, NewMetricsService(), time.Minute, zap.NewNop(), true)
	ctx := context.Background()

	var out []string
	assert.False(t, svc.Get(ctx, "history:all", &out))

	svc.Set(ctx, "history:all", []string{"op-1"}, 0)
	require.True(t, svc.Get(ctx, "history:all", &out))
	assert.Equal(t, []string{"op-1"}, out)

	svc.Invalidate(ctx, "history:*")
	assert.False(t, svc.Get(ctx, "history:all", &out))
}

func TestCacheServiceBackendFailureIsMiss(t *testing.T) {
	repo := newMemoryCacheRepo()
	repo.failGet = true
	svc := NewCacheService(repo, nil, time.Minute, nil, true)

	var out []string
	assert.False(t, svc.Get(context.Background(), "history:all", &out))
}

func TestCacheServiceDisabled(t *testing.T) {
	svc := NewCacheService(newMemoryCacheRepo(), nil, 0, nil, false)
	assert.False(t, svc.Enabled())
	svc.Set(context.Background(), "k", 1, 0)
	var out int
	assert.False(t, svc.Get(context.Background(), "k", &out))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "history:students:50:0", Key("history", "students", 50, 0))
}
