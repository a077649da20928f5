package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/unifiedui/mongo-odm/internal/core/cache"
	rediscache "github.com/unifiedui/mongo-odm/internal/infrastructure/cache/redis"
	"github.com/unifiedui/mongo-odm/internal/mocks"
)

func setupMiniredis(t *testing.T, cfg rediscache.Config) (*miniredis.Miniredis, cache.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	cfg.Host = mr.Host()
	cfg.Port = mr.Port()
	client, err := rediscache.NewClient(cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return mr, client
}

func TestNewClient_Unreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	host, port := mr.Host(), mr.Port()
	mr.Close()

	client, err := rediscache.NewClient(rediscache.Config{Host: host, Port: port})

	assert.Error(t, err)
	assert.Nil(t, client)
}

func TestCache_SetAndGet(t *testing.T) {
	_, client := setupMiniredis(t, rediscache.Config{})
	ctx := context.Background()

	key := "odm:query:localhost:db:items:abc"
	value := []byte("rows")

	require.NoError(t, client.Set(ctx, key, value, time.Minute))

	result, err := client.Get(ctx, key)
	assert.NoError(t, err)
	assert.Equal(t, value, result)
}

func TestCache_GetNotFound(t *testing.T) {
	_, client := setupMiniredis(t, rediscache.Config{})

	result, err := client.Get(context.Background(), "missing")

	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestCache_Delete(t *testing.T) {
	_, client := setupMiniredis(t, rediscache.Config{})
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "k", []byte("v"), time.Minute))

	deleted, err := client.Delete(ctx, "k")
	assert.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = client.Delete(ctx, "k")
	assert.NoError(t, err)
	assert.False(t, deleted)
}

func TestCache_DeletePattern(t *testing.T) {
	mr, client := setupMiniredis(t, rediscache.Config{})
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "odm:query:srv:db:users:1", []byte("a"), time.Minute))
	require.NoError(t, client.Set(ctx, "odm:query:srv:db:users:2", []byte("b"), time.Minute))
	require.NoError(t, client.Set(ctx, "odm:query:srv:db:orders:1", []byte("c"), time.Minute))
	require.NoError(t, client.Set(ctx, "other:key", []byte("d"), time.Minute))

	deleted, err := client.DeletePattern(ctx, "odm:query:srv:db:users:*")
	assert.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	keys := mr.Keys()
	assert.ElementsMatch(t, []string{"odm:query:srv:db:orders:1", "other:key"}, keys)
}

func TestCache_KeyPrefix(t *testing.T) {
	mr, client := setupMiniredis(t, rediscache.Config{KeyPrefix: "app1:"})
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "odm:query:a", []byte("v"), time.Minute))
	require.NoError(t, client.Set(ctx, "odm:query:b", []byte("v"), time.Minute))

	assert.ElementsMatch(t, []string{"app1:odm:query:a", "app1:odm:query:b"}, mr.Keys())

	result, err := client.Get(ctx, "odm:query:a")
	assert.NoError(t, err)
	assert.Equal(t, []byte("v"), result)

	deleted, err := client.DeletePattern(ctx, "odm:query:*")
	assert.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	assert.Empty(t, mr.Keys())
}

func TestCache_DefaultTTL(t *testing.T) {
	mr, client := setupMiniredis(t, rediscache.Config{DefaultTTL: 30 * time.Second})
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "k", []byte("v"), 0))

	assert.Equal(t, 30*time.Second, mr.TTL("k"))
}

func TestCache_TTLExpiration(t *testing.T) {
	mr, client := setupMiniredis(t, rediscache.Config{})
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "expiring", []byte("v"), time.Second))

	result, err := client.Get(ctx, "expiring")
	assert.NoError(t, err)
	assert.Equal(t, []byte("v"), result)

	mr.FastForward(2 * time.Second)

	result, err = client.Get(ctx, "expiring")
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestCache_Ping(t *testing.T) {
	_, client := setupMiniredis(t, rediscache.Config{})

	assert.NoError(t, client.Ping(context.Background()))
}

func TestClient_Stats(t *testing.T) {
	_, client := setupMiniredis(t, rediscache.Config{})
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "odm:query:s:db:items:1", []byte("a"), time.Minute))
	require.NoError(t, client.Set(ctx, "odm:query:s:db:items:2", []byte("b"), time.Minute))

	_, err := client.Get(ctx, "odm:query:s:db:items:1")
	require.NoError(t, err)
	_, err = client.Get(ctx, "odm:query:s:db:items:3")
	require.NoError(t, err)

	n, err := client.DeletePattern(ctx, "odm:query:s:db:items:*")
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	assert.Equal(t, cache.Stats{Hits: 1, Misses: 1, Stores: 2, Invalidated: 2}, client.Stats())
}

func TestClient_CacheErrors(t *testing.T) {
	mockCache := mocks.NewMockCacheClient()
	mockCache.On("Get", mock.Anything, "k").Return(nil, assert.AnError).Once()
	mockCache.On("Set", mock.Anything, "k", []byte("v"), time.Minute).Return(assert.AnError).Once()
	mockCache.On("DeletePattern", mock.Anything, "k*").Return(int64(0), assert.AnError).Once()

	client := rediscache.NewClientWithCache(mockCache)
	ctx := context.Background()

	_, err := client.Get(ctx, "k")
	assert.ErrorIs(t, err, assert.AnError)
	assert.ErrorIs(t, client.Set(ctx, "k", []byte("v"), time.Minute), assert.AnError)
	_, err = client.DeletePattern(ctx, "k*")
	assert.ErrorIs(t, err, assert.AnError)

	assert.Equal(t, cache.Stats{}, client.Stats())
	mockCache.AssertExpectations(t)
}
