package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lelook/backend/internal/domain"
)

func TestNewRedisCache_InvalidURL(t *testing.T) {
	_, err := NewRedisCache(context.Background(), RedisConfig{URL: "http://not-redis"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid redis url")
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedisCache(ctx, RedisConfig{URL: "redis://127.0.0.1:1/0"})
	assert.ErrorIs(t, err, domain.ErrCacheUnavailable)
}

func TestRedisCache_UnavailableErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	c := newRedisCache(client, "lelook:")
	defer c.Close()
	ctx := context.Background()

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, domain.ErrCacheUnavailable)
	assert.ErrorIs(t, c.Set(ctx, "k", "v", time.Minute), domain.ErrCacheUnavailable)
	assert.ErrorIs(t, c.Delete(ctx, "k"), domain.ErrCacheUnavailable)
	_, err = c.Exists(ctx, "k")
	assert.ErrorIs(t, err, domain.ErrCacheUnavailable)
}

// TestRedisCache_RoundTrip runs against a real server when LELOOK_TEST_REDIS_URL is set.
func TestRedisCache_RoundTrip(t *testing.T) {
	url := os.Getenv("LELOOK_TEST_REDIS_URL")
	if url == "" {
		t.Skip("LELOOK_TEST_REDIS_URL not set")
	}
	ctx := context.Background()

	c, err := NewRedisCache(ctx, RedisConfig{URL: url, KeyPrefix: "lelook-test:"})
	require.NoError(t, err)
	defer c.Close()

	record := domain.ProductRecord{ID: "p1", Title: "Oak chair", Category: domain.CategoryFurniture}
	require.NoError(t, c.Set(ctx, "selection:p1", record, time.Minute))
	defer c.Delete(ctx, "selection:p1")

	got, err := c.Get(ctx, "selection:p1")
	require.NoError(t, err)
	m, ok := got.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Oak chair", m["title"])

	ok, err = c.Exists(ctx, "selection:p1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.Delete(ctx, "selection:p1"))
	_, err = c.Get(ctx, "selection:p1")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}
