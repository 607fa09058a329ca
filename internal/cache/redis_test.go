package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/access-gate/internal/config"
)

type accessStatus struct {
	UserUID     string `json:"user_uid"`
	AccessLevel string `json:"access_level"`
}

func setupTestCache(t *testing.T) *Cache {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	t.Cleanup(func() { mr.Close() })

	cfg := config.RedisConnection{
		AddressRedis: mr.Addr(),
		Password:     "",
		DB:           0,
		User:         "",
	}

	cache, err := InitServer(context.Background(), cfg)
	require.NoError(t, err)
	return cache
}

func TestSetAndGet(t *testing.T) {
	cache := setupTestCache(t)

	expected := accessStatus{UserUID: "uid-1", AccessLevel: "premium"}
	err := cache.Set("access:uid-1", expected, time.Minute)
	require.NoError(t, err)

	var actual accessStatus
	found, err := cache.Get("access:uid-1", &actual)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, expected, actual)
}

func TestGetNotFound(t *testing.T) {
	cache := setupTestCache(t)

	var out accessStatus
	found, err := cache.Get("access:missing", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInvalidate(t *testing.T) {
	cache := setupTestCache(t)

	err := cache.Set("access:uid-1", "premium", time.Minute)
	require.NoError(t, err)

	err = cache.Invalidate("access:uid-1")
	require.NoError(t, err)

	var out string
	found, err := cache.Get("access:uid-1", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetInvalidJSON(t *testing.T) {
	cache := setupTestCache(t)

	err := cache.Db.Set(context.Background(), "bad", []byte("not-json"), time.Minute).Err()
	require.NoError(t, err)

	var out accessStatus
	found, err := cache.Get("bad", &out)
	assert.Error(t, err)
	assert.False(t, found)
}
