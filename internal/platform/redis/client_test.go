package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcissuer/internal/platform/config"
)

func TestNewWithoutURL(t *testing.T) {
	client, err := New(context.Background(), config.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New(context.Background(), config.RedisConfig{URL: "http://not-redis"})
	assert.Error(t, err)
}

func TestApplyOverrides(t *testing.T) {
	opts, err := redis.ParseURL("redis://localhost:6379/2?pool_size=7&dial_timeout=9s")
	require.NoError(t, err)

	applyOverrides(opts, config.RedisConfig{ReadTimeout: 2 * time.Second})
	assert.Equal(t, 7, opts.PoolSize, "url value kept when unset")
	assert.Equal(t, 9*time.Second, opts.DialTimeout)
	assert.Equal(t, 2*time.Second, opts.ReadTimeout)
	assert.Equal(t, 2, opts.DB)

	applyOverrides(opts, config.RedisConfig{PoolSize: 3, MinIdleConns: 1})
	assert.Equal(t, 3, opts.PoolSize)
	assert.Equal(t, 1, opts.MinIdleConns)
}
