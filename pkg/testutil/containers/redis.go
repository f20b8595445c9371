//go:build integration

package containers

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"vcissuer/internal/platform/config"
	redisclient "vcissuer/internal/platform/redis"
)

// RedisContainer is the nonce store backend for integration suites. The
// client is built through the same constructor the server uses.
type RedisContainer struct {
	Container testcontainers.Container
	URL       string
	Client    *redis.Client

	platform *redisclient.Client
}

func NewRedisContainer(t *testing.T) *RedisContainer {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	url, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("redis connection string: %v", err)
	}
	client, err := redisclient.New(ctx, config.RedisConfig{URL: url, PoolSize: 4})
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("connect redis: %v", err)
	}

	// shared through the Manager; Ryuk reaps the container
	return &RedisContainer{
		Container: container,
		URL:       url,
		Client:    client.Client,
		platform:  client,
	}
}

// FlushAll isolates tests that share the container.
func (r *RedisContainer) FlushAll(ctx context.Context) error {
	if err := r.platform.Health(ctx); err != nil {
		return err
	}
	return r.Client.FlushAll(ctx).Err()
}
