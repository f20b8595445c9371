// Package redis connects the nonce store backend.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"vcissuer/internal/platform/config"
)

// Client is a connected go-redis client. It embeds *redis.Client so stores
// take it directly.
type Client struct {
	*redis.Client
}

// New dials the server named by cfg.URL and pings it. An empty URL returns
// (nil, nil): the caller falls back to the in-memory nonce store.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	applyOverrides(opts, cfg)

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &Client{Client: rdb}, nil
}

// applyOverrides keeps URL-derived values unless the config sets them.
func applyOverrides(opts *redis.Options, cfg config.RedisConfig) {
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
}

// Health reports whether the server answers a ping.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}
