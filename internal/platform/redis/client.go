// Package redis owns the shared go-redis client used by the snapshot store
// and the health endpoint.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"certflow/internal/platform/config"
)

// Client wraps the go-redis client so callers get a health check without
// reaching into redis internals.
type Client struct {
	*redis.Client
}

// New connects using the configured URL and pool settings, verifying the
// connection with a ping. A nil client (no error) means redis is not
// configured and the caller should fall back to another backend.
func New(cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{Client: client}, nil
}

// Health reports whether the connection answers a ping.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}
