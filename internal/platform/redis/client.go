// Package redis opens the shared connection behind the authorization
// decision cache.
package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"regflow/internal/platform/config"
	"regflow/pkg/platform/sentinel"
)

const clientName = "regflow"

type Client struct {
	*goredis.Client
}

// Open returns nil, nil when no URL is configured; callers then run without
// a decision cache. Pool settings left at zero keep the go-redis defaults.
func Open(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	opts.ClientName = clientName
	applyPool(opts, cfg)

	c := &Client{Client: goredis.NewClient(opts)}
	if err := c.Health(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func applyPool(opts *goredis.Options, cfg config.RedisConfig) {
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

// Health pings the server. Failures wrap sentinel.ErrUnavailable.
func (c *Client) Health(ctx context.Context) error {
	if err := c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}
