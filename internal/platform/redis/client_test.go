package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regflow/internal/platform/config"
	"regflow/pkg/platform/sentinel"
)

func TestOpenWithoutURL(t *testing.T) {
	c, err := Open(context.Background(), config.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestOpenRejectsBadURL(t *testing.T) {
	_, err := Open(context.Background(), config.RedisConfig{URL: "http://cache:6379"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_URL")
}

func TestOpenUnreachableIsUnavailable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Open(ctx, config.RedisConfig{URL: "redis://127.0.0.1:1/0", DialTimeout: 200 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinel.ErrUnavailable))
}

func TestApplyPoolKeepsDefaultsForZeroValues(t *testing.T) {
	opts := &goredis.Options{PoolSize: 40, ReadTimeout: time.Second}
	applyPool(opts, config.RedisConfig{MinIdleConns: 3})
	assert.Equal(t, 40, opts.PoolSize)
	assert.Equal(t, time.Second, opts.ReadTimeout)
	assert.Equal(t, 3, opts.MinIdleConns)
}
