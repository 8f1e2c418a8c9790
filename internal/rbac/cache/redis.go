// Package cache stores authorization decisions in Redis. Keys embed a
// generation counter; bumping the counter orphans every older decision,
// which then expires by TTL.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	id "regflow/pkg/domain"
)

const (
	generationKey = "rbac:gen"
	keyPrefix     = "rbac:authz:"
)

// setIfGeneration stores a decision only when the generation it was computed
// under is still current.
var setIfGeneration = redis.NewScript(`
local cur = redis.call('GET', KEYS[1]) or '0'
if cur ~= ARGV[1] then
  return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

type RedisDecisionCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisDecisionCache(client redis.UniversalClient, ttl time.Duration) *RedisDecisionCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisDecisionCache{client: client, ttl: ttl}
}

func decisionKey(generation int64, userID id.UserID, permission string) string {
	return fmt.Sprintf("%s%d:%s:%s", keyPrefix, generation, userID.String(), permission)
}

func (c *RedisDecisionCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read authz generation: %w", err)
	}
	return gen, nil
}

func (c *RedisDecisionCache) Get(ctx context.Context, userID id.UserID, permission string) (bool, bool, int64, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return false, false, 0, err
	}
	val, err := c.client.Get(ctx, decisionKey(gen, userID, permission)).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, gen, nil
	}
	if err != nil {
		return false, false, gen, fmt.Errorf("read authz decision: %w", err)
	}
	return val == "1", true, gen, nil
}

func (c *RedisDecisionCache) Set(ctx context.Context, generation int64, userID id.UserID, permission string, granted bool) error {
	val := "0"
	if granted {
		val = "1"
	}
	err := setIfGeneration.Run(ctx, c.client,
		[]string{generationKey, decisionKey(generation, userID, permission)},
		strconv.FormatInt(generation, 10), val, c.ttl.Milliseconds(),
	).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("write authz decision: %w", err)
	}
	return nil
}

func (c *RedisDecisionCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, generationKey).Err(); err != nil {
		return fmt.Errorf("bump authz generation: %w", err)
	}
	return nil
}
