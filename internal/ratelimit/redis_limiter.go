package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript handles the token bucket algorithm atomically in
// Redis so concurrently-handling relay instances share one counter per
// actor. Lifted near-verbatim from
// Mindburn-Labs-helm/core/pkg/kernel/limiter_redis.go (a pack repo),
// which is the only token-bucket-in-Lua implementation anywhere in the
// corpus.
//
// KEYS[1] = bucket key (e.g. "relay:ratelimit:ip:1.2.3.4")
// ARGV[1] = refill rate (tokens per second)
// ARGV[2] = capacity (max tokens)
// ARGV[3] = cost (tokens to consume)
// ARGV[4] = current unix timestamp (float seconds)
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
	tokens = capacity
	last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
	local added = elapsed * rate
	tokens = tokens + added
	if tokens > capacity then
		tokens = capacity
	end
	last_refill = now
end

local allowed = 0
if tokens >= cost then
	tokens = tokens - cost
	allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, 60)

return {allowed, tokens}
`)

// RedisStore implements Store using Redis, for multi-instance
// deployments that must share rate-limit state.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore constructs a RedisStore against the given Redis URL.
func NewRedisStore(redisURL, prefix string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse redis url: %w", err)
	}
	if prefix == "" {
		prefix = "relay:ratelimit"
	}
	return &RedisStore{client: redis.NewClient(opt), prefix: prefix}, nil
}

func (s *RedisStore) Allow(ctx context.Context, actorID string, policy Policy) (bool, error) {
	key := fmt.Sprintf("%s:%s", s.prefix, actorID)

	rate := float64(policy.RequestsPerMinute) / 60.0
	if rate <= 0 {
		rate = 1
	}
	now := float64(time.Now().UnixMicro()) / 1e6

	res, err := tokenBucketScript.Run(ctx, s.client, []string{key}, rate, policy.Burst, 1, now).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit: redis script: %w", err)
	}

	items, ok := res.([]interface{})
	if !ok || len(items) != 2 {
		return false, fmt.Errorf("ratelimit: unexpected script result")
	}
	allowed, _ := items[0].(int64)
	return allowed == 1, nil
}

var _ Store = (*RedisStore)(nil)
