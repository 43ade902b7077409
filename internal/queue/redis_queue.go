package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// dequeueScript atomically pops the earliest due job id+payload from the
// schedule sorted set, mirroring the Lua-script approach
// Mindburn-Labs-helm/core/pkg/kernel/limiter_redis.go uses for its token
// bucket: do the read-check-mutate as one atomic server-side script so
// concurrent workers never pop the same job twice.
//
// KEYS[1] = schedule zset key (score = ready-at unix nanos)
// KEYS[2] = payload hash key (field = job id, value = JSON job)
// ARGV[1] = now (unix nanos)
var dequeueScript = redis.NewScript(`
local zkey = KEYS[1]
local hkey = KEYS[2]
local now = tonumber(ARGV[1])
local items = redis.call("ZRANGEBYSCORE", zkey, "-inf", now, "LIMIT", 0, 1)
if #items == 0 then
	return false
end
local id = items[1]
redis.call("ZREM", zkey, id)
local data = redis.call("HGET", hkey, id)
redis.call("HDEL", hkey, id)
return {id, data}
`)

// RedisQueue is a Redis sorted-set backed at-least-once delayed job queue.
type RedisQueue struct {
	client       *redis.Client
	zsetKey      string
	hashKey      string
	pollInterval time.Duration
}

// NewRedisQueue constructs a RedisQueue against the given Redis URL
// (e.g. "redis://host:6379/0").
func NewRedisQueue(redisURL string) (*RedisQueue, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("queue: parse redis url: %w", err)
	}
	return &RedisQueue{
		client:       redis.NewClient(opt),
		zsetKey:      "relay:delivery:schedule",
		hashKey:      "relay:delivery:jobs",
		pollInterval: 250 * time.Millisecond,
	}, nil
}

// Enqueue schedules job for execution at or after eta (zero eta means
// "now"). The job id is internal bookkeeping only — job identity for
// delivery-attempt purposes is (EventID, Attempt) carried in the payload.
func (q *RedisQueue) Enqueue(ctx context.Context, job DeliveryJob, eta time.Time) error {
	if eta.IsZero() {
		eta = time.Now()
	}
	data, err := marshalJob(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job: %w", err)
	}
	id := uuid.New().String()

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.hashKey, id, data)
	pipe.ZAdd(ctx, q.zsetKey, redis.Z{Score: float64(eta.UnixNano()), Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue: enqueue: %w", err)
	}
	return nil
}

// Dequeue polls for a due job until one is found or ctx is cancelled.
func (q *RedisQueue) Dequeue(ctx context.Context) (DeliveryJob, bool, error) {
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		now := time.Now().UnixNano()
		res, err := dequeueScript.Run(ctx, q.client, []string{q.zsetKey, q.hashKey}, now).Result()
		if err != nil && err != redis.Nil {
			return DeliveryJob{}, false, fmt.Errorf("queue: dequeue: %w", err)
		}
		if items, ok := res.([]interface{}); ok && len(items) == 2 {
			data, _ := items[1].(string)
			job, uerr := unmarshalJob([]byte(data))
			if uerr != nil {
				return DeliveryJob{}, false, fmt.Errorf("queue: unmarshal job: %w", uerr)
			}
			return job, true, nil
		}

		select {
		case <-ctx.Done():
			return DeliveryJob{}, false, ctx.Err()
		case <-ticker.C:
		}
	}
}

var _ Queue = (*RedisQueue)(nil)
