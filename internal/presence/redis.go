package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Scores are lastSeen in unix milliseconds.
var upsertScript = redis.NewScript(`
local cur = redis.call('ZSCORE', KEYS[1], ARGV[1])
if (not cur) or tonumber(cur) < tonumber(ARGV[2]) then
	redis.call('ZADD', KEYS[1], ARGV[2], ARGV[1])
end
return 1
`)

var evictScript = redis.NewScript(`
local stale = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1])
for _, member in ipairs(stale) do
	redis.call('ZREM', KEYS[1], member)
end
return stale
`)

// RedisStore shares presence between server processes through one sorted set.
type RedisStore struct {
	rdb redis.UniversalClient
	key string
}

// NewRedisStore uses key as the sorted set holding presence entries.
func NewRedisStore(rdb redis.UniversalClient, key string) *RedisStore {
	return &RedisStore{rdb: rdb, key: key}
}

func (r *RedisStore) Upsert(ctx context.Context, id Identity, now time.Time) error {
	if err := upsertScript.Run(ctx, r.rdb, []string{r.key}, string(id), now.UnixMilli()).Err(); err != nil {
		return fmt.Errorf("%w: upsert %s: %w", ErrStoreUnavailable, id, err)
	}
	return nil
}

func (r *RedisStore) Remove(ctx context.Context, id Identity) error {
	if err := r.rdb.ZRem(ctx, r.key, string(id)).Err(); err != nil {
		return fmt.Errorf("%w: remove %s: %w", ErrStoreUnavailable, id, err)
	}
	return nil
}

func (r *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := r.rdb.ZCard(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: count: %w", ErrStoreUnavailable, err)
	}
	return int(n), nil
}

func (r *RedisStore) EvictOlderThan(ctx context.Context, threshold time.Duration, now time.Time) ([]Identity, error) {
	cutoff := strconv.FormatInt(now.Add(-threshold).UnixMilli(), 10)
	members, err := evictScript.Run(ctx, r.rdb, []string{r.key}, cutoff).StringSlice()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("%w: evict: %w", ErrStoreUnavailable, err)
	}

	evicted := make([]Identity, 0, len(members))
	for _, m := range members {
		evicted = append(evicted, Identity(m))
	}
	return evicted, nil
}

// Ping checks that the backing redis is reachable.
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %w", ErrStoreUnavailable, err)
	}
	return nil
}
