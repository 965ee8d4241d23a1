package cache

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Per-call budget; the cache is never worth waiting on.
const redisTimeout = 500 * time.Millisecond

type redisCache struct{ r *redis.Client }

// NewRedis wraps an existing client. The caller owns the client lifecycle.
func NewRedis(client *redis.Client) Cache {
	return &redisCache{r: client}
}

func (r *redisCache) Get(key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	v, err := r.r.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return v, true
}

func (r *redisCache) Set(key string, val []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	_ = r.r.Set(ctx, key, val, ttl).Err()
}

func (r *redisCache) SetNX(key string, val []byte, ttl time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	ok, err := r.r.SetNX(ctx, key, val, ttl).Result()
	if err != nil {
		// Treat an unreachable cache as "not stored" so debounced sends
		// still happen rather than silently dropping.
		return true
	}
	return ok
}

func (r *redisCache) Delete(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	_ = r.r.Del(ctx, key).Err()
}

// DeletePrefix scans in batches; invalidation takes as long as it takes but
// each round trip stays bounded.
func (r *redisCache) DeletePrefix(prefix string) {
	var cursor uint64
	for {
		ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
		keys, next, err := r.r.Scan(ctx, cursor, prefix+"*", 200).Result()
		if err != nil {
			cancel()
			return
		}
		if len(keys) > 0 {
			_ = r.r.Del(ctx, keys...).Err()
		}
		cancel()
		if next == 0 {
			return
		}
		cursor = next
	}
}
