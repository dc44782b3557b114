package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maxinvesting/CardzCheck-sub003/internal/metrics"
)

// RedisStore shares cached values across server instances.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an already-connected client. Keys are namespaced by prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheRequestsTotal.WithLabelValues("redis", "miss").Inc()
		return nil, ErrMiss
	}
	if err != nil {
		metrics.CacheRequestsTotal.WithLabelValues("redis", "error").Inc()
		return nil, err
	}
	metrics.CacheRequestsTotal.WithLabelValues("redis", "hit").Inc()
	return data, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, r.prefix+key, value, ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}
