package internal

import (
	"context"
	"errors"
	"time"

	"github.com/lychee-technology/eavcache"
	"github.com/redis/go-redis/v9"
)

var _ eavcache.SecondaryCache = (*RedisSecondaryCache)(nil)

// RedisSecondaryCache stores snapshots under prefix+key and records the members of each tag
// in a Redis set under prefix+"tag:"+tag.
type RedisSecondaryCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisSecondaryCache connects to Redis and verifies the connection.
func NewRedisSecondaryCache(ctx context.Context, cfg eavcache.RedisConfig, prefix string, ttl time.Duration) (*RedisSecondaryCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, eavcache.NewCacheError("failed to connect to redis", err).WithDetail("addr", cfg.Addr)
	}

	return NewRedisSecondaryCacheWithClient(client, prefix, ttl), nil
}

// NewRedisSecondaryCacheWithClient uses an existing client.
func NewRedisSecondaryCacheWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisSecondaryCache {
	return &RedisSecondaryCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (r *RedisSecondaryCache) Enabled() bool { return true }

func (r *RedisSecondaryCache) Load(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (r *RedisSecondaryCache) Save(ctx context.Context, key string, data []byte, tags []string) error {
	fullKey := r.prefix + key
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, fullKey, data, r.ttl)
		for _, tag := range tags {
			pipe.SAdd(ctx, r.tagKey(tag), fullKey)
		}
		return nil
	})
	return err
}

// Invalidate deletes every key recorded under the tags together with the tag sets.
func (r *RedisSecondaryCache) Invalidate(ctx context.Context, tags ...string) error {
	for _, tag := range tags {
		tagKey := r.tagKey(tag)
		members, err := r.client.SMembers(ctx, tagKey).Result()
		if err != nil {
			return err
		}
		keys := append(members, tagKey)
		if err := r.client.Del(ctx, keys...).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the Redis connection.
func (r *RedisSecondaryCache) Close() error {
	return r.client.Close()
}

func (r *RedisSecondaryCache) tagKey(tag string) string {
	return r.prefix + "tag:" + tag
}
