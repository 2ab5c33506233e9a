package tagger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/amishk599/jobsync/internal/model"
)

const cachePrefix = "jobsync:entity:"

// RedisCache stores resolved entities as JSON under
// jobsync:entity:<kind>:<normalized name>.
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", redisURL, err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

func cacheKey(kind model.EntityKind, key string) string {
	return cachePrefix + string(kind) + ":" + key
}

type cachedEntity struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (c *RedisCache) Get(ctx context.Context, kind model.EntityKind, key string) (model.Entity, bool, error) {
	raw, err := c.rdb.Get(ctx, cacheKey(kind, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Entity{}, false, nil
	}
	if err != nil {
		return model.Entity{}, false, err
	}
	var ce cachedEntity
	if err := json.Unmarshal(raw, &ce); err != nil {
		return model.Entity{}, false, fmt.Errorf("decoding cached %s: %w", kind, err)
	}
	return model.Entity{ID: ce.ID, Kind: kind, Name: ce.Name}, true, nil
}

func (c *RedisCache) Set(ctx context.Context, e model.Entity, key string, ttl time.Duration) error {
	raw, err := json.Marshal(cachedEntity{ID: e.ID, Name: e.Name})
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, cacheKey(e.Kind, key), raw, ttl).Err()
}
