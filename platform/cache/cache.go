// Package cache provides a tag-indexed Redis cache for read-path results.
// Entries are immutable once written: invalidation always deletes, never
// mutates in place. Each entry may carry tags; invalidating a tag deletes
// every entry written under it, which lets mutation paths flush whole
// families of filter-derived keys without knowing the keys themselves.
// This is part of the platform layer and contains no business logic.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tagKeyPrefix namespaces the per-tag membership sets away from value keys.
const tagKeyPrefix = "cachetag:"

// Cache is a tag-aware cache backed by Redis.
type Cache struct {
	rdb redis.UniversalClient
}

// New creates a Cache on top of an existing Redis client.
func New(rdb redis.UniversalClient) *Cache {
	return &Cache{rdb: rdb}
}

// NewFromURL connects to Redis and returns a Cache, verifying connectivity.
func NewFromURL(ctx context.Context, redisURL string) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Cache{rdb: client}, nil
}

// Client exposes the underlying Redis client for components that share the
// connection (search index, job queue).
func (c *Cache) Client() redis.UniversalClient {
	return c.rdb
}

// Close closes the underlying Redis connection.
func (c *Cache) Close() error {
	return c.rdb.Close()
}

// Ping verifies the Redis connection, for readiness checks.
func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// SetJSON marshals v and stores it under key with the given TTL, registering
// the key under each tag. The tag sets carry no TTL of their own: a tag may
// reference already-expired keys, which invalidation tolerates.
func (c *Cache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration, tags ...string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, key, data, ttl)
	for _, tag := range tags {
		pipe.SAdd(ctx, tagKeyPrefix+tag, key)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// GetJSON loads the value under key into dest. Returns false when the key is
// absent or expired; a decode failure is treated as a miss so a corrupt entry
// can never poison the read path.
func (c *Cache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, nil
	}
	return true, nil
}

// Delete removes specific keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// InvalidateTags deletes every entry registered under any of the given tags,
// then the tag sets themselves. Returns the number of entries deleted.
func (c *Cache) InvalidateTags(ctx context.Context, tags ...string) (int, error) {
	deleted := 0
	for _, tag := range tags {
		tagKey := tagKeyPrefix + tag
		members, err := c.rdb.SMembers(ctx, tagKey).Result()
		if err != nil {
			return deleted, err
		}
		if len(members) > 0 {
			n, err := c.rdb.Del(ctx, members...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += int(n)
		}
		if err := c.rdb.Del(ctx, tagKey).Err(); err != nil {
			return deleted, err
		}
	}
	return deleted, nil
}

// TTL returns the remaining lifetime of a key.
func (c *Cache) TTL(ctx context.Context, key string) (time.Duration, error) {
	return c.rdb.TTL(ctx, key).Result()
}
