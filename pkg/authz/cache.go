package authz

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// PermissionCache stores resolved effective permission sets per user.
// A miss or any backend failure makes the resolver fall back to a live
// recomputation, so a cache can never make a decision wrong, only slow.
type PermissionCache interface {
	// Get returns the cached set and whether it was present
	Get(ctx context.Context, userID int64) (PermissionSet, bool, error)

	// Set stores the resolved set for a user
	Set(ctx context.Context, userID int64, perms PermissionSet) error

	// Invalidate drops a single user's entry
	Invalidate(ctx context.Context, userID int64) error

	// InvalidateAll drops every entry
	InvalidateAll(ctx context.Context) error
}

// --- in-process backend ---

// MemoryCache is an in-process TTL'd LRU permission cache
type MemoryCache struct {
	lru *expirable.LRU[int64, PermissionSet]
}

// NewMemoryCache creates an in-process cache holding up to size entries
// that expire after ttl
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		lru: expirable.NewLRU[int64, PermissionSet](size, nil, ttl),
	}
}

// Get returns the cached set for a user. Callers get a copy: the
// in-process backend shares one map per entry, and a mutation on the
// returned set must not leak into every other reader.
func (c *MemoryCache) Get(_ context.Context, userID int64) (PermissionSet, bool, error) {
	perms, ok := c.lru.Get(userID)
	if !ok {
		return nil, false, nil
	}
	return perms.Clone(), true, nil
}

// Set stores the resolved set for a user
func (c *MemoryCache) Set(_ context.Context, userID int64, perms PermissionSet) error {
	c.lru.Add(userID, perms)
	return nil
}

// Invalidate drops a single user's entry
func (c *MemoryCache) Invalidate(_ context.Context, userID int64) error {
	c.lru.Remove(userID)
	return nil
}

// InvalidateAll drops every entry
func (c *MemoryCache) InvalidateAll(_ context.Context) error {
	c.lru.Purge()
	return nil
}

// --- redis backend ---

const (
	redisGenerationKey = "authz:perms:gen"
	redisKeyFormat     = "authz:perms:%d:%d" // generation, user id
)

// RedisCache is a shared permission cache for multi-instance
// deployments. InvalidateAll bumps a generation counter instead of
// scanning keys; entries under old generations age out via TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed permission cache
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, redisGenerationKey).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cache generation: %w", err)
	}
	return gen, nil
}

// Get returns the cached set for a user
func (c *RedisCache) Get(ctx context.Context, userID int64) (PermissionSet, bool, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return nil, false, err
	}

	raw, err := c.client.Get(ctx, fmt.Sprintf(redisKeyFormat, gen, userID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached permissions: %w", err)
	}

	perms, err := ParsePermissionSet(raw)
	if err != nil {
		// Corrupt entry; treat as a miss so the resolver recomputes
		return nil, false, nil
	}
	return perms, true, nil
}

// Set stores the resolved set for a user
func (c *RedisCache) Set(ctx context.Context, userID int64, perms PermissionSet) error {
	gen, err := c.generation(ctx)
	if err != nil {
		return err
	}

	err = c.client.Set(ctx, fmt.Sprintf(redisKeyFormat, gen, userID), perms.String(), c.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to cache permissions: %w", err)
	}
	return nil
}

// Invalidate drops a single user's entry
func (c *RedisCache) Invalidate(ctx context.Context, userID int64) error {
	gen, err := c.generation(ctx)
	if err != nil {
		return err
	}

	if err := c.client.Del(ctx, fmt.Sprintf(redisKeyFormat, gen, userID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cached permissions: %w", err)
	}
	return nil
}

// InvalidateAll bumps the generation, orphaning every current entry
func (c *RedisCache) InvalidateAll(ctx context.Context) error {
	if err := c.client.Incr(ctx, redisGenerationKey).Err(); err != nil {
		return fmt.Errorf("failed to bump cache generation: %w", err)
	}
	return nil
}
