package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"pollqr.local/internal/platform/metrics"
)

// Cached visibility values. NotFound is a negative-cache sentinel so that
// probing random identifiers does not reach Postgres every time.
const (
	Public   = "0"
	Private  = "1"
	NotFound = "__nil__"
)

// VisibilityCache fronts the polls table with L1 (ristretto) and L2 (Redis).
// Either layer may be nil.
type VisibilityCache struct {
	client   *redis.Client
	local    *LocalCache
	ttl      time.Duration
	emptyTTL time.Duration
}

func NewVisibilityCache(client *redis.Client, local *LocalCache) *VisibilityCache {
	return &VisibilityCache{
		client:   client,
		local:    local,
		ttl:      5 * time.Minute,
		emptyTTL: 10 * time.Second,
	}
}

func redisKey(pollID string) string { return "pv:" + pollID }

// Get returns one of Public, Private or NotFound, or "" on a miss.
func (c *VisibilityCache) Get(ctx context.Context, pollID string) (string, error) {
	if c.local != nil {
		if v, ok := c.local.Get(pollID); ok {
			metrics.CacheOperations.WithLabelValues("visibility_local", hitLabel(v)).Inc()
			return v, nil
		}
		metrics.CacheOperations.WithLabelValues("visibility_local", "miss").Inc()
	}
	if c.client == nil {
		return "", nil
	}

	v, err := c.client.Get(ctx, redisKey(pollID)).Result()
	if errors.Is(err, redis.Nil) {
		metrics.CacheOperations.WithLabelValues("visibility_redis", "miss").Inc()
		return "", nil
	}
	if err != nil {
		metrics.CacheOperations.WithLabelValues("visibility_redis", "error").Inc()
		return "", err
	}
	metrics.CacheOperations.WithLabelValues("visibility_redis", hitLabel(v)).Inc()

	if c.local != nil {
		c.local.Set(pollID, v)
	}
	return v, nil
}

// Set stores a known visibility (Public or Private).
func (c *VisibilityCache) Set(ctx context.Context, pollID, value string) error {
	if c.local != nil {
		c.local.Set(pollID, value)
	}
	if c.client == nil {
		return nil
	}
	return c.client.Set(ctx, redisKey(pollID), value, c.ttl).Err()
}

func (c *VisibilityCache) SetNotFound(ctx context.Context, pollID string) error {
	if c.local != nil {
		c.local.Set(pollID, NotFound)
	}
	if c.client == nil {
		return nil
	}
	return c.client.Set(ctx, redisKey(pollID), NotFound, c.emptyTTL).Err()
}

func (c *VisibilityCache) Delete(ctx context.Context, pollID string) error {
	if c.local != nil {
		c.local.Del(pollID)
	}
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, redisKey(pollID)).Err()
}

func (c *VisibilityCache) Close() {
	if c.local != nil {
		c.local.Close()
		slog.Info("visibility cache closed")
	}
}

func hitLabel(v string) string {
	if v == NotFound {
		return "negative_hit"
	}
	return "hit"
}
