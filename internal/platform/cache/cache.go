// Package cache provides a small Redis-backed cache for computed day grids.
// The grid for a (professional, date) pair is expensive to assemble only
// because of the queries feeding it, so entries are short-lived and every
// write to rules, exceptions or appointments invalidates the affected keys.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrMiss is returned when the key is absent or the cache is disabled.
var ErrMiss = errors.New("cache miss")

type Cache struct {
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger
}

// New connects to Redis at redisURL. An empty URL disables caching; all
// operations then behave as misses.
func New(redisURL string, ttl time.Duration, log zerolog.Logger) (*Cache, error) {
	if redisURL == "" {
		return &Cache{ttl: ttl, log: log}, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Cache{rdb: redis.NewClient(opts), ttl: ttl, log: log}, nil
}

// Enabled reports whether a Redis backend is configured.
func (c *Cache) Enabled() bool { return c.rdb != nil }

// Close releases the underlying Redis connection.
func (c *Cache) Close() error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

// GridKey builds the cache key for one day grid. professionalID is "all" for
// the clinic-wide occupancy board.
func GridKey(professionalID, date string) string {
	return fmt.Sprintf("agenda:grid:%s:%s", professionalID, date)
}

// GetJSON fetches key and unmarshals it into dest. Returns ErrMiss when the
// key is absent or caching is disabled.
func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	if c.rdb == nil {
		return ErrMiss
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return fmt.Errorf("cache get %s: %w", key, err)
	}
	return json.Unmarshal(raw, dest)
}

// SetJSON stores value under key with the configured TTL. Failures are logged
// and swallowed: the cache is an optimization, never a source of errors for
// the caller.
func (c *Cache) SetJSON(ctx context.Context, key string, value interface{}) {
	if c.rdb == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache marshal failed")
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
}

// InvalidateGrid drops every cached grid for the given professional. Pass
// "all" to drop the clinic-wide board as well.
func (c *Cache) InvalidateGrid(ctx context.Context, professionalID string) {
	if c.rdb == nil {
		return
	}
	pattern := fmt.Sprintf("agenda:grid:%s:*", professionalID)
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.log.Warn().Err(err).Str("pattern", pattern).Msg("cache scan failed")
		return
	}
	if len(keys) > 0 {
		if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
			c.log.Warn().Err(err).Msg("cache invalidation failed")
		}
	}
}
