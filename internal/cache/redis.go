// Package cache holds the Redis read-through cache for leaderboard pages.
//
// Entries live under a version prefix. Any ledger event bumps the version,
// which orphans every cached page at once; orphans expire through their TTL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"swap-ledger/internal/events"
	"swap-ledger/internal/observability"
)

// DefaultTTL bounds staleness when an invalidation is lost.
const DefaultTTL = 30 * time.Second

const defaultPrefix = "swap-ledger:lb"

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Prefix   string
}

// LeaderboardCache caches JSON-encoded leaderboard pages in Redis.
type LeaderboardCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewLeaderboardCache connects to Redis and verifies the connection.
func NewLeaderboardCache(ctx context.Context, cfg Config) (*LeaderboardCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return newLeaderboardCache(client, cfg), nil
}

func newLeaderboardCache(client *redis.Client, cfg Config) *LeaderboardCache {
	c := &LeaderboardCache{client: client, ttl: cfg.TTL, prefix: cfg.Prefix}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.prefix == "" {
		c.prefix = defaultPrefix
	}
	return c
}

// Compile-time interface check.
var _ events.Publisher = (*LeaderboardCache)(nil)

func (c *LeaderboardCache) versionKey() string {
	return c.prefix + ":version"
}

func (c *LeaderboardCache) version(ctx context.Context) (int64, error) {
	v, err := c.client.Get(ctx, c.versionKey()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("get cache version: %w", err)
	}
	return v, nil
}

func (c *LeaderboardCache) entryKey(version int64, key string) string {
	return fmt.Sprintf("%s:v%d:%s", c.prefix, version, key)
}

// Get decodes the cached value for key into dest. It reports false on a miss
// and returns the cache version the lookup ran at; a page computed after the
// miss must be stored with Set at that version.
func (c *LeaderboardCache) Get(ctx context.Context, key string, dest any) (bool, int64, error) {
	version, err := c.version(ctx)
	if err != nil {
		return false, 0, err
	}

	data, err := c.client.Get(ctx, c.entryKey(version, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		observability.RecordCacheLookup(false)
		return false, version, nil
	}
	if err != nil {
		return false, version, fmt.Errorf("get %s: %w", key, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, version, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	observability.RecordCacheLookup(true)
	return true, version, nil
}

// Set stores value under key at version for the configured TTL. A page
// read at an older version lands in an orphaned namespace and is never served.
func (c *LeaderboardCache) Set(ctx context.Context, key string, version int64, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := c.client.Set(ctx, c.entryKey(version, key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Invalidate drops every cached page by bumping the version.
func (c *LeaderboardCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.versionKey()).Err(); err != nil {
		return fmt.Errorf("bump cache version: %w", err)
	}
	return nil
}

// Publish implements events.Publisher by invalidating on any ledger change.
func (c *LeaderboardCache) Publish(ctx context.Context, evs ...events.Event) error {
	if len(evs) == 0 {
		return nil
	}
	err := c.Invalidate(ctx)
	observability.RecordEventPublished("cache", err)
	return err
}

// Close closes the Redis client.
func (c *LeaderboardCache) Close() error {
	return c.client.Close()
}
