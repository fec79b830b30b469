/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache keeps a shared catalog snapshot in Redis so that every node
// can skip the full table scan. Redis is optional: while it is unreachable the
// cache reports misses and writes become no-ops.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/mixtape/internal/models"
)

const (
	// DefaultCatalogTTL bounds how stale a cached catalog may get when nothing invalidates it.
	DefaultCatalogTTL = 5 * time.Minute

	// DefaultBackoff is how long the cache stays suspended after a Redis error.
	DefaultBackoff = 30 * time.Second

	// KeyCatalog holds the full catalog snapshot.
	KeyCatalog = "mixtape:cache:catalog"

	// snapshotVersion is bumped whenever the cached track encoding changes.
	snapshotVersion = 1
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CatalogTTL time.Duration

	// Backoff suspends the cache after a Redis error. Zero suspends it for
	// the rest of the process lifetime.
	Backoff time.Duration
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:  "localhost:6379",
		CatalogTTL: DefaultCatalogTTL,
		Backoff:    DefaultBackoff,
	}
}

type snapshot struct {
	Version  int            `json:"version"`
	StoredAt time.Time      `json:"stored_at"`
	Tracks   []models.Track `json:"tracks"`
}

// Cache wraps a Redis client with suspension on failure.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config
	now    func() time.Time

	mu             sync.Mutex
	suspendedUntil time.Time
	off            bool
}

// New creates a cache. An unreachable Redis yields a cache that is switched
// off for good rather than an error.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	logger = logger.With().Str("component", "cache").Logger()
	if cfg.CatalogTTL <= 0 {
		cfg.CatalogTTL = DefaultCatalogTTL
	}
	c := &Cache{logger: logger, config: cfg, now: time.Now}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, catalog cache disabled")
		_ = client.Close()
		c.off = true
		return c, nil
	}

	c.client = client
	logger.Info().Str("addr", cfg.RedisAddr).Dur("ttl", cfg.CatalogTTL).Msg("catalog cache ready")
	return c, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// IsAvailable reports whether the cache will currently talk to Redis.
func (c *Cache) IsAvailable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.off || c.client == nil {
		return false
	}
	return !c.now().Before(c.suspendedUntil)
}

func (c *Cache) fail(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.config.Backoff <= 0 {
		c.off = true
		c.logger.Warn().Err(err).Str("operation", op).Msg("redis error, catalog cache disabled")
		return
	}
	c.suspendedUntil = c.now().Add(c.config.Backoff)
	c.logger.Warn().Err(err).Str("operation", op).Dur("backoff", c.config.Backoff).Msg("redis error, catalog cache suspended")
}

// GetCatalog returns the cached catalog snapshot. Entries written with an
// older encoding count as misses.
func (c *Cache) GetCatalog(ctx context.Context) ([]models.Track, bool) {
	if !c.IsAvailable() {
		return nil, false
	}

	data, err := c.client.Get(ctx, KeyCatalog).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.fail("get", err)
		return nil, false
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		c.logger.Debug().Err(err).Msg("discarding undecodable catalog snapshot")
		return nil, false
	}
	if snap.Version != snapshotVersion {
		c.logger.Debug().Int("version", snap.Version).Msg("discarding catalog snapshot from another version")
		return nil, false
	}
	c.logger.Debug().Int("count", len(snap.Tracks)).Time("stored_at", snap.StoredAt).Msg("catalog cache hit")
	return snap.Tracks, true
}

// SetCatalog stores the catalog snapshot.
func (c *Cache) SetCatalog(ctx context.Context, tracks []models.Track) error {
	if !c.IsAvailable() {
		return nil
	}

	data, err := json.Marshal(snapshot{Version: snapshotVersion, StoredAt: c.now().UTC(), Tracks: tracks})
	if err != nil {
		return fmt.Errorf("encode catalog snapshot: %w", err)
	}
	if err := c.client.Set(ctx, KeyCatalog, data, c.config.CatalogTTL).Err(); err != nil {
		c.fail("set", err)
		return err
	}
	return nil
}

// InvalidateCatalog drops the cached snapshot.
func (c *Cache) InvalidateCatalog(ctx context.Context) error {
	if !c.IsAvailable() {
		return nil
	}
	if err := c.client.Del(ctx, KeyCatalog).Err(); err != nil {
		c.fail("delete", err)
		return err
	}
	return nil
}
