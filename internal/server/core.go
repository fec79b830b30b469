/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/mixtape/internal/cache"
	"github.com/friendsincode/mixtape/internal/catalog"
	"github.com/friendsincode/mixtape/internal/config"
	"github.com/friendsincode/mixtape/internal/db"
	"github.com/friendsincode/mixtape/internal/events"
	"github.com/friendsincode/mixtape/internal/ledger"
	"github.com/friendsincode/mixtape/internal/recommend"
)

// Core is the recommendation stack without HTTP: database, catalog,
// preference ledger and recommender. CLI commands use it directly.
type Core struct {
	DB        *gorm.DB
	Catalog   catalog.Store
	Cache     *cache.Cache
	Ledger    *ledger.Ledger
	Recommend *recommend.Service

	closers []func() error
}

// NewCore connects and wires the recommendation stack. bus may be nil.
func NewCore(ctx context.Context, cfg *config.Config, bus events.Publisher, logger zerolog.Logger) (*Core, error) {
	c := &Core{}

	database, err := db.Connect(cfg)
	if err != nil {
		return nil, err
	}
	c.DB = database
	c.deferClose(func() error { return db.Close(database) })

	if err := db.Migrate(database); err != nil {
		_ = c.Close()
		return nil, err
	}

	var store catalog.Store = catalog.NewGormStore(database)
	if cfg.CatalogCacheEnabled {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.RedisAddr = cfg.RedisAddr
		cacheCfg.RedisPassword = cfg.RedisPassword
		cacheCfg.RedisDB = cfg.RedisDB
		cacheCfg.CatalogTTL = cfg.CatalogCacheTTL
		entityCache, err := cache.New(cacheCfg, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("cache initialization failed, continuing without cache")
		} else {
			c.Cache = entityCache
			c.deferClose(entityCache.Close)
			store = catalog.NewCachedStore(store, entityCache, logger)
		}
	}
	c.Catalog = store

	ledgerStore, err := ledger.NewStore(ctx, cfg, database, logger)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ledger store: %w", err)
	}
	if closer, ok := ledgerStore.(io.Closer); ok {
		c.deferClose(closer.Close)
	}

	c.Ledger = ledger.New(ctx, ledgerStore, ledger.Options{
		RecommendCooldown: cfg.RecommendCooldown,
		Backend:           cfg.LedgerBackend,
	}, logger)

	c.Recommend = recommend.NewService(store, c.Ledger, bus, recommend.Options{
		DefaultMaxResults: cfg.DefaultMaxResults,
		Seed:              cfg.RandomSeed,
	}, logger)

	logger.Info().
		Str("db_backend", string(cfg.DBBackend)).
		Str("ledger_backend", cfg.LedgerBackend).
		Bool("catalog_cache", c.Cache != nil).
		Msg("recommendation core ready")
	return c, nil
}

func (c *Core) deferClose(fn func() error) {
	c.closers = append(c.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (c *Core) Close() error {
	var firstErr error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.closers = nil
	return firstErr
}
