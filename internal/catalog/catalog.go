/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package catalog reads the track catalog maintained by the library scanner.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/mixtape/internal/cache"
	"github.com/friendsincode/mixtape/internal/models"
	"github.com/friendsincode/mixtape/internal/telemetry"
)

// ErrTrackNotFound is returned when a path is not in the catalog.
var ErrTrackNotFound = errors.New("track not found")

// Store is a read-only view of the catalog.
type Store interface {
	Tracks(ctx context.Context) ([]models.Track, error)
}

// Finder is implemented by stores that can fetch a single track.
type Finder interface {
	Track(ctx context.Context, path string) (models.Track, error)
}

// Lookup fetches one track from store, scanning the full catalog when the
// store cannot look up by path.
func Lookup(ctx context.Context, store Store, path string) (models.Track, error) {
	if f, ok := store.(Finder); ok {
		return f.Track(ctx, path)
	}
	tracks, err := store.Tracks(ctx)
	if err != nil {
		return models.Track{}, err
	}
	for _, t := range tracks {
		if t.Path == path {
			return t, nil
		}
	}
	return models.Track{}, fmt.Errorf("%w: %s", ErrTrackNotFound, path)
}

// GormStore reads the songs table.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a catalog reader.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Tracks returns every catalog entry ordered by path.
func (s *GormStore) Tracks(ctx context.Context) ([]models.Track, error) {
	var tracks []models.Track
	if err := s.db.WithContext(ctx).Order("path").Find(&tracks).Error; err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return tracks, nil
}

// Track returns one entry by path.
func (s *GormStore) Track(ctx context.Context, path string) (models.Track, error) {
	var track models.Track
	err := s.db.WithContext(ctx).Where("path = ?", path).First(&track).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Track{}, fmt.Errorf("%w: %s", ErrTrackNotFound, path)
	}
	if err != nil {
		return models.Track{}, fmt.Errorf("load track %q: %w", path, err)
	}
	return track, nil
}

// CachedStore serves catalog snapshots from Redis, reading through to next on a miss.
type CachedStore struct {
	next   Store
	cache  *cache.Cache
	logger zerolog.Logger
}

// NewCachedStore wraps next with the snapshot cache.
func NewCachedStore(next Store, c *cache.Cache, logger zerolog.Logger) *CachedStore {
	return &CachedStore{
		next:   next,
		cache:  c,
		logger: logger.With().Str("component", "catalog").Logger(),
	}
}

// Tracks returns the cached snapshot or loads and caches a fresh one.
func (s *CachedStore) Tracks(ctx context.Context) ([]models.Track, error) {
	if !s.cache.IsAvailable() {
		return s.next.Tracks(ctx)
	}
	if tracks, ok := s.cache.GetCatalog(ctx); ok {
		telemetry.CatalogCacheTotal.WithLabelValues("hit").Inc()
		return tracks, nil
	}
	telemetry.CatalogCacheTotal.WithLabelValues("miss").Inc()

	tracks, err := s.next.Tracks(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetCatalog(ctx, tracks); err != nil {
		telemetry.CatalogCacheTotal.WithLabelValues("error").Inc()
		s.logger.Debug().Err(err).Msg("failed to cache catalog snapshot")
	}
	return tracks, nil
}

// Track looks path up in the underlying store, bypassing the snapshot.
func (s *CachedStore) Track(ctx context.Context, path string) (models.Track, error) {
	return Lookup(ctx, s.next, path)
}

// Invalidate drops the cached snapshot so the next read hits the database.
func (s *CachedStore) Invalidate(ctx context.Context) error {
	return s.cache.InvalidateCatalog(ctx)
}
