/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/mixtape/internal/config"
)

// ErrUnknownBackend is returned for an unrecognized ledger backend name.
var ErrUnknownBackend = errors.New("unknown ledger backend")

// Store persists ledger snapshots. Load returns an empty snapshot, not an
// error, when nothing has been saved yet.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}

// NewStore builds the store selected by cfg.LedgerBackend. Remote backends
// are wrapped in a circuit breaker.
func NewStore(ctx context.Context, cfg *config.Config, db *gorm.DB, logger zerolog.Logger) (Store, error) {
	switch cfg.LedgerBackend {
	case config.LedgerSQL:
		if db == nil {
			return nil, fmt.Errorf("sql ledger backend requires a database")
		}
		return NewSQLStore(db), nil
	case config.LedgerFile:
		return NewFileStore(cfg.LedgerPath), nil
	case config.LedgerMemory, "":
		return NewMemoryStore(), nil
	case config.LedgerRedis:
		store := NewRedisStore(RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Key:      cfg.LedgerKey,
		})
		return NewBreakerStore("ledger-redis", store, logger), nil
	case config.LedgerS3:
		store, err := NewS3Store(ctx, S3Config{
			Bucket:          cfg.S3Bucket,
			Key:             cfg.LedgerKey,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			UsePathStyle:    cfg.S3UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		return NewBreakerStore("ledger-s3", store, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.LedgerBackend)
	}
}

// MemoryStore keeps the last saved snapshot in memory.
type MemoryStore struct {
	mu    sync.Mutex
	snap  Snapshot
	saves int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snap: EmptySnapshot()}
}

// Load implements Store.
func (m *MemoryStore) Load(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.Clone(), nil
}

// Save implements Store.
func (m *MemoryStore) Save(ctx context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snap.Clone()
	m.saves++
	return nil
}

// Saves returns how many snapshots have been written.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
