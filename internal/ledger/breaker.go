/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package ledger

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

const (
	breakerFailures = 5
	breakerTimeout  = 30 * time.Second
)

// BreakerStore stops calling a failing remote store for a while instead of
// stalling every mutation on its timeout.
type BreakerStore struct {
	next    Store
	breaker *gobreaker.CircuitBreaker[Snapshot]
}

// NewBreakerStore wraps next in a circuit breaker named name.
func NewBreakerStore(name string, next Store, logger zerolog.Logger) *BreakerStore {
	logger = logger.With().Str("component", "ledger-breaker").Str("breaker", name).Logger()
	return &BreakerStore{
		next: next,
		breaker: gobreaker.NewCircuitBreaker[Snapshot](gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     breakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("ledger store breaker state changed")
			},
		}),
	}
}

// Load implements Store.
func (b *BreakerStore) Load(ctx context.Context) (Snapshot, error) {
	return b.breaker.Execute(func() (Snapshot, error) {
		return b.next.Load(ctx)
	})
}

// Save implements Store.
func (b *BreakerStore) Save(ctx context.Context, snap Snapshot) error {
	_, err := b.breaker.Execute(func() (Snapshot, error) {
		return Snapshot{}, b.next.Save(ctx, snap)
	})
	return err
}

// State reports the breaker state.
func (b *BreakerStore) State() gobreaker.State {
	return b.breaker.State()
}

// Close closes the wrapped store when it holds resources.
func (b *BreakerStore) Close() error {
	if c, ok := b.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
