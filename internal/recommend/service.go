/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package recommend is the top-level recommendation pipeline: it loads the
// catalog, scores it against the query and learned preferences, applies the
// freshness bias and samples a varied result set.
package recommend

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/mixtape/internal/catalog"
	"github.com/friendsincode/mixtape/internal/events"
	"github.com/friendsincode/mixtape/internal/ledger"
	"github.com/friendsincode/mixtape/internal/models"
	"github.com/friendsincode/mixtape/internal/sampler"
	"github.com/friendsincode/mixtape/internal/scoring"
	"github.com/friendsincode/mixtape/internal/telemetry"
)

// DefaultMaxResults is used when neither the query nor the options set a count.
const DefaultMaxResults = 20

// Options tunes a Service.
type Options struct {
	DefaultMaxResults int
	// Seed for the sampler; zero seeds from the clock.
	Seed int64
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Service is safe for concurrent use.
type Service struct {
	catalog    catalog.Store
	ledger     *ledger.Ledger
	engine     *scoring.Engine
	sampler    *sampler.Sampler
	bus        events.Publisher
	defaultMax int
	logger     zerolog.Logger
}

// NewService wires the pipeline. bus may be nil.
func NewService(store catalog.Store, l *ledger.Ledger, bus events.Publisher, opts Options, logger zerolog.Logger) *Service {
	if opts.DefaultMaxResults <= 0 {
		opts.DefaultMaxResults = DefaultMaxResults
	}
	return &Service{
		catalog:    store,
		ledger:     l,
		engine:     scoring.NewEngine(l, opts.Now, logger),
		sampler:    sampler.New(opts.Seed),
		bus:        bus,
		defaultMax: opts.DefaultMaxResults,
		logger:     logger.With().Str("component", "recommend").Logger(),
	}
}

// Ledger exposes the preference ledger.
func (s *Service) Ledger() *ledger.Ledger {
	return s.ledger
}

// GetRecommendations returns up to q.MaxResults scored tracks, none of them
// in q.Exclude. Results are stochastic. Degraded conditions yield an empty
// slice, never an error. A panic anywhere in the pipeline is recovered and
// also yields an empty slice.
func (s *Service) GetRecommendations(ctx context.Context, q scoring.Query) (results []models.Track) {
	ctx, span := telemetry.StartSpan(ctx, "recommend.GetRecommendations")
	defer span.End()
	start := time.Now()
	defer func() {
		telemetry.RecommendationDuration.Observe(time.Since(start).Seconds())
	}()
	defer func() {
		if r := recover(); r != nil {
			telemetry.RecommendationRequestsTotal.WithLabelValues("fault").Inc()
			telemetry.RecordError(span, fmt.Errorf("recommendation pipeline panic: %v", r))
			s.logger.Error().Str("panic", fmt.Sprint(r)).Msg("recommendation pipeline fault, returning no recommendations")
			results = []models.Track{}
		}
	}()

	maxResults := q.MaxResults
	if maxResults <= 0 {
		maxResults = s.defaultMax
	}

	tracks, err := s.catalog.Tracks(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		telemetry.RecommendationRequestsTotal.WithLabelValues("unavailable").Inc()
		s.logger.Warn().Err(err).Msg("catalog unavailable, returning no recommendations")
		return []models.Track{}
	}
	if len(tracks) == 0 {
		telemetry.RecommendationRequestsTotal.WithLabelValues("unavailable").Inc()
		s.logger.Warn().Msg("catalog is empty, returning no recommendations")
		return []models.Track{}
	}

	excluded := q.Excludes()
	candidates := make([]models.Track, 0, len(tracks))
	for _, t := range tracks {
		if _, skip := excluded[t.Path]; skip {
			continue
		}
		candidates = append(candidates, t)
	}

	scored := s.engine.ScoreAll(candidates, q)
	now := s.engine.Now()
	for i := range scored {
		scored[i].Score *= scoring.Freshness(s.ledger.LastPlayedAt(scored[i].Path), now)
	}
	scoring.SortByScore(scored)

	results = s.sampler.Sample(scored, maxResults)

	span.SetAttributes(
		attribute.Int("catalog.size", len(tracks)),
		attribute.Int("candidates", len(candidates)),
		attribute.Int("results", len(results)),
	)

	if len(results) == 0 {
		telemetry.RecommendationRequestsTotal.WithLabelValues("empty").Inc()
		return results
	}

	paths := make([]string, len(results))
	for i, t := range results {
		paths[i] = t.Path
	}
	s.ledger.RecordRecommended(ctx, paths...)
	telemetry.RecommendationRequestsTotal.WithLabelValues("ok").Inc()

	s.logger.Debug().
		Str("query", q.Text).
		Int("moods", len(q.Moods)).
		Int("excluded", len(excluded)).
		Int("candidates", len(candidates)).
		Int("results", len(results)).
		Msg("recommendations generated")
	return results
}

// LearningStats returns the ledger summary in its printable form.
func (s *Service) LearningStats() string {
	return s.ledger.Stats().String()
}
