/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package ledger keeps what the listener has taught us: a learned score per
// track, bounded play and skip histories, play and recommendation timestamps
// and mood preferences. Every mutation is persisted before it returns.
package ledger

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/mixtape/internal/models"
	"github.com/friendsincode/mixtape/internal/ring"
	"github.com/friendsincode/mixtape/internal/telemetry"
)

const (
	// HistoryLimit bounds the play and skip histories.
	HistoryLimit = 500
	// RecentSkipWindow is how many of the newest skips count as "recent".
	RecentSkipWindow = 50

	PlayedDelta    = 0.15
	SkippedDelta   = -0.25
	CompletedDelta = 0.30
	ReplayedDelta  = 0.20

	// MoodLearningRate is the step size of LearnMoodPreferences.
	MoodLearningRate = 0.05
	// DefaultMoodPreference is the neutral preference for an unlearned dimension.
	DefaultMoodPreference = 0.5

	// Recommendation stamps older than this many cooldown windows are dropped.
	recommendMemoryFactor = 4

	persistTimeout = 10 * time.Second
)

// Options tunes a Ledger.
type Options struct {
	// RecommendCooldown sizes the recommend memory; zero disables purging.
	RecommendCooldown time.Duration
	// Backend labels persistence metrics.
	Backend string
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Ledger is safe for concurrent use. Reads share an RWMutex; mutations are
// additionally serialized on persistMu so snapshots reach the store in order.
type Ledger struct {
	store  Store
	logger zerolog.Logger
	opts   Options

	persistMu sync.Mutex

	mu              sync.RWMutex
	scores          map[string]float64
	moods           map[string]float64
	plays           *ring.Ring[string]
	skips           *ring.Ring[string]
	lastPlayed      map[string]int64
	lastRecommended map[string]int64
}

// New creates a ledger and loads its persisted state. A load failure is
// logged and the ledger starts empty.
func New(ctx context.Context, store Store, opts Options, logger zerolog.Logger) *Ledger {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Backend == "" {
		opts.Backend = "unknown"
	}
	l := &Ledger{
		store:  store,
		logger: logger.With().Str("component", "ledger").Logger(),
		opts:   opts,
	}
	l.restore(EmptySnapshot())

	snap, err := store.Load(ctx)
	if err != nil {
		telemetry.LedgerPersistFailuresTotal.WithLabelValues("load").Inc()
		l.logger.Warn().Err(err).Str("backend", opts.Backend).Msg("failed to load preference ledger, starting empty")
		return l
	}
	l.restore(snap)
	telemetry.LedgerTrackedTracks.Set(float64(len(l.scores)))
	l.logger.Info().
		Str("backend", opts.Backend).
		Int("tracked", len(l.scores)).
		Int("plays", l.plays.Len()).
		Int("skips", l.skips.Len()).
		Msg("preference ledger loaded")
	return l
}

// restore replaces in-memory state with snap, enforcing bounds on the way in.
func (l *Ledger) restore(snap Snapshot) {
	snap.fill()
	l.scores = make(map[string]float64, len(snap.Scores))
	for path, s := range snap.Scores {
		if math.IsNaN(s) {
			continue
		}
		l.scores[path] = clampScore(s)
	}
	l.moods = make(map[string]float64, len(snap.MoodPreferences))
	for mood, v := range snap.MoodPreferences {
		if math.IsNaN(v) {
			continue
		}
		l.moods[mood] = clampUnit(v)
	}
	l.plays = ring.New[string](HistoryLimit)
	for _, p := range snap.PlayHistory {
		l.plays.Push(p)
	}
	l.skips = ring.New[string](HistoryLimit)
	for _, p := range snap.SkipHistory {
		l.skips.Push(p)
	}
	l.lastPlayed = make(map[string]int64, len(snap.LastPlayedAt))
	for path, ts := range snap.LastPlayedAt {
		if ts > 0 {
			l.lastPlayed[path] = ts
		}
	}
	l.lastRecommended = make(map[string]int64, len(snap.LastRecommendedAt))
	for path, ts := range snap.LastRecommendedAt {
		if ts > 0 {
			l.lastRecommended[path] = ts
		}
	}
}

func (l *Ledger) snapshotLocked() Snapshot {
	snap := Snapshot{
		Scores:            make(map[string]float64, len(l.scores)),
		MoodPreferences:   make(map[string]float64, len(l.moods)),
		PlayHistory:       l.plays.Items(),
		SkipHistory:       l.skips.Items(),
		LastPlayedAt:      make(map[string]int64, len(l.lastPlayed)),
		LastRecommendedAt: make(map[string]int64, len(l.lastRecommended)),
	}
	for k, v := range l.scores {
		snap.Scores[k] = v
	}
	for k, v := range l.moods {
		snap.MoodPreferences[k] = v
	}
	for k, v := range l.lastPlayed {
		snap.LastPlayedAt[k] = v
	}
	for k, v := range l.lastRecommended {
		snap.LastRecommendedAt[k] = v
	}
	return snap
}

// Snapshot returns a copy of the current state.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

// mutate applies fn under the write lock and persists the result. A failed
// save is logged; the in-memory change stands.
func (l *Ledger) mutate(ctx context.Context, event string, fn func(now time.Time)) {
	l.persistMu.Lock()
	defer l.persistMu.Unlock()

	l.mu.Lock()
	fn(l.opts.Now())
	snap := l.snapshotLocked()
	l.mu.Unlock()

	telemetry.LedgerEventsTotal.WithLabelValues(event).Inc()
	telemetry.LedgerTrackedTracks.Set(float64(len(snap.Scores)))

	// A cancelled request must not leave the store behind memory.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	start := time.Now()
	if err := l.store.Save(saveCtx, snap); err != nil {
		telemetry.LedgerPersistFailuresTotal.WithLabelValues("save").Inc()
		l.logger.Error().Err(err).Str("event", event).Str("backend", l.opts.Backend).Msg("failed to persist preference ledger")
		return
	}
	telemetry.LedgerPersistDuration.WithLabelValues(l.opts.Backend).Observe(time.Since(start).Seconds())
}

func (l *Ledger) adjustLocked(path string, delta float64) {
	l.scores[path] = clampScore(l.scores[path] + delta)
}

// Score returns the learned score for path, 0 when unknown.
func (l *Ledger) Score(path string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.scores[path]
}

// RecordPlayed notes that playback of path started.
func (l *Ledger) RecordPlayed(ctx context.Context, path string) {
	l.mutate(ctx, "played", func(now time.Time) {
		l.plays.Push(path)
		l.adjustLocked(path, PlayedDelta)
		l.skips.RemoveFunc(func(p string) bool { return p == path })
		l.lastPlayed[path] = now.UnixMilli()
	})
	l.logger.Debug().Str("path", path).Msg("recorded play")
}

// RecordSkipped notes that path was skipped early.
func (l *Ledger) RecordSkipped(ctx context.Context, path string) {
	l.mutate(ctx, "skipped", func(time.Time) {
		l.skips.Push(path)
		l.adjustLocked(path, SkippedDelta)
	})
	l.logger.Debug().Str("path", path).Msg("recorded skip")
}

// RecordCompleted notes that path played to (near) the end. The caller
// decides what counts as completed.
func (l *Ledger) RecordCompleted(ctx context.Context, path string) {
	l.mutate(ctx, "completed", func(time.Time) {
		l.adjustLocked(path, CompletedDelta)
	})
}

// RecordReplayed notes that path was played again on purpose.
func (l *Ledger) RecordReplayed(ctx context.Context, path string) {
	l.mutate(ctx, "replayed", func(time.Time) {
		l.adjustLocked(path, ReplayedDelta)
	})
}

// RecordRecommended stamps the recommendation time of every path and drops
// stamps older than the recommend memory.
func (l *Ledger) RecordRecommended(ctx context.Context, paths ...string) {
	if len(paths) == 0 {
		return
	}
	l.mutate(ctx, "recommended", func(now time.Time) {
		l.purgeRecommendedLocked(now)
		ts := now.UnixMilli()
		for _, p := range paths {
			l.lastRecommended[p] = ts
		}
	})
}

func (l *Ledger) purgeRecommendedLocked(now time.Time) {
	if l.opts.RecommendCooldown <= 0 {
		return
	}
	cutoff := now.Add(-recommendMemoryFactor * l.opts.RecommendCooldown).UnixMilli()
	for path, ts := range l.lastRecommended {
		if ts < cutoff {
			delete(l.lastRecommended, path)
		}
	}
}

// SetScore overrides the learned score of path, clamped to [-1, 1].
func (l *Ledger) SetScore(ctx context.Context, path string, value float64) {
	if math.IsNaN(value) {
		value = 0
	}
	l.mutate(ctx, "set_score", func(time.Time) {
		l.scores[path] = clampScore(value)
	})
}

// Reset clears all learned state.
func (l *Ledger) Reset(ctx context.Context) {
	l.mutate(ctx, "reset", func(time.Time) {
		l.restore(EmptySnapshot())
	})
	l.logger.Info().Msg("preference ledger reset")
}

// LastPlayedAt returns when path last started playing; zero means never.
func (l *Ledger) LastPlayedAt(path string) time.Time {
	l.mu.RLock()
	ts, ok := l.lastPlayed[path]
	l.mu.RUnlock()
	if !ok {
		return time.Time{}
	}
	return time.UnixMilli(ts)
}

// LastRecommendedAt returns when path was last recommended; zero means never.
func (l *Ledger) LastRecommendedAt(path string) time.Time {
	l.mu.RLock()
	ts, ok := l.lastRecommended[path]
	l.mu.RUnlock()
	if !ok {
		return time.Time{}
	}
	return time.UnixMilli(ts)
}

// WasRecentlySkipped reports whether path is among the newest skips.
func (l *Ledger) WasRecentlySkipped(path string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, p := range l.skips.Last(RecentSkipWindow) {
		if p == path {
			return true
		}
	}
	return false
}

// PlayCount is a path with its number of plays in the history.
type PlayCount struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// FrequentlyPlayed returns the most played paths in the history window.
func (l *Ledger) FrequentlyPlayed(limit int) []PlayCount {
	l.mu.RLock()
	counts := make(map[string]int)
	for _, p := range l.plays.Items() {
		counts[p]++
	}
	l.mu.RUnlock()

	out := make([]PlayCount, 0, len(counts))
	for p, c := range counts {
		out = append(out, PlayCount{Path: p, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Path < out[j].Path
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// LearnMoodPreferences nudges each supplied dimension toward (liked) or away
// from (disliked) the given 0-100 value.
func (l *Ledger) LearnMoodPreferences(ctx context.Context, moods map[string]int, liked bool) {
	if len(moods) == 0 {
		return
	}
	rate := MoodLearningRate
	if !liked {
		rate = -rate
	}
	l.mutate(ctx, "mood", func(time.Time) {
		for dim, v := range moods {
			if !models.IsMoodDimension(dim) {
				continue
			}
			current, ok := l.moods[dim]
			if !ok {
				current = DefaultMoodPreference
			}
			target := float64(models.ClampMood(v)) / 100
			l.moods[dim] = clampUnit(current + (target-current)*rate)
		}
	})
}

// MoodPreference returns the learned preference for dim in [0, 1].
func (l *Ledger) MoodPreference(dim string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if v, ok := l.moods[dim]; ok {
		return v
	}
	return DefaultMoodPreference
}

// RecommendedMoodAdjustments maps learned mood preferences to 0-100 slider values.
func (l *Ledger) RecommendedMoodAdjustments() map[string]int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]int, len(l.moods))
	for dim, v := range l.moods {
		out[dim] = int(math.Round(v * 100))
	}
	return out
}

func clampScore(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
