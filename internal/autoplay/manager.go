/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package autoplay owns the live playback queue. In AI continue mode it
// extends the queue with fresh recommendations before it runs dry.
package autoplay

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/mixtape/internal/events"
	"github.com/friendsincode/mixtape/internal/models"
	"github.com/friendsincode/mixtape/internal/recommend"
	"github.com/friendsincode/mixtape/internal/scoring"
	"github.com/friendsincode/mixtape/internal/telemetry"
)

const (
	DefaultThreshold = 5
	MinThreshold     = 1
	MaxThreshold     = 20

	// Target is how many tracks one check aims to add.
	Target = 10
	// RequestFactor scales Target into the candidate request size.
	RequestFactor = 3
	// FallbackLimit caps tracks added from a library shuffle.
	FallbackLimit = 5
	// RecentlyAddedLimit bounds the recently-added ring.
	RecentlyAddedLimit = 50
	// TopGenres is how many session genres seed the query text.
	TopGenres = 3

	// SkipProgress is the fraction of a track below which leaving it counts as a skip.
	SkipProgress = 0.30
	// CompleteProgress is the fraction at which a track counts as completed.
	CompleteProgress = 0.80
)

// ErrIndexOutOfRange is returned when a queue index does not exist.
var ErrIndexOutOfRange = errors.New("queue index out of range")

// Filter reasons.
const (
	reasonInQueue        = "in_queue"
	reasonRecentlyAdded  = "recently_added"
	reasonSessionSkipped = "session_skipped"
	reasonSessionPlayed  = "session_played"
)

// Recommender produces candidates for a query.
type Recommender interface {
	GetRecommendations(ctx context.Context, q scoring.Query) []models.Track
}

// Feedback receives playback feedback.
type Feedback interface {
	RecordFeedback(ctx context.Context, kind, path string) error
}

// MoodHints supplies learned mood targets for sessions with no history.
type MoodHints interface {
	RecommendedMoodAdjustments() map[string]int
}

// Options tunes a Manager.
type Options struct {
	Threshold int
	Seed      int64
	Hints     MoodHints
}

// State is a point-in-time view of the manager.
type State struct {
	SessionID     string         `json:"session_id"`
	Mode          Mode           `json:"mode"`
	Threshold     int            `json:"threshold"`
	Queue         []models.Track `json:"queue"`
	Current       int            `json:"current"`
	Playing       bool           `json:"playing"`
	Remaining     int            `json:"remaining"`
	LibrarySize   int            `json:"library_size"`
	RecentlyAdded int            `json:"recently_added"`
	Checking      bool           `json:"checking"`
}

// CheckResult describes what a continue-check did.
type CheckResult struct {
	Outcome string `json:"outcome"`
	Added   int    `json:"added"`
}

// Check outcomes.
const (
	OutcomeNoop      = "noop"
	OutcomeExtended  = "extended"
	OutcomeFallback  = "fallback"
	OutcomeEmpty     = "empty"
	OutcomeDropped   = "dropped"
	OutcomeDiscarded = "discarded"
)

type feedbackOp struct {
	kind string
	path string
}

// Manager serializes every operation on one mutex. A continue-check
// releases it while the recommendation pipeline runs and re-validates its
// results against the state it finds afterwards.
type Manager struct {
	rec      Recommender
	feedback Feedback
	hints    MoodHints
	bus      events.Publisher
	logger   zerolog.Logger

	mu        sync.Mutex
	rng       *rand.Rand
	mode      Mode
	threshold int
	library   []models.Track
	queue     []models.Track
	current   int
	playing   bool
	session   *session
	checking  bool
}

// NewManager creates a manager in normal mode with an empty queue. feedback
// and bus may be nil.
func NewManager(rec Recommender, feedback Feedback, bus events.Publisher, opts Options, logger zerolog.Logger) *Manager {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	threshold := opts.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	return &Manager{
		rec:       rec,
		feedback:  feedback,
		hints:     opts.Hints,
		bus:       bus,
		logger:    logger.With().Str("component", "autoplay").Logger(),
		rng:       rand.New(rand.NewSource(seed)),
		mode:      ModeNormal,
		threshold: clampThreshold(threshold),
		current:   -1,
		session:   newSession(),
	}
}

func clampThreshold(n int) int {
	return max(MinThreshold, min(n, MaxThreshold))
}

// SetLibrary replaces the library snapshot used for fallback and as the
// precondition for extending the queue.
func (m *Manager) SetLibrary(tracks []models.Track) {
	m.mu.Lock()
	m.library = append([]models.Track(nil), tracks...)
	m.mu.Unlock()
	m.logger.Info().Int("tracks", len(tracks)).Msg("library snapshot updated")
}

// Library returns a copy of the library snapshot.
func (m *Manager) Library() []models.Track {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Track(nil), m.library...)
}

// SetQueue assigns a new queue and starts a fresh session. A start index
// of -1 leaves playback stopped.
func (m *Manager) SetQueue(ctx context.Context, tracks []models.Track, start int) error {
	if start < -1 || (start >= 0 && start >= len(tracks)) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, start)
	}

	m.mu.Lock()
	m.queue = append([]models.Track(nil), tracks...)
	m.current = -1
	m.playing = false
	m.session = newSession()
	sessionID := m.session.id
	m.publishQueueLocked("assigned")
	var ops []feedbackOp
	if start >= 0 {
		ops = m.startLocked(start)
	}
	m.mu.Unlock()

	m.logger.Info().Str("session", sessionID).Int("tracks", len(tracks)).Int("start", start).Msg("queue assigned")
	m.emit(ctx, ops)
	return nil
}

// Play starts the track at index.
func (m *Manager) Play(ctx context.Context, index int) error {
	m.mu.Lock()
	if index < 0 || index >= len(m.queue) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	ops := m.startLocked(index)
	m.mu.Unlock()

	m.emit(ctx, ops)
	return nil
}

// TrackFinished handles the natural end of the current track. progress is
// the fraction of the track that was played.
func (m *Manager) TrackFinished(ctx context.Context, progress float64) {
	m.mu.Lock()
	if !m.validCurrentLocked() {
		m.mu.Unlock()
		return
	}
	path := m.queue[m.current].Path
	mode := m.mode
	var ops []feedbackOp
	if progress >= CompleteProgress {
		ops = append(ops, feedbackOp{recommend.FeedbackCompleted, path})
	}
	if mode == ModeRepeatOne {
		ops = append(ops, feedbackOp{recommend.FeedbackReplayed, path})
	}
	m.mu.Unlock()
	m.emit(ctx, ops)

	switch mode {
	case ModeRepeatOne:
		m.logger.Debug().Str("path", path).Msg("repeating track")
	case ModeAIContinue:
		m.Check(ctx, "track_finished")
		m.advance(ctx, true)
	case ModeRepeatAll:
		m.advance(ctx, true)
	default:
		m.advance(ctx, false)
	}
}

// Next leaves the current track for the following one. Leaving before
// SkipProgress records a skip.
func (m *Manager) Next(ctx context.Context, progress float64) {
	ops, mode := m.leaveCurrent(progress)
	m.emit(ctx, ops)
	if mode == ModeAIContinue {
		m.Check(ctx, "skip")
	}
	m.advance(ctx, mode == ModeRepeatAll || mode == ModeAIContinue)
}

// Previous moves back one track, wrapping to the end of the queue.
func (m *Manager) Previous(ctx context.Context, progress float64) {
	ops, _ := m.leaveCurrent(progress)
	m.emit(ctx, ops)

	m.mu.Lock()
	if len(m.queue) == 0 {
		m.mu.Unlock()
		return
	}
	idx := m.current - 1
	if idx < 0 {
		idx = len(m.queue) - 1
	}
	ops = m.startLocked(idx)
	m.mu.Unlock()
	m.emit(ctx, ops)
}

// Seek jumps to index, treating the current track as left at progress.
func (m *Manager) Seek(ctx context.Context, index int, progress float64) error {
	m.mu.Lock()
	if index < 0 || index >= len(m.queue) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	m.mu.Unlock()

	ops, _ := m.leaveCurrent(progress)
	m.emit(ctx, ops)

	m.mu.Lock()
	if index >= len(m.queue) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	ops = m.startLocked(index)
	m.mu.Unlock()
	m.emit(ctx, ops)

	m.maybeCheck(ctx, "seek")
	return nil
}

// NotifyQueueAdvanced asks for a continue-check, for callers that move the
// queue themselves.
func (m *Manager) NotifyQueueAdvanced(ctx context.Context) CheckResult {
	return m.Check(ctx, "notify")
}

// SetPlaybackMode switches mode. Entering AI continue runs a check.
func (m *Manager) SetPlaybackMode(ctx context.Context, mode Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	m.mu.Lock()
	prev := m.mode
	m.mode = mode
	m.publish(events.EventPlaybackModeChanged, events.Payload{
		"mode":       string(mode),
		"previous":   string(prev),
		"session_id": m.session.id,
	})
	m.mu.Unlock()

	m.logger.Info().Str("from", prev.String()).Str("to", mode.String()).Msg("playback mode changed")
	if mode == ModeAIContinue && prev != ModeAIContinue {
		m.Check(ctx, "mode_entered")
	}
	return nil
}

// CyclePlaybackMode advances to the next mode and returns it.
func (m *Manager) CyclePlaybackMode(ctx context.Context) Mode {
	m.mu.Lock()
	next := m.mode.Next()
	m.mu.Unlock()
	_ = m.SetPlaybackMode(ctx, next)
	return next
}

// Mode returns the current playback mode.
func (m *Manager) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// SetAIContinueThreshold sets the remaining-track threshold, clamped to
// [1, 20], and returns the value in effect.
func (m *Manager) SetAIContinueThreshold(n int) int {
	m.mu.Lock()
	m.threshold = clampThreshold(n)
	n = m.threshold
	m.mu.Unlock()
	m.logger.Debug().Int("threshold", n).Msg("ai continue threshold set")
	return n
}

// State returns a snapshot of the manager.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{
		SessionID:     m.session.id,
		Mode:          m.mode,
		Threshold:     m.threshold,
		Queue:         append([]models.Track{}, m.queue...),
		Current:       m.current,
		Playing:       m.playing,
		Remaining:     m.remainingLocked(),
		LibrarySize:   len(m.library),
		RecentlyAdded: m.session.recent.Len(),
		Checking:      m.checking,
	}
}

func (m *Manager) validCurrentLocked() bool {
	return m.current >= 0 && m.current < len(m.queue)
}

func (m *Manager) remainingLocked() int {
	return len(m.queue) - m.current - 1
}

// startLocked makes index current and returns the feedback to emit.
func (m *Manager) startLocked(index int) []feedbackOp {
	m.current = index
	m.playing = true
	t := m.queue[index]
	m.session.observe(t)
	m.publish(events.EventNowPlaying, events.Payload{
		"session_id": m.session.id,
		"index":      index,
		"path":       t.Path,
		"title":      t.Title,
		"artist":     t.Artist,
	})
	return []feedbackOp{{recommend.FeedbackPlayed, t.Path}}
}

// leaveCurrent records a skip for an early exit and returns the mode in
// effect.
func (m *Manager) leaveCurrent(progress float64) ([]feedbackOp, Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.validCurrentLocked() || !m.playing || progress >= SkipProgress {
		return nil, m.mode
	}
	path := m.queue[m.current].Path
	m.session.skipped[path] = struct{}{}
	return []feedbackOp{{recommend.FeedbackSkipped, path}}, m.mode
}

// advance moves to the next track, wrapping when wrap is set and stopping
// at the end otherwise.
func (m *Manager) advance(ctx context.Context, wrap bool) {
	m.mu.Lock()
	if len(m.queue) == 0 {
		m.mu.Unlock()
		return
	}
	var ops []feedbackOp
	switch {
	case m.current < len(m.queue)-1:
		ops = m.startLocked(m.current + 1)
	case wrap:
		ops = m.startLocked(0)
	default:
		m.playing = false
		m.publishQueueLocked("ended")
		m.logger.Debug().Str("session", m.session.id).Msg("end of queue")
	}
	m.mu.Unlock()
	m.emit(ctx, ops)
}

func (m *Manager) maybeCheck(ctx context.Context, trigger string) {
	if m.Mode() == ModeAIContinue {
		m.Check(ctx, trigger)
	}
}

func (m *Manager) emit(ctx context.Context, ops []feedbackOp) {
	if m.feedback == nil {
		return
	}
	for _, op := range ops {
		if err := m.feedback.RecordFeedback(ctx, op.kind, op.path); err != nil {
			m.logger.Warn().Err(err).Str("kind", op.kind).Str("path", op.path).Msg("failed to record feedback")
		}
	}
}

func (m *Manager) publish(eventType events.EventType, payload events.Payload) {
	if m.bus != nil {
		m.bus.Publish(eventType, payload)
	}
}

func (m *Manager) publishQueueLocked(reason string) {
	telemetry.AutoplayQueueLength.Set(float64(len(m.queue)))
	m.publish(events.EventQueueChanged, events.Payload{
		"session_id": m.session.id,
		"reason":     reason,
		"length":     len(m.queue),
		"current":    m.current,
	})
}

// Check runs a continue-check: when in AI continue mode with few tracks
// left it requests recommendations and appends the survivors.
func (m *Manager) Check(ctx context.Context, trigger string) CheckResult {
	ctx, span := telemetry.StartSpan(ctx, "autoplay.Check")
	defer span.End()
	span.SetAttributes(attribute.String("trigger", trigger))

	res := m.check(ctx, trigger)
	span.SetAttributes(attribute.String("outcome", res.Outcome), attribute.Int("added", res.Added))
	telemetry.AutoplayChecksTotal.WithLabelValues(res.Outcome).Inc()
	return res
}

// fetch runs the recommender with the manager lock released. A panicking
// recommender yields no results, so the check falls back to the library.
func (m *Manager) fetch(ctx context.Context, trigger string, q scoring.Query) (results []models.Track) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Str("trigger", trigger).Str("panic", fmt.Sprint(r)).Msg("recommender fault during continue check")
			results = nil
		}
	}()
	return m.rec.GetRecommendations(ctx, q)
}

func (m *Manager) check(ctx context.Context, trigger string) CheckResult {
	m.mu.Lock()
	if m.mode != ModeAIContinue {
		m.mu.Unlock()
		return CheckResult{Outcome: OutcomeNoop}
	}
	if m.checking {
		m.mu.Unlock()
		m.logger.Debug().Str("trigger", trigger).Msg("continue check already running, dropped")
		return CheckResult{Outcome: OutcomeDropped}
	}
	if len(m.library) == 0 {
		m.mu.Unlock()
		return CheckResult{Outcome: OutcomeNoop}
	}
	remaining := m.remainingLocked()
	if remaining > m.threshold {
		m.mu.Unlock()
		return CheckResult{Outcome: OutcomeNoop}
	}

	sessionID := m.session.id
	query := m.sessionQueryLocked()
	m.checking = true
	m.mu.Unlock()

	m.logger.Debug().
		Str("trigger", trigger).
		Int("remaining", remaining).
		Str("query", query.Text).
		Int("excluded", len(query.Exclude)).
		Msg("extending queue")

	results := m.fetch(ctx, trigger, query)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.checking = false

	if m.session.id != sessionID || m.mode != ModeAIContinue {
		m.logger.Debug().Str("trigger", trigger).Msg("queue changed during check, results discarded")
		return CheckResult{Outcome: OutcomeDiscarded}
	}

	picked := m.filterLocked(results)
	outcome := OutcomeExtended
	if len(picked) == 0 {
		picked = m.fallbackLocked()
		outcome = OutcomeFallback
	}
	if len(picked) == 0 {
		m.logger.Warn().Str("trigger", trigger).Msg("no tracks available to extend the queue")
		return CheckResult{Outcome: OutcomeEmpty}
	}
	if len(picked) > Target {
		picked = picked[:Target]
	}

	for _, t := range picked {
		m.queue = append(m.queue, t)
		m.session.recent.Push(t.Path)
	}
	telemetry.AutoplayTracksAddedTotal.WithLabelValues(outcome).Add(float64(len(picked)))

	m.publishQueueLocked("extended")
	m.publish(events.EventQueueExtended, events.Payload{
		"session_id": m.session.id,
		"added":      len(picked),
		"source":     outcome,
		"length":     len(m.queue),
	})
	m.logger.Info().
		Str("session", m.session.id).
		Str("source", outcome).
		Int("added", len(picked)).
		Int("queue", len(m.queue)).
		Msg("queue extended")

	return CheckResult{Outcome: outcome, Added: len(picked)}
}

// sessionQueryLocked builds the query and exclusion set for a check.
func (m *Manager) sessionQueryLocked() scoring.Query {
	exclude := make(map[string]struct{}, len(m.queue)+len(m.session.played)+len(m.session.skipped)+m.session.recent.Len())
	for _, t := range m.queue {
		exclude[t.Path] = struct{}{}
	}
	for p := range m.session.played {
		exclude[p] = struct{}{}
	}
	for p := range m.session.skipped {
		exclude[p] = struct{}{}
	}
	for _, p := range m.session.recent.Items() {
		exclude[p] = struct{}{}
	}
	paths := make([]string, 0, len(exclude))
	for p := range exclude {
		paths = append(paths, p)
	}

	var hints map[string]int
	if m.hints != nil {
		hints = m.hints.RecommendedMoodAdjustments()
	}

	return scoring.Query{
		Text:       strings.Join(m.session.topGenres(TopGenres), " "),
		Moods:      m.session.moods(hints),
		MaxResults: Target * RequestFactor,
		Exclude:    paths,
	}
}

// filterLocked drops results that collide with the current state.
func (m *Manager) filterLocked(results []models.Track) []models.Track {
	queued := make(map[string]struct{}, len(m.queue))
	for _, t := range m.queue {
		queued[t.Path] = struct{}{}
	}
	counts := map[string]int{}
	out := make([]models.Track, 0, len(results))
	for _, t := range results {
		var reason string
		switch {
		case hasKey(queued, t.Path):
			reason = reasonInQueue
		case m.session.recentlyAdded(t.Path):
			reason = reasonRecentlyAdded
		case hasKey(m.session.skipped, t.Path):
			reason = reasonSessionSkipped
		case hasKey(m.session.played, t.Path):
			reason = reasonSessionPlayed
		}
		if reason != "" {
			counts[reason]++
			continue
		}
		queued[t.Path] = struct{}{}
		out = append(out, t)
	}

	for reason, n := range counts {
		telemetry.AutoplayFilteredTotal.WithLabelValues(reason).Add(float64(n))
	}
	m.logger.Debug().
		Int("received", len(results)).
		Int("kept", len(out)).
		Int(reasonInQueue, counts[reasonInQueue]).
		Int(reasonRecentlyAdded, counts[reasonRecentlyAdded]).
		Int(reasonSessionSkipped, counts[reasonSessionSkipped]).
		Int(reasonSessionPlayed, counts[reasonSessionPlayed]).
		Msg("filtered recommendations")
	return out
}

// fallbackLocked shuffles the library and takes tracks that are neither
// queued nor recently added. Session play and skip history is ignored so
// the queue always moves forward.
func (m *Manager) fallbackLocked() []models.Track {
	queued := make(map[string]struct{}, len(m.queue))
	for _, t := range m.queue {
		queued[t.Path] = struct{}{}
	}
	shuffled := append([]models.Track(nil), m.library...)
	m.rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	limit := min(Target, FallbackLimit)
	out := make([]models.Track, 0, limit)
	for _, t := range shuffled {
		if len(out) == limit {
			break
		}
		if hasKey(queued, t.Path) || m.session.recentlyAdded(t.Path) {
			continue
		}
		queued[t.Path] = struct{}{}
		out = append(out, t)
	}
	m.logger.Info().Int("added", len(out)).Msg("recommendations exhausted, using library shuffle")
	return out
}

func hasKey(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}
