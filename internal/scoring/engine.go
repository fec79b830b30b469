/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scoring ranks tracks against a query. A track's score is a fixed
// weighted sum of mood, text and embedding-presence components, scaled by
// what the preference ledger has learned about it.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/mixtape/internal/models"
	"github.com/friendsincode/mixtape/internal/telemetry"
)

// Component weights. Components are summed; absent ones contribute nothing
// and the remainder is not rescaled.
const (
	MoodWeight           = 0.4
	TextWeight           = 0.3
	AudioEmbeddingWeight = 0.2
	MetaEmbeddingWeight  = 0.1

	// EmbeddingPlaceholder stands in for embedding similarity when a blob exists.
	EmbeddingPlaceholder = 0.5

	genreMatchValue = 2.0
	tagMatchValue   = 1.0
	minTokenLength  = 3
)

// Learning adjustment factors.
const (
	PositiveLearningFactor = 0.5
	NegativeLearningFactor = 0.3
	RecentSkipPenalty      = 0.3
	NoveltyBoost           = 1.12
)

// Preferences is the read side of the preference ledger.
type Preferences interface {
	Score(path string) float64
	LastPlayedAt(path string) time.Time
	WasRecentlySkipped(path string) bool
}

// Engine scores tracks. It is stateless apart from its read-only view of
// learned preferences and is safe for concurrent use.
type Engine struct {
	prefs  Preferences
	now    func() time.Time
	logger zerolog.Logger
}

// NewEngine creates an engine over prefs. A nil now uses time.Now.
func NewEngine(prefs Preferences, now func() time.Time, logger zerolog.Logger) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		prefs:  prefs,
		now:    now,
		logger: logger.With().Str("component", "scoring").Logger(),
	}
}

// Now returns the engine clock.
func (e *Engine) Now() time.Time {
	return e.now()
}

// Score returns the adjusted relevance of t for q. The result is finite and
// non-negative.
func (e *Engine) Score(t models.Track, q Query) float64 {
	base := BaseScore(t, q.NormalizedMoods(), q.Text)
	return finite(base * e.LearningAdjustment(t.Path))
}

// LearningAdjustment returns the multiplier derived from learned feedback
// for path: learned score, recent skip penalty, then novelty or cooldown.
func (e *Engine) LearningAdjustment(path string) float64 {
	m := 1.0
	if s := e.prefs.Score(path); s > 0 {
		m *= 1 + s*PositiveLearningFactor
	} else if s < 0 {
		m *= 1 + s*NegativeLearningFactor
	}
	if e.prefs.WasRecentlySkipped(path) {
		m *= RecentSkipPenalty
	}
	last := e.prefs.LastPlayedAt(path)
	if last.IsZero() {
		m *= NoveltyBoost
	} else {
		m *= LearningCooldown(e.now().Sub(last))
	}
	return m
}

// ScoreAll scores every track, recovering from a fault in any single one by
// scoring it zero. The result is sorted by descending score.
func (e *Engine) ScoreAll(tracks []models.Track, q Query) []models.Track {
	moods := q.NormalizedMoods()
	out := make([]models.Track, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, t.WithScore(e.safeScore(t, moods, q.Text)))
	}
	telemetry.CandidatesScoredTotal.Add(float64(len(out)))
	SortByScore(out)
	return out
}

func (e *Engine) safeScore(t models.Track, moods map[string]int, text string) (score float64) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.ScoringFaultsTotal.Inc()
			e.logger.Warn().Str("path", t.Path).Str("panic", fmt.Sprint(r)).Msg("scoring fault, candidate scored zero")
			score = 0
		}
	}()
	return finite(BaseScore(t, moods, text) * e.LearningAdjustment(t.Path))
}

// BaseScore sums the weighted components for t. moods must already be
// normalized.
func BaseScore(t models.Track, moods map[string]int, text string) float64 {
	score := 0.0
	if m, ok := MoodMatch(t, moods); ok {
		score += m * MoodWeight
	}
	if strings.TrimSpace(text) != "" {
		score += TextMatch(text, t.Genre, t.Tags) * TextWeight
	}
	if t.HasAudioEmbedding() {
		score += EmbeddingPlaceholder * AudioEmbeddingWeight
	}
	if t.HasMetaEmbedding() {
		score += EmbeddingPlaceholder * MetaEmbeddingWeight
	}
	return score
}

// MoodMatch averages 1 - |q - t|/100 over the supplied dimensions. ok is
// false when no known dimension was supplied.
func MoodMatch(t models.Track, moods map[string]int) (float64, bool) {
	sum, n := 0.0, 0
	for dim, want := range moods {
		have, known := t.Mood(dim)
		if !known {
			continue
		}
		diff := math.Abs(float64(models.ClampMood(want) - models.ClampMood(have)))
		sum += 1 - diff/100
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// TextMatch is a keyword match of query tokens against genre and tags.
// Genre hits weigh 2, tag hits 1, and the mean is capped at 1.
func TextMatch(query, genre, tags string) float64 {
	genre = strings.ToLower(genre)
	tags = strings.ToLower(tags)

	sum, matches := 0.0, 0
	for _, tok := range strings.Fields(strings.ToLower(query)) {
		if len(tok) < minTokenLength {
			continue
		}
		if strings.Contains(genre, tok) {
			sum += genreMatchValue
			matches++
		}
		if strings.Contains(tags, tok) {
			sum += tagMatchValue
			matches++
		}
	}
	if matches == 0 {
		return 0
	}
	return math.Min(sum/float64(matches), 1)
}

// SortByScore orders tracks by descending score, then path for stable output.
func SortByScore(tracks []models.Track) {
	sort.SliceStable(tracks, func(i, j int) bool {
		if tracks[i].Score != tracks[j].Score {
			return tracks[i].Score > tracks[j].Score
		}
		return tracks[i].Path < tracks[j].Path
	})
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
