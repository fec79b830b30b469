/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package autoplay

import (
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/friendsincode/mixtape/internal/models"
	"github.com/friendsincode/mixtape/internal/ring"
)

// session is the ephemeral state of one queue assignment.
type session struct {
	id       string
	played   map[string]struct{}
	skipped  map[string]struct{}
	recent   *ring.Ring[string]
	genres   map[string]int
	moodSums map[string]int
	moodN    int
}

func newSession() *session {
	return &session{
		id:       uuid.NewString(),
		played:   make(map[string]struct{}),
		skipped:  make(map[string]struct{}),
		recent:   ring.New[string](RecentlyAddedLimit),
		genres:   make(map[string]int),
		moodSums: make(map[string]int),
	}
}

// observe tallies a track that started playing.
func (s *session) observe(t models.Track) {
	s.played[t.Path] = struct{}{}
	if g := strings.ToLower(strings.TrimSpace(t.Genre)); g != "" {
		s.genres[g]++
	}
	for dim, v := range t.MoodVector() {
		s.moodSums[dim] += v
	}
	s.moodN++
}

func (s *session) recentlyAdded(path string) bool {
	for _, p := range s.recent.Items() {
		if p == path {
			return true
		}
	}
	return false
}

// topGenres returns up to n genres by play count, ties broken by name.
func (s *session) topGenres(n int) []string {
	genres := make([]string, 0, len(s.genres))
	for g := range s.genres {
		genres = append(genres, g)
	}
	sort.Slice(genres, func(i, j int) bool {
		if s.genres[genres[i]] != s.genres[genres[j]] {
			return s.genres[genres[i]] > s.genres[genres[j]]
		}
		return genres[i] < genres[j]
	})
	if len(genres) > n {
		genres = genres[:n]
	}
	return genres
}

// moods returns the session mood target: neutral, overridden by learned
// hints while nothing has played, else by the session average.
func (s *session) moods(hints map[string]int) map[string]int {
	out := make(map[string]int, len(models.MoodDimensions))
	for _, dim := range models.MoodDimensions {
		out[dim] = models.MoodNeutral
	}
	if s.moodN == 0 {
		for dim, v := range hints {
			if models.IsMoodDimension(dim) {
				out[dim] = models.ClampMood(v)
			}
		}
		return out
	}
	for dim, sum := range s.moodSums {
		out[dim] = int(math.Round(float64(sum) / float64(s.moodN)))
	}
	return out
}
