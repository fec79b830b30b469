/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package sampler turns a ranked candidate list into a varied result set by
// weighted sampling without replacement over the top of the ranking.
package sampler

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/friendsincode/mixtape/internal/models"
)

const (
	// MinPoolSize is the smallest pool drawn from when enough candidates exist.
	MinPoolSize = 30
	// PoolMultiplier sizes the pool relative to the requested count.
	PoolMultiplier = 3
	// PoolFraction sizes the pool relative to the candidate count.
	PoolFraction = 0.05
	// MinWeight keeps zero and negative scores selectable.
	MinWeight = 1e-4
)

// Sampler is safe for concurrent use.
type Sampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a sampler. A zero seed seeds from the clock.
func New(seed int64) *Sampler {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Sampler{rng: rand.New(rand.NewSource(seed))}
}

// PoolSize returns how many of n candidates are eligible for k draws.
func PoolSize(n, k int) int {
	size := max(MinPoolSize, max(k*PoolMultiplier, int(math.Ceil(PoolFraction*float64(n)))))
	return min(n, size)
}

// Sample returns min(k, pool size) distinct candidates drawn with
// probability proportional to score, in shuffled order. The input is not
// modified.
func (s *Sampler) Sample(candidates []models.Track, k int) []models.Track {
	if k <= 0 || len(candidates) == 0 {
		return []models.Track{}
	}

	ranked := append([]models.Track(nil), candidates...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	pool := ranked[:PoolSize(len(ranked), k)]

	s.mu.Lock()
	defer s.mu.Unlock()

	var picked []models.Track
	if k >= len(pool) {
		picked = pool
	} else {
		picked = s.draw(pool, k)
	}
	s.rng.Shuffle(len(picked), func(i, j int) { picked[i], picked[j] = picked[j], picked[i] })
	return picked
}

// draw removes k weighted picks from pool. Caller holds s.mu.
func (s *Sampler) draw(pool []models.Track, k int) []models.Track {
	remaining := append([]models.Track(nil), pool...)
	out := make([]models.Track, 0, k)
	for len(out) < k && len(remaining) > 0 {
		total := 0.0
		for _, c := range remaining {
			total += weight(c.Score)
		}
		target := s.rng.Float64() * total

		idx := len(remaining) - 1
		acc := 0.0
		for i, c := range remaining {
			acc += weight(c.Score)
			if acc >= target {
				idx = i
				break
			}
		}
		out = append(out, remaining[idx])
		remaining = append(remaining[:idx], remaining[idx+1:]...)
	}
	return out
}

func weight(score float64) float64 {
	if math.IsNaN(score) || score < MinWeight {
		return MinWeight
	}
	return score
}
