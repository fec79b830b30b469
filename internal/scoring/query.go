/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scoring

import (
	"github.com/friendsincode/mixtape/internal/models"
)

// Query describes one recommendation request.
type Query struct {
	Text       string         `json:"text,omitempty"`
	Moods      map[string]int `json:"moods,omitempty"`
	MaxResults int            `json:"max_results,omitempty"`
	Exclude    []string       `json:"exclude,omitempty"`
}

// Excludes returns the exclusion list as a set.
func (q Query) Excludes() map[string]struct{} {
	set := make(map[string]struct{}, len(q.Exclude))
	for _, p := range q.Exclude {
		set[p] = struct{}{}
	}
	return set
}

// NormalizedMoods returns the query moods restricted to known dimensions and
// clamped to [0, 100]. Unknown names are dropped.
func (q Query) NormalizedMoods() map[string]int {
	if len(q.Moods) == 0 {
		return nil
	}
	out := make(map[string]int, len(q.Moods))
	for dim, v := range q.Moods {
		if !models.IsMoodDimension(dim) {
			continue
		}
		out[dim] = models.ClampMood(v)
	}
	return out
}
