/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package ledger

import "maps"

// Snapshot is the serialized form of the ledger. Timestamps are unix
// milliseconds. Field names follow the keys the mobile app used, so exported
// preference files can be imported as-is.
type Snapshot struct {
	Scores            map[string]float64 `json:"song_scores" yaml:"song_scores"`
	MoodPreferences   map[string]float64 `json:"mood_preferences" yaml:"mood_preferences"`
	PlayHistory       []string           `json:"play_history" yaml:"play_history"`
	SkipHistory       []string           `json:"skip_history" yaml:"skip_history"`
	LastPlayedAt      map[string]int64   `json:"last_time_played" yaml:"last_time_played"`
	LastRecommendedAt map[string]int64   `json:"last_time_recommended" yaml:"last_time_recommended"`
}

// EmptySnapshot returns a snapshot with all maps allocated.
func EmptySnapshot() Snapshot {
	return Snapshot{
		Scores:            map[string]float64{},
		MoodPreferences:   map[string]float64{},
		PlayHistory:       []string{},
		SkipHistory:       []string{},
		LastPlayedAt:      map[string]int64{},
		LastRecommendedAt: map[string]int64{},
	}
}

// Clone deep-copies s.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Scores:            maps.Clone(s.Scores),
		MoodPreferences:   maps.Clone(s.MoodPreferences),
		PlayHistory:       append([]string{}, s.PlayHistory...),
		SkipHistory:       append([]string{}, s.SkipHistory...),
		LastPlayedAt:      maps.Clone(s.LastPlayedAt),
		LastRecommendedAt: maps.Clone(s.LastRecommendedAt),
	}
	out.fill()
	return out
}

// fill replaces nil maps and slices so decoders and callers never see nil.
func (s *Snapshot) fill() {
	if s.Scores == nil {
		s.Scores = map[string]float64{}
	}
	if s.MoodPreferences == nil {
		s.MoodPreferences = map[string]float64{}
	}
	if s.PlayHistory == nil {
		s.PlayHistory = []string{}
	}
	if s.SkipHistory == nil {
		s.SkipHistory = []string{}
	}
	if s.LastPlayedAt == nil {
		s.LastPlayedAt = map[string]int64{}
	}
	if s.LastRecommendedAt == nil {
		s.LastRecommendedAt = map[string]int64{}
	}
}

// IsEmpty reports whether the snapshot carries no state.
func (s Snapshot) IsEmpty() bool {
	return len(s.Scores) == 0 && len(s.MoodPreferences) == 0 &&
		len(s.PlayHistory) == 0 && len(s.SkipHistory) == 0 &&
		len(s.LastPlayedAt) == 0 && len(s.LastRecommendedAt) == 0
}
