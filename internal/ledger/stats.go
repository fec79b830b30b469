/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package ledger

import "fmt"

// Stats summarizes the ledger for diagnostics.
type Stats struct {
	TrackedSongs    int `json:"tracked_songs"`
	PositiveScores  int `json:"positive_scores"`
	NegativeScores  int `json:"negative_scores"`
	PlayHistory     int `json:"play_history"`
	SkipHistory     int `json:"skip_history"`
	MoodPreferences int `json:"mood_preferences"`
	RecentlyPlayed  int `json:"recently_played"`
	Recommended     int `json:"recommended"`
}

// Stats returns diagnostic counts.
func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	st := Stats{
		TrackedSongs:    len(l.scores),
		PlayHistory:     l.plays.Len(),
		SkipHistory:     l.skips.Len(),
		MoodPreferences: len(l.moods),
		RecentlyPlayed:  len(l.lastPlayed),
		Recommended:     len(l.lastRecommended),
	}
	for _, s := range l.scores {
		switch {
		case s > 0:
			st.PositiveScores++
		case s < 0:
			st.NegativeScores++
		}
	}
	return st
}

func (s Stats) String() string {
	return fmt.Sprintf("Learning Stats:\n"+
		"- Songs tracked: %d\n"+
		"- Positive scores: %d\n"+
		"- Negative scores: %d\n"+
		"- Play history: %d items\n"+
		"- Skip history: %d items\n"+
		"- Mood preferences: %d learned",
		s.TrackedSongs, s.PositiveScores, s.NegativeScores, s.PlayHistory, s.SkipHistory, s.MoodPreferences)
}
