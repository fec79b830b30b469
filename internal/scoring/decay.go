/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scoring

import "time"

// Learning cooldown schedule.
const (
	CooldownFloor    = 0.15
	CooldownHardEnd  = 15 * time.Minute
	CooldownRecovery = 90 * time.Minute
)

// Freshness schedule.
const (
	FreshnessNeverPlayed = 1.15
	FreshnessFloor       = 0.35
	FreshnessWindow      = 30 * time.Minute
)

// LearningCooldown is the per-track penalty for a recent play: CooldownFloor
// up to 15 minutes, rising linearly to 1 at 90 minutes.
func LearningCooldown(age time.Duration) float64 {
	switch {
	case age <= CooldownHardEnd:
		return CooldownFloor
	case age >= CooldownRecovery:
		return 1
	}
	frac := float64(age-CooldownHardEnd) / float64(CooldownRecovery-CooldownHardEnd)
	return CooldownFloor + (1-CooldownFloor)*frac
}

// Freshness is the recommendation-level bias applied on top of the learned
// score. A zero lastPlayed means never played.
func Freshness(lastPlayed, now time.Time) float64 {
	if lastPlayed.IsZero() {
		return FreshnessNeverPlayed
	}
	age := now.Sub(lastPlayed)
	if age < 0 {
		age = 0
	}
	if age >= FreshnessWindow {
		return 1
	}
	return FreshnessFloor + (1-FreshnessFloor)*float64(age)/float64(FreshnessWindow)
}
