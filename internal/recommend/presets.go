/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package recommend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/friendsincode/mixtape/internal/models"
	"github.com/friendsincode/mixtape/internal/scoring"
)

// ErrUnknownPreset is returned for a preset name that does not exist.
var ErrUnknownPreset = errors.New("unknown preset")

// Preset is a named, fixed query.
type Preset struct {
	Name  string         `json:"name"`
	Text  string         `json:"text"`
	Moods map[string]int `json:"moods"`
}

var presets = map[string]Preset{
	"energetic": {
		Name:  "energetic",
		Text:  "energetic upbeat high energy",
		Moods: map[string]int{models.MoodHype: 85, models.MoodRhythmic: 80},
	},
	"chill": {
		Name:  "chill",
		Text:  "chill relaxing calm",
		Moods: map[string]int{models.MoodAtmospheric: 75, models.MoodMelodic: 70, models.MoodHype: 30},
	},
	"focus": {
		Name:  "focus",
		Text:  "focus concentration ambient",
		Moods: map[string]int{models.MoodAtmospheric: 80, models.MoodCinematic: 70, models.MoodAggressive: 20},
	},
	"workout": {
		Name:  "workout",
		Text:  "workout intense powerful",
		Moods: map[string]int{models.MoodHype: 90, models.MoodAggressive: 70, models.MoodRhythmic: 85},
	},
	"party": {
		Name:  "party",
		Text:  "party dance upbeat",
		Moods: map[string]int{models.MoodHype: 95, models.MoodRhythmic: 90},
	},
}

// Presets returns all presets sorted by name.
func Presets() []Preset {
	out := make([]Preset, 0, len(presets))
	for _, p := range presets {
		out = append(out, p.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LookupPreset returns the named preset. Names are case-insensitive.
func LookupPreset(name string) (Preset, error) {
	p, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return p.clone(), nil
}

// Query builds the recommendation query for p.
func (p Preset) Query(maxResults int) scoring.Query {
	return scoring.Query{Text: p.Text, Moods: p.clone().Moods, MaxResults: maxResults}
}

func (p Preset) clone() Preset {
	moods := make(map[string]int, len(p.Moods))
	for k, v := range p.Moods {
		moods[k] = v
	}
	p.Moods = moods
	return p
}

// GetPresetRecommendations runs the named preset. The only error is
// ErrUnknownPreset.
func (s *Service) GetPresetRecommendations(ctx context.Context, name string, maxResults int) ([]models.Track, error) {
	p, err := LookupPreset(name)
	if err != nil {
		return nil, err
	}
	return s.GetRecommendations(ctx, p.Query(maxResults)), nil
}
