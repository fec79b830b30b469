/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/mixtape/internal/auth"
	"github.com/friendsincode/mixtape/internal/events"
	"github.com/friendsincode/mixtape/internal/ledger"
	"github.com/friendsincode/mixtape/internal/models"
	"github.com/friendsincode/mixtape/internal/recommend"
	"github.com/friendsincode/mixtape/internal/scoring"
)

const maxResultsLimit = 200

// trackResponse is a catalog entry without its embedding blobs.
type trackResponse struct {
	Path     string         `json:"path"`
	Title    string         `json:"title"`
	Artist   string         `json:"artist"`
	Genre    string         `json:"genre"`
	Tags     string         `json:"tags"`
	Year     int            `json:"year"`
	Filename string         `json:"filename"`
	Moods    map[string]int `json:"moods"`
	Score    float64        `json:"score"`
}

func toTrackResponse(t models.Track) trackResponse {
	return trackResponse{
		Path:     t.Path,
		Title:    t.Title,
		Artist:   t.Artist,
		Genre:    t.Genre,
		Tags:     t.Tags,
		Year:     t.Year,
		Filename: t.Filename,
		Moods:    t.MoodVector(),
		Score:    t.Score,
	}
}

func toTrackResponses(tracks []models.Track) []trackResponse {
	out := make([]trackResponse, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, toTrackResponse(t))
	}
	return out
}

type recommendationRequest struct {
	Text       string         `json:"text" validate:"max=512"`
	Moods      map[string]int `json:"moods" validate:"max=32"`
	MaxResults int            `json:"max_results"`
	Exclude    []string       `json:"exclude" validate:"max=10000,dive,required"`
}

func (a *API) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	var req recommendationRequest
	if !a.decode(w, r, &req) {
		return
	}

	// Mood values and counts are clamped downstream rather than rejected.
	tracks := a.recommend.GetRecommendations(r.Context(), scoring.Query{
		Text:       req.Text,
		Moods:      req.Moods,
		MaxResults: min(max(req.MaxResults, 0), maxResultsLimit),
		Exclude:    req.Exclude,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"tracks": toTrackResponses(tracks),
		"count":  len(tracks),
	})
}

func (a *API) handlePresetsList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"presets": recommend.Presets()})
}

func (a *API) handlePresetRecommendations(w http.ResponseWriter, r *http.Request) {
	maxResults := min(queryInt(r, "max", 0), maxResultsLimit)
	tracks, err := a.recommend.GetPresetRecommendations(r.Context(), chi.URLParam(r, "name"), maxResults)
	if errors.Is(err, recommend.ErrUnknownPreset) {
		writeError(w, http.StatusNotFound, "unknown_preset")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "recommendation_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"preset": chi.URLParam(r, "name"),
		"tracks": toTrackResponses(tracks),
		"count":  len(tracks),
	})
}

type feedbackRequest struct {
	Path string `json:"path" validate:"required,max=768"`
}

func (a *API) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if !a.decode(w, r, &req) {
		return
	}

	kind := chi.URLParam(r, "kind")
	if err := a.recommend.RecordFeedback(r.Context(), kind, req.Path); err != nil {
		if errors.Is(err, recommend.ErrUnknownFeedback) {
			writeError(w, http.StatusNotFound, "unknown_feedback")
			return
		}
		writeError(w, http.StatusInternalServerError, "feedback_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"kind":  kind,
		"path":  req.Path,
		"score": a.recommend.Ledger().Score(req.Path),
	})
}

func (a *API) handleLearningStats(w http.ResponseWriter, r *http.Request) {
	stats := a.recommend.Ledger().Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"stats":   stats,
		"summary": stats.String(),
		"moods":   a.recommend.Ledger().RecommendedMoodAdjustments(),
	})
}

func (a *API) handleFrequentlyPlayed(w http.ResponseWriter, r *http.Request) {
	limit := min(queryInt(r, "limit", 10), maxResultsLimit)
	plays := a.recommend.Ledger().FrequentlyPlayed(limit)
	if plays == nil {
		plays = []ledger.PlayCount{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tracks": plays})
}

func (a *API) handleLearningReset(w http.ResponseWriter, r *http.Request) {
	a.recommend.Ledger().Reset(r.Context())
	user := auth.Subject(r.Context())
	a.logger.Info().Str("user", user).Msg("preference ledger reset")
	if a.bus != nil {
		a.bus.Publish(events.EventLedgerReset, events.Payload{"by": user})
	}
	w.WriteHeader(http.StatusNoContent)
}

type setScoreRequest struct {
	Path  string   `json:"path" validate:"required,max=768"`
	Score *float64 `json:"score" validate:"required"`
}

func (a *API) handleSetScore(w http.ResponseWriter, r *http.Request) {
	var req setScoreRequest
	if !a.decode(w, r, &req) {
		return
	}
	l := a.recommend.Ledger()
	l.SetScore(r.Context(), req.Path, *req.Score)
	a.logger.Info().
		Str("user", auth.Subject(r.Context())).
		Str("path", req.Path).
		Float64("score", *req.Score).
		Msg("learned score overridden")
	writeJSON(w, http.StatusOK, map[string]any{
		"path":  req.Path,
		"score": l.Score(req.Path),
	})
}
