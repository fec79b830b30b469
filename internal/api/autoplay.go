/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/friendsincode/mixtape/internal/autoplay"
	"github.com/friendsincode/mixtape/internal/catalog"
	"github.com/friendsincode/mixtape/internal/events"
	"github.com/friendsincode/mixtape/internal/models"
)

type invalidator interface {
	Invalidate(ctx context.Context) error
}

type autoplayStateResponse struct {
	SessionID     string          `json:"session_id"`
	Mode          autoplay.Mode   `json:"mode"`
	Threshold     int             `json:"threshold"`
	Queue         []trackResponse `json:"queue"`
	Current       int             `json:"current"`
	Playing       bool            `json:"playing"`
	Remaining     int             `json:"remaining"`
	LibrarySize   int             `json:"library_size"`
	RecentlyAdded int             `json:"recently_added"`
	Checking      bool            `json:"checking"`
}

func (a *API) autoplayState() autoplayStateResponse {
	st := a.autoplay.State()
	return autoplayStateResponse{
		SessionID:     st.SessionID,
		Mode:          st.Mode,
		Threshold:     st.Threshold,
		Queue:         toTrackResponses(st.Queue),
		Current:       st.Current,
		Playing:       st.Playing,
		Remaining:     st.Remaining,
		LibrarySize:   st.LibrarySize,
		RecentlyAdded: st.RecentlyAdded,
		Checking:      st.Checking,
	}
}

func (a *API) handleAutoplayState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.autoplayState())
}

type queueRequest struct {
	Paths []string `json:"paths" validate:"max=1000,dive,required"`
	Start *int     `json:"start" validate:"omitempty,gte=-1"`
}

func (a *API) handleAutoplayQueue(w http.ResponseWriter, r *http.Request) {
	var req queueRequest
	if !a.decode(w, r, &req) {
		return
	}

	tracks, missing, err := a.resolveTracks(r.Context(), req.Paths)
	if err != nil {
		a.logger.Error().Err(err).Msg("resolve queue tracks failed")
		writeError(w, http.StatusServiceUnavailable, "catalog_unavailable")
		return
	}
	if missing != "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "track_not_found", "path": missing})
		return
	}

	start := -1
	if req.Start != nil {
		start = *req.Start
	} else if len(tracks) > 0 {
		start = 0
	}
	if err := a.autoplay.SetQueue(r.Context(), tracks, start); err != nil {
		writeError(w, http.StatusBadRequest, "index_out_of_range")
		return
	}
	writeJSON(w, http.StatusOK, a.autoplayState())
}

// resolveTracks maps paths to catalog entries, preferring the loaded
// library. It returns the first unknown path.
func (a *API) resolveTracks(ctx context.Context, paths []string) ([]models.Track, string, error) {
	lib := a.autoplay.Library()
	byPath := make(map[string]models.Track, len(lib))
	for _, t := range lib {
		byPath[t.Path] = t
	}

	out := make([]models.Track, 0, len(paths))
	for _, p := range paths {
		if t, ok := byPath[p]; ok {
			out = append(out, t)
			continue
		}
		if a.catalog == nil {
			return nil, p, nil
		}
		t, err := catalog.Lookup(ctx, a.catalog, p)
		if errors.Is(err, catalog.ErrTrackNotFound) {
			return nil, p, nil
		}
		if err != nil {
			return nil, "", err
		}
		out = append(out, t)
	}
	return out, "", nil
}

func (a *API) handleLibraryReload(w http.ResponseWriter, r *http.Request) {
	if a.catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog_unavailable")
		return
	}
	ctx := r.Context()
	if inv, ok := a.catalog.(invalidator); ok {
		if err := inv.Invalidate(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("catalog invalidate failed")
		}
	}
	tracks, err := a.catalog.Tracks(ctx)
	if err != nil {
		a.logger.Error().Err(err).Msg("catalog reload failed")
		writeError(w, http.StatusServiceUnavailable, "catalog_unavailable")
		return
	}
	a.autoplay.SetLibrary(tracks)
	if a.bus != nil {
		a.bus.Publish(events.EventCatalogInvalidated, events.Payload{
			"tracks": len(tracks),
			"node":   a.nodeID,
		})
	}
	writeJSON(w, http.StatusOK, map[string]int{"library_size": len(tracks)})
}

type modeRequest struct {
	Mode string `json:"mode" validate:"required"`
}

func (a *API) handleAutoplayMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if !a.decode(w, r, &req) {
		return
	}
	mode, err := autoplay.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_mode")
		return
	}
	if err := a.autoplay.SetPlaybackMode(r.Context(), mode); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_mode")
		return
	}
	writeJSON(w, http.StatusOK, a.autoplayState())
}

func (a *API) handleAutoplayModeCycle(w http.ResponseWriter, r *http.Request) {
	a.autoplay.CyclePlaybackMode(r.Context())
	writeJSON(w, http.StatusOK, a.autoplayState())
}

type thresholdRequest struct {
	Threshold *int `json:"threshold" validate:"required"`
}

func (a *API) handleAutoplayThreshold(w http.ResponseWriter, r *http.Request) {
	var req thresholdRequest
	if !a.decode(w, r, &req) {
		return
	}
	n := a.autoplay.SetAIContinueThreshold(*req.Threshold)
	writeJSON(w, http.StatusOK, map[string]int{"threshold": n})
}

func (a *API) handleAutoplayAdvance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.autoplay.NotifyQueueAdvanced(r.Context()))
}

type progressRequest struct {
	Progress float64 `json:"progress" validate:"gte=0,lte=1"`
}

func (a *API) handleAutoplayNext(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if !a.decode(w, r, &req) {
		return
	}
	a.autoplay.Next(r.Context(), req.Progress)
	writeJSON(w, http.StatusOK, a.autoplayState())
}

func (a *API) handleAutoplayPrevious(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if !a.decode(w, r, &req) {
		return
	}
	a.autoplay.Previous(r.Context(), req.Progress)
	writeJSON(w, http.StatusOK, a.autoplayState())
}

func (a *API) handleAutoplayFinished(w http.ResponseWriter, r *http.Request) {
	req := progressRequest{Progress: 1}
	if !a.decode(w, r, &req) {
		return
	}
	a.autoplay.TrackFinished(r.Context(), req.Progress)
	writeJSON(w, http.StatusOK, a.autoplayState())
}

type seekRequest struct {
	Index    int     `json:"index" validate:"gte=0"`
	Progress float64 `json:"progress" validate:"gte=0,lte=1"`
}

func (a *API) handleAutoplaySeek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.autoplay.Seek(r.Context(), req.Index, req.Progress); err != nil {
		if errors.Is(err, autoplay.ErrIndexOutOfRange) {
			writeError(w, http.StatusBadRequest, "index_out_of_range")
			return
		}
		writeError(w, http.StatusInternalServerError, "seek_failed")
		return
	}
	writeJSON(w, http.StatusOK, a.autoplayState())
}
