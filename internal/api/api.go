/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/friendsincode/mixtape/internal/auth"
	"github.com/friendsincode/mixtape/internal/autoplay"
	"github.com/friendsincode/mixtape/internal/catalog"
	"github.com/friendsincode/mixtape/internal/eventbus"
	"github.com/friendsincode/mixtape/internal/logbuffer"
	"github.com/friendsincode/mixtape/internal/recommend"
)

const maxBodyBytes = 1 << 20

// Deps are the services the API exposes.
type Deps struct {
	Recommend *recommend.Service
	Autoplay  *autoplay.Manager
	Catalog   catalog.Store
	Bus       eventbus.Broker
	LogBuffer *logbuffer.Buffer
	JWTSecret []byte
	// NodeID tags events this process publishes.
	NodeID string
}

// API exposes HTTP handlers.
type API struct {
	recommend *recommend.Service
	autoplay  *autoplay.Manager
	catalog   catalog.Store
	bus       eventbus.Broker
	logBuffer *logbuffer.Buffer
	jwtSecret []byte
	nodeID    string
	validate  *validator.Validate
	logger    zerolog.Logger
}

// New creates the API router wrapper.
func New(deps Deps, logger zerolog.Logger) *API {
	return &API{
		recommend: deps.Recommend,
		autoplay:  deps.Autoplay,
		catalog:   deps.Catalog,
		bus:       deps.Bus,
		logBuffer: deps.LogBuffer,
		jwtSecret: deps.JWTSecret,
		nodeID:    deps.NodeID,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts the API under /api/v1.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		r.Group(func(pr chi.Router) {
			pr.Use(auth.Middleware(a.jwtSecret))
			admin := auth.RequireRole(len(a.jwtSecret) > 0, auth.RoleAdmin)

			pr.Post("/recommendations", a.handleRecommendations)

			pr.Route("/presets", func(r chi.Router) {
				r.Get("/", a.handlePresetsList)
				r.Get("/{name}", a.handlePresetRecommendations)
			})

			pr.Post("/feedback/{kind}", a.handleFeedback)

			pr.Route("/learning", func(r chi.Router) {
				r.Get("/stats", a.handleLearningStats)
				r.Get("/frequent", a.handleFrequentlyPlayed)
				r.With(admin).Post("/reset", a.handleLearningReset)
				r.With(admin).Put("/scores", a.handleSetScore)
			})

			pr.Route("/autoplay", func(r chi.Router) {
				r.Get("/", a.handleAutoplayState)
				r.Post("/queue", a.handleAutoplayQueue)
				r.With(admin).Post("/library/reload", a.handleLibraryReload)
				r.Put("/mode", a.handleAutoplayMode)
				r.Post("/mode/cycle", a.handleAutoplayModeCycle)
				r.Put("/threshold", a.handleAutoplayThreshold)
				r.Post("/advance", a.handleAutoplayAdvance)
				r.Post("/next", a.handleAutoplayNext)
				r.Post("/previous", a.handleAutoplayPrevious)
				r.Post("/finished", a.handleAutoplayFinished)
				r.Post("/seek", a.handleAutoplaySeek)
			})

			pr.Get("/events", a.handleEvents)
			pr.With(admin).Get("/system/logs", a.handleSystemLogs)
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleSystemLogs(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "log_buffer_unavailable")
		return
	}

	params := logbuffer.QueryParams{
		Level:      r.URL.Query().Get("level"),
		Component:  r.URL.Query().Get("component"),
		Search:     r.URL.Query().Get("search"),
		Descending: true,
		Limit:      queryInt(r, "limit", 500),
	}
	if since := r.URL.Query().Get("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			params.Since = t
		}
	}
	if r.URL.Query().Get("order") == "asc" {
		params.Descending = false
	}

	entries := a.logBuffer.Query(params)
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
		"stats":   a.logBuffer.Stats(),
	})
}

// decode reads a JSON body into dst and validates it. An empty body leaves
// dst at its zero value.
func (a *API) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body != nil && r.ContentLength != 0 {
		dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid_request")
			return false
		}
	}
	if err := a.validate.Struct(dst); err != nil {
		a.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("request validation failed")
		writeError(w, http.StatusBadRequest, "validation_failed")
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
