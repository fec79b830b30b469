/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/friendsincode/mixtape/internal/api"
	"github.com/friendsincode/mixtape/internal/autoplay"
	"github.com/friendsincode/mixtape/internal/config"
	"github.com/friendsincode/mixtape/internal/eventbus"
	"github.com/friendsincode/mixtape/internal/events"
	"github.com/friendsincode/mixtape/internal/logbuffer"
	"github.com/friendsincode/mixtape/internal/telemetry"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	nodeID    string
	core      *Core
	bus       eventbus.Broker
	autoplay  *autoplay.Manager
	logBuffer *logbuffer.Buffer
	api       *api.API

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("mixtape-api"))
	router.Use(telemetry.MetricsMiddleware)
	// WebSocket upgrades are long-lived; everything else gets a deadline.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		router:    router,
		nodeID:    eventbus.NodeID(),
		logBuffer: logBuf,
	}

	if err := srv.initDependencies(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:              addr,
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		// Event streams hold the connection open; handlers manage their own deadlines.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	bus, err := eventbus.New(s.cfg, s.logger)
	if err != nil {
		return fmt.Errorf("event bus: %w", err)
	}
	s.bus = bus
	s.DeferClose(bus.Close)

	core, err := NewCore(ctx, s.cfg, bus, s.logger)
	if err != nil {
		return err
	}
	s.core = core
	s.DeferClose(core.Close)

	s.autoplay = autoplay.NewManager(core.Recommend, core.Recommend, bus, autoplay.Options{
		Threshold: s.cfg.AutoplayThreshold,
		Seed:      s.cfg.RandomSeed,
		Hints:     core.Ledger,
	}, s.logger)
	s.reloadLibrary(ctx)

	s.api = api.New(api.Deps{
		Recommend: core.Recommend,
		Autoplay:  s.autoplay,
		Catalog:   core.Catalog,
		Bus:       bus,
		LogBuffer: s.logBuffer,
		JWTSecret: []byte(s.cfg.JWTSigningKey),
		NodeID:    s.nodeID,
	}, s.logger)

	if s.cfg.JWTSigningKey == "" {
		s.logger.Warn().Msg("MIXTAPE_JWT_SIGNING_KEY not set, API authentication disabled")
	}
	return nil
}

// reloadLibrary loads the full catalog into the autoplay fallback library.
// A failure leaves the previous library in place.
func (s *Server) reloadLibrary(ctx context.Context) {
	tracks, err := s.core.Catalog.Tracks(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("catalog load failed, autoplay library unchanged")
		return
	}
	s.autoplay.SetLibrary(tracks)
	s.logger.Info().Int("tracks", len(tracks)).Msg("autoplay library loaded")
}

// HTTPServer exposes the configured http.Server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Handler returns the root router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// LogBuffer returns the in-memory log buffer.
func (s *Server) LogBuffer() *logbuffer.Buffer {
	return s.logBuffer
}

// Close stops background work and releases resources.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.runCatalogInvalidationListener(ctx)
	}()
}

// runCatalogInvalidationListener reloads the autoplay library when another
// node announces a catalog change.
func (s *Server) runCatalogInvalidationListener(ctx context.Context) {
	sub := s.bus.Subscribe(events.EventCatalogInvalidated)
	defer s.bus.Unsubscribe(events.EventCatalogInvalidated, sub)

	s.logger.Info().Msg("catalog invalidation listener started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("catalog invalidation listener stopped")
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}
			if node, _ := payload["node"].(string); node == s.nodeID {
				continue
			}
			s.logger.Debug().Interface("payload", payload).Msg("catalog invalidated remotely")
			if s.core.Cache != nil {
				if err := s.core.Cache.InvalidateCatalog(ctx); err != nil {
					s.logger.Warn().Err(err).Msg("catalog cache invalidate failed")
				}
			}
			s.reloadLibrary(ctx)
		}
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ok","ledger_backend":%q,"event_bus":%q}`,
			s.cfg.LedgerBackend, s.cfg.EventBusBackend)
	})

	s.router.Handle("/metrics", telemetry.Handler())

	s.api.Routes(s.router)
}
