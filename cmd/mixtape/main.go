/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/mixtape/internal/config"
	"github.com/friendsincode/mixtape/internal/logbuffer"
	"github.com/friendsincode/mixtape/internal/logging"
	"github.com/friendsincode/mixtape/internal/server"
	"github.com/friendsincode/mixtape/internal/telemetry"
	"github.com/friendsincode/mixtape/internal/version"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "mixtape",
	Short: "Mixtape - adaptive music recommendations",
	Long:  "Mixtape scores a music catalog against mood and text queries, learns from playback feedback and keeps an autoplay queue topped up.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Mixtape server",
	Long:  "Start the HTTP API, event stream and autoplay manager",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.String())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	_, err := setup(false)
	return err
}

// setup loads configuration and configures logging. With capture set, log
// lines are also kept in an in-memory buffer for the system logs endpoint.
func setup(capture bool) (*logbuffer.Buffer, error) {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	opts := logging.Options{
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
		File:        cfg.LogFile,
		MaxSizeMB:   cfg.LogMaxSizeMB,
		MaxBackups:  cfg.LogMaxBackups,
		MaxAgeDays:  cfg.LogMaxAgeDays,
	}
	if !capture || cfg.LogBufferSize == 0 {
		logger = logging.Setup(opts)
		return nil, nil
	}
	buf := logbuffer.New(cfg.LogBufferSize)
	logger = logging.SetupWithWriter(opts, logbuffer.NewWriter(buf, nil))
	return buf, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	logBuf, err := setup(true)
	if err != nil {
		return err
	}

	logger.Info().Str("version", version.Version).Msg("Mixtape starting")

	tracerProvider, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "mixtape",
		ServiceVersion: version.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	srv, err := server.New(cfg, logBuf, logger)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	httpServer := srv.HTTPServer()

	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down gracefully...")

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	if err := srv.Close(); err != nil {
		logger.Error().Err(err).Msg("shutdown cleanup failed")
	}

	logger.Info().Msg("Mixtape stopped")
	return nil
}

// openCore wires the recommendation stack for one-shot commands.
func openCore(ctx context.Context) (*server.Core, error) {
	if err := loadConfig(); err != nil {
		return nil, err
	}
	return server.NewCore(ctx, cfg, nil, logger)
}
