/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls log output.
type Options struct {
	Environment string
	Level       string // empty = debug in development, info otherwise

	// Optional rotating file output.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Setup configures zerolog for the process.
func Setup(opts Options) zerolog.Logger {
	return SetupWithWriter(opts, nil)
}

// SetupWithWriter configures zerolog with an additional writer (e.g., for log buffer).
// Additional writers and the log file always receive JSON lines.
func SetupWithWriter(opts Options, additionalWriter io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var console io.Writer = os.Stdout
	if opts.Environment == "development" {
		console = zerolog.ConsoleWriter{Out: os.Stdout}
	}

	writers := []io.Writer{console}
	if additionalWriter != nil {
		writers = append(writers, additionalWriter)
	}
	if opts.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		})
	}

	var writer io.Writer = console
	if len(writers) > 1 {
		writer = zerolog.MultiLevelWriter(writers...)
	}

	logger := zerolog.New(writer).With().Timestamp().Logger().Level(ParseLevel(opts.Level, opts.Environment))
	log.Logger = logger
	return logger
}

// ParseLevel resolves a textual level, falling back to the environment default.
func ParseLevel(level, environment string) zerolog.Level {
	if lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level))); err == nil && level != "" {
		return lvl
	}
	if environment == "development" {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}
