/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Ledger persistence backends.
const (
	LedgerSQL    = "sql"
	LedgerFile   = "file"
	LedgerRedis  = "redis"
	LedgerS3     = "s3"
	LedgerMemory = "memory"
)

// Event bus backends.
const (
	BusMemory = "memory"
	BusRedis  = "redis"
	BusNATS   = "nats"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string          `validate:"required"`
	HTTPBind    string          `validate:"required"`
	HTTPPort    int             `validate:"min=1,max=65535"`
	DBBackend   DatabaseBackend `validate:"oneof=postgres mysql sqlite"`
	DBDSN       string          `validate:"required"`

	// Optional. When set the API requires a bearer token signed with this key.
	JWTSigningKey string

	// Logging
	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int `validate:"min=0"`
	LogMaxBackups int `validate:"min=0"`
	LogMaxAgeDays int `validate:"min=0"`
	LogBufferSize int `validate:"min=0"`

	// Preference ledger persistence
	LedgerBackend string `validate:"oneof=sql file redis s3 memory"`
	LedgerPath    string `validate:"required_if=LedgerBackend file"`
	LedgerKey     string `validate:"required_if=LedgerBackend redis,required_if=LedgerBackend s3"`

	// Recommendation tuning
	RecommendCooldown   time.Duration `validate:"min=0"`
	DefaultMaxResults   int           `validate:"min=1,max=500"`
	AutoplayThreshold   int           `validate:"min=1,max=20"`
	RandomSeed          int64
	CatalogCacheEnabled bool
	CatalogCacheTTL     time.Duration `validate:"min=0"`

	// Redis (catalog cache, ledger store, event bus)
	RedisAddr     string
	RedisPassword string
	RedisDB       int `validate:"min=0"`

	// S3 ledger snapshots
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string `validate:"required_if=LedgerBackend s3"`
	S3Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	S3UsePathStyle    bool   // Required for MinIO

	// Event distribution
	EventBusBackend string `validate:"oneof=memory redis nats"`
	NATSURL         string `validate:"required_if=EventBusBackend nats"`

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64 `validate:"min=0,max=1"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads an optional .env file and environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(getEnv("MIXTAPE_ENV_FILE", ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	cfg := &Config{
		Environment:   getEnvAny([]string{"MIXTAPE_ENV"}, "development"),
		HTTPBind:      getEnvAny([]string{"MIXTAPE_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:      getEnvIntAny([]string{"MIXTAPE_HTTP_PORT"}, 8080),
		DBBackend:     DatabaseBackend(getEnvAny([]string{"MIXTAPE_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:         getEnvAny([]string{"MIXTAPE_DB_DSN"}, "mixtape.db"),
		JWTSigningKey: getEnvAny([]string{"MIXTAPE_JWT_SIGNING_KEY"}, ""),

		LogLevel:      getEnvAny([]string{"MIXTAPE_LOG_LEVEL"}, ""),
		LogFile:       getEnvAny([]string{"MIXTAPE_LOG_FILE"}, ""),
		LogMaxSizeMB:  getEnvIntAny([]string{"MIXTAPE_LOG_MAX_SIZE_MB"}, 50),
		LogMaxBackups: getEnvIntAny([]string{"MIXTAPE_LOG_MAX_BACKUPS"}, 5),
		LogMaxAgeDays: getEnvIntAny([]string{"MIXTAPE_LOG_MAX_AGE_DAYS"}, 28),
		LogBufferSize: getEnvIntAny([]string{"MIXTAPE_LOG_BUFFER_SIZE"}, 5000),

		LedgerBackend: strings.ToLower(getEnvAny([]string{"MIXTAPE_LEDGER_BACKEND"}, LedgerSQL)),
		LedgerPath:    getEnvAny([]string{"MIXTAPE_LEDGER_PATH"}, "mixtape-ledger.yaml"),
		LedgerKey:     getEnvAny([]string{"MIXTAPE_LEDGER_KEY"}, "mixtape/ledger.json"),

		RecommendCooldown:   time.Duration(getEnvIntAny([]string{"MIXTAPE_RECOMMEND_COOLDOWN_MINUTES"}, 30)) * time.Minute,
		DefaultMaxResults:   getEnvIntAny([]string{"MIXTAPE_DEFAULT_MAX_RESULTS"}, 20),
		AutoplayThreshold:   getEnvIntAny([]string{"MIXTAPE_AUTOPLAY_THRESHOLD"}, 5),
		RandomSeed:          int64(getEnvIntAny([]string{"MIXTAPE_RANDOM_SEED"}, 0)),
		CatalogCacheEnabled: getEnvBoolAny([]string{"MIXTAPE_CATALOG_CACHE_ENABLED"}, false),
		CatalogCacheTTL:     time.Duration(getEnvIntAny([]string{"MIXTAPE_CATALOG_CACHE_TTL_SECONDS"}, 300)) * time.Second,

		RedisAddr:     getEnvAny([]string{"MIXTAPE_REDIS_ADDR", "REDIS_ADDR"}, "localhost:6379"),
		RedisPassword: getEnvAny([]string{"MIXTAPE_REDIS_PASSWORD", "REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"MIXTAPE_REDIS_DB", "REDIS_DB"}, 0),

		S3AccessKeyID:     getEnvAny([]string{"MIXTAPE_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"MIXTAPE_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"MIXTAPE_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnvAny([]string{"MIXTAPE_S3_BUCKET", "S3_BUCKET"}, ""),
		S3Endpoint:        getEnvAny([]string{"MIXTAPE_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3UsePathStyle:    getEnvBoolAny([]string{"MIXTAPE_S3_USE_PATH_STYLE", "S3_USE_PATH_STYLE"}, false),

		EventBusBackend: strings.ToLower(getEnvAny([]string{"MIXTAPE_EVENT_BUS"}, BusMemory)),
		NATSURL:         getEnvAny([]string{"MIXTAPE_NATS_URL", "NATS_URL"}, ""),

		TracingEnabled:    getEnvBoolAny([]string{"MIXTAPE_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"MIXTAPE_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"MIXTAPE_TRACING_SAMPLE_RATE"}, 1.0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if strings.EqualFold(cfg.Environment, "production") && cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("MIXTAPE_JWT_SIGNING_KEY must be provided in production")
	}

	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config %s: failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvAny returns the first set environment variable value from keys, or def.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
