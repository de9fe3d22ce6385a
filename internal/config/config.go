// Package config reads runtime settings from FABLE_* environment variables.
package config

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/aretw0/fable/internal/logging"
	"github.com/aretw0/fable/pkg/domain"
	"github.com/aretw0/fable/pkg/history"
	"github.com/aretw0/fable/pkg/persistence"
	"github.com/caarlos0/env/v11"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StorageRedis    = "redis"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

var storages = []string{StorageMemory, StorageFile, StorageRedis, StorageSQLite, StoragePostgres}

// Config holds every environment-driven setting. CLI flags override it.
type Config struct {
	Storage     string `env:"FABLE_STORAGE"      envDefault:"memory"`
	StoragePath string `env:"FABLE_STORAGE_PATH" envDefault:".fable/data"`

	RedisAddr     string `env:"FABLE_REDIS_ADDR"     envDefault:"localhost:6379"`
	RedisPassword string `env:"FABLE_REDIS_PASSWORD"`
	RedisDB       int    `env:"FABLE_REDIS_DB"       envDefault:"0"`

	PostgresDSN string `env:"FABLE_POSTGRES_DSN"`

	// EncryptionKey is 32 bytes, hex or base64 encoded. Empty disables
	// encryption at rest.
	EncryptionKey string `env:"FABLE_ENCRYPTION_KEY"`

	MaxUndo        int `env:"FABLE_MAX_UNDO"        envDefault:"50"`
	MaxRedo        int `env:"FABLE_MAX_REDO"        envDefault:"50"`
	MaxCheckpoints int `env:"FABLE_MAX_CHECKPOINTS" envDefault:"20"`

	AutosaveEnabled  bool          `env:"FABLE_AUTOSAVE_ENABLED"  envDefault:"false"`
	AutosaveInterval time.Duration `env:"FABLE_AUTOSAVE_INTERVAL" envDefault:"30s"`

	Compression string `env:"FABLE_COMPRESSION" envDefault:"none"`
	LogLevel    string `env:"FABLE_LOG_LEVEL"   envDefault:"info"`
	LogFormat   string `env:"FABLE_LOG_FORMAT"  envDefault:"text"`
	HTTPAddr    string `env:"FABLE_HTTP_ADDR"   envDefault:":8080"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enumerations and dependent settings.
func (c Config) Validate() error {
	if !slices.Contains(storages, c.Storage) {
		return fmt.Errorf("FABLE_STORAGE: unknown backend %q (want one of %s)", c.Storage, strings.Join(storages, ", "))
	}
	if c.Storage == StoragePostgres && c.PostgresDSN == "" {
		return fmt.Errorf("FABLE_POSTGRES_DSN is required for the postgres backend")
	}
	switch c.Compression {
	case domain.CompressionNone, domain.CompressionZstd:
	default:
		return fmt.Errorf("FABLE_COMPRESSION: unknown compression %q", c.Compression)
	}
	if _, err := c.Key(); err != nil {
		return err
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("FABLE_LOG_LEVEL: %w", err)
	}
	switch c.LogFormat {
	case "", logging.FormatText, logging.FormatJSON:
	default:
		return fmt.Errorf("FABLE_LOG_FORMAT: unknown format %q", c.LogFormat)
	}
	return nil
}

// Level returns the slog level named by LogLevel, defaulting to Info.
func (c Config) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Key decodes EncryptionKey. It returns nil when encryption is off.
func (c Config) Key() ([]byte, error) {
	if c.EncryptionKey == "" {
		return nil, nil
	}
	if key, err := hex.DecodeString(c.EncryptionKey); err == nil && len(key) == 32 {
		return key, nil
	}
	if key, err := base64.StdEncoding.DecodeString(c.EncryptionKey); err == nil && len(key) == 32 {
		return key, nil
	}
	return nil, fmt.Errorf("FABLE_ENCRYPTION_KEY must be 32 bytes, hex or base64 encoded")
}

// History maps the undo settings.
func (c Config) History() history.Config {
	return history.Config{MaxUndo: c.MaxUndo, MaxRedo: c.MaxRedo}
}

// Autosave maps the autosave settings.
func (c Config) Autosave() history.AutosaveConfig {
	return history.AutosaveConfig{Enabled: c.AutosaveEnabled, MinInterval: c.AutosaveInterval}
}

// Checkpoints maps the checkpoint settings.
func (c Config) Checkpoints() persistence.CheckpointConfig {
	return persistence.CheckpointConfig{MaxCheckpoints: c.MaxCheckpoints}
}

// SaveOptions returns the save options used by sessions.
func (c Config) SaveOptions() persistence.SaveOptions {
	return persistence.SaveOptions{
		Checksum:          true,
		IncludeFlowEvents: true,
		Compression:       c.Compression,
	}
}
