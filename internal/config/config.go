// Package config loads the process-wide settings once at startup.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const prefix = "SASTRA"

type Runtime string

const (
	RuntimeExec   Runtime = "exec"
	RuntimeDocker Runtime = "docker"
)

type Config struct {
	ListenAddr      string        `envconfig:"LISTEN_ADDR" default:"127.0.0.1:9001" validate:"required,hostname_port"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"30s" validate:"gt=0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"20s" validate:"gt=0"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	AllowedExtensions []string      `envconfig:"ALLOWED_EXTENSIONS" default:"py" validate:"min=1,dive,required"`
	MaxUploadBytes    int64         `envconfig:"MAX_UPLOAD_BYTES" default:"16777216" validate:"gt=0"`
	ScanTimeout       time.Duration `envconfig:"SCAN_TIMEOUT" default:"60s" validate:"gt=0"`
	MaxConcurrent     int64         `envconfig:"MAX_CONCURRENT_SCANS" default:"4" validate:"gt=0"`
	QueueTimeout      time.Duration `envconfig:"QUEUE_TIMEOUT" default:"30s" validate:"gt=0"`
	SniffContent      bool          `envconfig:"SNIFF_CONTENT" default:"true"`
	TempDir           string        `envconfig:"TEMP_DIR"`

	Scanner       string  `envconfig:"SCANNER" default:"bandit" validate:"required"`
	ScannerBinary string  `envconfig:"SCANNER_BINARY"`
	Rules         string  `envconfig:"RULES"`
	Runtime       Runtime `envconfig:"RUNTIME" default:"exec" validate:"oneof=exec docker"`
	Image         string  `envconfig:"IMAGE"`
}

// Load reads an optional .env file, then SASTRA_* environment variables.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", file, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.TempDir != "" {
		abs, err := filepath.Abs(cfg.TempDir)
		if err != nil {
			return Config{}, fmt.Errorf("resolve temp dir: %w", err)
		}
		cfg.TempDir = abs
	}
	return cfg, nil
}

func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return level
}
