// Package config loads calculator settings from an optional YAML file and
// EAP_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings.
const (
	EnvDataDir      = "EAP_DATA_DIR"
	EnvDownloadsDir = "EAP_DOWNLOADS_DIR"
	EnvDBPath       = "EAP_DB_PATH"
	EnvSourcesFile  = "EAP_SOURCES_FILE"
	EnvLogLevel     = "EAP_LOG_LEVEL"
	EnvListenAddr   = "EAP_LISTEN_ADDR"
	EnvGRPCAddr     = "EAP_GRPC_ADDR"
	EnvRateLimit    = "EAP_RATE_LIMIT"
	EnvRateBurst    = "EAP_RATE_BURST"
)

const appDirName = "eap-emissions-calculator"

// Config holds all calculator settings.
type Config struct {
	// DataDir is the application data directory (internal export location).
	DataDir string `yaml:"data_dir" validate:"required"`

	// DownloadsDir is the shared downloads directory (external export location).
	DownloadsDir string `yaml:"downloads_dir" validate:"required"`

	// DBPath is the SQLite history database. Defaults to DataDir/history.db.
	DBPath string `yaml:"db_path"`

	// SourcesFile optionally replaces the built-in factor table.
	SourcesFile string `yaml:"sources_file"`

	// LogLevel is a zerolog level name.
	LogLevel string `yaml:"log_level" validate:"oneof=trace debug info warn error fatal panic disabled"`

	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" validate:"required"`

	// GRPCAddr enables the gRPC health service when set.
	GRPCAddr string `yaml:"grpc_addr"`

	// RateLimit is the allowed requests per second per client; 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit" validate:"gte=0"`

	RateBurst int `yaml:"rate_burst" validate:"gte=1"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`

	CORS CORSConfig `yaml:"cors"`
}

// use a single instance of Validate, it caches struct info
var validate = validator.New()

// Default returns the settings used when nothing is configured.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		dataHome = filepath.Join(home, ".local", "share")
	}
	return Config{
		DataDir:      filepath.Join(dataHome, appDirName),
		DownloadsDir: filepath.Join(home, "Downloads"),
		LogLevel:     "info",
		Server: ServerConfig{
			ListenAddr:      ":8080",
			RateLimit:       10,
			RateBurst:       20,
			ShutdownTimeout: 10 * time.Second,
			CORS:            CORSConfig{MaxAge: DefaultCORSMaxAge},
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is not empty), then environment overrides. Invalid numeric
// environment values are logged and ignored.
func Load(path string, logger zerolog.Logger) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg, logger)
	if err := applyCORSEnv(&cfg.Server.CORS, logger); err != nil {
		return Config{}, err
	}

	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "history.db")
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	logger.Debug().
		Str("data_dir", cfg.DataDir).
		Str("db_path", cfg.DBPath).
		Str("listen_addr", cfg.Server.ListenAddr).
		Msg("configuration loaded")
	return cfg, nil
}

// Validate checks field constraints and conflicting settings.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if c.Server.GRPCAddr != "" && c.Server.GRPCAddr == c.Server.ListenAddr {
		return fmt.Errorf("grpc_addr and listen_addr must differ (both %q)", c.Server.ListenAddr)
	}
	return nil
}

func applyEnv(cfg *Config, logger zerolog.Logger) {
	setString := func(env string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			*dst = v
		}
	}
	setString(EnvDataDir, &cfg.DataDir)
	setString(EnvDownloadsDir, &cfg.DownloadsDir)
	setString(EnvDBPath, &cfg.DBPath)
	setString(EnvSourcesFile, &cfg.SourcesFile)
	setString(EnvLogLevel, &cfg.LogLevel)
	setString(EnvListenAddr, &cfg.Server.ListenAddr)
	setString(EnvGRPCAddr, &cfg.Server.GRPCAddr)

	if v := os.Getenv(EnvRateLimit); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed >= 0 {
			cfg.Server.RateLimit = parsed
		} else {
			logger.Warn().Str("value", v).Msg("invalid " + EnvRateLimit + ", using default")
		}
	}
	if v := os.Getenv(EnvRateBurst); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 1 {
			cfg.Server.RateBurst = parsed
		} else {
			logger.Warn().Str("value", v).Msg("invalid " + EnvRateBurst + ", using default")
		}
	}
}

// NewLogger returns a console logger at the configured level.
func (c Config) NewLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().
		Timestamp().
		Str("component", appDirName).
		Logger()
}
