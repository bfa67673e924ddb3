package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	logger := zerolog.New(zerolog.NewConsoleWriter())

	tests := []struct {
		name          string
		file          string
		env           map[string]string
		expectedError string
		validate      func(t *testing.T, cfg Config)
	}{
		{
			name: "Defaults",
			env:  map[string]string{"XDG_DATA_HOME": "/xdg"},
			validate: func(t *testing.T, cfg Config) {
				assert.Equal(t, filepath.Join("/xdg", "eap-emissions-calculator"), cfg.DataDir)
				assert.Equal(t, filepath.Join("/xdg", "eap-emissions-calculator", "history.db"), cfg.DBPath)
				assert.Equal(t, "info", cfg.LogLevel)
				assert.Equal(t, ":8080", cfg.Server.ListenAddr)
				assert.Equal(t, 10.0, cfg.Server.RateLimit)
				assert.Equal(t, 20, cfg.Server.RateBurst)
				assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
			},
		},
		{
			name: "File values",
			file: `
data_dir: /srv/eap
log_level: DEBUG
server:
  listen_addr: 127.0.0.1:9000
  grpc_addr: 127.0.0.1:9001
  shutdown_timeout: 3s
`,
			validate: func(t *testing.T, cfg Config) {
				assert.Equal(t, "/srv/eap", cfg.DataDir)
				assert.Equal(t, filepath.Join("/srv/eap", "history.db"), cfg.DBPath)
				assert.Equal(t, "debug", cfg.LogLevel)
				assert.Equal(t, "127.0.0.1:9000", cfg.Server.ListenAddr)
				assert.Equal(t, "127.0.0.1:9001", cfg.Server.GRPCAddr)
				assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
			},
		},
		{
			name: "Env overrides file",
			file: "data_dir: /srv/eap\n",
			env: map[string]string{
				EnvDataDir:    "/env/data",
				EnvDBPath:     "/env/h.db",
				EnvListenAddr: ":7000",
				EnvRateLimit:  "2.5",
				EnvRateBurst:  "5",
			},
			validate: func(t *testing.T, cfg Config) {
				assert.Equal(t, "/env/data", cfg.DataDir)
				assert.Equal(t, "/env/h.db", cfg.DBPath)
				assert.Equal(t, ":7000", cfg.Server.ListenAddr)
				assert.Equal(t, 2.5, cfg.Server.RateLimit)
				assert.Equal(t, 5, cfg.Server.RateBurst)
			},
		},
		{
			name: "Invalid numeric env falls back",
			env: map[string]string{
				EnvRateLimit: "fast",
				EnvRateBurst: "0",
			},
			validate: func(t *testing.T, cfg Config) {
				assert.Equal(t, 10.0, cfg.Server.RateLimit)
				assert.Equal(t, 20, cfg.Server.RateBurst)
			},
		},
		{
			name:          "Invalid log level",
			env:           map[string]string{EnvLogLevel: "loud"},
			expectedError: "config validation failed",
		},
		{
			name: "Same gRPC and HTTP address",
			env: map[string]string{
				EnvListenAddr: ":8080",
				EnvGRPCAddr:   ":8080",
			},
			expectedError: "must differ",
		},
		{
			name:          "Malformed file",
			file:          "server: [",
			expectedError: "parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			path := ""
			if tt.file != "" {
				path = filepath.Join(t.TempDir(), "config.yaml")
				require.NoError(t, os.WriteFile(path, []byte(tt.file), 0o600))
			}

			cfg, err := Load(path, logger)

			if tt.expectedError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError)
			} else {
				require.NoError(t, err)
				if tt.validate != nil {
					tt.validate(t, cfg)
				}
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestConfig_NewLogger(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "warn"
	assert.Equal(t, zerolog.WarnLevel, cfg.NewLogger().GetLevel())

	cfg.LogLevel = "bogus"
	assert.Equal(t, zerolog.InfoLevel, cfg.NewLogger().GetLevel())
}
