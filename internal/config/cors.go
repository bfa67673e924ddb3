package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// CORS environment variables.
const (
	EnvCORSAllowedOrigins   = "EAP_CORS_ALLOWED_ORIGINS"
	EnvCORSAllowCredentials = "EAP_CORS_ALLOW_CREDENTIALS"
	EnvCORSMaxAge           = "EAP_CORS_MAX_AGE"
)

// DefaultCORSMaxAge is the preflight cache lifetime in seconds.
const DefaultCORSMaxAge = 86400

// ErrWildcardCredentials is returned when credentials are allowed for any origin.
var ErrWildcardCredentials = errors.New("cannot enable credentials with wildcard origin (*); security risk")

// CORSConfig controls cross-origin access to the HTTP API.
type CORSConfig struct {
	// AllowedOrigins lists explicit origins; empty with AllowAll false disables CORS.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowAll is set when the wildcard origin "*" was configured.
	AllowAll bool `yaml:"allow_all"`

	AllowCredentials bool `yaml:"allow_credentials"`

	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int `yaml:"max_age" validate:"gte=0"`
}

// Enabled reports whether any origin is allowed.
func (c CORSConfig) Enabled() bool {
	return c.AllowAll || len(c.AllowedOrigins) > 0
}

// applyCORSEnv overrides cors from environment variables. A wildcard origin
// is accepted with a warning; combined with credentials it is an error.
func applyCORSEnv(cors *CORSConfig, logger zerolog.Logger) error {
	if origins := os.Getenv(EnvCORSAllowedOrigins); origins != "" {
		cors.AllowedOrigins = nil
		cors.AllowAll = false
		for _, o := range strings.Split(origins, ",") {
			trimmed := strings.TrimSpace(o)
			if trimmed == "*" {
				cors.AllowAll = true
				continue
			}
			if trimmed != "" {
				cors.AllowedOrigins = append(cors.AllowedOrigins, trimmed)
			}
		}
	}
	if cors.AllowAll {
		logger.Warn().Msg("CORS wildcard origin (*) is insecure; use specific origins in production")
	}

	if v := os.Getenv(EnvCORSAllowCredentials); v != "" {
		cors.AllowCredentials = strings.ToLower(v) == "true"
	}

	if cors.AllowAll && cors.AllowCredentials {
		return ErrWildcardCredentials
	}

	if v := os.Getenv(EnvCORSMaxAge); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			cors.MaxAge = parsed
		} else {
			logger.Warn().Str("value", v).Msg("invalid " + EnvCORSMaxAge + ", using default")
		}
	}

	logger.Debug().
		Strs("allowed_origins", cors.AllowedOrigins).
		Bool("allow_all", cors.AllowAll).
		Int("max_age", cors.MaxAge).
		Msg("CORS configuration applied")
	return nil
}
