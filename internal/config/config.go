// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete server configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
	TLS          TLSConfig          `yaml:"tls"`
	RelyingParty RelyingPartyConfig `yaml:"relying_party"`
	Challenge    ChallengeConfig    `yaml:"challenge"`
	Storage      StorageConfig      `yaml:"storage"`
	RateLimit    RateLimitConfig    `yaml:"ratelimit"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Health       HealthConfig       `yaml:"health"`
}

// ServerConfig contains server-level settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TLSConfig controls TLS/SSL settings. WebAuthn clients require a
// secure context, so production deployments terminate TLS either here
// or at a proxy in front of the server.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// RelyingPartyConfig identifies this server to authenticators
type RelyingPartyConfig struct {
	ID          string   `yaml:"id"`
	DisplayName string   `yaml:"display_name"`
	Origins     []string `yaml:"origins"`
}

// ChallengeConfig controls ceremony challenge issuance
type ChallengeConfig struct {
	// TTL is how long an issued challenge stays valid.
	TTL time.Duration `yaml:"ttl"`

	// Size is the challenge length in bytes.
	Size int `yaml:"size"`

	// SweepInterval controls how often expired challenges are removed.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// StorageConfig controls the credential storage backend
type StorageConfig struct {
	// Backend selects the storage implementation: "memory" or "file".
	Backend string `yaml:"backend"`

	// Path is the root directory for the file backend.
	Path string `yaml:"path"`
}

// RateLimitConfig controls rate limiting
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min"`
}

// MetricsConfig controls the metrics endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// HealthConfig controls the health check endpoint
type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns a configuration suitable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8443,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		RelyingParty: RelyingPartyConfig{
			ID:          "localhost",
			DisplayName: "Passkey Server",
			Origins:     []string{"https://localhost:8443"},
		},
		Challenge: ChallengeConfig{
			TTL:           2 * time.Minute,
			Size:          32,
			SweepInterval: time.Minute,
		},
		Storage: StorageConfig{
			Backend: "memory",
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 60,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Health: HealthConfig{
			Enabled: true,
			Path:    "/healthz",
		},
	}
}

// Load reads configuration from a YAML file and applies environment variable overrides
func Load(path string) (*Config, error) {
	// #nosec G304 - Config file path is provided by admin/user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	// Server settings
	if host := os.Getenv("PASSKEY_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("PASSKEY_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			log.Printf("Warning: invalid PASSKEY_PORT value %q, using default %d: %v",
				portStr, cfg.Server.Port, err)
		} else if port < 1 || port > 65535 {
			log.Printf("Warning: invalid PASSKEY_PORT value %q (out of range 1-65535), using default %d",
				portStr, cfg.Server.Port)
		} else {
			cfg.Server.Port = port
		}
	}

	// Logging
	if level := os.Getenv("PASSKEY_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("PASSKEY_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}

	// Relying party
	if rpID := os.Getenv("PASSKEY_RP_ID"); rpID != "" {
		cfg.RelyingParty.ID = rpID
	}
	if rpName := os.Getenv("PASSKEY_RP_NAME"); rpName != "" {
		cfg.RelyingParty.DisplayName = rpName
	}
	if origins := os.Getenv("PASSKEY_RP_ORIGINS"); origins != "" {
		parts := strings.Split(origins, ",")
		cfg.RelyingParty.Origins = cfg.RelyingParty.Origins[:0]
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				cfg.RelyingParty.Origins = append(cfg.RelyingParty.Origins, trimmed)
			}
		}
	}

	// Challenge
	if ttlStr := os.Getenv("PASSKEY_CHALLENGE_TTL"); ttlStr != "" {
		ttl, err := time.ParseDuration(ttlStr)
		if err != nil {
			log.Printf("Warning: invalid PASSKEY_CHALLENGE_TTL value %q, using default %s: %v",
				ttlStr, cfg.Challenge.TTL, err)
		} else {
			cfg.Challenge.TTL = ttl
		}
	}

	// Storage
	if backend := os.Getenv("PASSKEY_STORAGE_BACKEND"); backend != "" {
		cfg.Storage.Backend = backend
	}
	if dataDir := os.Getenv("PASSKEY_DATA_DIR"); dataDir != "" {
		cfg.Storage.Path = dataDir
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Validate logging level
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	// Validate logging format
	validFormats := map[string]bool{
		"json": true, "text": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	// Validate TLS settings
	if c.TLS.Enabled {
		if c.TLS.CertFile == "" {
			return fmt.Errorf("TLS cert_file is required when TLS is enabled")
		}
		if c.TLS.KeyFile == "" {
			return fmt.Errorf("TLS key_file is required when TLS is enabled")
		}
	}

	// Validate relying party
	if c.RelyingParty.ID == "" {
		return fmt.Errorf("relying_party id must be specified")
	}
	if len(c.RelyingParty.Origins) == 0 {
		return fmt.Errorf("at least one relying_party origin must be specified")
	}

	// Validate challenge settings
	if c.Challenge.TTL <= 0 {
		return fmt.Errorf("challenge ttl must be positive")
	}
	if c.Challenge.Size < 16 {
		return fmt.Errorf("challenge size must be at least 16 bytes")
	}

	// Validate storage
	switch c.Storage.Backend {
	case "memory":
	case "file":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage path is required for the file backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be memory or file)", c.Storage.Backend)
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMin < 1 {
		return fmt.Errorf("ratelimit requests_per_min must be positive when enabled")
	}

	return nil
}
