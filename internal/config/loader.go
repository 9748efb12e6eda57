// Package config provides configuration loading for cozempic.
//
// Configuration precedence (highest to lowest):
//  1. Command-line flags (applied by the caller after Load)
//  2. Environment variables (COZEMPIC_GUARD_THRESHOLD_MB, ...)
//  3. YAML config file (~/.config/cozempic/config.yaml)
//  4. Hardcoded defaults
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
	envPrefix         = "COZEMPIC_"
)

// Load reads configuration from the given YAML file (or the default path if
// empty), overrides with COZEMPIC_* environment variables, applies defaults,
// and validates.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "cozempic", "config.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		// Open once and validate via the file descriptor so a swap between
		// stat and read cannot bypass the checks.
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// COZEMPIC_GUARD_THRESHOLD_MB -> guard.threshold_mb
	// COZEMPIC_STRATEGY_THINKING_MODE -> strategy.thinking_mode
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validateConfigFileProperties checks file permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm&0o077 != 0 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or stricter)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}

	if cfg.Guard.ThresholdMB == 0 {
		cfg.Guard.ThresholdMB = 50
	}
	if cfg.Guard.SoftThresholdMB == 0 {
		cfg.Guard.SoftThresholdMB = cfg.Guard.ThresholdMB * 0.6
	}
	if cfg.Guard.Interval == 0 {
		cfg.Guard.Interval = Duration(30 * time.Second)
	}
	if cfg.Guard.Prescription == "" {
		cfg.Guard.Prescription = "standard"
	}
	if cfg.Guard.BreakerMaxRecoveries == 0 {
		cfg.Guard.BreakerMaxRecoveries = 3
	}
	if cfg.Guard.BreakerWindow == 0 {
		cfg.Guard.BreakerWindow = Duration(5 * time.Minute)
	}
	// Reload and reactive get no default here: an explicit false cannot be
	// told apart from an absent key. The guard command does not read these
	// two keys; it turns both on unless a --no-* flag was passed.

	if cfg.Strategy.ThinkingMode == "" {
		cfg.Strategy.ThinkingMode = "remove"
	}
	if cfg.Strategy.ToolOutputMaxBytes == 0 {
		cfg.Strategy.ToolOutputMaxBytes = 8 * 1024
	}
	if cfg.Strategy.ToolOutputMaxLines == 0 {
		cfg.Strategy.ToolOutputMaxLines = 100
	}
	if cfg.Strategy.DocumentDedupMinSize == 0 {
		cfg.Strategy.DocumentDedupMinSize = 1024
	}
	if cfg.Strategy.MegaBlockMaxBytes == 0 {
		cfg.Strategy.MegaBlockMaxBytes = 32 * 1024
	}

	if cfg.Paths.ClaudeDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Paths.ClaudeDir = filepath.Join(home, ".claude")
		}
	}
	if cfg.Paths.TeamsDir == "" && cfg.Paths.ClaudeDir != "" {
		cfg.Paths.TeamsDir = filepath.Join(cfg.Paths.ClaudeDir, "teams")
	}
}
