package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration wraps time.Duration for text unmarshaling (YAML, env vars).
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration().String())
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Config is the root cozempic configuration.
type Config struct {
	Logging  LoggingConfig  `koanf:"logging"`
	Guard    GuardConfig    `koanf:"guard"`
	Strategy StrategyConfig `koanf:"strategy"`
	Paths    PathsConfig    `koanf:"paths"`
}

// LoggingConfig mirrors internal/logging.Config at the file/env level.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// GuardConfig holds guard-loop tunables. Flags override these.
type GuardConfig struct {
	ThresholdMB         float64  `koanf:"threshold_mb"`
	SoftThresholdMB     float64  `koanf:"soft_threshold_mb"`
	ThresholdTokens     int      `koanf:"threshold_tokens"`
	Interval            Duration `koanf:"interval"`
	Prescription        string   `koanf:"prescription"`
	Reload              bool     `koanf:"reload"`
	Reactive            bool     `koanf:"reactive"`
	BreakerMaxRecoveries int     `koanf:"breaker_max_recoveries"`
	BreakerWindow       Duration `koanf:"breaker_window"`
	MetricsAddr         string   `koanf:"metrics_addr"`
}

// StrategyConfig holds per-strategy tunables.
type StrategyConfig struct {
	ThinkingMode         string `koanf:"thinking_mode"`
	ToolOutputMaxBytes   int    `koanf:"tool_output_max_bytes"`
	ToolOutputMaxLines   int    `koanf:"tool_output_max_lines"`
	DocumentDedupMinSize int    `koanf:"document_dedup_min_bytes"`
	MegaBlockMaxBytes    int    `koanf:"mega_block_max_bytes"`
}

// PathsConfig points at the host agent's on-disk layout.
type PathsConfig struct {
	ClaudeDir string `koanf:"claude_dir"`
	TeamsDir  string `koanf:"teams_dir"`
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	if c.Guard.ThresholdMB <= 0 {
		return fmt.Errorf("guard.threshold_mb must be > 0, got %v", c.Guard.ThresholdMB)
	}
	if c.Guard.SoftThresholdMB >= c.Guard.ThresholdMB {
		return fmt.Errorf("guard.soft_threshold_mb (%v) must be below guard.threshold_mb (%v)",
			c.Guard.SoftThresholdMB, c.Guard.ThresholdMB)
	}
	if c.Guard.Interval.Duration() <= 0 {
		return fmt.Errorf("guard.interval must be > 0")
	}
	if c.Guard.BreakerMaxRecoveries <= 0 {
		return fmt.Errorf("guard.breaker_max_recoveries must be > 0")
	}
	switch c.Strategy.ThinkingMode {
	case "remove", "truncate", "signature-only":
	default:
		return fmt.Errorf("strategy.thinking_mode must be remove, truncate, or signature-only, got %q",
			c.Strategy.ThinkingMode)
	}
	switch c.Guard.Prescription {
	case "gentle", "standard", "aggressive":
	default:
		return fmt.Errorf("guard.prescription must be gentle, standard, or aggressive, got %q",
			c.Guard.Prescription)
	}
	return nil
}
