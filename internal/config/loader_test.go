package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 50.0, cfg.Guard.ThresholdMB)
	assert.Equal(t, 30.0, cfg.Guard.SoftThresholdMB, "soft defaults to 60% of hard")
	assert.Equal(t, 30*time.Second, cfg.Guard.Interval.Duration())
	assert.Equal(t, "standard", cfg.Guard.Prescription)
	assert.Equal(t, 3, cfg.Guard.BreakerMaxRecoveries)
	assert.Equal(t, 5*time.Minute, cfg.Guard.BreakerWindow.Duration())

	assert.Equal(t, "remove", cfg.Strategy.ThinkingMode)
	assert.Equal(t, 8192, cfg.Strategy.ToolOutputMaxBytes)
	assert.Equal(t, 100, cfg.Strategy.ToolOutputMaxLines)
	assert.Equal(t, 1024, cfg.Strategy.DocumentDedupMinSize)
	assert.Equal(t, 32768, cfg.Strategy.MegaBlockMaxBytes)

	assert.NotEmpty(t, cfg.Paths.ClaudeDir)
	assert.NotEmpty(t, cfg.Paths.TeamsDir)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
guard:
  threshold_mb: 80
  interval: 10s
  prescription: aggressive
strategy:
  thinking_mode: truncate
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 80.0, cfg.Guard.ThresholdMB)
	assert.Equal(t, 48.0, cfg.Guard.SoftThresholdMB)
	assert.Equal(t, 10*time.Second, cfg.Guard.Interval.Duration())
	assert.Equal(t, "aggressive", cfg.Guard.Prescription)
	assert.Equal(t, "truncate", cfg.Strategy.ThinkingMode)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("guard:\n  threshold_mb: 80\n"), 0o600))

	t.Setenv("COZEMPIC_GUARD_THRESHOLD_MB", "120")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 120.0, cfg.Guard.ThresholdMB)
}

func TestLoad_RejectsWorldReadableFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("guard: {}\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permissions")
}

func TestLoad_InvalidValuesRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("strategy:\n  thinking_mode: shred\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "thinking_mode")
}

func TestDuration_TextRoundTrip(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))

	assert.Error(t, d.UnmarshalText([]byte("-5s")), "negative durations are rejected")
}

func TestValidate_SoftMustBeBelowHard(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	cfg.Guard.SoftThresholdMB = cfg.Guard.ThresholdMB
	assert.Error(t, cfg.Validate())
}
