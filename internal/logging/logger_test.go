package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger_Defaults(t *testing.T) {
	log, err := NewLogger(nil)
	require.NoError(t, err)
	assert.True(t, log.Enabled(zapcore.WarnLevel))
	assert.False(t, log.Enabled(zapcore.InfoLevel))
	assert.NotNil(t, log.Underlying())
}

func TestNewLogger_GuardConfig(t *testing.T) {
	log, err := NewLogger(NewGuardConfig())
	require.NoError(t, err)
	assert.True(t, log.Enabled(zapcore.InfoLevel))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"json ok", Config{Format: "json"}, false},
		{"console ok", Config{Format: "console"}, false},
		{"bad format", Config{Format: "logfmt"}, true},
		{"empty field key", Config{Format: "json", Fields: map[string]string{"": "x"}}, true},
		{"empty field value", Config{Format: "json", Fields: map[string]string{"k": ""}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLevelFromString(t *testing.T) {
	lvl, err := LevelFromString("debug")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, lvl)

	_, err = LevelFromString("shouting")
	assert.Error(t, err)
}

func TestNamedAndWith(t *testing.T) {
	log := NewNop()
	child := log.Named("guard").With()
	assert.NotNil(t, child)
	assert.NoError(t, child.Sync())
}
