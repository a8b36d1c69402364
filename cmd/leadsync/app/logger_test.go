package app

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestResolveLevel(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		level   zerolog.Level
		warning bool
	}{
		{"default", &Config{}, zerolog.InfoLevel, false},
		{"verbose", &Config{Verbose: true}, zerolog.DebugLevel, false},
		{"quiet", &Config{Quiet: true}, zerolog.WarnLevel, false},
		{"both shortcuts prefer quiet", &Config{Verbose: true, Quiet: true}, zerolog.WarnLevel, true},
		{"explicit level wins", &Config{LogLevel: "error", Verbose: true, Quiet: true}, zerolog.ErrorLevel, false},
		{"level names are case-insensitive", &Config{LogLevel: "WARNING"}, zerolog.WarnLevel, false},
		{"off disables", &Config{LogLevel: "off"}, zerolog.Disabled, false},
		{"invalid level falls back", &Config{LogLevel: "loud"}, zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, warning := resolveLevel(tt.config)
			assert.Equal(t, tt.level, level)
			assert.Equal(t, tt.warning, warning != "", "warning = %q", warning)
		})
	}
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger(&Config{Quiet: true, LogFormat: "json", LogOutput: "discard"})
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())

	logger = NewLogger(&Config{LogLevel: "trace", LogFormat: "json", LogOutput: "discard"})
	assert.Equal(t, zerolog.TraceLevel, logger.GetLevel())
}
