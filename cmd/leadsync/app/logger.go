package app

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/agentstation/leadsync/pkg/logging"
)

// NewLogger builds the process logger. Level precedence, highest first:
// --log-level, -q, -v, LEADSYNC_LOG_LEVEL or log_level, info.
// UpdateFromFlags drops an env-provided level when -v or -q is given.
func NewLogger(config *Config) zerolog.Logger {
	level, warning := resolveLevel(config)
	if warning != "" {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
	}

	return logging.NewLoggerFromConfig(&logging.Config{
		Level:  level.String(),
		Format: config.LogFormat,
		Output: config.LogOutput,
		// Several sidecars may drain one shared store; pid tells them apart.
		Fields:    map[string]any{"service": "leadsync", "pid": os.Getpid()},
		AddCaller: level <= zerolog.DebugLevel,
	})
}

// resolveLevel returns the effective level and a warning for the user, if any.
func resolveLevel(config *Config) (zerolog.Level, string) {
	if config.LogLevel != "" {
		if l, ok := logging.ParseLevel(config.LogLevel); ok {
			return l, ""
		}
		return zerolog.InfoLevel, fmt.Sprintf("invalid log level %q, using info", config.LogLevel)
	}

	switch {
	case config.Verbose && config.Quiet:
		return zerolog.WarnLevel, "both --verbose and --quiet specified, using --quiet"
	case config.Quiet:
		return zerolog.WarnLevel, ""
	case config.Verbose:
		return zerolog.DebugLevel, ""
	}
	return zerolog.InfoLevel, ""
}
