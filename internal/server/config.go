package server

import (
	"time"

	"github.com/agentstation/leadsync/pkg/constants"
)

// Config holds server configuration.
type Config struct {
	// Server settings
	Host string
	Port int

	// API settings
	PathPrefix string

	// CORS settings
	CORSEnabled bool
	CORSOrigins []string

	// AdminKey guards sync triggers and queue purges. Empty disables the check.
	AdminKey string

	// Performance settings
	RateLimit int // Requests per minute per IP on the API prefix (0 to disable)

	// HTTP timeouts. WriteTimeout stays zero so update streams are not cut.
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration

	// Features
	MetricsEnabled bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Host:              constants.DefaultListenHost,
		Port:              constants.DefaultListenPort,
		PathPrefix:        constants.APIPrefix,
		CORSEnabled:       false,
		CORSOrigins:       []string{},
		RateLimit:         constants.DefaultRateLimit,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MetricsEnabled:    true,
	}
}
