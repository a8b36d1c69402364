package application

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/agentstation/leadsync"
	"github.com/agentstation/leadsync/internal/database"
	"github.com/agentstation/leadsync/internal/server"
)

// Mock provides a mock implementation of Application for testing.
// Each method can be customized by setting the corresponding function field.
// If a function field is nil, the method returns a default/zero value.
type Mock struct {
	LeadsyncFunc       func(context.Context) (leadsync.Client, error)
	ServerConfigFunc   func() server.Config
	DatabaseConfigFunc func() database.Config
	LoggerFunc         func() *zerolog.Logger
	OutputFormatFunc   func() string
	VersionFunc        func() string
}

var _ Application = (*Mock)(nil)

// Leadsync returns a client using the mock function or nil.
func (m *Mock) Leadsync(ctx context.Context) (leadsync.Client, error) {
	if m.LeadsyncFunc != nil {
		return m.LeadsyncFunc(ctx)
	}
	return nil, nil
}

// ServerConfig returns the config using the mock function or the defaults.
func (m *Mock) ServerConfig() server.Config {
	if m.ServerConfigFunc != nil {
		return m.ServerConfigFunc()
	}
	return server.DefaultConfig()
}

// DatabaseConfig returns the config using the mock function or the zero value.
func (m *Mock) DatabaseConfig() database.Config {
	if m.DatabaseConfigFunc != nil {
		return m.DatabaseConfigFunc()
	}
	return database.Config{}
}

// Logger returns a logger using the mock function or a no-op logger.
func (m *Mock) Logger() *zerolog.Logger {
	if m.LoggerFunc != nil {
		return m.LoggerFunc()
	}
	logger := zerolog.Nop()
	return &logger
}

// OutputFormat returns the format using the mock function or "json".
func (m *Mock) OutputFormat() string {
	if m.OutputFormatFunc != nil {
		return m.OutputFormatFunc()
	}
	return "json"
}

// Version returns version using the mock function or "dev".
func (m *Mock) Version() string {
	if m.VersionFunc != nil {
		return m.VersionFunc()
	}
	return "dev"
}

// Commit returns "unknown".
func (m *Mock) Commit() string { return "unknown" }

// Date returns "unknown".
func (m *Mock) Date() string { return "unknown" }

// BuiltBy returns "test".
func (m *Mock) BuiltBy() string { return "test" }
