// Package app provides the application context and dependency management
// for the leadsync CLI. It centralizes configuration, logging and the
// lifecycle of the shared client.
package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/leadsync"
	"github.com/agentstation/leadsync/cmd/application"
	"github.com/agentstation/leadsync/internal/database"
	"github.com/agentstation/leadsync/internal/server"
	"github.com/agentstation/leadsync/pkg/errors"
)

// Ensure App implements application.Application at compile time.
var _ application.Application = (*App)(nil)

// App represents the leadsync application with all its dependencies.
type App struct {
	// Version information
	version string
	commit  string
	date    string
	builtBy string

	config *Config
	logger *zerolog.Logger

	// extra options appended when the client is assembled
	clientOpts []leadsync.Option

	// Client instance (lazy-initialized, singleton)
	mu     sync.Mutex
	client leadsync.Client
}

// New creates a new App instance with the given version information.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		builtBy: builtBy,
	}

	config, err := LoadConfig("")
	if err != nil {
		return nil, err
	}
	app.config = config

	logger := NewLogger(config)
	app.logger = &logger

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	return app, nil
}

// Version returns the version information.
func (a *App) Version() string {
	return a.version
}

// Commit returns the git commit hash.
func (a *App) Commit() string {
	return a.commit
}

// Date returns the build date.
func (a *App) Date() string {
	return a.date
}

// BuiltBy returns the build system identifier.
func (a *App) BuiltBy() string {
	return a.builtBy
}

// Config returns the application configuration.
func (a *App) Config() *Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// OutputFormat returns the configured output format.
func (a *App) OutputFormat() string {
	return a.config.Format
}

// ServerConfig returns the local API configuration.
func (a *App) ServerConfig() server.Config {
	cfg := server.DefaultConfig()
	cfg.Host = a.config.ListenHost
	cfg.Port = a.config.ListenPort
	cfg.RateLimit = a.config.RateLimit
	cfg.AdminKey = a.config.AdminKey
	if len(a.config.CORSOrigins) > 0 {
		cfg.CORSEnabled = true
		cfg.CORSOrigins = a.config.CORSOrigins
	}
	return cfg
}

// DatabaseConfig returns the durable store configuration.
func (a *App) DatabaseConfig() database.Config {
	backend, _ := database.ParseBackend(a.config.StoreBackend)
	return database.Config{Backend: backend, DSN: a.config.StoreDSN}
}

// Leadsync returns the client, assembling it on first use.
func (a *App) Leadsync(ctx context.Context) (leadsync.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return a.client, nil
	}

	c, err := leadsync.New(ctx, a.clientOptions()...)
	if err != nil {
		return nil, errors.NewConfigError("leadsync", "cannot assemble client", err)
	}
	a.client = c
	return c, nil
}

// Shutdown closes the client if one was assembled.
func (a *App) Shutdown(_ context.Context) error {
	a.mu.Lock()
	c := a.client
	a.client = nil
	a.mu.Unlock()

	if c == nil {
		return nil
	}
	return c.Close()
}

// clientOptions constructs client options from the app configuration.
func (a *App) clientOptions() []leadsync.Option {
	cfg := a.config
	db := a.DatabaseConfig()

	opts := []leadsync.Option{
		leadsync.WithAPI(cfg.APIURL),
		leadsync.WithStore(db.Backend, db.DSN),
		leadsync.WithTopic(cfg.Topic),
		leadsync.WithSyncInterval(cfg.SyncInterval),
		leadsync.WithProbe(cfg.ProbeURL, cfg.ProbeInterval),
		leadsync.WithLogger(a.logger),
	}
	if cfg.UpstreamURL != "" {
		opts = append(opts, leadsync.WithUpstream(cfg.UpstreamURL))
	}
	if cfg.Manifest != "" {
		opts = append(opts, leadsync.WithManifestFile(cfg.Manifest))
	}
	if cfg.CacheVersion != "" {
		opts = append(opts, leadsync.WithCacheVersion(cfg.CacheVersion))
	}
	if len(cfg.NetworkOnly) > 0 {
		opts = append(opts, leadsync.WithNetworkOnly(cfg.NetworkOnly...))
	}
	return append(opts, a.clientOpts...)
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		if err := config.Validate(); err != nil {
			return err
		}
		a.config = config
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithClientOptions appends options used when the client is assembled.
func WithClientOptions(opts ...leadsync.Option) Option {
	return func(a *App) error {
		a.clientOpts = append(a.clientOpts, opts...)
		return nil
	}
}
