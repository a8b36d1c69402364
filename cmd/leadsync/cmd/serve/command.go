// Package serve provides the serve command for the leadsync CLI.
package serve

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/agentstation/leadsync/cmd/application"
	"github.com/agentstation/leadsync/internal/server"
	"github.com/agentstation/leadsync/pkg/constants"
)

// NewCommand creates the serve command using app context.
func NewCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"server"},
		GroupID: "core",
		Short:   "Run the local proxy, submission API and update streams",
		Long: `Start the leadsync sidecar. The dashboard is loaded through it.

Features:
  - Cache-first asset serving with an offline page for navigations
  - Submission endpoint that delivers online and queues offline (/_leadsync/v1/submissions)
  - Automatic in-order drain when connectivity returns
  - WebSocket and SSE update streams for open tabs (/_leadsync/v1/updates/ws, /updates/stream)
  - Readiness, metrics and OpenAPI endpoints
  - Rate limiting, CORS and an optional admin key for sync and purge`,
		Example: `  # Proxy a dashboard and its API
  LEADSYNC_UPSTREAM_URL=http://localhost:3000 LEADSYNC_API_URL=https://api.example.com leadsync serve

  # Listen on another port with an admin key
  leadsync serve --port 9000 --admin-key s3cret`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFromFlags(cmd, app.ServerConfig())
			if err != nil {
				return err
			}
			return run(cmd.Context(), app, cfg)
		},
	}

	cmd.Flags().String("host", constants.DefaultListenHost, "listen host (default from listen_host)")
	cmd.Flags().Int("port", constants.DefaultListenPort, "listen port (default from listen_port)")
	cmd.Flags().String("admin-key", "", "admin key required for sync and purge (default from admin_key)")
	cmd.Flags().Int("rate-limit", constants.DefaultRateLimit, "requests per minute per IP on the API, 0 disables (default from rate_limit)")
	cmd.Flags().StringSlice("cors-origins", nil, "allowed CORS origins, enables CORS (default from cors_origins)")
	cmd.Flags().Bool("no-metrics", false, "disable the metrics endpoint")

	return cmd
}

// configFromFlags overlays explicitly set flags on cfg.
func configFromFlags(cmd *cobra.Command, cfg server.Config) (server.Config, error) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.Port, _ = flags.GetInt("port")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return cfg, fmt.Errorf("port out of range: %d", cfg.Port)
	}
	if flags.Changed("rate-limit") {
		cfg.RateLimit, _ = flags.GetInt("rate-limit")
	}
	if cfg.RateLimit < 0 {
		return cfg, fmt.Errorf("rate limit must not be negative: %d", cfg.RateLimit)
	}
	if flags.Changed("admin-key") {
		cfg.AdminKey, _ = flags.GetString("admin-key")
	}
	if flags.Changed("cors-origins") {
		cfg.CORSOrigins, _ = flags.GetStringSlice("cors-origins")
		cfg.CORSEnabled = true
	}
	if off, _ := flags.GetBool("no-metrics"); off {
		cfg.MetricsEnabled = false
	}
	return cfg, nil
}

func run(ctx context.Context, app application.Application, cfg server.Config) error {
	logger := app.Logger()

	client, err := app.Leadsync(ctx)
	if err != nil {
		return err
	}
	if err := client.Start(ctx); err != nil {
		return err
	}

	srv := server.New(client, cfg, logger, server.WithVersion(app.Version()))
	srv.Start()

	httpServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:           srv.Handler(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	logger.Info().
		Str("addr", httpServer.Addr).
		Str("prefix", cfg.PathPrefix).
		Bool("admin_key", cfg.AdminKey != "").
		Int("rate_limit", cfg.RateLimit).
		Msg("Starting leadsync server")

	return serveUntilDone(ctx, httpServer, func(shutdownCtx context.Context) error {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Server background services did not stop in time")
		}
		return client.Close()
	}, constants.ShutdownTimeout, logger)
}
