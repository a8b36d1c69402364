package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/agentstation/leadsync"
	"github.com/agentstation/leadsync/internal/intercept"
	"github.com/agentstation/leadsync/internal/server/sse"
	ws "github.com/agentstation/leadsync/internal/server/websocket"
	"github.com/agentstation/leadsync/pkg/logging"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	client         leadsync.Client
	wsHub          *ws.Hub
	sseBroadcaster *sse.Broadcaster
	proxy          http.Handler
	logger         *zerolog.Logger
	config         Config
	ctx            context.Context
	cancel         context.CancelFunc
	wg             conc.WaitGroup
	startTime      time.Time
	version        string

	handlerOnce sync.Once
	handler     http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithVersion sets the version reported by the health endpoint.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New creates a server on top of client. The client's own loops are
// started separately with client.Start.
func New(client leadsync.Client, cfg Config, logger *zerolog.Logger, opts ...Option) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if cfg.PathPrefix == "" {
		cfg.PathPrefix = DefaultConfig().PathPrefix
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		client:         client,
		wsHub:          ws.NewHub(client.Broker(), logging.Component(logger, "websocket"), cfg.CORSOrigins...),
		sseBroadcaster: sse.NewBroadcaster(client.Broker(), client.Topic(), logging.Component(logger, "sse")),
		logger:         logger,
		config:         cfg,
		ctx:            ctx,
		cancel:         cancel,
		startTime:      time.Now(),
		version:        "dev",
	}
	for _, opt := range opts {
		opt(s)
	}

	if up := client.Upstream(); up != nil {
		s.proxy = intercept.NewHandler(up, client.Transport(), logging.Component(logger, "proxy"))
		logger.Debug().Str("upstream", up.String()).Msg("Intercepting proxy enabled")
	}

	logger.Debug().Str("prefix", cfg.PathPrefix).Msg("Server instance created")
	return s
}

// Start starts background services (WebSocket hub, SSE broadcaster).
func (s *Server) Start() {
	s.wg.Go(func() { s.wsHub.Run(s.ctx) })
	s.wg.Go(func() { s.sseBroadcaster.Run(s.ctx) })
	s.logger.Debug().Msg("Realtime transports started")
}

// Handler returns the configured http.Handler with middleware chain applied.
func (s *Server) Handler() http.Handler {
	s.handlerOnce.Do(func() { s.handler = s.setupRouter() })
	return s.handler
}

// Shutdown stops background services and waits for them within ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down server background services")
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("Background services shut down successfully")
		return nil
	case <-ctx.Done():
		s.logger.Warn().Msg("Background services shutdown timed out")
		return ctx.Err()
	}
}

// WSHub returns the WebSocket hub.
func (s *Server) WSHub() *ws.Hub {
	return s.wsHub
}

// SSEBroadcaster returns the SSE broadcaster.
func (s *Server) SSEBroadcaster() *sse.Broadcaster {
	return s.sseBroadcaster
}

// StartTime returns the server start time for uptime calculations.
func (s *Server) StartTime() time.Time {
	return s.startTime
}
