package server

import (
	"net/http"
	"strings"

	"github.com/agentstation/leadsync/internal/server/handlers"
	"github.com/agentstation/leadsync/internal/server/middleware"
	"github.com/agentstation/leadsync/internal/server/response"
	"github.com/agentstation/leadsync/pkg/constants"
)

// setupRouter creates the HTTP handler with routes and middleware.
func (s *Server) setupRouter() http.Handler {
	mux := http.NewServeMux()

	h := handlers.New(s.ctx, handlers.Deps{
		Submitter:    s.client,
		Queue:        s.client.Queue(),
		Syncer:       s.client.Coordinator(),
		Cache:        s.client.Cache(),
		Connectivity: s.client.Monitor(),
		WebSocket:    s.wsHub,
		SSE:          s.sseBroadcaster,
		Version:      s.version,
	}, s.logger)

	s.registerRoutes(mux, h)

	return s.applyMiddleware(mux)
}

// registerRoutes registers all HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux, h *handlers.Handlers) {
	prefix := s.config.PathPrefix

	// Health endpoints (no auth required)
	mux.HandleFunc("GET "+prefix+"/health", h.HandleHealth)
	mux.HandleFunc("GET "+prefix+"/ready", h.HandleReady)

	// Submissions
	mux.HandleFunc("POST "+prefix+"/submissions", h.HandleSubmit)
	mux.HandleFunc("GET "+prefix+"/submissions", h.HandleListSubmissions)
	mux.HandleFunc("GET "+prefix+"/submissions/{id}", h.HandleGetSubmission)
	mux.HandleFunc("DELETE "+prefix+"/submissions/{id}", h.HandleDeleteSubmission)

	// Sync
	mux.HandleFunc("POST "+prefix+"/sync", h.HandleSync)

	// Real-time endpoints
	mux.HandleFunc("GET "+prefix+"/updates/ws", h.HandleWebSocket)
	mux.HandleFunc("GET "+prefix+"/updates/stream", h.HandleSSE)

	// OpenAPI specification endpoints
	mux.HandleFunc("GET "+prefix+"/openapi.json", h.HandleOpenAPIJSON)
	mux.HandleFunc("GET "+prefix+"/openapi.yaml", h.HandleOpenAPIYAML)

	if s.config.MetricsEnabled {
		mux.Handle("GET "+prefix+"/metrics", s.client.Metrics().Handler())
	}

	// Unknown API paths must not fall through to the proxy.
	mux.HandleFunc(prefix+"/", func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, "No such endpoint", r.URL.Path)
	})

	if s.proxy != nil {
		mux.Handle("/", s.proxy)
		return
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, "No upstream configured", r.URL.Path)
	})
}

// applyMiddleware wraps handler with middleware chain.
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	cfg := s.config
	prefix := cfg.PathPrefix

	// Rate limiting (if enabled). Proxied page loads are not limited.
	if cfg.RateLimit > 0 {
		rateLimiter := middleware.NewRateLimiter(cfg.RateLimit, constants.BurstSize, s.logger)
		handler = onPrefix(prefix, middleware.RateLimit(rateLimiter), handler)
	}

	handler = middleware.Auth(middleware.AuthConfig{
		Key:       cfg.AdminKey,
		Protected: []string{prefix + "/sync", prefix + "/submissions/"},
		Methods:   []string{http.MethodPost, http.MethodDelete},
	}, s.logger)(handler)

	if cfg.CORSEnabled {
		corsConfig := middleware.DefaultCORSConfig()
		if len(cfg.CORSOrigins) > 0 {
			corsConfig.AllowedOrigins = cfg.CORSOrigins
		} else {
			corsConfig.AllowAll = true
		}
		handler = onPrefix(prefix, middleware.CORS(corsConfig), handler)
	}

	// Logging and recovery (always enabled)
	return middleware.Chain(
		middleware.Recovery(s.logger),
		middleware.Logger(s.logger),
	)(handler)
}

// onPrefix applies mw only to requests under prefix.
func onPrefix(prefix string, mw func(http.Handler) http.Handler, next http.Handler) http.Handler {
	wrapped := mw(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, prefix+"/") {
			wrapped.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
