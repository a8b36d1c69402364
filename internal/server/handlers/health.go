package handlers

import (
	"net/http"
	"time"

	"github.com/agentstation/leadsync/internal/server/response"
)

// HandleHealth handles GET /_leadsync/v1/health.
// @Summary Health check
// @Description Health check endpoint (liveness probe)
// @Tags health
// @Produce json
// @Success 200 {object} response.Response{data=object}
// @Router /_leadsync/v1/health [get].
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, map[string]any{
		"status":  "healthy",
		"service": "leadsync",
		"version": h.deps.Version,
	})
}

// HandleReady handles GET /_leadsync/v1/ready.
// @Summary Readiness check
// @Description Readiness check including queue depth, cache generation and connected tabs
// @Tags health
// @Produce json
// @Success 200 {object} response.Response{data=object}
// @Failure 503 {object} response.Response{error=response.Error}
// @Router /_leadsync/v1/ready [get].
func (h *Handlers) HandleReady(w http.ResponseWriter, r *http.Request) {
	depth, err := h.deps.Queue.Count(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("Readiness check failed")
		response.ServiceUnavailable(w, "Submission store not available")
		return
	}

	generation := h.deps.Cache.Current()

	data := map[string]any{
		"status":      "ready",
		"uptime":      time.Since(h.start).Round(time.Second).String(),
		"queue_depth": depth,
		"cache": map[string]any{
			"generation": generation,
			"installed":  generation != "",
		},
		"network": map[string]any{
			"online": h.deps.Connectivity.Online(),
			"since":  h.deps.Connectivity.Since(),
		},
		"sync_state":        h.deps.Syncer.State().String(),
		"websocket_clients": h.deps.WebSocket.ClientCount(),
		"sse_clients":       h.deps.SSE.ClientCount(),
	}
	response.OK(w, data)
}
