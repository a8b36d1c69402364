package handlers

import "net/http"

// HandleWebSocket handles WebSocket connections at /_leadsync/v1/updates/ws.
// @Summary Cross-tab WebSocket channel
// @Description Subscribe, unsubscribe and publish frames relayed between browsing contexts
// @Tags updates
// @Param client query string false "Browsing context id"
// @Success 101 "Switching Protocols"
// @Router /_leadsync/v1/updates/ws [get].
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.deps.WebSocket.ServeHTTP(w, r)
}

// HandleSSE handles Server-Sent Events at /_leadsync/v1/updates/stream.
// @Summary Record events stream
// @Description Server-Sent Events stream of NEW_RECORD and RECORD_UPDATED events
// @Tags updates
// @Produce text/event-stream
// @Param topic query string false "Topic (default leadsync.records)"
// @Param client query string false "Browsing context id; its own events are not echoed"
// @Param kind query string false "Only forward this event kind"
// @Success 200 "Event stream"
// @Router /_leadsync/v1/updates/stream [get].
func (h *Handlers) HandleSSE(w http.ResponseWriter, r *http.Request) {
	h.deps.SSE.ServeHTTP(w, r)
}
