package intercept

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/agentstation/leadsync/internal/server/response"
	"github.com/agentstation/leadsync/pkg/errors"
)

// Handler proxies browsing-context requests onto the upstream origin
// through a Transport. Requests are forwarded once; writes are never
// retried.
type Handler struct {
	proxy  *httputil.ReverseProxy
	logger *zerolog.Logger
}

// NewHandler creates a Handler for upstream.
func NewHandler(upstream *url.URL, transport http.RoundTripper, logger *zerolog.Logger) *Handler {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	h := &Handler{logger: logger}
	h.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.Out.Host = upstream.Host
		},
		Transport:    transport,
		ErrorHandler: h.fail,
	}
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.proxy.ServeHTTP(w, r)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if r.Context().Err() != nil {
		return
	}
	h.logger.Warn().
		Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("Intercepted request failed")
	if errors.IsNetworkUnavailable(err) {
		response.Offline(w, err.Error())
		return
	}
	response.JSON(w, http.StatusBadGateway, response.Fail("BAD_GATEWAY", "Upstream request failed", err.Error()))
}
