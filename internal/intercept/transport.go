// Package intercept routes application traffic through the asset cache.
//
// Transport is the client side: an http.RoundTripper that answers
// cache-first and lets configured API prefixes go straight to the network.
// Handler is the server side: a reverse proxy onto the upstream origin that
// uses Transport and turns unrecoverable failures into 503 envelopes.
package intercept

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/agentstation/leadsync/pkg/errors"
)

// Cache answers requests cache-first.
type Cache interface {
	Serve(req *http.Request) (*http.Response, error)
}

// Reporter receives connectivity observations.
type Reporter interface {
	MarkOffline(cause error)
	MarkOnline()
}

// Transport sends requests through Cache, except for paths under a
// network-only prefix.
type Transport struct {
	cache       Cache
	network     http.RoundTripper
	networkOnly []string
	logger      *zerolog.Logger
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithNetwork sets the transport for network-only requests.
func WithNetwork(rt http.RoundTripper) TransportOption {
	return func(t *Transport) {
		if rt != nil {
			t.network = rt
		}
	}
}

// WithNetworkOnly adds path prefixes that bypass the cache.
func WithNetworkOnly(prefixes ...string) TransportOption {
	return func(t *Transport) {
		for _, p := range prefixes {
			if p = strings.TrimSpace(p); p != "" {
				t.networkOnly = append(t.networkOnly, p)
			}
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zerolog.Logger) TransportOption {
	return func(t *Transport) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTransport creates a Transport over cache.
func NewTransport(cache Cache, opts ...TransportOption) *Transport {
	nop := zerolog.Nop()
	t := &Transport{
		cache:   cache,
		network: http.DefaultTransport,
		logger:  &nop,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.bypass(req.URL.Path) {
		resp, err := t.network.RoundTrip(req)
		if err != nil {
			return nil, errors.NewNetworkError(req.Method, req.URL.Redacted(), err)
		}
		return resp, nil
	}
	return t.cache.Serve(req)
}

func (t *Transport) bypass(path string) bool {
	for _, p := range t.networkOnly {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// ReportingTransport tells a Reporter whether round trips reached the
// network. Cancelled requests are not reported.
type ReportingTransport struct {
	next     http.RoundTripper
	reporter Reporter
}

// NewReportingTransport wraps next. A nil next uses http.DefaultTransport.
func NewReportingTransport(next http.RoundTripper, reporter Reporter) *ReportingTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &ReportingTransport{next: next, reporter: reporter}
}

// RoundTrip implements http.RoundTripper.
func (t *ReportingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if t.reporter == nil {
		return resp, err
	}
	switch {
	case err == nil:
		t.reporter.MarkOnline()
	case req.Context().Err() == nil && !errors.Is(err, context.Canceled):
		t.reporter.MarkOffline(err)
	}
	return resp, err
}
