package intercept_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/leadsync/internal/assetcache"
	"github.com/agentstation/leadsync/internal/intercept"
	"github.com/agentstation/leadsync/internal/server/response"
	"github.com/agentstation/leadsync/pkg/constants"
	"github.com/agentstation/leadsync/pkg/errors"
)

type recorder struct {
	mu      sync.Mutex
	offline int
	online  int
}

func (r *recorder) MarkOffline(error) { r.mu.Lock(); r.offline++; r.mu.Unlock() }
func (r *recorder) MarkOnline()       { r.mu.Lock(); r.online++; r.mu.Unlock() }

func (r *recorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.offline, r.online
}

type cutoff struct {
	down atomic.Bool
	next http.RoundTripper
}

func (c *cutoff) RoundTrip(req *http.Request) (*http.Response, error) {
	if c.down.Load() {
		return nil, errors.New("dial tcp: network is unreachable")
	}
	return c.next.RoundTrip(req)
}

type fixture struct {
	upstream *httptest.Server
	proxy    *httptest.Server
	net      *cutoff
	reports  *recorder
	writes   atomic.Int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{reports: &recorder{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<h1>leads</h1>")
	})
	mux.HandleFunc("/offline.html", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "offline")
	})
	mux.HandleFunc("/api/leads", func(w http.ResponseWriter, r *http.Request) {
		f.writes.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":1}`)
	})
	f.upstream = httptest.NewServer(mux)
	t.Cleanup(f.upstream.Close)

	upstreamURL, err := url.Parse(f.upstream.URL)
	require.NoError(t, err)

	f.net = &cutoff{next: f.upstream.Client().Transport}
	network := intercept.NewReportingTransport(f.net, f.reports)

	cache := assetcache.NewManager(assetcache.NewMemoryStore(),
		assetcache.WithNetwork(network),
		assetcache.WithOrigin(upstreamURL),
		assetcache.WithOfflinePage("/offline.html"),
	)
	ctx := context.Background()
	require.NoError(t, cache.Install(ctx, "v1", []string{"/", "/offline.html"}))
	require.NoError(t, cache.Activate(ctx, "v1"))

	transport := intercept.NewTransport(cache,
		intercept.WithNetwork(network),
		intercept.WithNetworkOnly("/api/"),
	)
	f.proxy = httptest.NewServer(intercept.NewHandler(upstreamURL, transport, nil))
	t.Cleanup(f.proxy.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, header ...string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.proxy.URL+path, nil)
	require.NoError(t, err)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestHandlerServesCachedDocumentOffline(t *testing.T) {
	f := newFixture(t)
	f.net.down.Store(true)

	resp := f.do(t, http.MethodGet, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<h1>leads</h1>", readAll(t, resp))
}

func TestHandlerFallsBackToOfflinePageForNavigation(t *testing.T) {
	f := newFixture(t)
	f.net.down.Store(true)

	resp := f.do(t, http.MethodGet, "/leads/new", "Sec-Fetch-Mode", "navigate")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get(constants.OfflineHeader))
	assert.Equal(t, "offline", readAll(t, resp))

	offline, _ := f.reports.counts()
	assert.Positive(t, offline)
}

func TestHandlerReturnsOfflineEnvelopeForSubresources(t *testing.T) {
	f := newFixture(t)
	f.net.down.Store(true)

	resp := f.do(t, http.MethodGet, "/static/js/chunk.js", "Accept", "*/*")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body response.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotNil(t, body.Error)
	assert.Equal(t, "OFFLINE", body.Error.Code)
}

func TestNetworkOnlyPrefixBypassesCache(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/leads")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"id":1}`, readAll(t, resp))
	_, online := f.reports.counts()
	assert.Positive(t, online)

	f.net.down.Store(true)
	resp = f.do(t, http.MethodGet, "/api/leads", "Accept", "application/json")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/leads")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.EqualValues(t, 1, f.writes.Load(), "failed writes are not retried")
}

func TestReportingTransportIgnoresCancellation(t *testing.T) {
	rec := &recorder{}
	rt := intercept.NewReportingTransport(roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return nil, r.Context().Err()
	}), rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://example.test/", nil)
	require.NoError(t, err)
	_, err = rt.RoundTrip(req)
	require.Error(t, err)

	offline, online := rec.counts()
	assert.Zero(t, offline)
	assert.Zero(t, online)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
