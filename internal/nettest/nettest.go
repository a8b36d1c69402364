// Package nettest provides network doubles for tests: a transport that can
// be switched offline and a recording stand-in for the remote API.
package nettest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/goccy/go-json"

	"github.com/agentstation/leadsync/pkg/constants"
	"github.com/agentstation/leadsync/pkg/errors"
)

// Switch is a RoundTripper that fails every request while offline.
type Switch struct {
	next    http.RoundTripper
	offline atomic.Bool
	calls   atomic.Int64
}

// NewSwitch wraps next, starting online.
func NewSwitch(next http.RoundTripper) *Switch {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Switch{next: next}
}

// SetOffline toggles the simulated outage.
func (s *Switch) SetOffline(offline bool) {
	s.offline.Store(offline)
}

// Calls returns how many round trips were attempted.
func (s *Switch) Calls() int64 {
	return s.calls.Load()
}

// RoundTrip implements http.RoundTripper.
func (s *Switch) RoundTrip(req *http.Request) (*http.Response, error) {
	s.calls.Add(1)
	if s.offline.Load() {
		return nil, errors.New("dial tcp " + req.URL.Host + ": connect: connection refused")
	}
	return s.next.RoundTrip(req)
}

// Delivery is one request received by an API.
type Delivery struct {
	Method         string
	Path           string
	Authorization  string
	IdempotencyKey string
	Body           []byte
}

// API is a recording stand-in for the remote API. Writes answer 201 with
// the payload plus an id unless a status is forced for the path.
type API struct {
	*httptest.Server

	mu         sync.Mutex
	deliveries []Delivery
	statuses   map[string]int
}

// NewAPI starts an API closed with the test.
func NewAPI(t testing.TB) *API {
	t.Helper()
	a := &API{statuses: map[string]int{}}
	a.Server = httptest.NewServer(http.HandlerFunc(a.serve))
	t.Cleanup(a.Close)
	return a
}

// FailPath makes requests to path answer status.
func (a *API) FailPath(path string, status int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.statuses[path] = status
}

// Deliveries returns the writes received so far.
func (a *API) Deliveries() []Delivery {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Delivery(nil), a.deliveries...)
}

func (a *API) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead || r.Method == http.MethodGet {
		w.WriteHeader(http.StatusOK)
		return
	}

	body, _ := io.ReadAll(r.Body)
	a.mu.Lock()
	status, forced := a.statuses[r.URL.Path]
	if !forced {
		a.deliveries = append(a.deliveries, Delivery{
			Method:         r.Method,
			Path:           r.URL.Path,
			Authorization:  r.Header.Get("Authorization"),
			IdempotencyKey: r.Header.Get(constants.IdempotencyHeader),
			Body:           body,
		})
	}
	a.mu.Unlock()

	if forced {
		http.Error(w, http.StatusText(status), status)
		return
	}

	record := map[string]any{}
	_ = json.Unmarshal(body, &record)
	record["id"] = r.Header.Get(constants.IdempotencyHeader)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(record)
}
