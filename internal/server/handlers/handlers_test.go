package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/leadsync/internal/async"
	"github.com/agentstation/leadsync/internal/queue"
	"github.com/agentstation/leadsync/internal/submit"
	"github.com/agentstation/leadsync/internal/syncer"
	"github.com/agentstation/leadsync/pkg/errors"
)

type fakeSubmitter struct {
	got     queue.Submission
	outcome submit.Outcome
	err     error
}

func (f *fakeSubmitter) Submit(_ context.Context, sub queue.Submission) (submit.Outcome, error) {
	f.got = sub
	if f.err != nil {
		return submit.Outcome{}, f.err
	}
	out := f.outcome
	out.Submission = sub
	return out, nil
}

type memQueue struct {
	mu   sync.Mutex
	subs []queue.Submission
	err  error
}

func (q *memQueue) ListAll(context.Context) ([]queue.Submission, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	return append([]queue.Submission(nil), q.subs...), nil
}

func (q *memQueue) Get(_ context.Context, id string) (queue.Submission, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, s := range q.subs {
		if s.ID == id {
			return s, nil
		}
	}
	return queue.Submission{}, errors.NewNotFoundError("submission", id)
}

func (q *memQueue) Remove(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, s := range q.subs {
		if s.ID == id {
			q.subs = append(q.subs[:i], q.subs[i+1:]...)
			break
		}
	}
	return nil
}

func (q *memQueue) Count(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return 0, q.err
	}
	return len(q.subs), nil
}

type fakeSyncer struct {
	report  syncer.Report
	release chan struct{}
	state   syncer.State
}

func (s *fakeSyncer) Trigger(ctx context.Context, reason string) *async.Task[syncer.Report] {
	if s.report.Skipped {
		return async.Resolved(s.report, nil)
	}
	return async.Go(ctx, func(context.Context) (syncer.Report, error) {
		if s.release != nil {
			<-s.release
		}
		r := s.report
		r.Trigger = reason
		return r, nil
	})
}

func (s *fakeSyncer) State() syncer.State { return s.state }

type fixedStatus struct{}

func (fixedStatus) Current() string  { return "v2" }
func (fixedStatus) Online() bool     { return false }
func (fixedStatus) Since() time.Time { return time.Unix(0, 0) }
func (fixedStatus) ClientCount() int { return 3 }
func (fixedStatus) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusTeapot)
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func newTestHandlers(sub *fakeSubmitter, q *memQueue, s *fakeSyncer) (*Handlers, *http.ServeMux) {
	h := New(context.Background(), Deps{
		Submitter:    sub,
		Queue:        q,
		Syncer:       s,
		Cache:        fixedStatus{},
		Connectivity: fixedStatus{},
		WebSocket:    fixedStatus{},
		SSE:          fixedStatus{},
		Version:      "test",
	}, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /submissions", h.HandleSubmit)
	mux.HandleFunc("GET /submissions", h.HandleListSubmissions)
	mux.HandleFunc("GET /submissions/{id}", h.HandleGetSubmission)
	mux.HandleFunc("DELETE /submissions/{id}", h.HandleDeleteSubmission)
	mux.HandleFunc("POST /sync", h.HandleSync)
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /ready", h.HandleReady)
	mux.HandleFunc("GET /ws", h.HandleWebSocket)
	mux.HandleFunc("GET /openapi.json", h.HandleOpenAPIJSON)
	mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPIYAML)
	return h, mux
}

func do(mux http.Handler, method, target, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHandleSubmit(t *testing.T) {
	body := `{"targetEndpoint":"leads","payload":{"name":"Ada"}}`

	t.Run("delivered", func(t *testing.T) {
		sub := &fakeSubmitter{outcome: submit.Outcome{StatusCode: 201}}
		_, mux := newTestHandlers(sub, &memQueue{}, &fakeSyncer{})

		rec := do(mux, "POST", "/submissions", body, "Authorization", "Bearer tok-1")

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "leads", sub.got.TargetEndpoint)
		assert.Equal(t, "tok-1", sub.got.AuthToken)
		assert.JSONEq(t, `{"name":"Ada"}`, string(sub.got.Payload))
	})

	t.Run("queued", func(t *testing.T) {
		sub := &fakeSubmitter{outcome: submit.Outcome{Queued: true}}
		_, mux := newTestHandlers(sub, &memQueue{}, &fakeSyncer{})

		rec := do(mux, "POST", "/submissions", body)

		assert.Equal(t, http.StatusAccepted, rec.Code)
		var out submit.Outcome
		require.NoError(t, json.Unmarshal(decode(t, rec).Data, &out))
		assert.True(t, out.Queued)
		assert.Empty(t, sub.got.AuthToken)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, mux := newTestHandlers(&fakeSubmitter{}, &memQueue{}, &fakeSyncer{})
		rec := do(mux, "POST", "/submissions", `{`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("errors are mapped", func(t *testing.T) {
		tests := []struct {
			err    error
			status int
			code   string
		}{
			{errors.NewValidationError("targetEndpoint", "", "must not be empty"), http.StatusBadRequest, "BAD_REQUEST"},
			{errors.NewStorageError("enqueue", errors.New("disk full")), http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE"},
			{&errors.DeliveryError{SubmissionID: "x", StatusCode: 401, Message: "no"}, http.StatusUnauthorized, "UNAUTHORIZED"},
			{&errors.DeliveryError{SubmissionID: "x", StatusCode: 422, Message: "no"}, http.StatusBadGateway, "BAD_GATEWAY"},
		}
		for _, tt := range tests {
			_, mux := newTestHandlers(&fakeSubmitter{err: tt.err}, &memQueue{}, &fakeSyncer{})
			rec := do(mux, "POST", "/submissions", body)
			assert.Equal(t, tt.status, rec.Code, tt.err.Error())
			env := decode(t, rec)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		}
	})
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"":              "",
		"Bearer abc":    "abc",
		"bearer  abc ":  "abc",
		"Basic dXNlcjo": "",
		"Bearer":        "",
	}
	for header, want := range tests {
		req := httptest.NewRequest("GET", "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		assert.Equal(t, want, bearerToken(req), header)
	}
}

func TestSubmissionsListGetDelete(t *testing.T) {
	q := &memQueue{subs: []queue.Submission{
		{ID: "a", TargetEndpoint: "leads", Method: "POST"},
		{ID: "b", TargetEndpoint: "leads/1", Method: "PUT"},
		{ID: "c", TargetEndpoint: "contacts", Method: "POST"},
	}}
	_, mux := newTestHandlers(&fakeSubmitter{}, q, &fakeSyncer{})

	rec := do(mux, "GET", "/submissions?endpoint_prefix=leads", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Submissions []queue.Submission `json:"submissions"`
		Count       int                `json:"count"`
		Total       int                `json:"total"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &list))
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, 3, list.Total)
	assert.Equal(t, "a", list.Submissions[0].ID)
	assert.Equal(t, "b", list.Submissions[1].ID)

	rec = do(mux, "GET", "/submissions/c", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(mux, "DELETE", "/submissions/c", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	n, _ := q.Count(context.Background())
	assert.Equal(t, 2, n)

	rec = do(mux, "DELETE", "/submissions/c", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(mux, "GET", "/submissions/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSubmissionsStorageFailure(t *testing.T) {
	q := &memQueue{err: errors.NewStorageError("list", errors.New("locked"))}
	_, mux := newTestHandlers(&fakeSubmitter{}, q, &fakeSyncer{})

	rec := do(mux, "GET", "/submissions", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(mux, "GET", "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleSync(t *testing.T) {
	t.Run("wait returns the report", func(t *testing.T) {
		s := &fakeSyncer{report: syncer.Report{ID: "r1", Delivered: []string{"a"}}}
		_, mux := newTestHandlers(&fakeSubmitter{}, &memQueue{}, s)

		rec := do(mux, "POST", "/sync?wait=true", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var report syncer.Report
		require.NoError(t, json.Unmarshal(decode(t, rec).Data, &report))
		assert.Equal(t, syncer.ReasonManual, report.Trigger)
		assert.Equal(t, []string{"a"}, report.Delivered)
	})

	t.Run("without wait returns accepted", func(t *testing.T) {
		s := &fakeSyncer{release: make(chan struct{}), state: syncer.Draining}
		defer close(s.release)
		_, mux := newTestHandlers(&fakeSubmitter{}, &memQueue{}, s)

		rec := do(mux, "POST", "/sync", "")
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Contains(t, rec.Body.String(), "draining")
	})

	t.Run("skipped pass conflicts", func(t *testing.T) {
		s := &fakeSyncer{report: syncer.Report{Skipped: true, Reason: errors.ErrDrainInProgress.Error()}}
		_, mux := newTestHandlers(&fakeSubmitter{}, &memQueue{}, s)

		rec := do(mux, "POST", "/sync", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
		rec = do(mux, "POST", "/sync?wait=1", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestHealthAndReady(t *testing.T) {
	q := &memQueue{subs: []queue.Submission{{ID: "a"}}}
	_, mux := newTestHandlers(&fakeSubmitter{}, q, &fakeSyncer{})

	rec := do(mux, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy"`)

	rec = do(mux, "GET", "/ready", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var ready map[string]any
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &ready))
	assert.EqualValues(t, 1, ready["queue_depth"])
	assert.EqualValues(t, 3, ready["websocket_clients"])
	assert.Equal(t, "idle", ready["sync_state"])
	cache := ready["cache"].(map[string]any)
	assert.Equal(t, "v2", cache["generation"])
}

func TestRealtimeDelegates(t *testing.T) {
	_, mux := newTestHandlers(&fakeSubmitter{}, &memQueue{}, &fakeSyncer{})
	rec := do(mux, "GET", "/ws", "")
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestOpenAPI(t *testing.T) {
	_, mux := newTestHandlers(&fakeSubmitter{}, &memQueue{}, &fakeSyncer{})

	rec := do(mux, "GET", "/openapi.yaml", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/submissions")

	rec = do(mux, "GET", "/openapi.json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var spec map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &spec))
	assert.Contains(t, spec["paths"], "/sync")
}
