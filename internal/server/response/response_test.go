package response

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/leadsync/pkg/errors"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestEnvelopeShape(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, map[string]int{"count": 2})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	// Both keys are always present so clients can branch on error == null.
	assert.JSONEq(t, `{"data":{"count":2},"error":null}`, rec.Body.String())

	rec = httptest.NewRecorder()
	NotFound(rec, "Submission not found", "id x")
	assert.JSONEq(t,
		`{"data":null,"error":{"code":"NOT_FOUND","message":"Submission not found","details":"id x"}}`,
		rec.Body.String())
}

func TestSuccessStatuses(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter, any)
		status int
	}{
		{"ok", OK, http.StatusOK},
		{"created means delivered", Created, http.StatusCreated},
		{"accepted means queued", Accepted, http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec, map[string]bool{"queued": tt.status == http.StatusAccepted})
			assert.Equal(t, tt.status, rec.Code)
			resp := decode(t, rec)
			assert.Nil(t, resp.Error)
			assert.NotNil(t, resp.Data)
		})
	}
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter)
		status int
		code   string
	}{
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "Invalid JSON body", "eof") }, http.StatusBadRequest, "BAD_REQUEST"},
		{"unauthorized", func(w http.ResponseWriter) { Unauthorized(w, "Missing key", "") }, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"method not allowed", func(w http.ResponseWriter) { MethodNotAllowed(w, http.MethodPatch) }, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED"},
		{"conflict", func(w http.ResponseWriter) { Conflict(w, "Duplicate", "") }, http.StatusConflict, "CONFLICT"},
		{"rate limited", func(w http.ResponseWriter) { RateLimited(w, "slow down") }, http.StatusTooManyRequests, "RATE_LIMITED"},
		{"internal hides cause", func(w http.ResponseWriter) { InternalError(w, fmt.Errorf("dsn secret")) }, http.StatusInternalServerError, "INTERNAL_ERROR"},
		{"bad gateway", func(w http.ResponseWriter) { BadGateway(w, "Rejected", "status 422") }, http.StatusBadGateway, "BAD_GATEWAY"},
		{"service unavailable", func(w http.ResponseWriter) { ServiceUnavailable(w, "not ready") }, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{"offline", func(w http.ResponseWriter) { Offline(w, "GET /app.js") }, http.StatusServiceUnavailable, "OFFLINE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			assert.Equal(t, tt.status, rec.Code)
			resp := decode(t, rec)
			assert.Nil(t, resp.Data)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.NotContains(t, rec.Body.String(), "dsn secret")
		})
	}
}

func TestErrorFromType(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", errors.NewValidationError("payload", "{", "must be JSON"), http.StatusBadRequest, "BAD_REQUEST"},
		{"not found", errors.NewNotFoundError("submission", "s1"), http.StatusNotFound, "NOT_FOUND"},
		{"duplicate id", &errors.AlreadyExistsError{Resource: "submission", ID: "s1"}, http.StatusConflict, "CONFLICT"},
		{"drain in progress", fmt.Errorf("sync: %w", errors.ErrDrainInProgress), http.StatusConflict, "CONFLICT"},
		{
			"auth rejected",
			&errors.DeliveryError{SubmissionID: "s1", Endpoint: "leads", StatusCode: http.StatusForbidden, Message: "forbidden"},
			http.StatusUnauthorized, "UNAUTHORIZED",
		},
		{
			"remote rejected",
			&errors.DeliveryError{SubmissionID: "s1", Endpoint: "leads", StatusCode: http.StatusUnprocessableEntity, Message: "bad lead"},
			http.StatusBadGateway, "BAD_GATEWAY",
		},
		{"network", errors.NewNetworkError(http.MethodPost, "http://api.test/leads", fmt.Errorf("dial tcp")), http.StatusServiceUnavailable, "OFFLINE"},
		{"storage", errors.NewStorageError("enqueue", fmt.Errorf("disk full")), http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE"},
		{"cache install", &errors.CacheInstallError{Generation: "v2", URL: "/a.css", StatusCode: 404}, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			ErrorFromType(rec, tt.err)
			assert.Equal(t, tt.status, rec.Code)
			resp := decode(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestErrorFromTypeWrapped(t *testing.T) {
	rec := httptest.NewRecorder()
	ErrorFromType(rec, fmt.Errorf("get: %w", errors.NewNotFoundError("submission", "s9")))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decode(t, rec).Error.Message, "s9")
}
