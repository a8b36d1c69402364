package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/agentstation/leadsync/pkg/logging"
)

// TestChain tests middleware composition.
func TestChain(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(mark("m1"), mark("m2"), mark("m3"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	want := "m1,m2,m3,handler"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("expected call order %s, got %s", want, got)
	}
}

// TestLogger tests request logging and context enrichment.
func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	var ctxID string
	h := Logger(&logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = logging.RequestID(r.Context())
		logging.FromContext(r.Context()).Info().Msg("inside")
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodPost, "/_leadsync/v1/submissions", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if ctxID != "req-42" {
		t.Errorf("expected request id in context, got %q", ctxID)
	}
	if got := w.Header().Get(RequestIDHeader); got != "req-42" {
		t.Errorf("expected request id echoed, got %q", got)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %s", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &entry); err != nil {
		t.Fatalf("invalid log line: %v", err)
	}
	if entry["status"] != float64(http.StatusTeapot) {
		t.Errorf("expected status 418 logged, got %v", entry["status"])
	}
	if entry["request_id"] != "req-42" {
		t.Errorf("expected request_id logged, got %v", entry["request_id"])
	}
	if !strings.Contains(lines[0], `"request_id":"req-42"`) {
		t.Errorf("expected context logger to carry request id: %s", lines[0])
	}
}

// TestLoggerGeneratesRequestID tests id generation.
func TestLoggerGeneratesRequestID(t *testing.T) {
	logger := zerolog.Nop()
	h := Logger(&logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("expected a generated request id")
	}
}

// TestRecovery tests panic recovery.
func TestRecovery(t *testing.T) {
	logger := zerolog.Nop()
	h := Recovery(&logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "INTERNAL_ERROR") {
		t.Errorf("expected error envelope, got %s", w.Body.String())
	}
}

// TestResponseWriterPassthrough tests flush support and status capture.
func TestResponseWriterPassthrough(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	rw.WriteHeader(http.StatusAccepted)
	rw.WriteHeader(http.StatusInternalServerError)
	rw.Flush()

	if rw.statusCode != http.StatusAccepted {
		t.Errorf("expected first status to stick, got %d", rw.statusCode)
	}
	if !rec.Flushed {
		t.Error("expected flush to reach the underlying writer")
	}
	if rw.Unwrap() != rec {
		t.Error("expected Unwrap to return the underlying writer")
	}
	if _, _, err := rw.Hijack(); err == nil {
		t.Error("expected hijack to fail on a recorder")
	}
}
