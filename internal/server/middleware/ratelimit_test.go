package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestRateLimit tests per-IP token buckets.
func TestRateLimit(t *testing.T) {
	rl := NewRateLimiter(60, 2, nil)
	h := RateLimit(rl)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(remote, forwarded string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		if forwarded != "" {
			req.Header.Set("X-Forwarded-For", forwarded)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 2; i++ {
		if code := do("10.0.0.1:1234", ""); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, code)
		}
	}
	if code := do("10.0.0.1:5678", ""); code != http.StatusTooManyRequests {
		t.Errorf("expected burst to be exhausted across ports, got %d", code)
	}
	if code := do("10.0.0.2:1234", ""); code != http.StatusOK {
		t.Errorf("expected other IP to be unaffected, got %d", code)
	}
	if code := do("10.0.0.3:1", "192.168.1.9, 10.0.0.3"); code != http.StatusOK {
		t.Errorf("expected forwarded client to get its own bucket, got %d", code)
	}
}

// TestClientIP tests client address extraction.
func TestClientIP(t *testing.T) {
	tests := []struct {
		remote, forwarded, want string
	}{
		{"10.1.2.3:9000", "", "10.1.2.3"},
		{"[::1]:9000", "", "::1"},
		{"10.1.2.3:9000", "203.0.113.7, 10.0.0.1", "203.0.113.7"},
		{"pipe", "", "pipe"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remote
		if tt.forwarded != "" {
			req.Header.Set("X-Forwarded-For", tt.forwarded)
		}
		if got := clientIP(req); got != tt.want {
			t.Errorf("clientIP(%q, %q) = %q, want %q", tt.remote, tt.forwarded, got, tt.want)
		}
	}
}
