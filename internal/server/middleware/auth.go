package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/agentstation/leadsync/internal/server/response"
)

// AdminKeyHeader carries the admin key. Authorization is left to the
// remote API credentials carried by submissions.
const AdminKeyHeader = "X-Leadsync-Key"

// AuthConfig guards administrative endpoints with a shared key.
type AuthConfig struct {
	// Key is the expected admin key. Empty disables the check.
	Key string
	// Protected lists path prefixes that require the key.
	Protected []string
	// Methods limits the check to these methods. Empty means all.
	Methods []string
}

// Auth rejects protected requests that lack the admin key.
func Auth(config AuthConfig, logger *zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if config.Key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !config.guards(r) {
				next.ServeHTTP(w, r)
				return
			}
			got := r.Header.Get(AdminKeyHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(config.Key)) != 1 {
				logger.Warn().
					Str("path", r.URL.Path).
					Str("remote_addr", r.RemoteAddr).
					Bool("key_provided", got != "").
					Msg("Admin key rejected")
				response.Unauthorized(w, "Invalid or missing admin key", "Provide the admin key in the "+AdminKeyHeader+" header")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (c AuthConfig) guards(r *http.Request) bool {
	if len(c.Methods) > 0 {
		matched := false
		for _, m := range c.Methods {
			if strings.EqualFold(m, r.Method) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, p := range c.Protected {
		if strings.HasPrefix(r.URL.Path, p) {
			return true
		}
	}
	return false
}
