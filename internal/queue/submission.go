// Package queue is the durable store of submissions captured while the
// remote API was unreachable. Entries survive process restarts, are listed
// in insertion order and are immutable until removed.
package queue

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/agentstation/leadsync/pkg/errors"
)

// Submission is one offline-captured write.
type Submission struct {
	ID             string          `json:"id"`
	Payload        json.RawMessage `json:"payload"`
	CreatedAt      time.Time       `json:"createdAt"`
	TargetEndpoint string          `json:"targetEndpoint"`
	Method         string          `json:"method"`
	AuthToken      string          `json:"-"`
}

// Creates reports whether delivering s creates a new record.
func (s Submission) Creates() bool {
	return s.Method == http.MethodPost
}

// Prepare fills defaults and validates s for storage. The payload is kept
// byte-for-byte.
func Prepare(s Submission, now time.Time) (Submission, error) {
	s.ID = strings.TrimSpace(s.ID)
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.TargetEndpoint = strings.TrimSpace(s.TargetEndpoint)
	if s.TargetEndpoint == "" {
		return s, errors.NewValidationError("targetEndpoint", s.TargetEndpoint, "must not be empty")
	}
	if err := checkRelative(s.TargetEndpoint); err != nil {
		return s, err
	}
	s.Method = strings.ToUpper(strings.TrimSpace(s.Method))
	switch s.Method {
	case "":
		s.Method = http.MethodPost
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return s, errors.NewValidationError("method", s.Method, "must be POST, PUT or PATCH")
	}
	if len(s.Payload) == 0 {
		return s, errors.NewValidationError("payload", nil, "must not be empty")
	}
	if !json.Valid(s.Payload) {
		return s, errors.NewValidationError("payload", nil, "must be valid JSON")
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.CreatedAt = s.CreatedAt.UTC()
	return s, nil
}

// checkRelative rejects targets that would leave the remote API root.
func checkRelative(target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return errors.NewValidationError("targetEndpoint", target, err.Error())
	}
	if u.Scheme != "" || u.Host != "" || u.Opaque != "" || strings.HasPrefix(target, "//") {
		return errors.NewValidationError("targetEndpoint", target, "must be a path relative to the API root")
	}
	for _, seg := range strings.Split(u.Path, "/") {
		if seg == ".." {
			return errors.NewValidationError("targetEndpoint", target, "must not contain '..' segments")
		}
	}
	return nil
}
