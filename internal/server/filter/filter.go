// Package filter provides query parameter parsing and filtering for API endpoints.
package filter

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/agentstation/leadsync/internal/queue"
)

// SubmissionFilter contains the filter criteria for queued submissions.
type SubmissionFilter struct {
	// Basic filters
	ID             string
	Endpoint       string
	EndpointPrefix string
	Methods        []string

	// Date filters
	CreatedAfter  *time.Time
	CreatedBefore *time.Time

	// Pagination
	Limit  int
	Offset int
}

// ParseSubmissionFilter extracts submission filter parameters from an HTTP request.
func ParseSubmissionFilter(r *http.Request) SubmissionFilter {
	q := r.URL.Query()

	filter := SubmissionFilter{
		ID:             q.Get("id"),
		Endpoint:       q.Get("endpoint"),
		EndpointPrefix: q.Get("endpoint_prefix"),
		Limit:          parseIntOrDefault(q.Get("limit"), 100),
		Offset:         parseIntOrDefault(q.Get("offset"), 0),
	}

	if methods := q.Get("method"); methods != "" {
		for _, m := range strings.Split(methods, ",") {
			if m = strings.ToUpper(strings.TrimSpace(m)); m != "" {
				filter.Methods = append(filter.Methods, m)
			}
		}
	}

	if after := q.Get("created_after"); after != "" {
		if t, err := time.Parse(time.RFC3339, after); err == nil {
			filter.CreatedAfter = &t
		}
	}
	if before := q.Get("created_before"); before != "" {
		if t, err := time.Parse(time.RFC3339, before); err == nil {
			filter.CreatedBefore = &t
		}
	}

	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 100
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	return filter
}

// Apply filters subs and paginates the result. Insertion order is kept.
func (f SubmissionFilter) Apply(subs []queue.Submission) []queue.Submission {
	filtered := make([]queue.Submission, 0, len(subs))
	for _, s := range subs {
		if f.matches(s) {
			filtered = append(filtered, s)
		}
	}

	if f.Offset >= len(filtered) {
		return []queue.Submission{}
	}
	filtered = filtered[f.Offset:]
	if f.Limit > 0 && len(filtered) > f.Limit {
		filtered = filtered[:f.Limit]
	}
	return filtered
}

func (f SubmissionFilter) matches(s queue.Submission) bool {
	return f.matchesBasicFilters(s) && f.matchesDateFilters(s)
}

func (f SubmissionFilter) matchesBasicFilters(s queue.Submission) bool {
	if f.ID != "" && s.ID != f.ID {
		return false
	}
	if f.Endpoint != "" && s.TargetEndpoint != f.Endpoint {
		return false
	}
	if f.EndpointPrefix != "" && !strings.HasPrefix(s.TargetEndpoint, f.EndpointPrefix) {
		return false
	}
	if len(f.Methods) > 0 && !containsFold(f.Methods, s.Method) {
		return false
	}
	return true
}

func (f SubmissionFilter) matchesDateFilters(s queue.Submission) bool {
	if f.CreatedAfter != nil && !s.CreatedAt.After(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && !s.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}
	return true
}

func containsFold(values []string, v string) bool {
	for _, candidate := range values {
		if strings.EqualFold(candidate, v) {
			return true
		}
	}
	return false
}

// parseIntOrDefault parses an integer or returns default.
func parseIntOrDefault(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
