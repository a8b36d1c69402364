package filter

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/agentstation/leadsync/internal/queue"
)

func ts(minutes int) time.Time {
	return time.Date(2026, 3, 1, 12, minutes, 0, 0, time.UTC)
}

func fixtures() []queue.Submission {
	return []queue.Submission{
		{ID: "a", TargetEndpoint: "leads", Method: "POST", CreatedAt: ts(0)},
		{ID: "b", TargetEndpoint: "leads/42", Method: "PUT", CreatedAt: ts(1)},
		{ID: "c", TargetEndpoint: "contacts", Method: "POST", CreatedAt: ts(2)},
		{ID: "d", TargetEndpoint: "leads/43", Method: "PATCH", CreatedAt: ts(3)},
	}
}

func ids(subs []queue.Submission) []string {
	out := make([]string, len(subs))
	for i, s := range subs {
		out[i] = s.ID
	}
	return out
}

// TestParseSubmissionFilter tests query parameter parsing into SubmissionFilter.
func TestParseSubmissionFilter(t *testing.T) {
	tests := []struct {
		name  string
		query string
		check func(t *testing.T, f SubmissionFilter)
	}{
		{
			name:  "empty query",
			query: "",
			check: func(t *testing.T, f SubmissionFilter) {
				if f.Limit != 100 || f.Offset != 0 || len(f.Methods) != 0 {
					t.Errorf("unexpected defaults: %+v", f)
				}
			},
		},
		{
			name:  "methods are upper-cased",
			query: "method=post,%20put",
			check: func(t *testing.T, f SubmissionFilter) {
				if !stringSliceEqual(f.Methods, []string{"POST", "PUT"}) {
					t.Errorf("Methods = %v", f.Methods)
				}
			},
		},
		{
			name:  "limit out of range falls back",
			query: "limit=5000&offset=-3",
			check: func(t *testing.T, f SubmissionFilter) {
				if f.Limit != 100 || f.Offset != 0 {
					t.Errorf("Limit/Offset = %d/%d", f.Limit, f.Offset)
				}
			},
		},
		{
			name:  "dates",
			query: "created_after=2026-03-01T12:00:30Z&created_before=bogus",
			check: func(t *testing.T, f SubmissionFilter) {
				if f.CreatedAfter == nil || f.CreatedBefore != nil {
					t.Errorf("CreatedAfter=%v CreatedBefore=%v", f.CreatedAfter, f.CreatedBefore)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/submissions?"+tt.query, nil)
			tt.check(t, ParseSubmissionFilter(req))
		})
	}
}

// TestSubmissionFilter_Apply tests filtering and pagination over queued submissions.
func TestSubmissionFilter_Apply(t *testing.T) {
	after := ts(0)
	tests := []struct {
		name     string
		filter   SubmissionFilter
		expected []string
	}{
		{"no filter keeps insertion order", SubmissionFilter{}, []string{"a", "b", "c", "d"}},
		{"by id", SubmissionFilter{ID: "c"}, []string{"c"}},
		{"by endpoint", SubmissionFilter{Endpoint: "leads"}, []string{"a"}},
		{"by endpoint prefix", SubmissionFilter{EndpointPrefix: "leads"}, []string{"a", "b", "d"}},
		{"by method", SubmissionFilter{Methods: []string{"put", "PATCH"}}, []string{"b", "d"}},
		{"created after", SubmissionFilter{CreatedAfter: &after}, []string{"b", "c", "d"}},
		{"paginated", SubmissionFilter{Limit: 2, Offset: 1}, []string{"b", "c"}},
		{"offset past end", SubmissionFilter{Offset: 10}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(tt.filter.Apply(fixtures()))
			if !stringSliceEqual(got, tt.expected) {
				t.Errorf("Apply() = %v, want %v", got, tt.expected)
			}
		})
	}
}

// TestParseIntOrDefault tests integer parsing helper.
func TestParseIntOrDefault(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		def      int
		expected int
	}{
		{"empty string returns default", "", 100, 100},
		{"valid integer", "42", 100, 42},
		{"zero value", "0", 100, 0},
		{"negative value", "-5", 100, -5},
		{"invalid string returns default", "abc", 100, 100},
		{"float returns default", "3.14", 100, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseIntOrDefault(tt.input, tt.def)
			if result != tt.expected {
				t.Errorf("parseIntOrDefault(%q, %d) = %d, want %d", tt.input, tt.def, result, tt.expected)
			}
		})
	}
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
