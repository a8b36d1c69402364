package output

import (
	"io"
	"time"

	"github.com/goccy/go-json"

	"github.com/agentstation/leadsync/internal/assetcache"
	"github.com/agentstation/leadsync/internal/cmd/table"
	"github.com/agentstation/leadsync/internal/queue"
	"github.com/agentstation/leadsync/internal/syncer"
)

// SubmissionView is the structured output form of a queued submission.
// The payload is decoded so YAML renders it as a document.
type SubmissionView struct {
	ID             string `json:"id" yaml:"id"`
	Method         string `json:"method" yaml:"method"`
	TargetEndpoint string `json:"targetEndpoint" yaml:"target_endpoint"`
	CreatedAt      string `json:"createdAt" yaml:"created_at"`
	HasToken       bool   `json:"hasToken" yaml:"has_token"`
	Payload        any    `json:"payload" yaml:"payload"`
}

// GenerationView is the structured output form of a cache generation.
type GenerationView struct {
	ID        string `json:"id" yaml:"id"`
	Complete  bool   `json:"complete" yaml:"complete"`
	Current   bool   `json:"current" yaml:"current"`
	CreatedAt string `json:"createdAt" yaml:"created_at"`
}

func isTable(format Format) bool {
	return format == FormatTable || format == FormatWide || format == ""
}

// FormatSubmissions writes queued submissions in the requested format.
func FormatSubmissions(w io.Writer, subs []queue.Submission, format Format) error {
	if isTable(format) {
		return NewFormatter(format).Format(w, table.SubmissionsToTableData(subs, format == FormatWide))
	}

	views := make([]SubmissionView, 0, len(subs))
	for _, s := range subs {
		var payload any
		if err := json.Unmarshal(s.Payload, &payload); err != nil {
			payload = string(s.Payload)
		}
		views = append(views, SubmissionView{
			ID:             s.ID,
			Method:         s.Method,
			TargetEndpoint: s.TargetEndpoint,
			CreatedAt:      s.CreatedAt.Format(time.RFC3339),
			HasToken:       s.AuthToken != "",
			Payload:        payload,
		})
	}
	return NewFormatter(format).Format(w, views)
}

// FormatReport writes a drain report in the requested format.
func FormatReport(w io.Writer, r syncer.Report, format Format) error {
	if isTable(format) {
		return NewFormatter(format).Format(w, table.ReportToTableData(r))
	}
	return NewFormatter(format).Format(w, r)
}

// FormatGenerations writes cache generations in the requested format.
func FormatGenerations(w io.Writer, gens []assetcache.Generation, current string, format Format) error {
	if isTable(format) {
		return NewFormatter(format).Format(w, table.GenerationsToTableData(gens, current))
	}

	views := make([]GenerationView, 0, len(gens))
	for _, g := range gens {
		views = append(views, GenerationView{
			ID:        g.ID,
			Complete:  g.Complete,
			Current:   g.ID == current,
			CreatedAt: g.CreatedAt.Format(time.RFC3339),
		})
	}
	return NewFormatter(format).Format(w, views)
}
