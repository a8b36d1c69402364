package table

import (
	"strconv"
	"strings"
	"time"

	"github.com/agentstation/leadsync/internal/assetcache"
	"github.com/agentstation/leadsync/internal/cmd/emoji"
	"github.com/agentstation/leadsync/internal/queue"
	"github.com/agentstation/leadsync/internal/syncer"
)

const payloadPreview = 48

// SubmissionsToTableData converts queued submissions to table format.
// Wide output adds the payload preview and whether a token is held.
func SubmissionsToTableData(subs []queue.Submission, wide bool) Data {
	headers := []string{"#", "ID", "Method", "Endpoint", "Queued"}
	align := []Align{AlignRight, AlignLeft, AlignLeft, AlignLeft, AlignLeft}
	if wide {
		headers = append(headers, "Token", "Payload")
		align = append(align, AlignCenter, AlignLeft)
	}

	rows := make([][]string, 0, len(subs))
	for i, s := range subs {
		row := []string{
			strconv.Itoa(i + 1),
			s.ID,
			s.Method,
			s.TargetEndpoint,
			FormatAge(s.CreatedAt, time.Now()),
		}
		if wide {
			token := emoji.Optional
			if s.AuthToken != "" {
				token = emoji.Success
			}
			row = append(row, token, Truncate(string(s.Payload), payloadPreview))
		}
		rows = append(rows, row)
	}

	return Data{Headers: headers, Rows: rows, ColumnAlignment: align}
}

// ReportToTableData converts a drain report to a key-value table.
func ReportToTableData(r syncer.Report) Data {
	rows := [][]string{
		{"Drain", r.ID},
		{"Trigger", r.Trigger},
		{"Snapshot", strconv.Itoa(r.Snapshot)},
		{"Delivered", strconv.Itoa(len(r.Delivered))},
		{"Failed", strconv.Itoa(len(r.Failed))},
		{"Remaining", strconv.Itoa(r.Remaining)},
		{"Duration", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()},
	}
	if r.Skipped {
		rows = append(rows, []string{"Skipped", r.Reason})
	}
	for _, f := range r.Failed {
		rows = append(rows, []string{emoji.Error + " " + f.SubmissionID, f.Error})
	}
	return Data{Headers: []string{"Property", "Value"}, Rows: rows}
}

// GenerationsToTableData converts cache generations to table format,
// marking the one currently serving.
func GenerationsToTableData(gens []assetcache.Generation, current string) Data {
	rows := make([][]string, 0, len(gens))
	for _, g := range gens {
		state := "incomplete"
		if g.Complete {
			state = "complete"
		}
		marker := ""
		if g.ID == current {
			marker = emoji.Success
		}
		rows = append(rows, []string{marker, g.ID, state, g.CreatedAt.Format(time.RFC3339)})
	}
	return Data{
		Headers:         []string{"", "Generation", "State", "Created"},
		Rows:            rows,
		ColumnAlignment: []Align{AlignCenter, AlignLeft, AlignLeft, AlignLeft},
	}
}

// FormatAge renders how long ago t was, in the largest whole unit.
func FormatAge(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return strconv.Itoa(int(d.Seconds())) + "s ago"
	case d < time.Hour:
		return strconv.Itoa(int(d.Minutes())) + "m ago"
	case d < 24*time.Hour:
		return strconv.Itoa(int(d.Hours())) + "h ago"
	default:
		return strconv.Itoa(int(d.Hours()/24)) + "d ago"
	}
}

// Truncate shortens s to n runes on a single line.
func Truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
