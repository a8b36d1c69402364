// Package sync provides the command that drains the submission queue.
package sync

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentstation/leadsync/cmd/application"
	"github.com/agentstation/leadsync/internal/cmd/emoji"
	"github.com/agentstation/leadsync/internal/cmd/output"
)

// NewCommand creates the sync command.
func NewCommand(app application.Application) *cobra.Command {
	return &cobra.Command{
		Use:     "sync",
		GroupID: "core",
		Short:   "Deliver queued submissions now",
		Long: `Run one drain pass: every submission queued when the pass starts is
delivered in insertion order. Failed deliveries stay queued for the next
pass. A pass already running elsewhere on the same store is not joined.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := output.ParseFormat(app.OutputFormat())
			if err != nil {
				return err
			}
			client, err := app.Leadsync(cmd.Context())
			if err != nil {
				return err
			}

			report, err := client.Sync(cmd.Context())
			if err != nil {
				return err
			}
			if report.Skipped {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s drain skipped: %s\n", emoji.Warning, report.Reason)
			}
			if format == "" {
				format = output.DetectFormat(cmd.OutOrStdout())
			}
			if err := output.FormatReport(cmd.OutOrStdout(), report, format); err != nil {
				return err
			}
			if n := len(report.Failed); n > 0 {
				return fmt.Errorf("%d of %d submissions failed and remain queued", n, report.Snapshot)
			}
			return nil
		},
	}
}
