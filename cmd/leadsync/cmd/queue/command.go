// Package queue provides commands for inspecting and purging queued submissions.
package queue

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentstation/leadsync/cmd/application"
	"github.com/agentstation/leadsync/internal/cmd/emoji"
	"github.com/agentstation/leadsync/internal/cmd/output"
	"github.com/agentstation/leadsync/pkg/errors"
)

// NewCommand creates the queue command.
func NewCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "queue",
		GroupID: "core",
		Short:   "Inspect and purge submissions awaiting delivery",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newListCommand(app))
	cmd.AddCommand(newPurgeCommand(app))
	return cmd
}

func newListCommand(app application.Application) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List queued submissions in delivery order",
		Example: `  leadsync queue list
  leadsync queue list -o wide
  leadsync queue list -o yaml`,
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
			subs, err := client.Queue().ListAll(cmd.Context())
			if err != nil {
				return err
			}
			if format == "" {
				format = output.DetectFormat(cmd.OutOrStdout())
			}
			return output.FormatSubmissions(cmd.OutOrStdout(), subs, format)
		},
	}
}

func newPurgeCommand(app application.Application) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "purge [id...]",
		Short: "Remove queued submissions without delivering them",
		Example: `  leadsync queue purge 3f2c...
  leadsync queue purge --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return errors.NewValidationError("args", args, "pass submission ids or --all")
			}
			client, err := app.Leadsync(cmd.Context())
			if err != nil {
				return err
			}
			q := client.Queue()
			ctx := cmd.Context()

			ids := args
			if all {
				subs, err := q.ListAll(ctx)
				if err != nil {
					return err
				}
				ids = ids[:0]
				for _, s := range subs {
					ids = append(ids, s.ID)
				}
			}

			var errs []error
			for _, id := range ids {
				if _, err := q.Get(ctx, id); err != nil {
					errs = append(errs, err)
					fmt.Fprintf(cmd.ErrOrStderr(), "%s %s: %v\n", emoji.Error, id, err)
					continue
				}
				if err := q.Remove(ctx, id); err != nil {
					errs = append(errs, err)
					continue
				}
				app.Logger().Info().Str("submission_id", id).Msg("Submission purged")
				fmt.Fprintf(cmd.OutOrStdout(), "%s purged %s\n", emoji.Success, id)
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "purge every queued submission")
	return cmd
}
