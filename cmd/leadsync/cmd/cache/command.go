// Package cache provides commands for the asset cache.
package cache

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentstation/leadsync/cmd/application"
	"github.com/agentstation/leadsync/internal/cmd/emoji"
	"github.com/agentstation/leadsync/internal/cmd/output"
)

// NewCommand creates the cache command.
func NewCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "cache",
		GroupID: "management",
		Short:   "Manage cached asset generations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newInstallCommand(app))
	cmd.AddCommand(newListCommand(app))
	return cmd
}

func newInstallCommand(app application.Application) *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Fetch the manifest resources and activate the generation",
		Long: `Install fetches every resource of the configured manifest into a new
cache generation. Only a complete generation is activated; older
generations are evicted afterwards. When the install fails the previous
generation keeps serving.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := app.Leadsync(cmd.Context())
			if err != nil {
				return err
			}
			m := client.Manifest()
			if err := client.InstallCache(cmd.Context()); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s install of %s failed, serving %q\n", emoji.Error, m.Version, client.Cache().Current())
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s generation %s active (%d resources)\n", emoji.Success, m.Version, len(m.All()))
			return nil
		},
	}
}

func newListCommand(app application.Application) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored cache generations",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := output.ParseFormat(app.OutputFormat())
			if err != nil {
				return err
			}
			client, err := app.Leadsync(cmd.Context())
			if err != nil {
				return err
			}
			gens, err := client.Cache().Generations(cmd.Context())
			if err != nil {
				return err
			}
			if format == "" {
				format = output.DetectFormat(cmd.OutOrStdout())
			}
			return output.FormatGenerations(cmd.OutOrStdout(), gens, client.Cache().Current(), format)
		},
	}
}
