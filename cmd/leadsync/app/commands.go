package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/agentstation/leadsync/cmd/leadsync/cmd/cache"
	"github.com/agentstation/leadsync/cmd/leadsync/cmd/migrate"
	"github.com/agentstation/leadsync/cmd/leadsync/cmd/queue"
	"github.com/agentstation/leadsync/cmd/leadsync/cmd/serve"
	"github.com/agentstation/leadsync/cmd/leadsync/cmd/status"
	synccmd "github.com/agentstation/leadsync/cmd/leadsync/cmd/sync"
)

// registerCommands registers all subcommands with the root command.
func (a *App) registerCommands(rootCmd *cobra.Command) {
	// Core commands
	rootCmd.AddCommand(serve.NewCommand(a))
	rootCmd.AddCommand(synccmd.NewCommand(a))
	rootCmd.AddCommand(queue.NewCommand(a))

	// Management commands
	rootCmd.AddCommand(cache.NewCommand(a))
	rootCmd.AddCommand(migrate.NewCommand(a))
	rootCmd.AddCommand(status.NewCommand(a))

	// Utility commands
	rootCmd.AddCommand(a.newVersionCommand())
	rootCmd.AddCommand(newManCommand())
}

// newVersionCommand creates the version command.
func (a *App) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("leadsync %s\n", a.version)
			if a.config.Verbose {
				cmd.Printf("  commit:   %s\n", a.commit)
				cmd.Printf("  built:    %s\n", a.date)
				cmd.Printf("  built by: %s\n", a.builtBy)
			}
		},
	}
}

// newManCommand creates the hidden man page generator.
func newManCommand() *cobra.Command {
	return &cobra.Command{
		Use:    "man",
		Short:  "Generate man page",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			header := &doc.GenManHeader{
				Title:   "LEADSYNC",
				Section: "1",
				Source:  "leadsync " + cmd.Root().Version,
				Manual:  "leadsync Manual",
			}
			return doc.GenMan(cmd.Root(), header, cmd.OutOrStdout())
		},
	}
}
