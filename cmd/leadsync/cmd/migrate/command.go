// Package migrate provides the schema migration command.
package migrate

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentstation/leadsync/cmd/application"
	"github.com/agentstation/leadsync/internal/cmd/emoji"
	"github.com/agentstation/leadsync/internal/database"
)

// NewCommand creates the migrate command.
func NewCommand(app application.Application) *cobra.Command {
	return &cobra.Command{
		Use:     "migrate",
		GroupID: "management",
		Short:   "Apply durable store schema migrations",
		Long: `Bring the configured store (sqlite or postgres) to the latest schema.
Other commands migrate on open; this command is for provisioning a shared
postgres database ahead of time.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := app.DatabaseConfig()
			if err := database.Migrate(cmd.Context(), cfg, app.Logger()); err != nil {
				return err
			}
			backend := cfg.Backend
			if backend == "" {
				backend = database.SQLite
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s schema is up to date\n", emoji.Success, backend)
			return nil
		},
	}
}
