// Package application provides the application interface for leadsync commands.
//
// The Application interface defines the contract between the application layer and
// command implementations, enabling dependency injection and testability.
//
// Usage in Commands:
//
//	func NewCommand(app application.Application) *cobra.Command {
//	    return &cobra.Command{
//	        RunE: func(cmd *cobra.Command, args []string) error {
//	            client, err := app.Leadsync(cmd.Context())
//	            if err != nil {
//	                return err
//	            }
//	            report, err := client.Sync(cmd.Context())
//	            // ... print report
//	        },
//	    }
//	}
//
// Testing with Mocks:
//
//	mock := &application.Mock{
//	    LeadsyncFunc: func(context.Context) (leadsync.Client, error) {
//	        return testClient, nil
//	    },
//	}
//	cmd := NewCommand(mock)
package application

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/agentstation/leadsync"
	"github.com/agentstation/leadsync/internal/database"
	"github.com/agentstation/leadsync/internal/server"
)

// Application provides the application interface that commands need.
// The App struct from cmd/leadsync/app implements this interface.
//
// Thread Safety: All methods must be safe for concurrent access.
type Application interface {
	// Leadsync returns the shared client, assembling it on first use.
	// The client's background loops are not started; commands that need
	// them call Start.
	Leadsync(ctx context.Context) (leadsync.Client, error)

	// ServerConfig returns the local API configuration.
	ServerConfig() server.Config

	// DatabaseConfig returns the durable store configuration.
	DatabaseConfig() database.Config

	// Logger returns the configured logger instance.
	Logger() *zerolog.Logger

	// OutputFormat returns the configured output format (table, json, yaml, wide).
	OutputFormat() string

	// Version returns the application version string.
	Version() string

	// Commit returns the git commit hash.
	Commit() string

	// Date returns the build date.
	Date() string

	// BuiltBy returns the build system identifier.
	BuiltBy() string
}
