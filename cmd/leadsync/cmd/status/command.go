// Package status provides the status command.
package status

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/agentstation/leadsync"
	"github.com/agentstation/leadsync/cmd/application"
	"github.com/agentstation/leadsync/internal/cmd/output"
	"github.com/agentstation/leadsync/pkg/constants"
)

// View is the status summary printed by the command.
type View struct {
	Version    string `json:"version" yaml:"version"`
	Upstream   string `json:"upstream" yaml:"upstream"`
	Store      string `json:"store" yaml:"store"`
	Topic      string `json:"topic" yaml:"topic"`
	QueueDepth int    `json:"queue_depth" yaml:"queue_depth"`
	Generation string `json:"cache_generation" yaml:"cache_generation"`
	Network    string `json:"network" yaml:"network"`
}

// NewCommand creates the status command.
func NewCommand(app application.Application) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		GroupID: "management",
		Short:   "Show queue depth, cache generation and network reachability",
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
			view, err := collect(cmd.Context(), client, app.Version(), string(app.DatabaseConfig().Backend))
			if err != nil {
				return err
			}
			if format == "" {
				format = output.DetectFormat(cmd.OutOrStdout())
			}
			return output.NewFormatter(format).Format(cmd.OutOrStdout(), view)
		},
	}
}

func collect(ctx context.Context, client leadsync.Client, version, backend string) (View, error) {
	depth, err := client.Queue().Count(ctx)
	if err != nil {
		return View{}, err
	}

	v := View{
		Version:    version,
		Upstream:   "-",
		Store:      backend,
		Topic:      client.Topic(),
		QueueDepth: depth,
		Generation: client.Cache().Current(),
		Network:    "online",
	}
	if v.Store == "" {
		v.Store = "sqlite"
	}
	if up := client.Upstream(); up != nil {
		v.Upstream = up.String()
	}
	if v.Generation == "" {
		// A fresh process has not activated anything yet; report what is stored.
		gens, err := client.Cache().Generations(ctx)
		if err != nil {
			return View{}, err
		}
		v.Generation = "-"
		for _, g := range gens {
			if g.Complete && g.ID == client.Manifest().Version {
				v.Generation = g.ID
			}
		}
	}

	probeCtx, cancel := context.WithTimeout(ctx, constants.DefaultTimeout)
	defer cancel()
	if err := client.Monitor().Probe(probeCtx); err != nil {
		v.Network = "offline"
	}
	return v, nil
}
