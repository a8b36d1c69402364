package leadsync

import (
	"context"
	"slices"

	"github.com/agentstation/leadsync/internal/assetcache"
	"github.com/agentstation/leadsync/pkg/constants"
	"github.com/agentstation/leadsync/pkg/errors"
	"github.com/agentstation/leadsync/pkg/logging"
)

// CacheInstaller manages the asset cache generation named by the manifest.
type CacheInstaller interface {
	// InstallCache makes the manifest generation current, installing it
	// when no complete copy exists yet.
	InstallCache(ctx context.Context) error
}

// InstallCache implements CacheInstaller. A failed install leaves the
// newest complete generation serving.
func (c *client) InstallCache(ctx context.Context) error {
	if c.upstream == nil {
		return errors.NewConfigError("leadsync", "upstream_url is required to cache resources", nil)
	}

	generation := c.manifest.Version
	log := logging.Component(c.logger, "assetcache").With().Str("generation", generation).Logger()

	gens, err := c.cache.Generations(ctx)
	if err != nil {
		return err
	}

	if !hasComplete(gens, generation) {
		ctx, cancel := context.WithTimeout(ctx, constants.InstallTimeout)
		defer cancel()

		log.Info().Int("resources", len(c.manifest.All())).Msg("Installing cache generation")
		if err := c.cache.Install(ctx, generation, c.manifest.All()); err != nil {
			if prev := newestComplete(gens, generation); prev != "" {
				if rerr := c.cache.Restore(context.WithoutCancel(ctx), prev); rerr == nil {
					log.Warn().Err(err).Str("serving", prev).Msg("Install failed, previous generation kept")
				}
			}
			return err
		}
	}

	if err := c.cache.Activate(ctx, generation); err != nil {
		// Eviction failures leave stale generations behind but the new one is current.
		if c.cache.Current() == generation {
			log.Warn().Err(err).Msg("Cache generation active, eviction incomplete")
			return nil
		}
		return err
	}

	log.Debug().Msg("Cache generation active")
	return nil
}

func hasComplete(gens []assetcache.Generation, id string) bool {
	return slices.ContainsFunc(gens, func(g assetcache.Generation) bool {
		return g.ID == id && g.Complete
	})
}

func newestComplete(gens []assetcache.Generation, except string) string {
	var best assetcache.Generation
	for _, g := range gens {
		if !g.Complete || g.ID == except {
			continue
		}
		if best.ID == "" || g.CreatedAt.After(best.CreatedAt) {
			best = g
		}
	}
	return best.ID
}
