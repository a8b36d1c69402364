package leadsync

import (
	"context"

	"github.com/agentstation/leadsync/internal/syncer"
	"github.com/agentstation/leadsync/pkg/errors"
)

// Lifecycle controls the background loops of a Client.
type Lifecycle interface {
	// Start launches connectivity monitoring, the drain loop and the
	// startup cache install. It returns immediately.
	Start(ctx context.Context) error

	// Close stops the background loops, waits for in-flight work and
	// releases the store.
	Close() error
}

// Start implements Lifecycle.
func (c *client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.ErrClosed
	}
	if c.started {
		return errors.NewConfigError("leadsync", "client already started", nil)
	}
	c.started = true

	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Go(func() {
		if err := c.monitor.Run(ctx); err != nil {
			c.logger.Error().Err(err).Msg("Connectivity monitor stopped")
		}
	})
	c.wg.Go(func() {
		if err := c.coord.Run(ctx, c.monitor.Signals()); err != nil {
			c.logger.Error().Err(err).Msg("Drain loop stopped")
		}
	})

	if c.upstream != nil {
		c.wg.Go(func() {
			if err := c.InstallCache(ctx); err != nil {
				c.logger.Warn().Err(err).Msg("Asset cache not installed, serving from network")
			}
		})
	}

	if c.options.syncOnStart {
		c.coord.Trigger(ctx, syncer.ReasonStartup)
	}

	c.logger.Info().
		Bool("cache", c.upstream != nil).
		Dur("sync_interval", c.options.syncInterval).
		Msg("Background services started")
	return nil
}

// Close implements Lifecycle.
func (c *client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()

	// Passes and cache populations observe the cancelled context and finish.
	waitCtx := context.Background()
	errs := []error{
		c.coord.Wait(waitCtx),
		c.cache.Wait(waitCtx),
		c.broker.Close(),
		c.closeDB(),
	}

	c.logger.Debug().Msg("Client closed")
	return errors.Join(errs...)
}

func (c *client) closeDB() error {
	if !c.ownsDB {
		return nil
	}
	return errors.WrapStorage("close", c.db.Close())
}
