package async

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"
)

// Group tracks background goroutines. Unlike sync.WaitGroup it may be
// waited on concurrently with Go, and Wait honours a context.
type Group struct {
	logger *zerolog.Logger

	mu      sync.Mutex
	pending int
	idle    chan struct{}
}

// NewGroup creates a Group that logs recovered panics to logger.
func NewGroup(logger *zerolog.Logger) *Group {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	idle := make(chan struct{})
	close(idle)
	return &Group{logger: logger, idle: idle}
}

// Go runs fn in a tracked goroutine.
func (g *Group) Go(fn func()) {
	g.mu.Lock()
	if g.pending == 0 {
		g.idle = make(chan struct{})
	}
	g.pending++
	g.mu.Unlock()

	go func() {
		defer g.finish()
		var pc panics.Catcher
		pc.Try(fn)
		if r := pc.Recovered(); r != nil {
			g.logger.Error().Err(r.AsError()).Msg("Background task panicked")
		}
	}()
}

func (g *Group) finish() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending--
	if g.pending == 0 {
		close(g.idle)
	}
}

// Pending returns the number of goroutines still running.
func (g *Group) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending
}

// Wait blocks until no tracked goroutine is running or ctx is done.
// Work added while waiting extends the wait.
func (g *Group) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		if g.pending == 0 {
			g.mu.Unlock()
			return nil
		}
		idle := g.idle
		g.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
