// Package handlers provides HTTP request handlers for the leadsync local API.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/leadsync/internal/async"
	"github.com/agentstation/leadsync/internal/queue"
	"github.com/agentstation/leadsync/internal/submit"
	"github.com/agentstation/leadsync/internal/syncer"
)

// Submitter delivers a submission or captures it for later.
type Submitter interface {
	Submit(ctx context.Context, sub queue.Submission) (submit.Outcome, error)
}

// Queue is the read and purge surface of the durable store.
type Queue interface {
	ListAll(ctx context.Context) ([]queue.Submission, error)
	Get(ctx context.Context, id string) (queue.Submission, error)
	Remove(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// Syncer starts drain passes.
type Syncer interface {
	Trigger(ctx context.Context, reason string) *async.Task[syncer.Report]
	State() syncer.State
}

// CacheStatus reports the active asset cache generation.
type CacheStatus interface {
	Current() string
}

// Connectivity reports the last observed network state.
type Connectivity interface {
	Online() bool
	Since() time.Time
}

// Realtime is a browsing-context transport.
type Realtime interface {
	http.Handler
	ClientCount() int
}

// Deps are the components the handlers serve.
type Deps struct {
	Submitter    Submitter
	Queue        Queue
	Syncer       Syncer
	Cache        CacheStatus
	Connectivity Connectivity
	WebSocket    Realtime
	SSE          Realtime
	Version      string
}

// Handlers provides access to all HTTP handlers.
type Handlers struct {
	deps   Deps
	ctx    context.Context
	logger *zerolog.Logger
	start  time.Time
}

// New creates a new Handlers instance. ctx outlives single requests and
// bounds work that continues after the response, such as drain passes.
func New(ctx context.Context, deps Deps, logger *zerolog.Logger) *Handlers {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Handlers{
		deps:   deps,
		ctx:    ctx,
		logger: logger,
		start:  time.Now(),
	}
}
