// Package syncer drains the durable submission queue to the remote API.
//
// A Coordinator is Idle or Draining. A drain works on a snapshot of the
// queue: each entry is delivered in insertion order, removed as soon as the
// remote API accepts it and then announced on the cross-tab channel.
// Failures stay queued for the next pass. Passes never overlap within a
// process, and a storage lease keeps other processes sharing the queue out.
package syncer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentstation/leadsync/internal/async"
	"github.com/agentstation/leadsync/internal/connectivity"
	"github.com/agentstation/leadsync/internal/metrics"
	"github.com/agentstation/leadsync/internal/notify"
	"github.com/agentstation/leadsync/internal/queue"
	"github.com/agentstation/leadsync/internal/remote"
	"github.com/agentstation/leadsync/pkg/constants"
	"github.com/agentstation/leadsync/pkg/errors"
)

// State is the coordinator state.
type State int32

// Coordinator states.
const (
	Idle State = iota
	Draining
)

func (s State) String() string {
	if s == Draining {
		return "draining"
	}
	return "idle"
}

// Trigger reasons.
const (
	ReasonReconnect = "reconnect"
	ReasonManual    = "manual"
	ReasonInterval  = "interval"
	ReasonStartup   = "startup"
)

// Queue is the part of the submission store a drain needs.
type Queue interface {
	ListAll(ctx context.Context) ([]queue.Submission, error)
	Remove(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// Report summarizes one drain pass.
type Report struct {
	ID         string    `json:"id" yaml:"id"`
	Trigger    string    `json:"trigger" yaml:"trigger"`
	Skipped    bool      `json:"skipped" yaml:"skipped"`
	Reason     string    `json:"reason,omitempty" yaml:"reason,omitempty"`
	Snapshot   int       `json:"snapshot" yaml:"snapshot"`
	Delivered  []string  `json:"delivered" yaml:"delivered"`
	Failed     []Failure `json:"failed" yaml:"failed"`
	Remaining  int       `json:"remaining" yaml:"remaining"`
	StartedAt  time.Time `json:"startedAt" yaml:"started_at"`
	FinishedAt time.Time `json:"finishedAt" yaml:"finished_at"`
}

// Failure is one entry left in the queue by a pass.
type Failure struct {
	SubmissionID string `json:"submissionId" yaml:"submission_id"`
	StatusCode   int    `json:"statusCode,omitempty" yaml:"status_code,omitempty"`
	AuthRejected bool   `json:"authRejected,omitempty" yaml:"auth_rejected,omitempty"`
	Error        string `json:"error" yaml:"error"`
}

// Coordinator runs drain passes.
type Coordinator struct {
	queue     Queue
	lease     queue.Lease
	deliverer remote.Deliverer
	notifier  notify.Notifier
	topic     string
	holder    string
	leaseTTL  time.Duration
	interval  time.Duration
	logger    *zerolog.Logger
	metrics   *metrics.Metrics
	tasks     *async.Group

	state atomic.Int32
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLease enables cross-process exclusion through l.
func WithLease(l queue.Lease) Option {
	return func(c *Coordinator) {
		c.lease = l
	}
}

// WithLeaseTTL bounds how long a crashed holder blocks other processes.
func WithLeaseTTL(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.leaseTTL = d
		}
	}
}

// WithHolder sets the lease holder identity.
func WithHolder(id string) Option {
	return func(c *Coordinator) {
		if id != "" {
			c.holder = id
		}
	}
}

// WithTopic sets the notification topic.
func WithTopic(topic string) Option {
	return func(c *Coordinator) {
		if topic != "" {
			c.topic = topic
		}
	}
}

// WithInterval adds a periodic trigger to Run. Zero disables it.
func WithInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		c.interval = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *zerolog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records deliveries and passes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// NewCoordinator creates an idle coordinator.
func NewCoordinator(q Queue, d remote.Deliverer, n notify.Notifier, opts ...Option) *Coordinator {
	nop := zerolog.Nop()
	c := &Coordinator{
		queue:     q,
		deliverer: d,
		notifier:  n,
		topic:     constants.DefaultTopic,
		holder:    uuid.NewString(),
		leaseTTL:  constants.DrainLeaseTTL,
		logger:    &nop,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.tasks = async.NewGroup(c.logger)
	return c
}

// State returns the current state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Holder returns the lease holder identity of this coordinator.
func (c *Coordinator) Holder() string {
	return c.holder
}

// Trigger starts a drain pass in the background. While a pass is already
// running it returns a completed task whose report is marked skipped.
// ctx bounds the pass.
func (c *Coordinator) Trigger(ctx context.Context, reason string) *async.Task[Report] {
	if !c.state.CompareAndSwap(int32(Idle), int32(Draining)) {
		c.metrics.Drain(metrics.ResultSkipped, 0)
		c.logger.Debug().Str("trigger", reason).Msg("Drain already running, trigger ignored")
		now := time.Now().UTC()
		return async.Resolved(Report{
			Trigger:    reason,
			Skipped:    true,
			Reason:     errors.ErrDrainInProgress.Error(),
			StartedAt:  now,
			FinishedAt: now,
		}, nil)
	}

	task := async.Go(ctx, func(ctx context.Context) (Report, error) {
		defer c.state.Store(int32(Idle))
		return c.drain(ctx, reason)
	})
	c.tasks.Go(func() { <-task.Done() })
	return task
}

// Drain runs a pass and waits for its report.
func (c *Coordinator) Drain(ctx context.Context, reason string) (Report, error) {
	return c.Trigger(ctx, reason).Wait(ctx)
}

// Wait blocks until every triggered pass has finished.
func (c *Coordinator) Wait(ctx context.Context) error {
	return c.tasks.Wait(ctx)
}

// Run triggers passes on tagged reconnect signals and, when configured, on
// a fixed interval, until ctx is done.
func (c *Coordinator) Run(ctx context.Context, signals <-chan connectivity.Signal) error {
	var tick <-chan time.Time
	if c.interval > 0 {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-signals:
			if !ok {
				signals = nil
				continue
			}
			if sig.Tag != constants.SyncTag {
				c.logger.Debug().Str("tag", sig.Tag).Msg("Ignoring signal")
				continue
			}
			c.Trigger(ctx, ReasonReconnect)
		case <-tick:
			c.Trigger(ctx, ReasonInterval)
		}
	}
}

func (c *Coordinator) drain(ctx context.Context, reason string) (Report, error) {
	report := Report{
		ID:        uuid.NewString(),
		Trigger:   reason,
		StartedAt: time.Now().UTC(),
		Delivered: []string{},
		Failed:    []Failure{},
	}
	log := c.logger.With().Str("drain_id", report.ID).Str("trigger", reason).Logger()

	if c.lease != nil {
		ok, err := c.lease.Acquire(ctx, constants.DrainLeaseName, c.holder, c.leaseTTL)
		if err != nil {
			c.metrics.Drain(metrics.ResultFailure, 0)
			log.Error().Err(err).Msg("Failed to acquire drain lease")
			return c.finish(report), err
		}
		if !ok {
			c.metrics.Drain(metrics.ResultSkipped, 0)
			log.Info().Msg("Drain lease held elsewhere, skipping pass")
			report.Skipped = true
			report.Reason = errors.ErrDrainInProgress.Error()
			return c.finish(report), nil
		}
		defer func() {
			if err := c.lease.Release(context.WithoutCancel(ctx), constants.DrainLeaseName, c.holder); err != nil {
				log.Warn().Err(err).Msg("Failed to release drain lease")
			}
		}()
	}

	snapshot, err := c.queue.ListAll(ctx)
	if err != nil {
		c.metrics.Drain(metrics.ResultFailure, 0)
		log.Error().Err(err).Msg("Failed to read pending submissions")
		return c.finish(report), err
	}
	report.Snapshot = len(snapshot)
	log.Info().Int("pending", len(snapshot)).Msg("Drain started")

	renewed := time.Now()
	for _, sub := range snapshot {
		if err := ctx.Err(); err != nil {
			log.Warn().Err(err).Msg("Drain interrupted")
			c.metrics.Drain(metrics.ResultFailure, 0)
			return c.finish(report), err
		}
		if c.lease != nil && time.Since(renewed) > c.leaseTTL/3 {
			ok, err := c.lease.Acquire(ctx, constants.DrainLeaseName, c.holder, c.leaseTTL)
			if err != nil {
				log.Warn().Err(err).Msg("Failed to renew drain lease")
			} else if !ok {
				log.Warn().Int("delivered", len(report.Delivered)).Msg("Drain lease taken over, stopping pass")
				c.metrics.Drain(metrics.ResultFailure, 0)
				report.Reason = errors.ErrLeaseLost.Error()
				return c.finish(report), nil
			}
			renewed = time.Now()
		}
		c.deliverOne(ctx, &log, sub, &report)
	}

	if n, err := c.queue.Count(ctx); err == nil {
		report.Remaining = n
		c.metrics.SetQueueDepth(n)
	}
	report = c.finish(report)
	c.metrics.Drain(metrics.ResultCompleted, report.FinishedAt.Sub(report.StartedAt))
	log.Info().
		Int("delivered", len(report.Delivered)).
		Int("failed", len(report.Failed)).
		Int("remaining", report.Remaining).
		Dur("duration", report.FinishedAt.Sub(report.StartedAt)).
		Msg("Drain finished")
	return report, nil
}

func (c *Coordinator) deliverOne(ctx context.Context, log *zerolog.Logger, sub queue.Submission, report *Report) {
	entryLog := log.With().Str("submission_id", sub.ID).Str("endpoint", sub.TargetEndpoint).Logger()

	res, err := c.deliverer.Deliver(ctx, sub)
	if err != nil {
		f := Failure{SubmissionID: sub.ID, Error: err.Error()}
		var de *errors.DeliveryError
		if errors.As(err, &de) {
			f.StatusCode = de.StatusCode
		}
		switch {
		case errors.IsAuthRejected(err):
			f.AuthRejected = true
			c.metrics.Delivery(metrics.ResultAuthRejected)
			entryLog.Error().Err(err).Int("status", f.StatusCode).Msg("Remote API rejected submission credentials")
		case errors.IsNetworkUnavailable(err):
			c.metrics.Delivery(metrics.ResultFailure)
			entryLog.Warn().Err(err).Msg("Delivery failed, network unavailable")
		default:
			c.metrics.Delivery(metrics.ResultFailure)
			entryLog.Warn().Err(err).Int("status", f.StatusCode).Msg("Delivery failed")
		}
		report.Failed = append(report.Failed, f)
		return
	}

	c.metrics.Delivery(metrics.ResultSuccess)
	report.Delivered = append(report.Delivered, sub.ID)
	if err := c.queue.Remove(ctx, sub.ID); err != nil {
		entryLog.Error().Err(err).Msg("Delivered submission could not be removed and will be redelivered")
	}

	kind := notify.KindRecordUpdated
	if sub.Creates() {
		kind = notify.KindNewRecord
	}
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Publish(ctx, c.topic, notify.NewEvent(kind, res.Record, sub.ID)); err != nil {
		entryLog.Warn().Err(err).Msg("Failed to publish record notification")
		return
	}
	entryLog.Debug().Str("kind", string(kind)).Msg("Submission delivered")
}

func (c *Coordinator) finish(r Report) Report {
	r.FinishedAt = time.Now().UTC()
	return r
}
