// Package submit is the user-facing write path: deliver now when the
// remote API is reachable, otherwise capture the submission durably for
// the next drain.
package submit

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/agentstation/leadsync/internal/metrics"
	"github.com/agentstation/leadsync/internal/notify"
	"github.com/agentstation/leadsync/internal/queue"
	"github.com/agentstation/leadsync/internal/remote"
	"github.com/agentstation/leadsync/pkg/constants"
	"github.com/agentstation/leadsync/pkg/errors"
)

// Outcome is the result of a submit.
type Outcome struct {
	Submission queue.Submission `json:"submission"`
	Queued     bool             `json:"queued"`
	StatusCode int              `json:"statusCode,omitempty"`
	Record     json.RawMessage  `json:"record,omitempty"`
}

// Submitter delivers or queues submissions.
type Submitter struct {
	store     queue.Store
	deliverer remote.Deliverer
	notifier  notify.Notifier
	topic     string
	online    func() bool
	logger    *zerolog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// Option configures a Submitter.
type Option func(*Submitter)

// WithTopic sets the notification topic.
func WithTopic(topic string) Option {
	return func(s *Submitter) {
		if topic != "" {
			s.topic = topic
		}
	}
}

// WithOnline lets the submitter skip the network when it is known to be
// down.
func WithOnline(online func() bool) Option {
	return func(s *Submitter) {
		s.online = online
	}
}

// WithLogger sets the logger.
func WithLogger(l *zerolog.Logger) Option {
	return func(s *Submitter) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records queue depth after captures.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Submitter) {
		s.metrics = m
	}
}

// New creates a Submitter.
func New(store queue.Store, deliverer remote.Deliverer, notifier notify.Notifier, opts ...Option) *Submitter {
	nop := zerolog.Nop()
	s := &Submitter{
		store:     store,
		deliverer: deliverer,
		notifier:  notifier,
		topic:     constants.DefaultTopic,
		logger:    &nop,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Submit delivers sub, or queues it when the network is unavailable.
// Remote rejections and storage failures are returned to the caller;
// nothing is queued for them.
func (s *Submitter) Submit(ctx context.Context, sub queue.Submission) (Outcome, error) {
	sub, err := queue.Prepare(sub, s.now())
	if err != nil {
		return Outcome{Submission: sub}, err
	}
	log := s.logger.With().Str("submission_id", sub.ID).Str("endpoint", sub.TargetEndpoint).Logger()

	if s.online != nil && !s.online() {
		log.Debug().Msg("Network known offline, queueing without delivery attempt")
		return s.capture(ctx, &log, sub)
	}

	res, err := s.deliverer.Deliver(ctx, sub)
	switch {
	case err == nil:
	case errors.IsNetworkUnavailable(err):
		log.Info().Err(err).Msg("Remote API unreachable, queueing submission")
		return s.capture(ctx, &log, sub)
	default:
		log.Warn().Err(err).Msg("Submission rejected")
		return Outcome{Submission: sub}, err
	}

	kind := notify.KindRecordUpdated
	if sub.Creates() {
		kind = notify.KindNewRecord
	}
	if s.notifier != nil {
		if err := s.notifier.Publish(ctx, s.topic, notify.NewEvent(kind, res.Record, sub.ID)); err != nil {
			log.Warn().Err(err).Msg("Failed to publish record notification")
		}
	}
	log.Info().Int("status", res.StatusCode).Msg("Submission delivered")
	return Outcome{Submission: sub, StatusCode: res.StatusCode, Record: res.Record}, nil
}

func (s *Submitter) capture(ctx context.Context, log *zerolog.Logger, sub queue.Submission) (Outcome, error) {
	stored, err := s.store.Enqueue(ctx, sub)
	if err != nil {
		log.Error().Err(err).Msg("Failed to queue submission")
		return Outcome{Submission: sub}, err
	}
	if n, err := s.store.Count(ctx); err == nil {
		s.metrics.SetQueueDepth(n)
	}
	return Outcome{Submission: stored, Queued: true}, nil
}
