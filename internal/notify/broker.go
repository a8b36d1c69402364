package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/agentstation/leadsync/internal/metrics"
	"github.com/agentstation/leadsync/pkg/constants"
	"github.com/agentstation/leadsync/pkg/errors"
)

// Broker is the in-process Notifier. Each subscriber owns a bounded queue
// drained by its own goroutine, so Publish never blocks on a slow handler.
type Broker struct {
	logger  *zerolog.Logger
	metrics *metrics.Metrics
	bufSize int

	mu     sync.RWMutex
	topics map[string]map[*subscriber]struct{}
	closed bool

	wg conc.WaitGroup
}

// Option configures a Broker.
type Option func(*Broker)

// WithBufferSize sets the per-subscriber queue length.
func WithBufferSize(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.bufSize = n
		}
	}
}

// WithMetrics records publications, drops and subscriber counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Broker) {
		b.metrics = m
	}
}

// NewBroker creates a new event broker.
func NewBroker(logger *zerolog.Logger, opts ...Option) *Broker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	b := &Broker{
		logger:  logger,
		bufSize: constants.SubscriberBufferSize,
		topics:  make(map[string]map[*subscriber]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Subscribe registers handler for events published on topic from now on.
// Subscribing to a closed broker yields an inert subscription.
func (b *Broker) Subscribe(topic string, handler Handler, opts ...SubscribeOption) Subscription {
	cfg := applySubscribeOptions(opts)
	s := &subscriber{
		broker:  b,
		topic:   topic,
		origin:  cfg.origin,
		handler: handler,
		queue:   make(chan Event, b.bufSize),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed || handler == nil {
		b.mu.Unlock()
		s.once.Do(func() { close(s.done) })
		return s
	}
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[*subscriber]struct{})
		b.topics[topic] = subs
	}
	subs[s] = struct{}{}
	b.wg.Go(s.run)
	b.mu.Unlock()

	b.metrics.SubscriberDelta(1)
	b.logger.Debug().
		Str("topic", topic).
		Str("origin", cfg.origin).
		Msg("Subscriber registered")
	return s
}

// Publish offers event to every current subscriber on topic except those
// owned by the event's origin. Subscribers whose queue is full miss it.
func (b *Broker) Publish(ctx context.Context, topic string, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if topic == "" {
		return errors.NewValidationError("topic", topic, "must not be empty")
	}
	if !event.Kind.Valid() {
		return errors.NewValidationError("kind", event.Kind, "must be NEW_RECORD or RECORD_UPDATED")
	}
	event.Topic = topic
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return errors.ErrClosed
	}
	targets := make([]*subscriber, 0, len(b.topics[topic]))
	for s := range b.topics[topic] {
		if s.origin != "" && s.origin == event.Origin {
			continue
		}
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		select {
		case s.queue <- event:
			delivered++
		default:
			b.metrics.EventDropped()
			b.logger.Warn().
				Str("topic", topic).
				Str("origin", s.origin).
				Str("kind", string(event.Kind)).
				Msg("Subscriber queue full, event dropped")
		}
	}

	b.metrics.EventPublished()
	b.logger.Debug().
		Str("topic", topic).
		Str("kind", string(event.Kind)).
		Int("subscribers", delivered).
		Msg("Event broadcasted")
	return nil
}

// SubscriberCount returns the number of live subscribers on topic.
func (b *Broker) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// Close stops every subscription and waits for in-flight handlers.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var all []*subscriber
	for _, subs := range b.topics {
		for s := range subs {
			all = append(all, s)
		}
	}
	b.topics = make(map[string]map[*subscriber]struct{})
	b.mu.Unlock()

	for _, s := range all {
		s.stop()
	}
	b.wg.Wait()
	b.logger.Info().Msg("Event broker shut down")
	return nil
}

func (b *Broker) remove(s *subscriber) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.topics[s.topic]
	if !ok {
		return false
	}
	if _, ok := subs[s]; !ok {
		return false
	}
	delete(subs, s)
	if len(subs) == 0 {
		delete(b.topics, s.topic)
	}
	return true
}

type subscriber struct {
	broker  *Broker
	topic   string
	origin  string
	handler Handler
	queue   chan Event
	done    chan struct{}
	once    sync.Once
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case e := <-s.queue:
			s.deliver(e)
		}
	}
}

func (s *subscriber) deliver(e Event) {
	var pc panics.Catcher
	pc.Try(func() { s.handler(e) })
	if r := pc.Recovered(); r != nil {
		s.broker.logger.Error().
			Err(r.AsError()).
			Str("topic", s.topic).
			Msg("Subscriber handler panicked")
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() {
		close(s.done)
		s.broker.metrics.SubscriberDelta(-1)
	})
}

// Close implements Subscription.
func (s *subscriber) Close() error {
	if s.broker.remove(s) {
		s.broker.logger.Debug().Str("topic", s.topic).Msg("Subscriber unregistered")
	}
	s.stop()
	return nil
}
