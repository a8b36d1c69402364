// Package connectivity tracks whether the network is reachable and emits a
// tagged signal each time it comes back.
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/agentstation/leadsync/pkg/constants"
	"github.com/agentstation/leadsync/pkg/errors"
)

// Signal announces that queued work tagged Tag may now proceed.
type Signal struct {
	Tag string
	At  time.Time
}

// Monitor holds the online state. Failures reported by the transport flip
// it offline; a successful probe or request flips it back online and emits
// a Signal.
type Monitor struct {
	probeURL   string
	client     *http.Client
	interval   time.Duration
	initial    time.Duration
	maxBackoff time.Duration
	logger     *zerolog.Logger

	mu      sync.Mutex
	online  bool
	since   time.Time
	signals chan Signal
	wake    chan struct{}
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithProbeURL sets the URL probed while offline. Without one the monitor
// relies on MarkOnline alone.
func WithProbeURL(u string) Option {
	return func(m *Monitor) {
		m.probeURL = u
	}
}

// WithHTTPClient sets the client used for probes.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Monitor) {
		if c != nil {
			m.client = c
		}
	}
}

// WithInterval sets how often the probe runs while online. Zero disables
// online probing.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		m.interval = d
	}
}

// WithBackoff bounds the offline probe cadence.
func WithBackoff(initial, maxInterval time.Duration) Option {
	return func(m *Monitor) {
		if initial > 0 {
			m.initial = initial
		}
		if maxInterval > 0 {
			m.maxBackoff = maxInterval
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zerolog.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMonitor creates a monitor that starts online.
func NewMonitor(opts ...Option) *Monitor {
	nop := zerolog.Nop()
	m := &Monitor{
		client:     &http.Client{Timeout: constants.DefaultTimeout},
		interval:   constants.DefaultProbeInterval,
		initial:    constants.ProbeBackoff,
		maxBackoff: constants.MaxProbeBackoff,
		logger:     &nop,
		online:     true,
		since:      time.Now(),
		signals:    make(chan Signal, 1),
		wake:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Signals delivers reconnect signals. Signals coalesce while one is
// pending.
func (m *Monitor) Signals() <-chan Signal {
	return m.signals
}

// Online reports the current state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Since returns when the current state began.
func (m *Monitor) Since() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.since
}

// MarkOffline records a connectivity failure.
func (m *Monitor) MarkOffline(cause error) {
	m.mu.Lock()
	changed := m.online
	if changed {
		m.online = false
		m.since = time.Now()
	}
	m.mu.Unlock()
	if !changed {
		return
	}
	m.logger.Warn().Err(cause).Msg("Network went offline")
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// MarkOnline records that the network answered. Coming back from offline
// emits a Signal tagged for submission sync.
func (m *Monitor) MarkOnline() {
	m.mu.Lock()
	changed := !m.online
	if changed {
		m.online = true
		m.since = time.Now()
	}
	m.mu.Unlock()
	if !changed {
		return
	}
	m.logger.Info().Msg("Network back online")
	select {
	case m.signals <- Signal{Tag: constants.SyncTag, At: time.Now()}:
	default:
	}
}

// Probe checks the probe URL once and updates the state. Any HTTP
// response counts as reachable.
func (m *Monitor) Probe(ctx context.Context) error {
	if m.probeURL == "" {
		return errors.NewConfigError("connectivity", "no probe URL configured", nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.probeURL, nil)
	if err != nil {
		return errors.NewConfigError("connectivity", "invalid probe URL", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		nerr := errors.NewNetworkError(http.MethodHead, m.probeURL, err)
		m.MarkOffline(nerr)
		return nerr
	}
	_ = resp.Body.Close()
	m.MarkOnline()
	return nil
}

// Run probes until ctx is done: on a fixed interval while online and with
// exponential backoff while offline.
func (m *Monitor) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.initial
	b.MaxInterval = m.maxBackoff

	for {
		var wait <-chan time.Time
		if m.Online() {
			b.Reset()
			if m.interval > 0 && m.probeURL != "" {
				wait = time.After(m.interval)
			}
		} else if m.probeURL != "" {
			sleep := b.NextBackOff()
			if sleep == backoff.Stop {
				sleep = m.maxBackoff
			}
			m.logger.Debug().Dur("backoff", sleep).Msg("Scheduling connectivity probe")
			wait = time.After(sleep)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-m.wake:
			continue
		case <-wait:
			_ = m.Probe(ctx)
		}
	}
}
