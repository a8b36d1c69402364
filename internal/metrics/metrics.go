// Package metrics defines the Prometheus collectors shared by the cache,
// queue, sync and notification layers. Every method is safe on a nil
// receiver so components can run without instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "leadsync"

// Delivery results.
const (
	ResultSuccess      = "success"
	ResultFailure      = "failure"
	ResultAuthRejected = "auth_rejected"
	ResultSkipped      = "skipped"
	ResultCompleted    = "completed"
)

// Metrics holds every collector exported by a leadsync process.
type Metrics struct {
	registry *prometheus.Registry

	cacheLookups     *prometheus.CounterVec
	cacheInstalls    *prometheus.CounterVec
	offlineFallbacks prometheus.Counter
	queueDepth       prometheus.Gauge
	enqueued         prometheus.Counter
	deliveries       *prometheus.CounterVec
	drains           *prometheus.CounterVec
	drainDuration    prometheus.Histogram
	eventsPublished  prometheus.Counter
	eventsDropped    prometheus.Counter
	subscribers      prometheus.Gauge
}

// New constructs the collectors and registers them with reg.
// A nil reg gets a private registry including Go runtime collectors.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	m := &Metrics{
		registry: reg,
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Asset cache lookups by outcome (hit, miss).",
		}, []string{"outcome"}),
		cacheInstalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "installs_total",
			Help:      "Cache generation installs by result.",
		}, []string{"result"}),
		offlineFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "offline_fallbacks_total",
			Help:      "Navigations answered with the offline page.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Pending submissions observed at the last drain or enqueue.",
		}),
		enqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "enqueued_total",
			Help:      "Submissions captured while offline.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "deliveries_total",
			Help:      "Queued submission deliveries by result.",
		}, []string{"result"}),
		drains: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "drains_total",
			Help:      "Drain passes by result (completed, skipped).",
		}, []string{"result"}),
		drainDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "drain_seconds",
			Help:      "Wall time of completed drain passes.",
			Buckets:   prometheus.DefBuckets,
		}),
		eventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "events_published_total",
			Help:      "Events published to the cross-tab channel.",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "events_dropped_total",
			Help:      "Events dropped because a subscriber queue was full.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "subscribers",
			Help:      "Live cross-tab subscribers.",
		}),
	}
	reg.MustRegister(
		m.cacheLookups, m.cacheInstalls, m.offlineFallbacks,
		m.queueDepth, m.enqueued,
		m.deliveries, m.drains, m.drainDuration,
		m.eventsPublished, m.eventsDropped, m.subscribers,
	)
	return m
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// CacheLookup records a cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

// CacheInstall records the result of a generation install.
func (m *Metrics) CacheInstall(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.cacheInstalls.WithLabelValues(ResultSuccess).Inc()
		return
	}
	m.cacheInstalls.WithLabelValues(ResultFailure).Inc()
}

// OfflineFallback records a navigation answered with the offline page.
func (m *Metrics) OfflineFallback() {
	if m == nil {
		return
	}
	m.offlineFallbacks.Inc()
}

// Enqueued records a captured submission.
func (m *Metrics) Enqueued() {
	if m == nil {
		return
	}
	m.enqueued.Inc()
}

// SetQueueDepth records the observed number of pending submissions.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// Delivery records one delivery attempt.
func (m *Metrics) Delivery(result string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(result).Inc()
}

// Drain records a drain pass. Duration is only observed for completed passes.
func (m *Metrics) Drain(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.drains.WithLabelValues(result).Inc()
	if result == ResultCompleted {
		m.drainDuration.Observe(d.Seconds())
	}
}

// EventPublished records a publication on the cross-tab channel.
func (m *Metrics) EventPublished() {
	if m == nil {
		return
	}
	m.eventsPublished.Inc()
}

// EventDropped records an event discarded for a slow subscriber.
func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}

// SubscriberDelta adjusts the live subscriber gauge.
func (m *Metrics) SubscriberDelta(delta int) {
	if m == nil {
		return
	}
	m.subscribers.Add(float64(delta))
}
