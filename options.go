package leadsync

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/agentstation/leadsync/internal/assetcache"
	"github.com/agentstation/leadsync/internal/database"
	"github.com/agentstation/leadsync/internal/remote"
	"github.com/agentstation/leadsync/pkg/constants"
)

// Option is a function that configures a Client.
type Option func(*options)

// options holds the resolved configuration of a Client.
type options struct {
	apiURL      string
	upstreamURL string

	database     database.Config
	db           *database.DB
	cacheStore   assetcache.CacheStore
	manifest     *assetcache.Manifest
	manifestPath string
	cacheVersion string
	networkOnly  []string

	topic         string
	syncInterval  time.Duration
	syncOnStart   bool
	leaseTTL      time.Duration
	probeURL      string
	probeInterval time.Duration

	network       http.RoundTripper
	tokenResolver remote.TokenResolver
	registry      *prometheus.Registry
	logger        *zerolog.Logger
}

func defaults() *options {
	nop := zerolog.Nop()
	return &options{
		database:      database.Config{Backend: database.SQLite, DSN: database.DefaultSQLitePath()},
		topic:         constants.DefaultTopic,
		syncOnStart:   true,
		leaseTTL:      constants.DrainLeaseTTL,
		probeInterval: constants.DefaultProbeInterval,
		network:       http.DefaultTransport,
		logger:        &nop,
	}
}

func (o *options) apply(opts ...Option) *options {
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// WithAPI sets the remote API root that submissions are delivered to.
func WithAPI(url string) Option {
	return func(o *options) {
		o.apiURL = url
	}
}

// WithUpstream sets the origin whose resources are cached and proxied.
// Without an upstream the asset cache stays idle.
func WithUpstream(url string) Option {
	return func(o *options) {
		o.upstreamURL = url
	}
}

// WithStore selects the durable store backend and location.
func WithStore(backend database.Backend, dsn string) Option {
	return func(o *options) {
		o.database.Backend = backend
		if dsn != "" {
			o.database.DSN = dsn
		}
	}
}

// WithDatabase uses an already open database. The Client does not close it.
func WithDatabase(db *database.DB) Option {
	return func(o *options) {
		o.db = db
	}
}

// WithCacheStore replaces the database-backed asset cache store.
func WithCacheStore(s assetcache.CacheStore) Option {
	return func(o *options) {
		o.cacheStore = s
	}
}

// WithManifest sets the resource manifest of the cache generation.
func WithManifest(m *assetcache.Manifest) Option {
	return func(o *options) {
		o.manifest = m
	}
}

// WithManifestFile loads the resource manifest from a YAML file.
func WithManifestFile(path string) Option {
	return func(o *options) {
		o.manifestPath = path
	}
}

// WithCacheVersion overrides the generation named by the manifest.
func WithCacheVersion(version string) Option {
	return func(o *options) {
		o.cacheVersion = version
	}
}

// WithNetworkOnly lists upstream path prefixes that bypass the asset cache.
func WithNetworkOnly(prefixes ...string) Option {
	return func(o *options) {
		o.networkOnly = append(o.networkOnly, prefixes...)
	}
}

// WithTopic sets the cross-tab channel record events are published on.
func WithTopic(topic string) Option {
	return func(o *options) {
		if topic != "" {
			o.topic = topic
		}
	}
}

// WithSyncInterval drains the queue periodically in addition to reconnects.
// Zero disables periodic drains.
func WithSyncInterval(d time.Duration) Option {
	return func(o *options) {
		o.syncInterval = d
	}
}

// WithSyncOnStart controls the drain pass triggered by Start.
func WithSyncOnStart(enabled bool) Option {
	return func(o *options) {
		o.syncOnStart = enabled
	}
}

// WithLeaseTTL sets how long a drain holds the storage lease.
func WithLeaseTTL(d time.Duration) Option {
	return func(o *options) {
		o.leaseTTL = d
	}
}

// WithProbe configures connectivity probing. An empty url probes the API root.
func WithProbe(url string, interval time.Duration) Option {
	return func(o *options) {
		o.probeURL = url
		o.probeInterval = interval
	}
}

// WithNetwork sets the transport used to reach the upstream and the API.
func WithNetwork(rt http.RoundTripper) Option {
	return func(o *options) {
		if rt != nil {
			o.network = rt
		}
	}
}

// WithTokenResolver supplies fresher credentials at delivery time.
func WithTokenResolver(r remote.TokenResolver) Option {
	return func(o *options) {
		o.tokenResolver = r
	}
}

// WithMetricsRegistry registers collectors with reg instead of a private registry.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithLogger sets the logger shared by every component.
func WithLogger(l *zerolog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
