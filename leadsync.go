package leadsync

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/agentstation/leadsync/internal/assetcache"
	"github.com/agentstation/leadsync/internal/connectivity"
	"github.com/agentstation/leadsync/internal/database"
	"github.com/agentstation/leadsync/internal/intercept"
	"github.com/agentstation/leadsync/internal/metrics"
	"github.com/agentstation/leadsync/internal/notify"
	"github.com/agentstation/leadsync/internal/queue"
	"github.com/agentstation/leadsync/internal/remote"
	"github.com/agentstation/leadsync/internal/submit"
	"github.com/agentstation/leadsync/internal/syncer"
	"github.com/agentstation/leadsync/pkg/constants"
	"github.com/agentstation/leadsync/pkg/errors"
	"github.com/agentstation/leadsync/pkg/logging"
)

// Compile-time interface check to ensure proper implementation.
var _ Client = (*client)(nil)

// Submitter accepts writes from the front end.
type Submitter interface {
	// Submit delivers sub now or queues it when the network is unavailable.
	Submit(ctx context.Context, sub queue.Submission) (submit.Outcome, error)
}

// Syncer drains the queue.
type Syncer interface {
	// Sync runs a drain pass and returns its report.
	Sync(ctx context.Context) (syncer.Report, error)
}

// Components exposes the parts a Client is assembled from.
type Components interface {
	Queue() queue.Store
	Cache() *assetcache.Manager
	Coordinator() *syncer.Coordinator
	Broker() *notify.Broker
	Monitor() *connectivity.Monitor
	Metrics() *metrics.Metrics
	// Transport answers upstream requests from the cache or the network.
	Transport() http.RoundTripper
	// Upstream is the proxied origin, nil when none is configured.
	Upstream() *url.URL
	// Topic is the cross-tab channel carrying record events.
	Topic() string
	// Manifest is the resource set of the configured cache generation.
	Manifest() *assetcache.Manifest
}

// Client is a running offline-resilient submission stack.
type Client interface {
	Submitter
	Syncer
	Components
	Lifecycle
	Hooks
	CacheInstaller
}

// client is the internal implementation of the Client interface.
type client struct {
	options *options
	logger  *zerolog.Logger

	db        *database.DB
	ownsDB    bool
	store     *queue.SQLStore
	cache     *assetcache.Manager
	manifest  *assetcache.Manifest
	broker    *notify.Broker
	monitor   *connectivity.Monitor
	remote    *remote.Client
	submitter *submit.Submitter
	coord     *syncer.Coordinator
	transport *intercept.Transport
	upstream  *url.URL
	metrics   *metrics.Metrics
	hooks     *hooks

	// lifecycle state
	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	wg      conc.WaitGroup
}

// New opens the durable store and assembles a Client. Background loops
// do not run until Start.
func New(ctx context.Context, opts ...Option) (Client, error) {
	o := defaults().apply(opts...)
	c := &client{
		options: o,
		logger:  o.logger,
		metrics: metrics.New(o.registry),
	}

	if o.apiURL == "" {
		return nil, errors.NewConfigError("leadsync", "api_url is required", nil)
	}

	manifest, err := c.loadManifest()
	if err != nil {
		return nil, err
	}
	c.manifest = manifest

	if o.upstreamURL != "" {
		u, err := url.Parse(o.upstreamURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, errors.NewConfigError("leadsync", "upstream_url must be an absolute URL", err)
		}
		c.upstream = u
	}

	c.db = o.db
	if c.db == nil {
		if c.db, err = database.Open(ctx, o.database, logging.Component(o.logger, "database")); err != nil {
			return nil, err
		}
		c.ownsDB = true
	}

	c.store = queue.NewSQLStore(c.db,
		queue.WithLogger(logging.Component(o.logger, "queue")),
		queue.WithMetrics(c.metrics),
	)

	c.broker = notify.NewBroker(logging.Component(o.logger, "notify"), notify.WithMetrics(c.metrics))
	c.hooks = newHooks(c.broker, o.topic)

	probeURL := o.probeURL
	if probeURL == "" {
		probeURL = o.apiURL
	}
	c.monitor = connectivity.NewMonitor(
		connectivity.WithProbeURL(probeURL),
		connectivity.WithHTTPClient(&http.Client{Transport: o.network, Timeout: constants.DefaultTimeout}),
		connectivity.WithInterval(o.probeInterval),
		connectivity.WithLogger(logging.Component(o.logger, "connectivity")),
	)

	// Every request that reaches the network reports its outcome to the monitor.
	network := intercept.NewReportingTransport(o.network, c.monitor)

	if c.remote, err = remote.New(o.apiURL,
		remote.WithTransport(network),
		remote.WithTokenResolver(o.tokenResolver),
		remote.WithLogger(logging.Component(o.logger, "remote")),
	); err != nil {
		c.closeDB()
		return nil, err
	}

	cacheStore := o.cacheStore
	if cacheStore == nil {
		cacheStore = assetcache.NewSQLStore(c.db)
	}
	cacheOpts := []assetcache.Option{
		assetcache.WithNetwork(network),
		assetcache.WithOfflinePage(manifest.OfflinePage),
		assetcache.WithLogger(logging.Component(o.logger, "assetcache")),
		assetcache.WithMetrics(c.metrics),
	}
	if c.upstream != nil {
		cacheOpts = append(cacheOpts, assetcache.WithOrigin(c.upstream))
	}
	c.cache = assetcache.NewManager(cacheStore, cacheOpts...)

	c.transport = intercept.NewTransport(c.cache,
		intercept.WithNetwork(network),
		intercept.WithNetworkOnly(o.networkOnly...),
		intercept.WithLogger(logging.Component(o.logger, "intercept")),
	)

	c.submitter = submit.New(c.store, c.remote, c.broker,
		submit.WithTopic(o.topic),
		submit.WithOnline(c.monitor.Online),
		submit.WithLogger(logging.Component(o.logger, "submit")),
		submit.WithMetrics(c.metrics),
	)

	c.coord = syncer.NewCoordinator(c.store, c.remote, c.broker,
		syncer.WithLease(c.store),
		syncer.WithLeaseTTL(o.leaseTTL),
		syncer.WithTopic(o.topic),
		syncer.WithInterval(o.syncInterval),
		syncer.WithLogger(logging.Component(o.logger, "syncer")),
		syncer.WithMetrics(c.metrics),
	)

	c.logger.Debug().
		Str("api", o.apiURL).
		Str("upstream", o.upstreamURL).
		Str("store", string(c.db.Backend())).
		Str("topic", o.topic).
		Msg("Client assembled")

	return c, nil
}

func (c *client) loadManifest() (*assetcache.Manifest, error) {
	m := c.options.manifest
	if m == nil && c.options.manifestPath != "" {
		loaded, err := assetcache.LoadManifest(c.options.manifestPath)
		if err != nil {
			return nil, err
		}
		m = loaded
	}
	if m == nil {
		m = assetcache.DefaultManifest()
	}
	if c.options.cacheVersion != "" {
		cp := *m
		cp.Version = c.options.cacheVersion
		m = &cp
	}
	return m, nil
}

// Submit implements Submitter.
func (c *client) Submit(ctx context.Context, sub queue.Submission) (submit.Outcome, error) {
	return c.submitter.Submit(ctx, sub)
}

// Sync implements Syncer.
func (c *client) Sync(ctx context.Context) (syncer.Report, error) {
	return c.coord.Drain(ctx, syncer.ReasonManual)
}

func (c *client) Queue() queue.Store               { return c.store }
func (c *client) Cache() *assetcache.Manager       { return c.cache }
func (c *client) Coordinator() *syncer.Coordinator { return c.coord }
func (c *client) Broker() *notify.Broker           { return c.broker }
func (c *client) Monitor() *connectivity.Monitor   { return c.monitor }
func (c *client) Metrics() *metrics.Metrics        { return c.metrics }
func (c *client) Transport() http.RoundTripper     { return c.transport }
func (c *client) Upstream() *url.URL               { return c.upstream }
func (c *client) Topic() string                    { return c.options.topic }
func (c *client) Manifest() *assetcache.Manifest   { return c.manifest }
