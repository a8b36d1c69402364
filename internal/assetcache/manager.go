// Package assetcache is the versioned cache of static application resources.
//
// A generation is installed all-or-nothing from a resource manifest, then
// activated, which evicts every other generation. Requests are served
// cache-first from the current generation with network fallback, and
// same-origin successes are written back in the background.
package assetcache

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/agentstation/leadsync/internal/async"
	"github.com/agentstation/leadsync/internal/metrics"
	"github.com/agentstation/leadsync/pkg/constants"
	"github.com/agentstation/leadsync/pkg/errors"
)

// Manager owns the cache generations and the cache-first policy.
type Manager struct {
	store       CacheStore
	network     http.RoundTripper
	origin      *url.URL
	offlinePath string
	fetchers    int
	logger      *zerolog.Logger
	metrics     *metrics.Metrics
	tasks       *async.Group

	mu      sync.RWMutex
	current string
}

// Option configures a Manager.
type Option func(*Manager)

// WithNetwork sets the transport used to reach the network.
func WithNetwork(rt http.RoundTripper) Option {
	return func(m *Manager) {
		if rt != nil {
			m.network = rt
		}
	}
}

// WithOrigin sets the application origin. Relative resources resolve
// against it and only responses from it are cached on the fly.
func WithOrigin(u *url.URL) Option {
	return func(m *Manager) {
		m.origin = u
	}
}

// WithOfflinePage sets the resource substituted for failed navigations.
func WithOfflinePage(path string) Option {
	return func(m *Manager) {
		m.offlinePath = path
	}
}

// WithConcurrency bounds parallel fetches during install.
func WithConcurrency(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.fetchers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zerolog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics records lookups, installs and offline fallbacks.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// NewManager creates a manager over store.
func NewManager(store CacheStore, opts ...Option) *Manager {
	nop := zerolog.Nop()
	m := &Manager{
		store:    store,
		network:  http.DefaultTransport,
		fetchers: constants.MaxConcurrentFetches,
		logger:   &nop,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	m.tasks = async.NewGroup(m.logger)
	return m
}

// Current returns the generation being served, or "" before activation.
func (m *Manager) Current() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func (m *Manager) setCurrent(generation string) {
	m.mu.Lock()
	m.current = generation
	m.mu.Unlock()
}

// Wait blocks until every background cache write has finished.
func (m *Manager) Wait(ctx context.Context) error {
	return m.tasks.Wait(ctx)
}

// Install fetches every resource into a staging generation private to this
// attempt, then promotes it to generation. Any fetch failure or non-2xx
// status aborts the install, deletes the staged entries and returns a
// CacheInstallError; generation itself is never touched. Installing an
// already complete generation is a no-op.
func (m *Manager) Install(ctx context.Context, generation string, resources []string) error {
	if strings.TrimSpace(generation) == "" {
		return errors.NewValidationError("generation", generation, "must not be empty")
	}
	if IsStaging(generation) {
		return errors.NewValidationError("generation", generation, "must not contain "+stagingMarker)
	}
	if len(resources) == 0 {
		return errors.NewValidationError("resources", nil, "must not be empty")
	}
	log := m.logger.With().Str("generation", generation).Logger()

	gens, err := m.store.Generations(ctx)
	if err != nil {
		return &errors.CacheInstallError{Generation: generation, Err: err}
	}
	for _, g := range gens {
		if g.ID == generation && g.Complete {
			log.Debug().Msg("Cache generation already installed")
			return nil
		}
	}

	targets := make([]*url.URL, 0, len(resources))
	keys := make([]string, 0, len(resources))
	for _, r := range resources {
		u, err := m.resolve(nil, r)
		if err != nil {
			return &errors.CacheInstallError{Generation: generation, URL: r, Err: err}
		}
		targets = append(targets, u)
		keys = append(keys, CanonicalKey(u))
	}
	staging := stagingID(generation, uuid.NewString())

	start := time.Now()
	client := &http.Client{Transport: m.network}
	p := pool.New().
		WithMaxGoroutines(m.fetchers).
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()
	for _, u := range targets {
		p.Go(func(ctx context.Context) error {
			return m.fetchInto(ctx, client, generation, staging, u)
		})
	}
	err = p.Wait()
	if err == nil {
		err = m.store.Promote(ctx, staging, generation, keys)
	}
	if err != nil {
		if derr := m.store.DeleteGeneration(context.WithoutCancel(ctx), staging); derr != nil {
			log.Warn().Err(derr).Msg("Failed to remove partial cache generation")
		}
		m.metrics.CacheInstall(false)
		log.Error().Err(err).Msg("Cache install failed")

		var cie *errors.CacheInstallError
		if errors.As(err, &cie) {
			return cie
		}
		return &errors.CacheInstallError{Generation: generation, Err: err}
	}

	m.metrics.CacheInstall(true)
	log.Info().
		Int("resources", len(targets)).
		Dur("duration", time.Since(start)).
		Msg("Cache generation installed")
	return nil
}

func (m *Manager) fetchInto(ctx context.Context, client *http.Client, generation, staging string, u *url.URL) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return &errors.CacheInstallError{Generation: generation, URL: u.String(), Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return &errors.CacheInstallError{Generation: generation, URL: u.String(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &errors.CacheInstallError{Generation: generation, URL: u.String(), StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, constants.MaxCachedBodyBytes+1))
	if err != nil {
		return &errors.CacheInstallError{Generation: generation, URL: u.String(), Err: err}
	}
	if len(body) > constants.MaxCachedBodyBytes {
		return &errors.CacheInstallError{Generation: generation, URL: u.String(), Err: errors.New("resource exceeds cache size limit")}
	}

	return m.store.Put(ctx, staging, Entry{
		URL:      CanonicalKey(u),
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: time.Now().UTC(),
	})
}

// Activate makes generation current and deletes every other generation,
// except installs still staging within CacheStagingTTL. It refuses a
// generation whose install did not complete.
func (m *Manager) Activate(ctx context.Context, generation string) error {
	if _, err := m.lookup(ctx, generation); err != nil {
		return err
	}
	m.setCurrent(generation)

	gens, err := m.store.Generations(ctx)
	if err != nil {
		return err
	}
	var errs []error
	evicted := 0
	for _, g := range gens {
		if g.ID == generation {
			continue
		}
		if IsStaging(g.ID) && time.Since(g.CreatedAt) < constants.CacheStagingTTL {
			continue
		}
		if err := m.store.DeleteGeneration(ctx, g.ID); err != nil {
			m.logger.Warn().Err(err).Str("generation", g.ID).Msg("Failed to evict cache generation")
			errs = append(errs, err)
			continue
		}
		evicted++
	}

	m.logger.Info().
		Str("generation", generation).
		Int("evicted", evicted).
		Msg("Cache generation activated")
	return errors.Join(errs...)
}

// Restore adopts an already complete generation without refetching or
// evicting anything.
func (m *Manager) Restore(ctx context.Context, generation string) error {
	if _, err := m.lookup(ctx, generation); err != nil {
		return err
	}
	m.setCurrent(generation)
	return nil
}

// Generations lists the stored generations, leaving out installs that are
// still staging.
func (m *Manager) Generations(ctx context.Context) ([]Generation, error) {
	gens, err := m.store.Generations(ctx)
	if err != nil {
		return nil, err
	}
	out := gens[:0]
	for _, g := range gens {
		if !IsStaging(g.ID) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *Manager) lookup(ctx context.Context, generation string) (Generation, error) {
	gens, err := m.store.Generations(ctx)
	if err != nil {
		return Generation{}, err
	}
	for _, g := range gens {
		if g.ID != generation {
			continue
		}
		if !g.Complete {
			return g, &errors.CacheInstallError{Generation: generation, Err: errors.New("generation is not complete")}
		}
		return g, nil
	}
	return Generation{}, errors.NewNotFoundError("cache generation", generation)
}

// Serve answers req cache-first. Only GET requests are looked up or
// stored. When the network fails, navigations receive the offline page
// and every other request fails with a NetworkError.
func (m *Manager) Serve(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	generation := m.Current()
	cacheable := req.Method == http.MethodGet && generation != ""

	if cacheable {
		e, ok, err := m.store.Get(ctx, generation, CanonicalKey(req.URL))
		if err != nil {
			m.logger.Warn().Err(err).Str("url", req.URL.Redacted()).Msg("Cache lookup failed")
		}
		if ok {
			m.metrics.CacheLookup(true)
			return e.Response(req), nil
		}
		m.metrics.CacheLookup(false)
	}

	resp, err := m.network.RoundTrip(req)
	if err != nil {
		if IsNavigation(req) {
			if page, ok := m.offlineResponse(req, generation); ok {
				return page, nil
			}
		}
		return nil, errors.NewNetworkError(req.Method, req.URL.Redacted(), err)
	}

	if cacheable && m.storable(req, resp) {
		m.populate(req, resp, generation)
	}
	return resp, nil
}

func (m *Manager) storable(req *http.Request, resp *http.Response) bool {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false
	}
	if strings.Contains(resp.Header.Get("Cache-Control"), "no-store") {
		return false
	}
	if m.origin == nil {
		return true
	}
	return strings.EqualFold(req.URL.Scheme, m.origin.Scheme) && strings.EqualFold(req.URL.Host, m.origin.Host)
}

// populate buffers the body, hands the caller an identical copy and stores
// the clone in a tracked background task.
func (m *Manager) populate(req *http.Request, resp *http.Response, generation string) {
	buf, err := io.ReadAll(io.LimitReader(resp.Body, constants.MaxCachedBodyBytes+1))
	if err != nil || len(buf) > constants.MaxCachedBodyBytes {
		resp.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(buf), resp.Body), resp.Body}
		return
	}
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(buf))

	entry := Entry{
		URL:      CanonicalKey(req.URL),
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     buf,
		StoredAt: time.Now().UTC(),
	}
	m.tasks.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultTimeout)
		defer cancel()
		if m.Current() != generation {
			return
		}
		if err := m.store.Put(ctx, generation, entry); err != nil {
			m.logger.Warn().Err(err).Str("url", entry.URL).Msg("Failed to populate cache")
			return
		}
		m.logger.Debug().Str("url", entry.URL).Str("generation", generation).Msg("Cached response")
	})
}

func (m *Manager) offlineResponse(req *http.Request, generation string) (*http.Response, bool) {
	if generation == "" || m.offlinePath == "" {
		return nil, false
	}
	u, err := m.resolve(req.URL, m.offlinePath)
	if err != nil {
		return nil, false
	}
	e, ok, err := m.store.Get(req.Context(), generation, CanonicalKey(u))
	if err != nil || !ok {
		return nil, false
	}
	resp := e.Response(req)
	resp.StatusCode = http.StatusOK
	resp.Status = "200 OK"
	resp.Header.Set(constants.OfflineHeader, "1")
	m.metrics.OfflineFallback()
	m.logger.Info().Str("url", req.URL.Redacted()).Msg("Served offline page")
	return resp, true
}

// resolve makes resource absolute against the origin, or against base
// when no origin is configured.
func (m *Manager) resolve(base *url.URL, resource string) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimSpace(resource))
	if err != nil {
		return nil, err
	}
	if ref.IsAbs() {
		return ref, nil
	}
	root := m.origin
	if root == nil {
		root = base
	}
	if root == nil {
		return nil, errors.NewValidationError("resource", resource, "relative resource requires an origin")
	}
	return root.ResolveReference(ref), nil
}

// IsNavigation reports whether req loads a top-level document.
func IsNavigation(req *http.Request) bool {
	if req.Method != http.MethodGet {
		return false
	}
	if mode := req.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}
