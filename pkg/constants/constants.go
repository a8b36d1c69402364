// Package constants provides shared constants used throughout the leadsync codebase.
// This includes timeouts, limits, file permissions, and the wire-level names that
// browsing contexts and sidecar processes must agree on.
package constants

import "time"

// Timeout constants define various timeout durations used in the application
const (
	// DefaultHTTPTimeout is the standard timeout for requests to the remote API
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultTimeout is the standard timeout for general operations
	DefaultTimeout = 10 * time.Second

	// InstallTimeout bounds a full cache generation install
	InstallTimeout = 2 * time.Minute

	// CommandTimeout is the default timeout for CLI commands
	CommandTimeout = 10 * time.Minute

	// ShutdownTimeout is the grace period for the HTTP server to drain connections
	ShutdownTimeout = 15 * time.Second

	// DrainLeaseTTL is how long a drain lease is held before another process may take it
	DrainLeaseTTL = 2 * time.Minute

	// CacheStagingTTL is how long an in-progress cache install is protected from eviction
	CacheStagingTTL = 10 * time.Minute

	// ProbeBackoff is the initial delay between connectivity probes while offline
	ProbeBackoff = 1 * time.Second

	// MaxProbeBackoff caps the delay between connectivity probes while offline
	MaxProbeBackoff = 30 * time.Second

	// DefaultProbeInterval is the delay between connectivity probes while online
	DefaultProbeInterval = 15 * time.Second
)

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644

	// SecureFilePermissions is for files holding queued credentials (rw-------)
	SecureFilePermissions = 0600
)

// Limit constants define various limits and capacities
const (
	// MaxPayloadBytes is the largest submission body accepted by the local endpoint
	MaxPayloadBytes = 1 << 20

	// MaxCachedBodyBytes is the largest response body stored in the asset cache
	MaxCachedBodyBytes = 8 << 20

	// MaxConcurrentFetches bounds parallel fetches during a cache install
	MaxConcurrentFetches = 4

	// SubscriberBufferSize is the per-subscriber event queue length
	SubscriberBufferSize = 64

	// ChannelBufferSize is the default buffer size for channels
	ChannelBufferSize = 256
)

// Rate limiting constants
const (
	// DefaultRateLimit is the default requests per minute per client
	DefaultRateLimit = 600

	// BurstSize is the token bucket burst size for rate limiting
	BurstSize = 50
)

// Wire-level names shared by every browsing context and sidecar.
const (
	// SyncTag identifies the reconnect signal that starts a drain
	SyncTag = "sync-submissions"

	// DefaultTopic is the cross-tab channel carrying record events
	DefaultTopic = "leadsync.records"

	// DrainLeaseName is the storage-scoped lease held while draining
	DrainLeaseName = "drain"

	// OfflineHeader marks a response substituted with the offline page
	OfflineHeader = "X-Leadsync-Offline"

	// IdempotencyHeader carries the submission id on delivery
	IdempotencyHeader = "Idempotency-Key"

	// APIPrefix is the path prefix of the local control surface
	APIPrefix = "/_leadsync/v1"
)

// Default network settings
const (
	// DefaultListenHost is the default interface for the sidecar
	DefaultListenHost = "127.0.0.1"

	// DefaultListenPort is the default port for the sidecar
	DefaultListenPort = 8787

	// DefaultCacheVersion is the generation installed when no manifest names one
	DefaultCacheVersion = "v1"
)
