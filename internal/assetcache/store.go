package assetcache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agentstation/leadsync/pkg/errors"
)

// Entry is one stored response.
type Entry struct {
	URL      string
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

// Generation is a versioned set of cached resources.
type Generation struct {
	ID        string
	Complete  bool
	CreatedAt time.Time
}

// CacheStore persists generations and their entries. Implementations must
// be safe for concurrent use.
type CacheStore interface {
	// Put stores e in generation, creating the generation if needed.
	Put(ctx context.Context, generation string, e Entry) error
	// Get returns the entry stored under key in generation.
	Get(ctx context.Context, generation, key string) (Entry, bool, error)
	// Generations lists every stored generation, oldest first.
	Generations(ctx context.Context) ([]Generation, error)
	// Promote turns the staging generation into generation in one step,
	// once every key is present in staging. If generation is already
	// complete the staged entries are dropped instead. A missing key
	// leaves generation untouched and returns a CacheInstallError.
	Promote(ctx context.Context, staging, generation string, keys []string) error
	// DeleteGeneration removes generation and all its entries.
	DeleteGeneration(ctx context.Context, generation string) error
}

// stagingMarker separates a generation id from its install attempt.
const stagingMarker = "~staging-"

// IsStaging reports whether id names an in-progress install attempt.
func IsStaging(id string) bool {
	return strings.Contains(id, stagingMarker)
}

func stagingID(generation, attempt string) string {
	return generation + stagingMarker + attempt
}

func missingKey(generation, key string) error {
	return &errors.CacheInstallError{Generation: generation, URL: key, Err: errors.New("resource missing from staged generation")}
}

// CanonicalKey is the storage key of u: scheme, host, path and query,
// without fragment or userinfo.
func CanonicalKey(u *url.URL) string {
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	key := strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + path
	if u.RawQuery != "" {
		key += "?" + u.RawQuery
	}
	return key
}

// Response rebuilds an HTTP response from the entry for req.
func (e Entry) Response(req *http.Request) *http.Response {
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status)),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        e.Header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}
