// Package database opens the SQL database shared by the submission queue,
// the drain lease and the SQL-backed asset cache. SQLite (the default) and
// PostgreSQL are supported; queries are written with ? placeholders and
// rebound per backend.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/agentstation/leadsync/pkg/constants"
	"github.com/agentstation/leadsync/pkg/errors"
)

// Backend names a supported database engine.
type Backend string

// Supported backends.
const (
	SQLite   Backend = "sqlite"
	Postgres Backend = "postgres"
)

// ParseBackend normalises a backend name.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	default:
		return "", errors.NewValidationError("store_backend", s, "must be sqlite or postgres")
	}
}

// Config selects and locates the database.
type Config struct {
	Backend Backend
	// DSN is a file path for SQLite and a connection string for PostgreSQL.
	DSN string
	// SkipMigrations leaves the schema untouched on Open.
	SkipMigrations bool
}

// DB is an open database handle bound to its backend.
type DB struct {
	conn    *sql.DB
	backend Backend
	logger  *zerolog.Logger
}

// sqlitePragmas are applied to every SQLite connection.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"busy_timeout(5000)",
	"foreign_keys(ON)",
}

// Open connects to the configured database, applying migrations first
// unless cfg.SkipMigrations is set. Failures are StorageErrors.
func Open(ctx context.Context, cfg Config, logger *zerolog.Logger) (*DB, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if cfg.Backend == "" {
		cfg.Backend = SQLite
	}

	driver, dsn, err := driverFor(cfg)
	if err != nil {
		return nil, err
	}

	if !cfg.SkipMigrations {
		if err := Migrate(ctx, cfg, logger); err != nil {
			return nil, err
		}
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.NewStorageError("open", err)
	}
	if cfg.Backend == SQLite {
		// A single connection avoids "database is locked" between writers.
		conn.SetMaxOpenConns(1)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, errors.NewStorageError("open", fmt.Errorf("ping %s database: %w", cfg.Backend, err))
	}

	logger.Debug().
		Str("backend", string(cfg.Backend)).
		Msg("Database opened")

	return &DB{conn: conn, backend: cfg.Backend, logger: logger}, nil
}

// Wrap adopts an existing connection, for tests and embedding.
func Wrap(conn *sql.DB, backend Backend) *DB {
	nop := zerolog.Nop()
	return &DB{conn: conn, backend: backend, logger: &nop}
}

// SQL returns the underlying pool.
func (db *DB) SQL() *sql.DB {
	return db.conn
}

// Backend returns the engine in use.
func (db *DB) Backend() Backend {
	return db.backend
}

// Ping verifies the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return errors.WrapStorage("ping", db.conn.PingContext(ctx))
}

// Close closes the pool.
func (db *DB) Close() error {
	if db == nil || db.conn == nil {
		return nil
	}
	return db.conn.Close()
}

// Rebind rewrites ? placeholders into the backend's native form.
func (db *DB) Rebind(query string) string {
	return Rebind(db.backend, query)
}

// Rebind rewrites ? placeholders to $1, $2, ... for PostgreSQL.
func Rebind(backend Backend, query string) string {
	if backend != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func driverFor(cfg Config) (driver, dsn string, err error) {
	switch cfg.Backend {
	case SQLite:
		dsn, err := sqliteDSN(cfg.DSN)
		return "sqlite", dsn, err
	case Postgres:
		if strings.TrimSpace(cfg.DSN) == "" {
			return "", "", errors.NewValidationError("store_dsn", cfg.DSN, "postgres requires a connection string")
		}
		return "pgx", cfg.DSN, nil
	default:
		return "", "", errors.NewValidationError("store_backend", cfg.Backend, "unsupported backend")
	}
}

// sqliteDSN turns a file path into a modernc DSN carrying the pragmas.
// The parent directory is created when missing.
func sqliteDSN(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultSQLitePath()
	}
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), constants.DirPermissions); err != nil {
			return "", errors.NewStorageError("open", err)
		}
		path = "file:" + path
	}

	q := url.Values{}
	for _, p := range sqlitePragmas {
		q.Add("_pragma", p)
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + q.Encode(), nil
}

// DefaultSQLitePath is the database file used when none is configured.
func DefaultSQLitePath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "leadsync", "leadsync.db")
	}
	return filepath.Join(os.TempDir(), "leadsync", "leadsync.db")
}
