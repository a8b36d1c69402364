package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/leadsync/internal/database"
	"github.com/agentstation/leadsync/internal/metrics"
	"github.com/agentstation/leadsync/pkg/errors"
)

// Store persists pending submissions.
type Store interface {
	// Enqueue durably records s and returns it with defaults applied.
	Enqueue(ctx context.Context, s Submission) (Submission, error)
	// ListAll returns every pending submission, oldest first.
	ListAll(ctx context.Context) ([]Submission, error)
	// Remove deletes the submission with id. Removing a missing id succeeds.
	Remove(ctx context.Context, id string) error
	// Get returns the submission with id.
	Get(ctx context.Context, id string) (Submission, error)
	// Count returns the number of pending submissions.
	Count(ctx context.Context) (int, error)
}

// Lease is a storage-scoped mutual exclusion shared by every process using
// the same database.
type Lease interface {
	// Acquire takes or renews the named lease for holder until ttl elapses.
	// It reports false when another holder owns an unexpired lease.
	Acquire(ctx context.Context, name, holder string, ttl time.Duration) (bool, error)
	// Release gives up the lease if holder owns it.
	Release(ctx context.Context, name, holder string) error
}

const (
	insertSQL = `
INSERT INTO pending_submissions (id, created_at, target_endpoint, method, payload, auth_token)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`

	listSQL = `
SELECT id, created_at, target_endpoint, method, payload, auth_token
FROM pending_submissions
ORDER BY seq ASC`

	getSQL = `
SELECT id, created_at, target_endpoint, method, payload, auth_token
FROM pending_submissions
WHERE id = ?`

	deleteSQL = `DELETE FROM pending_submissions WHERE id = ?`

	countSQL = `SELECT COUNT(*) FROM pending_submissions`

	acquireLeaseSQL = `
INSERT INTO sync_leases (name, holder, expires_at)
VALUES (?, ?, ?)
ON CONFLICT (name) DO UPDATE
SET holder = excluded.holder, expires_at = excluded.expires_at
WHERE sync_leases.expires_at < ? OR sync_leases.holder = excluded.holder`

	releaseLeaseSQL = `DELETE FROM sync_leases WHERE name = ? AND holder = ?`
)

// SQLStore is the Store and Lease backed by the shared SQL database.
type SQLStore struct {
	db      *database.DB
	owned   bool
	logger  *zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

var (
	_ Store = (*SQLStore)(nil)
	_ Lease = (*SQLStore)(nil)
)

// Option configures a SQLStore.
type Option func(*SQLStore)

// WithLogger sets the logger.
func WithLogger(l *zerolog.Logger) Option {
	return func(s *SQLStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records enqueues and queue depth.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *SQLStore) {
		s.metrics = m
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *SQLStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSQLStore builds a store over an open database. The caller keeps
// ownership of db.
func NewSQLStore(db *database.DB, opts ...Option) *SQLStore {
	nop := zerolog.Nop()
	s := &SQLStore{
		db:     db,
		logger: &nop,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Open opens the database described by cfg and returns a store that owns it.
func Open(ctx context.Context, cfg database.Config, opts ...Option) (*SQLStore, error) {
	s := NewSQLStore(nil, opts...)
	db, err := database.Open(ctx, cfg, s.logger)
	if err != nil {
		return nil, err
	}
	s.db = db
	s.owned = true
	return s, nil
}

// Close releases the database if the store opened it.
func (s *SQLStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// Enqueue implements Store.
func (s *SQLStore) Enqueue(ctx context.Context, sub Submission) (Submission, error) {
	sub, err := Prepare(sub, s.now())
	if err != nil {
		return sub, err
	}

	res, err := s.db.SQL().ExecContext(ctx, s.db.Rebind(insertSQL),
		sub.ID,
		sub.CreatedAt.UnixMicro(),
		sub.TargetEndpoint,
		sub.Method,
		[]byte(sub.Payload),
		sub.AuthToken,
	)
	if err != nil {
		return sub, errors.NewStorageError("enqueue", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return sub, errors.NewStorageError("enqueue", err)
	}
	if n == 0 {
		return sub, &errors.AlreadyExistsError{Resource: "submission", ID: sub.ID}
	}

	s.metrics.Enqueued()
	s.logger.Info().
		Str("submission_id", sub.ID).
		Str("endpoint", sub.TargetEndpoint).
		Str("method", sub.Method).
		Msg("Submission queued")
	return sub, nil
}

// ListAll implements Store.
func (s *SQLStore) ListAll(ctx context.Context) ([]Submission, error) {
	rows, err := s.db.SQL().QueryContext(ctx, listSQL)
	if err != nil {
		return nil, errors.NewStorageError("list", err)
	}
	defer func() { _ = rows.Close() }()

	var subs []Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, errors.NewStorageError("list", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageError("list", err)
	}
	s.metrics.SetQueueDepth(len(subs))
	return subs, nil
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, id string) (Submission, error) {
	row := s.db.SQL().QueryRowContext(ctx, s.db.Rebind(getSQL), id)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Submission{}, errors.NewNotFoundError("submission", id)
	}
	if err != nil {
		return Submission{}, errors.NewStorageError("get", err)
	}
	return sub, nil
}

// Remove implements Store.
func (s *SQLStore) Remove(ctx context.Context, id string) error {
	if _, err := s.db.SQL().ExecContext(ctx, s.db.Rebind(deleteSQL), id); err != nil {
		return errors.NewStorageError("remove", err)
	}
	s.logger.Debug().Str("submission_id", id).Msg("Submission removed")
	return nil
}

// Count implements Store.
func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.SQL().QueryRowContext(ctx, countSQL).Scan(&n); err != nil {
		return 0, errors.NewStorageError("count", err)
	}
	return n, nil
}

// Acquire implements Lease.
func (s *SQLStore) Acquire(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	now := s.now()
	res, err := s.db.SQL().ExecContext(ctx, s.db.Rebind(acquireLeaseSQL),
		name, holder, now.Add(ttl).UnixMilli(), now.UnixMilli())
	if err != nil {
		return false, errors.NewStorageError("lease", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.NewStorageError("lease", err)
	}
	return n > 0, nil
}

// Release implements Lease.
func (s *SQLStore) Release(ctx context.Context, name, holder string) error {
	if _, err := s.db.SQL().ExecContext(ctx, s.db.Rebind(releaseLeaseSQL), name, holder); err != nil {
		return errors.NewStorageError("lease", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (Submission, error) {
	var (
		sub       Submission
		createdAt int64
		payload   []byte
	)
	if err := row.Scan(&sub.ID, &createdAt, &sub.TargetEndpoint, &sub.Method, &payload, &sub.AuthToken); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sub, err
		}
		return sub, fmt.Errorf("scan submission: %w", err)
	}
	sub.CreatedAt = time.UnixMicro(createdAt).UTC()
	sub.Payload = payload
	return sub, nil
}
