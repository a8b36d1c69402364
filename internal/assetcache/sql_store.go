package assetcache

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/agentstation/leadsync/internal/database"
	"github.com/agentstation/leadsync/pkg/errors"
)

const (
	ensureGenerationSQL = `
INSERT INTO cache_generations (id, complete, created_at)
VALUES (?, ?, ?)
ON CONFLICT (id) DO NOTHING`

	putEntrySQL = `
INSERT INTO cache_entries (generation_id, url, status, header, body, stored_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (generation_id, url) DO UPDATE
SET status = excluded.status, header = excluded.header, body = excluded.body, stored_at = excluded.stored_at`

	getEntrySQL = `
SELECT url, status, header, body, stored_at
FROM cache_entries
WHERE generation_id = ? AND url = ?`

	listGenerationsSQL = `
SELECT id, complete, created_at
FROM cache_generations
ORDER BY created_at ASC, id ASC`

	hasEntrySQL = `SELECT 1 FROM cache_entries WHERE generation_id = ? AND url = ?`

	generationStateSQL = `SELECT complete FROM cache_generations WHERE id = ?`

	insertCompleteSQL = `INSERT INTO cache_generations (id, complete, created_at) VALUES (?, ?, ?)`

	moveEntriesSQL = `UPDATE cache_entries SET generation_id = ? WHERE generation_id = ?`

	deleteEntriesSQL    = `DELETE FROM cache_entries WHERE generation_id = ?`
	deleteGenerationSQL = `DELETE FROM cache_generations WHERE id = ?`
)

// SQLStore is a CacheStore in the shared SQL database, so a generation
// installed by one process can be served by another.
type SQLStore struct {
	db  *database.DB
	now func() time.Time
}

var _ CacheStore = (*SQLStore)(nil)

// NewSQLStore creates a store over db. The caller keeps ownership of db.
func NewSQLStore(db *database.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

// Put implements CacheStore.
func (s *SQLStore) Put(ctx context.Context, generation string, e Entry) error {
	header, err := json.Marshal(e.Header)
	if err != nil {
		return errors.NewStorageError("cache put", err)
	}
	stored := e.StoredAt
	if stored.IsZero() {
		stored = s.now()
	}

	tx, err := s.db.SQL().BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStorageError("cache put", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.db.Rebind(ensureGenerationSQL), generation, false, s.now().UnixMicro()); err != nil {
		return errors.NewStorageError("cache put", err)
	}
	if _, err := tx.ExecContext(ctx, s.db.Rebind(putEntrySQL),
		generation, e.URL, e.Status, header, e.Body, stored.UnixMicro()); err != nil {
		return errors.NewStorageError("cache put", err)
	}
	return errors.WrapStorage("cache put", tx.Commit())
}

// Get implements CacheStore.
func (s *SQLStore) Get(ctx context.Context, generation, key string) (Entry, bool, error) {
	var (
		e        Entry
		header   []byte
		storedAt int64
	)
	err := s.db.SQL().QueryRowContext(ctx, s.db.Rebind(getEntrySQL), generation, key).
		Scan(&e.URL, &e.Status, &header, &e.Body, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, errors.NewStorageError("cache get", err)
	}
	e.Header = make(http.Header)
	if err := json.Unmarshal(header, &e.Header); err != nil {
		return Entry{}, false, errors.NewStorageError("cache get", err)
	}
	e.StoredAt = time.UnixMicro(storedAt).UTC()
	return e, true, nil
}

// Generations implements CacheStore.
func (s *SQLStore) Generations(ctx context.Context) ([]Generation, error) {
	rows, err := s.db.SQL().QueryContext(ctx, listGenerationsSQL)
	if err != nil {
		return nil, errors.NewStorageError("cache list", err)
	}
	defer func() { _ = rows.Close() }()

	var gens []Generation
	for rows.Next() {
		var (
			g       Generation
			created int64
		)
		if err := rows.Scan(&g.ID, &g.Complete, &created); err != nil {
			return nil, errors.NewStorageError("cache list", err)
		}
		g.CreatedAt = time.UnixMicro(created).UTC()
		gens = append(gens, g)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageError("cache list", err)
	}
	return gens, nil
}

// Promote implements CacheStore. The key check and the move share one
// transaction, so a concurrent delete of staging cannot yield a complete
// generation with missing entries.
func (s *SQLStore) Promote(ctx context.Context, staging, generation string, keys []string) error {
	tx, err := s.db.SQL().BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStorageError("cache promote", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, k := range keys {
		var one int
		err := tx.QueryRowContext(ctx, s.db.Rebind(hasEntrySQL), staging, k).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return missingKey(generation, k)
		}
		if err != nil {
			return errors.NewStorageError("cache promote", err)
		}
	}

	var complete bool
	err = tx.QueryRowContext(ctx, s.db.Rebind(generationStateSQL), generation).Scan(&complete)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return errors.NewStorageError("cache promote", err)
	case complete:
		if err := deleteGenerationTx(ctx, tx, s.db, staging); err != nil {
			return err
		}
		return errors.WrapStorage("cache promote", tx.Commit())
	default:
		if err := deleteGenerationTx(ctx, tx, s.db, generation); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, s.db.Rebind(insertCompleteSQL), generation, true, s.now().UnixMicro()); err != nil {
		return errors.NewStorageError("cache promote", err)
	}
	if _, err := tx.ExecContext(ctx, s.db.Rebind(moveEntriesSQL), generation, staging); err != nil {
		return errors.NewStorageError("cache promote", err)
	}
	if _, err := tx.ExecContext(ctx, s.db.Rebind(deleteGenerationSQL), staging); err != nil {
		return errors.NewStorageError("cache promote", err)
	}
	return errors.WrapStorage("cache promote", tx.Commit())
}

// DeleteGeneration implements CacheStore.
func (s *SQLStore) DeleteGeneration(ctx context.Context, generation string) error {
	tx, err := s.db.SQL().BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStorageError("cache delete", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := deleteGenerationTx(ctx, tx, s.db, generation); err != nil {
		return err
	}
	return errors.WrapStorage("cache delete", tx.Commit())
}

func deleteGenerationTx(ctx context.Context, tx *sql.Tx, db *database.DB, generation string) error {
	if _, err := tx.ExecContext(ctx, db.Rebind(deleteEntriesSQL), generation); err != nil {
		return errors.NewStorageError("cache delete", err)
	}
	if _, err := tx.ExecContext(ctx, db.Rebind(deleteGenerationSQL), generation); err != nil {
		return errors.NewStorageError("cache delete", err)
	}
	return nil
}
