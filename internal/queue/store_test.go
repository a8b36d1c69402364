package queue_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/leadsync/internal/database"
	"github.com/agentstation/leadsync/internal/queue"
	"github.com/agentstation/leadsync/pkg/errors"
	"github.com/agentstation/leadsync/pkg/logging"
)

func openSQLite(t *testing.T, path string, opts ...queue.Option) *queue.SQLStore {
	t.Helper()
	opts = append([]queue.Option{queue.WithLogger(logging.NewNopLogger())}, opts...)
	s, err := queue.Open(context.Background(), database.Config{Backend: database.SQLite, DSN: path}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func lead(endpoint, body string) queue.Submission {
	return queue.Submission{TargetEndpoint: endpoint, Payload: []byte(body)}
}

// runStoreContract exercises the behaviour every backend must share.
func runStoreContract(t *testing.T, s *queue.SQLStore) {
	ctx := context.Background()

	t.Run("enqueue assigns defaults", func(t *testing.T) {
		got, err := s.Enqueue(ctx, lead("leads", `{"name":"Ada"}`))
		require.NoError(t, err)
		assert.NotEmpty(t, got.ID)
		assert.Equal(t, "POST", got.Method)
		assert.False(t, got.CreatedAt.IsZero())
		require.NoError(t, s.Remove(ctx, got.ID))
	})

	t.Run("list preserves insertion order and payload bytes", func(t *testing.T) {
		bodies := []string{`{"n":1}`, `{ "n" : 2 }`, `{"n":3}`}
		var ids []string
		for _, b := range bodies {
			got, err := s.Enqueue(ctx, lead("leads", b))
			require.NoError(t, err)
			ids = append(ids, got.ID)
		}

		all, err := s.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		for i, sub := range all {
			assert.Equal(t, ids[i], sub.ID)
			assert.Equal(t, bodies[i], string(sub.Payload))
		}

		for _, id := range ids {
			require.NoError(t, s.Remove(ctx, id))
		}
	})

	t.Run("duplicate id is rejected", func(t *testing.T) {
		sub := lead("leads", `{}`)
		sub.ID = "fixed-id"
		_, err := s.Enqueue(ctx, sub)
		require.NoError(t, err)

		_, err = s.Enqueue(ctx, sub)
		assert.True(t, errors.IsAlreadyExists(err))
		require.NoError(t, s.Remove(ctx, "fixed-id"))
	})

	t.Run("remove is idempotent", func(t *testing.T) {
		got, err := s.Enqueue(ctx, lead("leads/7", `{"status":"won"}`))
		require.NoError(t, err)

		require.NoError(t, s.Remove(ctx, got.ID))
		require.NoError(t, s.Remove(ctx, got.ID))
		require.NoError(t, s.Remove(ctx, "never-existed"))

		_, err = s.Get(ctx, got.ID)
		assert.True(t, errors.IsNotFound(err))
	})

	t.Run("get and count", func(t *testing.T) {
		sub := lead("leads/9", `{"status":"lost"}`)
		sub.Method = "patch"
		sub.AuthToken = "tok"
		got, err := s.Enqueue(ctx, sub)
		require.NoError(t, err)

		fetched, err := s.Get(ctx, got.ID)
		require.NoError(t, err)
		assert.Equal(t, "PATCH", fetched.Method)
		assert.Equal(t, "tok", fetched.AuthToken)
		assert.Equal(t, "leads/9", fetched.TargetEndpoint)
		assert.WithinDuration(t, got.CreatedAt, fetched.CreatedAt, time.Millisecond)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		require.NoError(t, s.Remove(ctx, got.ID))
	})

	t.Run("lease excludes other holders until expiry", func(t *testing.T) {
		ok, err := s.Acquire(ctx, "drain", "a", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.Acquire(ctx, "drain", "b", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = s.Acquire(ctx, "drain", "a", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "holder renews its own lease")

		require.NoError(t, s.Release(ctx, "drain", "b"))
		ok, err = s.Acquire(ctx, "drain", "b", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok, "release by a non-holder is ignored")

		require.NoError(t, s.Release(ctx, "drain", "a"))
		ok, err = s.Acquire(ctx, "drain", "b", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
		require.NoError(t, s.Release(ctx, "drain", "b"))
	})
}

func TestSQLiteStoreContract(t *testing.T) {
	runStoreContract(t, openSQLite(t, filepath.Join(t.TempDir(), "queue.db")))
}

func TestStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "queue.db")

	first, err := queue.Open(ctx, database.Config{DSN: path})
	require.NoError(t, err)
	a, err := first.Enqueue(ctx, lead("leads", `{"n":1}`))
	require.NoError(t, err)
	b, err := first.Enqueue(ctx, lead("leads", `{"n":2}`))
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := openSQLite(t, path)
	all, err := second.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, a.ID, all[0].ID)
	assert.Equal(t, b.ID, all[1].ID)
}

func TestLeaseExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := openSQLite(t, filepath.Join(t.TempDir(), "queue.db"), queue.WithClock(func() time.Time { return now }))

	ok, err := s.Acquire(ctx, "drain", "a", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	ok, err = s.Acquire(ctx, "drain", "b", time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "expired lease is taken over")
}

func TestEnqueueValidation(t *testing.T) {
	s := openSQLite(t, filepath.Join(t.TempDir(), "queue.db"))
	ctx := context.Background()

	tests := []struct {
		name string
		sub  queue.Submission
	}{
		{"missing endpoint", queue.Submission{Payload: []byte(`{}`)}},
		{"empty payload", queue.Submission{TargetEndpoint: "leads"}},
		{"invalid json", queue.Submission{TargetEndpoint: "leads", Payload: []byte(`{`)}},
		{"unsupported method", queue.Submission{TargetEndpoint: "leads", Method: "DELETE", Payload: []byte(`{}`)}},
		{"absolute endpoint", queue.Submission{TargetEndpoint: "https://collector.example/leads", Payload: []byte(`{}`)}},
		{"scheme-relative endpoint", queue.Submission{TargetEndpoint: "//collector.example/leads", Payload: []byte(`{}`)}},
		{"parent segment", queue.Submission{TargetEndpoint: "leads/../../admin", Payload: []byte(`{}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Enqueue(ctx, tt.sub)
			assert.True(t, errors.IsValidationError(err), "got %v", err)
		})
	}

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStorageFailureIsReported(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{DSN: filepath.Join(t.TempDir(), "queue.db")}, nil)
	require.NoError(t, err)
	s := queue.NewSQLStore(db)
	require.NoError(t, db.Close())

	_, err = s.Enqueue(ctx, lead("leads", `{}`))
	assert.True(t, errors.IsStorageUnavailable(err))

	_, err = s.ListAll(ctx)
	assert.True(t, errors.IsStorageUnavailable(err))
}
