package async_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/leadsync/internal/async"
	"github.com/agentstation/leadsync/pkg/logging"
)

func TestTaskWait(t *testing.T) {
	task := async.Go(context.Background(), func(context.Context) (int, error) {
		return 42, nil
	})

	v, err := task.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	select {
	case <-task.Done():
	default:
		t.Fatal("done channel should be closed")
	}
}

func TestTaskError(t *testing.T) {
	want := errors.New("boom")
	task := async.Go(context.Background(), func(context.Context) (string, error) {
		return "", want
	})
	_, err := task.Wait(context.Background())
	assert.ErrorIs(t, err, want)
}

func TestTaskRecoversPanic(t *testing.T) {
	task := async.Go(context.Background(), func(context.Context) (int, error) {
		panic("kaboom")
	})
	_, err := task.Wait(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestTaskWaitHonoursContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	task := async.Go(context.Background(), func(context.Context) (int, error) {
		<-release
		return 1, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := task.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResolved(t *testing.T) {
	v, err := async.Resolved("ok", nil).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestGroupWait(t *testing.T) {
	g := async.NewGroup(logging.NewNopLogger())
	require.NoError(t, g.Wait(context.Background()))

	var count atomic.Int32
	for i := 0; i < 5; i++ {
		g.Go(func() {
			time.Sleep(5 * time.Millisecond)
			count.Add(1)
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, g.Wait(ctx))
	assert.Equal(t, int32(5), count.Load())
	assert.Zero(t, g.Pending())
}

func TestGroupWaitSeesNestedWork(t *testing.T) {
	g := async.NewGroup(nil)
	var done atomic.Bool
	g.Go(func() {
		g.Go(func() {
			time.Sleep(10 * time.Millisecond)
			done.Store(true)
		})
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, g.Wait(ctx))
	assert.True(t, done.Load())
}

func TestGroupRecoversPanic(t *testing.T) {
	tl := logging.NewTestLogger(t)
	g := async.NewGroup(tl.Logger)
	g.Go(func() { panic("bad write") })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, g.Wait(ctx))
	tl.AssertContains(t, "Background task panicked")
}
