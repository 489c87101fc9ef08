package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_RunsTasks(t *testing.T) {
	logger, _ := testLogger()
	q := NewQueue("test", 2, 10, time.Second, logger)

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, q.Submit(func(context.Context) error {
			ran.Add(1)
			return nil
		}))
	}

	require.NoError(t, q.Shutdown(context.Background()))
	assert.Equal(t, int32(10), ran.Load())
	assert.Zero(t, q.Failed())
}

func TestQueue_RejectsWhenFull(t *testing.T) {
	logger, _ := testLogger()
	q := NewQueue("test", 1, 1, time.Second, logger)

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, q.Submit(func(context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started

	require.NoError(t, q.Submit(func(context.Context) error { return nil }))
	queued, capacity := q.Backlog()
	assert.Equal(t, 1, queued)
	assert.Equal(t, 1, capacity)

	err := q.Submit(func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, int64(1), q.Dropped())

	close(release)
	require.NoError(t, q.Shutdown(context.Background()))
}

func TestQueue_CountsFailures(t *testing.T) {
	logger, out := testLogger()
	q := NewQueue("audit", 1, 4, time.Second, logger)

	require.NoError(t, q.Submit(func(context.Context) error { return errors.New("insert failed") }))
	require.NoError(t, q.Submit(func(context.Context) error { panic("nil event") }))
	require.NoError(t, q.Submit(func(context.Context) error { return nil }))

	require.NoError(t, q.Shutdown(context.Background()))
	assert.Equal(t, int64(2), q.Failed())
	assert.Contains(t, out.String(), "insert failed")
}

func TestQueue_TaskTimeout(t *testing.T) {
	logger, _ := testLogger()
	q := NewQueue("test", 1, 1, 20*time.Millisecond, logger)

	var deadline atomic.Bool
	require.NoError(t, q.Submit(func(ctx context.Context) error {
		<-ctx.Done()
		deadline.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
		return ctx.Err()
	}))

	require.NoError(t, q.Shutdown(context.Background()))
	assert.True(t, deadline.Load())
}

func TestQueue_Shutdown(t *testing.T) {
	logger, _ := testLogger()
	q := NewQueue("test", 1, 1, time.Second, logger)

	release := make(chan struct{})
	require.NoError(t, q.Submit(func(context.Context) error {
		<-release
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Shutdown(ctx), context.DeadlineExceeded)

	assert.ErrorIs(t, q.Submit(func(context.Context) error { return nil }), ErrQueueClosed)

	close(release)
	assert.NoError(t, q.Shutdown(context.Background()))
}
