package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueTryPutFailsFastWhenFull(t *testing.T) {
	q := newQueue[int](50)

	ok := 0
	failed := 0
	for i := 0; i < 60; i++ {
		if q.TryPut(i) {
			ok++
		} else {
			failed++
		}
	}

	assert.Equal(t, 50, ok)
	assert.Equal(t, 10, failed)
	assert.Equal(t, 50, q.Len())
}

func TestQueueFIFOOrder(t *testing.T) {
	q := newQueue[int](10)
	for i := 0; i < 5; i++ {
		require.True(t, q.TryPut(i))
	}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		v, err := q.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
}

func TestQueuePutLatestEvictsOldest(t *testing.T) {
	q := newQueue[string](1)

	assert.False(t, q.PutLatest("a"))
	assert.True(t, q.PutLatest("b"))
	assert.True(t, q.PutLatest("c"))
	assert.Equal(t, 1, q.Len())

	v, err := q.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "c", v)
}

func TestQueueGetObservesCancellation(t *testing.T) {
	q := newQueue[int](1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := q.Get(ctx)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Get did not observe cancellation")
	}
}
