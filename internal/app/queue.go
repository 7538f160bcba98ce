package app

import (
	"context"
	"errors"
)

// ErrQueueClosed is returned by Get after the queue is closed and drained.
var ErrQueueClosed = errors.New("queue closed")

// queue is a bounded FIFO decoupling frame arrival from forwarding rate.
// Puts never block: TryPut fails fast on a full queue, PutLatest evicts the
// oldest entry instead. Queues are never shared across sessions.
type queue[T any] struct {
	ch chan T
}

func newQueue[T any](capacity int) *queue[T] {
	return &queue[T]{ch: make(chan T, capacity)}
}

// TryPut enqueues v, or reports false immediately when the queue is full.
func (q *queue[T]) TryPut(v T) bool {
	select {
	case q.ch <- v:
		return true
	default:
		return false
	}
}

// PutLatest enqueues v, evicting the oldest entry when the queue is full so
// the newest item always wins. It reports whether an entry was evicted.
func (q *queue[T]) PutLatest(v T) (evicted bool) {
	for {
		select {
		case q.ch <- v:
			return evicted
		default:
		}
		select {
		case <-q.ch:
			evicted = true
		default:
		}
	}
}

// Get blocks for the next item or until ctx is cancelled.
func (q *queue[T]) Get(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case v, ok := <-q.ch:
		if !ok {
			return zero, ErrQueueClosed
		}
		return v, nil
	}
}

func (q *queue[T]) Len() int { return len(q.ch) }
