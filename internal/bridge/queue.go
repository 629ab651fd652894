package bridge

import (
	"context"
	"io"
	"sync"

	"github.com/nupi-ai/plugin-stt-azure-speech/internal/spx"
)

// queue is an unbounded FIFO with a single consumer. Push never blocks so
// engine callback threads are never held up by a slow reader.
type queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool

	notify chan struct{}
	done   chan struct{}
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// push appends v. It reports false once the queue is closed.
func (q *queue[T]) push(v T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, v)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// pop blocks until an item is available, the queue is closed and empty
// (io.EOF) or ctx is done.
func (q *queue[T]) pop(ctx context.Context) (T, error) {
	for {
		v, err := q.tryPop()
		if err != spx.ErrWouldBlock {
			return v, err
		}
		select {
		case <-q.notify:
		case <-q.done:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

func (q *queue[T]) tryPop() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if len(q.items) > 0 {
		v := q.items[0]
		q.items[0] = zero
		q.items = q.items[1:]
		return v, nil
	}
	if q.closed {
		return zero, io.EOF
	}
	return zero, spx.ErrWouldBlock
}

func (q *queue[T]) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

func (q *queue[T]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
