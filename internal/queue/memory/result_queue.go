package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/catalog-harvester/internal/harvest"
)

// ResultQueue is a bounded queue of records. Close pushes the end-of-stream
// sentinel; records pushed before it are still delivered.
type ResultQueue struct {
	ch      chan harvest.Record
	closeMu sync.RWMutex
	closed  bool
}

// NewResultQueue constructs a result queue with the provided capacity.
func NewResultQueue(capacity int) *ResultQueue {
	if capacity < 0 {
		capacity = 0
	}
	return &ResultQueue{
		ch: make(chan harvest.Record, capacity),
	}
}

// Push enqueues a record, blocking while the queue is full.
func (q *ResultQueue) Push(ctx context.Context, record harvest.Record) error {
	if record == nil {
		return ErrNilRecord
	}
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("push canceled: %w", ctx.Err())
	case q.ch <- record:
		return nil
	}
}

// Pull returns the next record, or ErrEndOfStream once the sentinel is reached.
func (q *ResultQueue) Pull(ctx context.Context) (harvest.Record, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("pull canceled: %w", ctx.Err())
	case record, ok := <-q.ch:
		if !ok {
			return nil, ErrEndOfStream
		}
		return record, nil
	}
}

// Close pushes the sentinel. It waits for in-flight pushes to land and is safe
// to call more than once.
func (q *ResultQueue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
