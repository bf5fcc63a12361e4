package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/catalog-harvester/internal/harvest"
)

// TaskQueue is an unbounded FIFO of work items that tracks how many pushed
// items have not been marked done yet. Done fires exactly once, after Seal and
// after the outstanding count reaches zero.
type TaskQueue struct {
	mu          sync.Mutex
	items       []harvest.WorkItem
	outstanding int
	sealed      bool
	// ready is closed and replaced on every push or seal to wake pullers.
	ready    chan struct{}
	done     chan struct{}
	doneOnce sync.Once
}

// NewTaskQueue constructs an empty, open task queue.
func NewTaskQueue() *TaskQueue {
	return &TaskQueue{
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Push appends an item and counts it as outstanding.
func (q *TaskQueue) Push(ctx context.Context, item harvest.WorkItem) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("push canceled: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.sealed {
		return ErrSealed
	}
	q.items = append(q.items, item)
	q.outstanding++
	q.broadcastLocked()
	return nil
}

// Pull removes the oldest item, waiting at most wait for one to arrive. It
// returns ErrEmpty when the wait elapses or when the queue is sealed and drained.
func (q *TaskQueue) Pull(ctx context.Context, wait time.Duration) (harvest.WorkItem, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = harvest.WorkItem{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, nil
		}
		if q.sealed {
			q.mu.Unlock()
			return harvest.WorkItem{}, ErrEmpty
		}
		ready := q.ready
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return harvest.WorkItem{}, fmt.Errorf("pull canceled: %w", ctx.Err())
		case <-timer.C:
			return harvest.WorkItem{}, ErrEmpty
		case <-ready:
		}
	}
}

// MarkDone records that one pulled item has been fully handled.
func (q *TaskQueue) MarkDone() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.outstanding <= 0 {
		return ErrTooManyDone
	}
	q.outstanding--
	q.maybeFinishLocked()
	return nil
}

// Seal stops accepting pushes. Pullers drain what is left and then get ErrEmpty
// without waiting. Sealing twice is safe.
func (q *TaskQueue) Seal() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.sealed {
		return
	}
	q.sealed = true
	q.broadcastLocked()
	q.maybeFinishLocked()
}

// Done is closed once the queue is sealed and every pushed item was marked done.
func (q *TaskQueue) Done() <-chan struct{} {
	return q.done
}

// Wait blocks until Done fires or the context ends.
func (q *TaskQueue) Wait(ctx context.Context) error {
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait canceled: %w", ctx.Err())
	}
}

// Outstanding reports pushed items not yet marked done.
func (q *TaskQueue) Outstanding() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.outstanding
}

// Len reports items waiting to be pulled.
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *TaskQueue) broadcastLocked() {
	close(q.ready)
	q.ready = make(chan struct{})
}

func (q *TaskQueue) maybeFinishLocked() {
	if q.sealed && q.outstanding == 0 {
		q.doneOnce.Do(func() { close(q.done) })
	}
}
