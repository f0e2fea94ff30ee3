package engine

import (
	"sync"

	"github.com/roach88/minirx/internal/ir"
)

// taskKind distinguishes between queued work items.
type taskKind int

const (
	// taskAction reduces an action and notifies observers.
	taskAction taskKind = iota + 1
	// taskReplaceState swaps the whole state tree without running reducers.
	taskReplaceState
)

// task is one unit of work for the drain loop.
type task struct {
	kind   taskKind
	action ir.Action
	state  ir.State // for taskReplaceState

	// dropKey removes a state key before reducing (feature destroy).
	dropKey string
}

// taskQueue is a thread-safe FIFO queue for dispatch tasks.
//
// The queue is unbounded so effects can enqueue follow-up actions from
// inside a delivery without blocking. Re-entrant dispatches land here and
// are processed after the current task completes, never recursively.
//
// Thread-safety is provided for dispatches from effect goroutines while
// another goroutine drains.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []task
	closed bool
}

// newTaskQueue creates an empty task queue.
func newTaskQueue() *taskQueue {
	return &taskQueue{
		tasks: make([]task, 0, 64), // Pre-allocate for typical workloads
	}
}

// Enqueue adds a task to the back of the queue.
// Returns false if the queue is closed.
func (q *taskQueue) Enqueue(t task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.tasks = append(q.tasks, t)
	return true
}

// TryDequeue removes and returns the front task without blocking.
// Returns (task{}, false) if the queue is empty.
func (q *taskQueue) TryDequeue() (task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return task{}, false
	}

	t := q.tasks[0]

	// Nil out the slot so the backing array does not retain payloads and
	// state trees after they are processed.
	q.tasks[0] = task{}

	if len(q.tasks) == 1 {
		q.tasks = q.tasks[:0]
	} else {
		q.tasks = q.tasks[1:]
	}
	return t, true
}

// Len returns the current queue length.
func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Clear discards every queued task and returns how many were dropped.
func (q *taskQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.tasks)
	clear(q.tasks)
	q.tasks = q.tasks[:0]
	return n
}

// Close rejects further enqueues. Already queued tasks remain.
func (q *taskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
