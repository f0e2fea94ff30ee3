package testutil

import (
	"slices"
	"sync"
	"time"

	"github.com/roach88/minirx/internal/stream"
)

// Recorder collects the values an observable emits.
//
// Thread-safety: safe for concurrent use; emissions from effect
// goroutines are recorded in arrival order.
type Recorder[T any] struct {
	mu     sync.Mutex
	values []T
	sub    stream.Subscription
}

// Record subscribes to src and returns the recorder. Call Stop to
// unsubscribe.
func Record[T any](src stream.Observable[T]) *Recorder[T] {
	r := &Recorder[T]{}
	r.sub = src.Subscribe(func(v T) {
		r.mu.Lock()
		r.values = append(r.values, v)
		r.mu.Unlock()
	})
	return r
}

// Stop unsubscribes from the source. Recorded values are kept.
func (r *Recorder[T]) Stop() {
	r.sub.Unsubscribe()
}

// Values returns a copy of everything recorded so far.
func (r *Recorder[T]) Values() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.values)
}

// Len returns the number of recorded values.
func (r *Recorder[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

// Last returns the most recent value, if any.
func (r *Recorder[T]) Last() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.values) == 0 {
		var zero T
		return zero, false
	}
	return r.values[len(r.values)-1], true
}

// Reset drops recorded values.
func (r *Recorder[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = nil
}

// WaitFor polls until at least n values are recorded or timeout elapses.
// It reports whether n was reached.
func (r *Recorder[T]) WaitFor(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if r.Len() >= n {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}
