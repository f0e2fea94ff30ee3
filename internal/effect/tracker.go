package effect

import (
	"context"
	"sync"
)

// Tracker counts outstanding units of work. Unlike sync.WaitGroup, Add may
// be called at any time, including while another goroutine is in Wait.
//
// The zero value is ready to use.
type Tracker struct {
	mu   sync.Mutex
	n    int
	idle chan struct{} // closed while n == 0; nil until first Add
}

// Add adjusts the count by delta. The count must not go negative.
func (t *Tracker) Add(delta int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := t.n
	t.n += delta
	switch {
	case t.n < 0:
		panic("effect: negative tracker count")
	case was == 0 && t.n > 0:
		t.idle = make(chan struct{})
	case was > 0 && t.n == 0:
		close(t.idle)
	}
}

// Done decrements the count by one.
func (t *Tracker) Done() {
	t.Add(-1)
}

// Count returns the current count.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.n
}

// Wait blocks until the count is zero or ctx is done.
func (t *Tracker) Wait(ctx context.Context) error {
	for {
		t.mu.Lock()
		if t.n == 0 {
			t.mu.Unlock()
			return nil
		}
		idle := t.idle
		t.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
