package engine

import "sync/atomic"

// Clock is a monotonic logical clock for transition ordering.
//
// Every processed task is stamped with a strictly increasing seq number
// from this clock. This ensures:
//   - Deterministic ordering (no wall-clock race conditions)
//   - Journal replay produces identical order
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// The store's single drain loop means only one goroutine calls Next at a time.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific sequence number.
// Used by replay to resume numbering after a restored transition.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
