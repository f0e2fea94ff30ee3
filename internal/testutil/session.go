package testutil

import (
	"fmt"
	"sync"
)

// SequentialSessions generates numbered session ids: "<prefix>-1",
// "<prefix>-2", ...
//
// Unlike engine.FixedGenerator it never runs out, and Reset lets a test
// build the same sequence of stores twice with identical ids.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequentialSessions struct {
	mu     sync.Mutex
	prefix string
	n      int64
}

// NewSequentialSessions creates a generator. An empty prefix becomes
// "test-session".
func NewSequentialSessions(prefix string) *SequentialSessions {
	if prefix == "" {
		prefix = "test-session"
	}
	return &SequentialSessions{prefix: prefix}
}

// Generate returns the next session id.
//
// Implements engine.SessionGenerator.
func (g *SequentialSessions) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// Count returns how many ids have been generated.
func (g *SequentialSessions) Count() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}

// Reset restarts numbering. The next Generate returns "<prefix>-1".
func (g *SequentialSessions) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
