package stream

import "sync"

// Subscription is a disposable handle returned by Subscribe.
// Unsubscribe is idempotent and safe from any goroutine.
type Subscription interface {
	Unsubscribe()
}

type funcSubscription struct {
	once sync.Once
	fn   func()
}

// NewSubscription wraps a teardown function. fn runs at most once.
func NewSubscription(fn func()) Subscription {
	return &funcSubscription{fn: fn}
}

func (s *funcSubscription) Unsubscribe() {
	s.once.Do(func() {
		if s.fn != nil {
			s.fn()
		}
	})
}

// Group collects subscriptions so they can be torn down together.
// Subscriptions added after Unsubscribe are disposed immediately.
type Group struct {
	mu     sync.Mutex
	subs   []Subscription
	closed bool
}

// Add registers sub with the group.
func (g *Group) Add(sub Subscription) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	g.subs = append(g.subs, sub)
	g.mu.Unlock()
}

// Len returns the number of live subscriptions in the group.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.subs)
}

// Unsubscribe disposes every subscription in registration order.
func (g *Group) Unsubscribe() {
	g.mu.Lock()
	subs := g.subs
	g.subs = nil
	g.closed = true
	g.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
}
