package stream

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Observable is anything that can be subscribed to.
type Observable[T any] interface {
	Subscribe(fn func(T)) Subscription
}

// Func adapts a subscribe function to Observable.
type Func[T any] func(fn func(T)) Subscription

// Subscribe implements Observable.
func (f Func[T]) Subscribe(fn func(T)) Subscription {
	return f(fn)
}

type observer[T any] struct {
	fn     func(T)
	active atomic.Bool
}

// Subject is an always-open multicast stream.
//
// Thread-safety: Subscribe, Next and Unsubscribe may be called from any
// goroutine. Next does not serialize concurrent callers; the store
// guarantees a single emitting goroutine at a time.
type Subject[T any] struct {
	mu        sync.Mutex
	observers []*observer[T]
	onPanic   func(p any)
}

// Option configures a Subject or Behavior.
type Option func(*options)

type options struct {
	onPanic func(p any)
}

// WithPanicHandler recovers a panic in each observer separately and hands
// it to h. Delivery continues with the next observer. Without a handler a
// panicking observer unwinds Next.
func WithPanicHandler(h func(p any)) Option {
	return func(o *options) {
		o.onPanic = h
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewSubject creates a subject with no observers.
func NewSubject[T any](opts ...Option) *Subject[T] {
	o := buildOptions(opts)
	return &Subject[T]{onPanic: o.onPanic}
}

// Subscribe registers fn and returns a handle that removes it.
func (s *Subject[T]) Subscribe(fn func(T)) Subscription {
	o := &observer[T]{fn: fn}
	o.active.Store(true)

	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()

	return NewSubscription(func() {
		o.active.Store(false)
		s.mu.Lock()
		defer s.mu.Unlock()
		s.observers = slices.DeleteFunc(s.observers, func(x *observer[T]) bool {
			return x == o
		})
	})
}

// Next delivers v to every active observer in subscription order.
func (s *Subject[T]) Next(v T) {
	s.mu.Lock()
	snapshot := slices.Clone(s.observers)
	s.mu.Unlock()

	for _, o := range snapshot {
		if o.active.Load() {
			s.call(o, v)
		}
	}
}

func (s *Subject[T]) call(o *observer[T], v T) {
	if s.onPanic != nil {
		defer func() {
			if p := recover(); p != nil {
				s.onPanic(p)
			}
		}()
	}
	o.fn(v)
}

// ObserverCount returns the number of subscribed observers.
func (s *Subject[T]) ObserverCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observers)
}

// Behavior is a replay-latest multicast stream: new observers receive the
// current value synchronously on Subscribe, then every subsequent value.
type Behavior[T any] struct {
	mu      sync.RWMutex
	value   T
	subject *Subject[T]
}

// NewBehavior creates a behavior holding initial.
func NewBehavior[T any](initial T, opts ...Option) *Behavior[T] {
	return &Behavior[T]{value: initial, subject: NewSubject[T](opts...)}
}

// Value returns the current value.
func (b *Behavior[T]) Value() T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.value
}

// Next stores v as the current value and delivers it.
func (b *Behavior[T]) Next(v T) {
	b.mu.Lock()
	b.value = v
	b.mu.Unlock()
	b.subject.Next(v)
}

// Subscribe registers fn and immediately delivers the current value.
func (b *Behavior[T]) Subscribe(fn func(T)) Subscription {
	sub := b.subject.Subscribe(fn)
	fn(b.Value())
	return sub
}

// ObserverCount returns the number of subscribed observers.
func (b *Behavior[T]) ObserverCount() int {
	return b.subject.ObserverCount()
}
