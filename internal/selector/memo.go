package selector

import (
	"sync"

	"github.com/roach88/minirx/internal/ir"
)

// Memoized caches the last (state, inputs, result) of a projector.
//
// The cache has an explicit initialized flag: a projector that returns the
// zero value is still considered computed, so identical inputs never
// recompute it.
//
// Thread-safety: Select serializes evaluations with a mutex, so a
// selector may be shared between stores and goroutines.
type Memoized[S, R any] struct {
	mu      sync.Mutex
	inputs  []func(S) any
	project func(args []any) R

	initialized    bool
	lastState      S
	lastArgs       []any
	lastResult     R
	recomputations int
}

func newMemoized[S, R any](inputs []func(S) any, project func(args []any) R) *Memoized[S, R] {
	return &Memoized[S, R]{inputs: inputs, project: project}
}

// Select implements Selector.
func (m *Memoized[S, R]) Select(state S) R {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized && ir.Same(m.lastState, state) {
		return m.lastResult
	}

	args := make([]any, len(m.inputs))
	for i, in := range m.inputs {
		args[i] = in(state)
	}

	if m.initialized && sameArgs(m.lastArgs, args) {
		m.lastState = state
		return m.lastResult
	}

	result := m.project(args)
	m.initialized = true
	m.lastState = state
	m.lastArgs = args
	m.lastResult = result
	m.recomputations++
	return result
}

// Recomputations returns how many times the projector has run.
func (m *Memoized[S, R]) Recomputations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recomputations
}

// Release drops the cached state, inputs and result. The next Select
// always recomputes.
func (m *Memoized[S, R]) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zeroS S
	var zeroR R
	m.initialized = false
	m.lastState = zeroS
	m.lastArgs = nil
	m.lastResult = zeroR
}

func sameArgs(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !ir.Same(a[i], b[i]) {
			return false
		}
	}
	return true
}

func input[S, T any](sel Selector[S, T]) func(S) any {
	return func(s S) any { return sel.Select(s) }
}

// as recovers a typed argument. A nil interface becomes the zero value.
func as[T any](v any) T {
	t, _ := v.(T)
	return t
}

// Create1 memoizes project over one input selector.
func Create1[S, A, R any](a Selector[S, A], project func(A) R) *Memoized[S, R] {
	return newMemoized([]func(S) any{input(a)}, func(args []any) R {
		return project(as[A](args[0]))
	})
}

// Create2 memoizes project over two input selectors.
func Create2[S, A, B, R any](a Selector[S, A], b Selector[S, B], project func(A, B) R) *Memoized[S, R] {
	return newMemoized([]func(S) any{input(a), input(b)}, func(args []any) R {
		return project(as[A](args[0]), as[B](args[1]))
	})
}

// Create3 memoizes project over three input selectors.
func Create3[S, A, B, C, R any](a Selector[S, A], b Selector[S, B], c Selector[S, C], project func(A, B, C) R) *Memoized[S, R] {
	return newMemoized([]func(S) any{input(a), input(b), input(c)}, func(args []any) R {
		return project(as[A](args[0]), as[B](args[1]), as[C](args[2]))
	})
}

// Create4 memoizes project over four input selectors.
func Create4[S, A, B, C, D, R any](a Selector[S, A], b Selector[S, B], c Selector[S, C], d Selector[S, D], project func(A, B, C, D) R) *Memoized[S, R] {
	return newMemoized([]func(S) any{input(a), input(b), input(c), input(d)}, func(args []any) R {
		return project(as[A](args[0]), as[B](args[1]), as[C](args[2]), as[D](args[3]))
	})
}
