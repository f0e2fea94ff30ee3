package engine

import (
	"encoding/json"
	"sync"

	"github.com/roach88/minirx/internal/ir"
)

// Reducer is a pure state transition. It must not mutate state and should
// return state itself when the action does not concern it; selectors and
// the state stream rely on that identity to skip work.
//
// A nil state means the slice has never been initialized.
type Reducer func(state any, action ir.Action) any

// MetaReducer wraps a Reducer to add cross-cutting behavior.
type MetaReducer func(Reducer) Reducer

// ComposeMeta folds meta-reducers right to left: the first element ends up
// outermost, so it sees the action first and the result last.
//
//	ComposeMeta(a, b)(r) == a(b(r))
func ComposeMeta(metas ...MetaReducer) MetaReducer {
	return func(r Reducer) Reducer {
		for i := len(metas) - 1; i >= 0; i-- {
			if metas[i] != nil {
				r = metas[i](r)
			}
		}
		return r
	}
}

// CombineReducers runs reducers in order, threading the state through.
func CombineReducers(reducers ...Reducer) Reducer {
	return func(state any, action ir.Action) any {
		for _, r := range reducers {
			state = r(state, action)
		}
		return state
	}
}

// ReducerFor adapts a typed reducer. A nil slice starts from initial;
// a slice of another shape (a decoded JSON map after time travel, say) is
// converted with Coerce before fn sees it. When fn hands a converted slice
// back unchanged, the original slice is returned so the state keeps its
// identity.
func ReducerFor[T any](initial T, fn func(T, ir.Action) T) Reducer {
	var c Coercer[T]
	return func(state any, action ir.Action) any {
		s, ok := c.Coerce(state)
		if !ok {
			s = initial
		}
		out := fn(s, action)
		if ok && ir.Same(out, s) {
			if _, typed := state.(T); !typed {
				return state
			}
		}
		return out
	}
}

// Coerce converts v to T. Values already of type T are returned as is
// (same identity); other non-nil values are converted through JSON, so each
// call returns a fresh value. Use a Coercer where the result feeds identity
// checks.
func Coerce[T any](v any) (T, bool) {
	var zero T
	if v == nil {
		return zero, false
	}
	if t, ok := v.(T); ok {
		return t, true
	}
	data, err := json.Marshal(v)
	if err != nil {
		return zero, false
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, false
	}
	return out, true
}

// Coercer is Coerce with a one-entry cache keyed by the identity of the
// source value (ir.Same). Reading the same untyped slice repeatedly yields
// the same converted value, so identity-based change detection downstream
// does not see a fresh copy on every read.
//
// The zero value is ready to use and safe for concurrent use.
type Coercer[T any] struct {
	mu  sync.Mutex
	set bool
	src any
	out T
	ok  bool
}

// Coerce converts v like the package-level Coerce.
func (c *Coercer[T]) Coerce(v any) (T, bool) {
	if t, ok := v.(T); ok {
		return t, true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.set && ir.Same(c.src, v) {
		return c.out, c.ok
	}
	out, ok := Coerce[T](v)
	c.set, c.src, c.out, c.ok = true, v, out, ok
	return out, ok
}

// withInitialState makes initial the slice value whenever the reducer is
// handed a nil slice.
func withInitialState(r Reducer, initial any) Reducer {
	if initial == nil {
		return r
	}
	return func(state any, action ir.Action) any {
		if state == nil {
			state = initial
		}
		return r(state, action)
	}
}
