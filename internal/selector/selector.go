package selector

import (
	"github.com/roach88/minirx/internal/engine"
	"github.com/roach88/minirx/internal/ir"
)

// Selector derives R from S. Implementations must be pure.
type Selector[S, R any] interface {
	Select(state S) R
}

// Func adapts a plain function to Selector.
type Func[S, R any] func(S) R

// Select implements Selector.
func (f Func[S, R]) Select(state S) R {
	return f(state)
}

// Feature reads the slice stored under key in the global tree.
// A missing slice yields the zero value of T. An untyped slice is converted
// once per slice identity.
func Feature[T any](key string) Selector[ir.State, T] {
	var c engine.Coercer[T]
	return Func[ir.State, T](func(s ir.State) T {
		v, _ := c.Coerce(s[key])
		return v
	})
}

// Own is the identity selector over a feature's own slice.
func Own[T any]() Selector[T, T] {
	return Func[T, T](func(s T) T { return s })
}

// AtKey lifts a feature-scoped selector to the global tree, reading the
// slice under key.
func AtKey[T, R any](key string, sel Selector[T, R]) Selector[ir.State, R] {
	slice := Feature[T](key)
	return Func[ir.State, R](func(s ir.State) R {
		return sel.Select(slice.Select(s))
	})
}

// Root is the identity selector over the global tree.
func Root() Selector[ir.State, ir.State] {
	return Func[ir.State, ir.State](func(s ir.State) ir.State { return s })
}
