// Package selector provides pure, memoized derivations over state.
//
// A Selector maps an input (the global tree or a single feature slice) to
// a derived value. Memoized selectors built with Create1..Create4 skip
// their projector when every input selector returns the same value
// (by ir.Same) as on the previous evaluation, and skip input evaluation
// entirely when handed the same state as last time.
//
// Scope is part of the type: Selector[ir.State, R] reads the global tree,
// Selector[T, R] reads one feature slice of type T. Own[T] starts a
// feature-scoped chain; AtKey lifts a feature-scoped selector into the
// global scope for a given key. The same feature-scoped selector can
// therefore be reused under the global store and under a standalone
// feature store.
package selector
