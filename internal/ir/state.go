package ir

import (
	"maps"
	"slices"
)

// State is the root state tree: feature key to an immutable slice value.
//
// State values are never mutated in place. With and Without return a new
// map and leave the receiver untouched, so holders of the old tree keep a
// consistent snapshot.
type State map[string]any

// Get returns the slice stored under key.
func (s State) Get(key string) (any, bool) {
	v, ok := s[key]
	return v, ok
}

// With returns a copy of s with key set to v.
func (s State) With(key string, v any) State {
	next := make(State, len(s)+1)
	maps.Copy(next, s)
	next[key] = v
	return next
}

// Without returns a copy of s with key removed. If key is absent the
// receiver itself is returned.
func (s State) Without(key string) State {
	if _, ok := s[key]; !ok {
		return s
	}
	next := make(State, len(s))
	for k, v := range s {
		if k != key {
			next[k] = v
		}
	}
	return next
}

// Clone returns a shallow copy.
func (s State) Clone() State {
	if s == nil {
		return State{}
	}
	return maps.Clone(s)
}

// Keys returns the keys in sorted order.
func (s State) Keys() []string {
	return slices.Sorted(maps.Keys(s))
}

// AsState converts a generic value to a State tree. Accepts State,
// map[string]any and nil.
func AsState(v any) (State, bool) {
	switch t := v.(type) {
	case nil:
		return State{}, true
	case State:
		return t, true
	case map[string]any:
		return State(t), true
	default:
		return nil, false
	}
}
