package engine

import (
	"slices"
	"sync"

	"github.com/roach88/minirx/internal/ir"
)

// FeatureOptions configures a feature registration.
type FeatureOptions struct {
	// InitialState overrides the reducer's own default for a nil slice.
	InitialState any

	// MetaReducers wrap only this feature's reducer.
	MetaReducers []MetaReducer
}

type featureEntry struct {
	key     string
	reducer Reducer // already wrapped with initial state and meta-reducers
}

// Registry owns the feature reducers of one store and the root
// meta-reducer chain, and builds the composed root reducer.
//
// The composed reducer is rebuilt on every change, so a reducer obtained
// before a change keeps its old feature set.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	order     []string
	features  map[string]*featureEntry
	rootMetas []MetaReducer
	composed  Reducer
}

// NewRegistry creates an empty registry with the given root meta-reducers.
func NewRegistry(rootMetas ...MetaReducer) *Registry {
	r := &Registry{
		features:  make(map[string]*featureEntry),
		rootMetas: slices.Clone(rootMetas),
	}
	r.rebuild()
	return r
}

// Register adds a feature reducer under key.
//
// Registering a key that is already present is always an error, whatever
// the reducer. Callers that want to replace a feature unregister it first.
func (r *Registry) Register(key string, reducer Reducer, opts FeatureOptions) error {
	if key == "" {
		return NewInvalidFeatureError(key, "feature key is required")
	}
	if reducer == nil {
		return NewInvalidFeatureError(key, "feature reducer is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.features[key]; exists {
		return NewDuplicateKeyError(key)
	}

	wrapped := withInitialState(reducer, opts.InitialState)
	wrapped = ComposeMeta(opts.MetaReducers...)(wrapped)

	r.features[key] = &featureEntry{key: key, reducer: wrapped}
	r.order = append(r.order, key)
	r.rebuild()
	return nil
}

// Unregister removes the feature under key. Returns false if it was not
// registered; calling it twice is harmless.
func (r *Registry) Unregister(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.features[key]; !exists {
		return false
	}
	delete(r.features, key)
	r.order = slices.DeleteFunc(r.order, func(k string) bool { return k == key })
	r.rebuild()
	return true
}

// AddMetaReducer appends a root meta-reducer. It becomes the innermost
// wrapper around the combined feature reducer.
func (r *Registry) AddMetaReducer(m MetaReducer) {
	if m == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rootMetas = append(r.rootMetas, m)
	r.rebuild()
}

// Has reports whether key is registered.
func (r *Registry) Has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.features[key]
	return ok
}

// Keys returns registered keys in registration order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Reducer returns the current composed root reducer.
func (r *Registry) Reducer() Reducer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.composed
}

// rebuild recomposes the root reducer. Caller holds r.mu.
func (r *Registry) rebuild() {
	entries := make([]*featureEntry, 0, len(r.order))
	for _, k := range r.order {
		entries = append(entries, r.features[k])
	}
	r.composed = ComposeMeta(r.rootMetas...)(combineFeatureReducers(entries))
}

// combineFeatureReducers gives each feature its own slice and the full
// action. A new tree is allocated only if some slice changed identity;
// otherwise the input tree is returned unchanged. Keys without a reducer
// (root initial state, restored state) are carried over untouched.
func combineFeatureReducers(entries []*featureEntry) Reducer {
	return func(state any, action ir.Action) any {
		tree, ok := ir.AsState(state)
		if !ok {
			tree = ir.State{}
		}

		var next ir.State
		for _, e := range entries {
			prev := tree[e.key]
			updated := e.reducer(prev, action)
			if ir.Same(prev, updated) {
				continue
			}
			if next == nil {
				next = tree.Clone()
			}
			next[e.key] = updated
		}

		if next == nil {
			return tree
		}
		return next
	}
}
