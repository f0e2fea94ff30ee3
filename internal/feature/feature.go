package feature

import (
	"errors"
	"log/slog"
	"reflect"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/roach88/minirx/internal/engine"
	"github.com/roach88/minirx/internal/ir"
	"github.com/roach88/minirx/internal/selector"
	"github.com/roach88/minirx/internal/stream"
)

// ErrDestroyed is returned by operations on a destroyed feature.
var ErrDestroyed = errors.New("feature destroyed")

// Feature owns the slice of a store's state tree stored under Key.
//
// Thread-safety: all methods are safe for concurrent use.
type Feature[T any] struct {
	store   *engine.Store
	key     string
	initial T
	owned   bool
	logger  *slog.Logger
	coerce  engine.Coercer[T]

	mu          sync.Mutex
	effectCount int
	subs        stream.Group

	destroyed atomic.Bool
}

type options struct {
	metaReducers []engine.MetaReducer
	storeOpts    []engine.Option
	extensions   []engine.Extension
}

// Option configures a feature.
type Option func(*options)

// WithMetaReducers wraps only this feature's reducer.
func WithMetaReducers(metas ...engine.MetaReducer) Option {
	return func(o *options) {
		o.metaReducers = append(o.metaReducers, metas...)
	}
}

// WithStoreOptions configures the private store of a Standalone feature.
// Ignored by New.
func WithStoreOptions(opts ...engine.Option) Option {
	return func(o *options) {
		o.storeOpts = append(o.storeOpts, opts...)
	}
}

// WithExtensions adds extensions to the private store of a Standalone
// feature. Ignored by New.
func WithExtensions(exts ...engine.Extension) Option {
	return func(o *options) {
		o.extensions = append(o.extensions, exts...)
	}
}

// New registers a feature under key on store. The slice starts as initial
// unless the store's tree already holds a value for key.
//
// Returns an error if key is already registered.
func New[T any](store *engine.Store, key string, initial T, opts ...Option) (*Feature[T], error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	f := &Feature[T]{
		store:   store,
		key:     key,
		initial: initial,
		logger:  store.Logger().With("feature", key),
	}
	err := store.RegisterFeature(key, f.reducer(), engine.FeatureOptions{
		InitialState: initial,
		MetaReducers: o.metaReducers,
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Standalone creates a feature backed by its own private store. Destroy
// closes that store.
func Standalone[T any](key string, initial T, opts ...Option) (*Feature[T], error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	store, err := engine.New(engine.Config{Extensions: o.extensions}, o.storeOpts...)
	if err != nil {
		return nil, err
	}
	f, err := New(store, key, initial, WithMetaReducers(o.metaReducers...))
	if err != nil {
		store.Close()
		return nil, err
	}
	f.owned = true
	return f, nil
}

// Key returns the state key.
func (f *Feature[T]) Key() string {
	return f.key
}

// Store returns the backing store.
func (f *Feature[T]) Store() *engine.Store {
	return f.store
}

// State returns the current slice.
func (f *Feature[T]) State() T {
	return f.slice(f.store.State())
}

// StateStream is the replay-latest stream of the slice.
func (f *Feature[T]) StateStream() stream.Observable[T] {
	return engine.Select(f.store, f.slice)
}

// SetState dispatches @mini-rx/<key>/SET-STATE[/<name>] carrying next.
// Map-kinded slices are shallow-merged with next; other slices are
// replaced.
func (f *Feature[T]) SetState(next T, name ...string) {
	if f.destroyed.Load() {
		f.logger.Warn("set state on destroyed feature ignored")
		return
	}
	f.store.Dispatch(ir.Action{
		Type:    ir.SetStateType(f.key, actionName(name)),
		Payload: next,
	})
}

// Update computes the next slice from the current one and dispatches it
// like SetState. fn sees the slice as of the call.
func (f *Feature[T]) Update(fn func(T) T, name ...string) {
	f.SetState(fn(f.State()), name...)
}

// Destroy stops the feature's effects and removes its key from the tree.
// A standalone feature also closes its private store.
func (f *Feature[T]) Destroy() {
	if !f.destroyed.CompareAndSwap(false, true) {
		return
	}
	f.subs.Unsubscribe()
	f.store.UnregisterFeature(f.key)
	if f.owned {
		f.store.Close()
	}
	f.logger.Debug("feature destroyed")
}

// Select derives a stream from the feature's own slice.
func Select[T, R any](f *Feature[T], sel selector.Selector[T, R]) stream.Observable[R] {
	return engine.Select(f.store, func(st ir.State) R {
		return sel.Select(f.slice(st))
	})
}

// SelectGlobal derives a stream from the whole state tree.
func SelectGlobal[T, R any](f *Feature[T], sel selector.Selector[ir.State, R]) stream.Observable[R] {
	return engine.Select(f.store, sel.Select)
}

func (f *Feature[T]) slice(st ir.State) T {
	if v, ok := f.coerce.Coerce(st[f.key]); ok {
		return v
	}
	return f.initial
}

func (f *Feature[T]) reducer() engine.Reducer {
	key := f.key
	return engine.ReducerFor(f.initial, func(state T, a ir.Action) T {
		if !ir.IsSetStateFor(key, a.Type) {
			return state
		}
		next, ok := engine.Coerce[T](a.Payload)
		if !ok {
			return state
		}
		return mergeShallow(state, next)
	})
}

func (f *Feature[T]) nextEffectName() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.effectCount++
	return strconv.Itoa(f.effectCount)
}

func actionName(name []string) string {
	if len(name) == 0 {
		return ""
	}
	return name[0]
}

// mergeShallow copies the entries of patch over cur when T is a map with
// string keys. Any other kind is replaced by patch. An empty patch keeps
// cur as is.
func mergeShallow[T any](cur, patch T) T {
	pv := reflect.ValueOf(patch)
	if !pv.IsValid() || pv.Kind() != reflect.Map || pv.Type().Key().Kind() != reflect.String {
		return patch
	}
	if pv.Len() == 0 {
		return cur
	}
	cv := reflect.ValueOf(cur)
	if !cv.IsValid() || cv.Type() != pv.Type() {
		return patch
	}

	out := reflect.MakeMapWithSize(pv.Type(), cv.Len()+pv.Len())
	for it := cv.MapRange(); it.Next(); {
		out.SetMapIndex(it.Key(), it.Value())
	}
	for it := pv.MapRange(); it.Next(); {
		out.SetMapIndex(it.Key(), it.Value())
	}
	return out.Interface().(T)
}
