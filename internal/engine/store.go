package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/roach88/minirx/internal/effect"
	"github.com/roach88/minirx/internal/ir"
	"github.com/roach88/minirx/internal/stream"
)

// Config is the root store definition.
type Config struct {
	// Reducers are root feature reducers keyed by state key. They are
	// registered in sorted key order.
	Reducers map[string]Reducer

	// InitialState seeds the tree. A slice present here wins over the
	// owning reducer's default.
	InitialState ir.State

	// MetaReducers wrap the combined root reducer; the first is outermost.
	MetaReducers []MetaReducer

	// Extensions are added (and initialized) before the init action.
	Extensions []Extension
}

// Transition is one accepted state change as seen by debugging tools.
type Transition struct {
	Seq     int64
	Session string
	Action  ir.Action
	State   ir.State
	Changed bool
}

// Store is the single source of truth for application state.
//
// Dispatch model: every Dispatch and UpdateState call enqueues a task on a
// FIFO queue. If no drain is running the caller drains the queue itself;
// each task runs to completion (reduce, publish state, deliver the action
// to observers and effects, call extensions) before the next one starts.
// Dispatches made while a drain is running (from observers, inline
// effects, extensions, or other goroutines) are queued and processed by
// the running drain, so they are never interleaved or recursive.
//
// Thread-safety: all exported methods are safe for concurrent use. Reducers,
// observers, inline effects and extension hooks run on whichever goroutine
// is draining, one task at a time.
type Store struct {
	logger        *slog.Logger
	registry      *Registry
	clock         *Clock
	sessionGen    SessionGenerator
	session       string
	maxDrainSteps int
	effectOpts    []effect.Option

	state       *stream.Behavior[ir.State]
	actions     *stream.Subject[ir.Action]
	transitions *stream.Subject[Transition]
	effects     *effect.Runner

	queue    *taskQueue
	work     effect.Tracker // queued tasks plus running async effects
	mu       sync.Mutex     // guards draining
	draining bool
	closed   atomic.Bool

	extMu      sync.RWMutex
	extensions []Extension
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMaxDrainSteps sets the per-drain task quota.
//
// Default: 10000 (DefaultMaxDrainSteps). Zero disables the quota.
func WithMaxDrainSteps(n int) Option {
	return func(s *Store) {
		s.maxDrainSteps = n
	}
}

// WithSessionGenerator sets the generator for the store's session id.
func WithSessionGenerator(g SessionGenerator) Option {
	return func(s *Store) {
		if g != nil {
			s.sessionGen = g
		}
	}
}

// WithClock sets the logical clock. Used by replay to continue numbering.
func WithClock(c *Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithEffectErrorHook observes every effect failure (metrics, tests).
func WithEffectErrorHook(h effect.ErrorHook) Option {
	return func(s *Store) {
		s.effectOpts = append(s.effectOpts, effect.WithErrorHook(h))
	}
}

// New creates a store, registers the root reducers, adds the configured
// extensions and dispatches ir.InitType.
//
// Returns an error if a root reducer registration is invalid.
func New(cfg Config, opts ...Option) (*Store, error) {
	s := &Store{
		logger:        slog.Default(),
		clock:         NewClock(),
		sessionGen:    UUIDv7Generator{},
		maxDrainSteps: DefaultMaxDrainSteps,
		queue:         newTaskQueue(),
	}
	s.actions = stream.NewSubject[ir.Action](stream.WithPanicHandler(s.observerPanic("action")))
	s.transitions = stream.NewSubject[Transition](stream.WithPanicHandler(s.observerPanic("transition")))
	for _, opt := range opts {
		opt(s)
	}

	s.session = s.sessionGen.Generate()
	s.registry = NewRegistry(cfg.MetaReducers...)
	for _, key := range slices.Sorted(maps.Keys(cfg.Reducers)) {
		if err := s.registry.Register(key, cfg.Reducers[key], FeatureOptions{}); err != nil {
			return nil, err
		}
	}

	s.state = stream.NewBehavior(cfg.InitialState.Clone(), stream.WithPanicHandler(s.observerPanic("state")))
	s.effects = effect.NewRunner(s, append([]effect.Option{effect.WithLogger(s.logger), effect.WithTracker(&s.work)}, s.effectOpts...)...)

	for _, ext := range cfg.Extensions {
		s.AddExtension(ext)
	}

	s.logger.Debug("store created", "session", s.session, "features", s.registry.Keys())
	s.Dispatch(ir.Action{Type: ir.InitType})
	return s, nil
}

// Session returns the store's session id.
func (s *Store) Session() string {
	return s.session
}

// Logger returns the store's logger.
func (s *Store) Logger() *slog.Logger {
	return s.logger
}

// State returns the current state snapshot. Callers must not mutate it.
func (s *Store) State() ir.State {
	return s.state.Value()
}

// StateStream is the replay-latest stream of state snapshots.
func (s *Store) StateStream() stream.Observable[ir.State] {
	return s.state
}

// Actions is the multicast stream of processed actions. Actions are
// delivered after the reducer ran and the new state was published.
func (s *Store) Actions() stream.Observable[ir.Action] {
	return s.actions
}

// Transitions is the (action, state) feed for debugging tools. It includes
// external replacements made with UpdateState.
func (s *Store) Transitions() stream.Observable[Transition] {
	return s.transitions
}

// Registry exposes the reducer registry.
func (s *Store) Registry() *Registry {
	return s.registry
}

// Dispatch queues an action and drains the queue if no drain is running.
func (s *Store) Dispatch(action ir.Action) {
	s.submit(task{kind: taskAction, action: action})
}

// UpdateState replaces the whole state tree without running reducers.
// Observers of the state and extensions are notified as for any other
// transition; the action stream is not, so effects never react to it.
func (s *Store) UpdateState(state ir.State) {
	s.submit(task{kind: taskReplaceState, state: state.Clone()})
}

// RegisterFeature adds a feature reducer and dispatches its init action.
// The duplicate/invalid checks run synchronously and fail only this call.
//
// Called from inside a drain (a reducer, observer, inline effect or
// extension hook), the init action is queued behind the running task: the
// slice appears in State() only after that task completes.
func (s *Store) RegisterFeature(key string, reducer Reducer, opts ...FeatureOptions) error {
	var o FeatureOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	if err := s.registry.Register(key, reducer, o); err != nil {
		return err
	}
	s.logger.Debug("feature registered", "key", key)
	s.Dispatch(ir.Action{Type: ir.FeatureInitType(key)})
	return nil
}

// UnregisterFeature removes a feature reducer and deletes its state key.
// Unknown keys are ignored.
func (s *Store) UnregisterFeature(key string) {
	if !s.registry.Unregister(key) {
		return
	}
	s.logger.Debug("feature unregistered", "key", key)
	s.submit(task{
		kind:    taskAction,
		action:  ir.Action{Type: ir.FeatureDestroyType(key)},
		dropKey: key,
	})
}

// RegisterEffect subscribes an effect to the action stream.
func (s *Store) RegisterEffect(e effect.Effect) (stream.Subscription, error) {
	return s.effects.Register(s.actions, e)
}

// Effects returns the store's effect runner.
func (s *Store) Effects() *effect.Runner {
	return s.effects
}

// Settle blocks until the store is idle: every task queued so far has been
// processed and no asynchronous effect is running. Actions dispatched by
// effects are waited for too. It returns ctx.Err() if ctx ends first.
//
// Settle must not be called from a reducer, observer, effect or extension
// hook; the drain it waits for would be waiting on the caller.
func (s *Store) Settle(ctx context.Context) error {
	return s.work.Wait(ctx)
}

// WaitEffects is Settle without a deadline.
func (s *Store) WaitEffects() {
	_ = s.Settle(context.Background())
}

// AddExtension appends ext, contributes its meta-reducer if it has one,
// and runs its Init hook.
func (s *Store) AddExtension(ext Extension) {
	if p, ok := ext.(MetaReducerProvider); ok {
		s.registry.AddMetaReducer(p.MetaReducer())
	}

	s.extMu.Lock()
	s.extensions = append(s.extensions, ext)
	s.extMu.Unlock()

	s.logger.Debug("extension added", "extension", extensionName(ext))
	s.callHook(ext, "Init", func() error { return ext.Init(s) })
}

// Extensions returns the registered extensions in order.
func (s *Store) Extensions() []Extension {
	s.extMu.RLock()
	defer s.extMu.RUnlock()
	return slices.Clone(s.extensions)
}

// Close stops effects and rejects further dispatches. Queued tasks that
// have not started are dropped.
func (s *Store) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.queue.Close()
	s.effects.Close()
	s.logger.Debug("store closed", "session", s.session)
}

func (s *Store) submit(t task) {
	s.work.Add(1)
	if s.closed.Load() || !s.queue.Enqueue(t) {
		s.work.Done()
		s.logger.Warn("store closed, task dropped",
			"code", string(ErrCodeStoreClosed),
			"action", t.action.Type,
		)
		return
	}
	s.drain()
}

// drain processes queued tasks until the queue is empty. Only one drain
// runs at a time; a caller that finds a drain in progress returns and
// leaves its task to the running drain.
func (s *Store) drain() {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	s.mu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			s.mu.Lock()
			s.draining = false
			s.mu.Unlock()
			panic(p)
		}
	}()

	quota := NewDrainQuota(s.maxDrainSteps)
	for {
		t, ok := s.queue.TryDequeue()
		if !ok {
			s.mu.Lock()
			// Re-check under the lock: a concurrent submit may have
			// enqueued after TryDequeue and seen draining == true.
			if s.queue.Len() == 0 {
				s.draining = false
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()
			continue
		}

		if err := quota.Check(s.session); err != nil {
			dropped := s.queue.Clear()
			s.logger.Error("dispatch quota exceeded, queue discarded",
				"code", string(ErrCodeQuotaExceeded),
				"action", t.action.Type,
				"dropped", dropped+1,
				"error", err.Error(),
			)
			s.work.Add(-(dropped + 1))
			continue
		}

		func() {
			defer s.work.Done()
			s.process(t)
		}()
	}
}

// process runs one task to completion. Errors are logged and processing
// continues with the next task.
func (s *Store) process(t task) {
	switch t.kind {
	case taskReplaceState:
		next := t.state
		seq := s.clock.Next()
		s.state.Next(next)
		s.notify(Transition{
			Seq:     seq,
			Session: s.session,
			Action:  ir.Action{Type: ir.UpdateStateType},
			State:   next,
			Changed: true,
		})

	case taskAction:
		prev := s.state.Value()
		base := prev
		if t.dropKey != "" {
			base = prev.Without(t.dropKey)
		}

		next, err := s.reduce(base, t.action)
		if err != nil {
			s.logger.Error("reducer failed, action dropped",
				"action", t.action.Type,
				"error", err.Error(),
			)
			return
		}

		seq := s.clock.Next()
		changed := !ir.Same(prev, next)
		if changed {
			s.state.Next(next)
		}

		s.deliver(t.action)
		s.notify(Transition{
			Seq:     seq,
			Session: s.session,
			Action:  t.action,
			State:   next,
			Changed: changed,
		})
	}
}

func (s *Store) reduce(state ir.State, action ir.Action) (next ir.State, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &Error{
				Code:       ErrCodeReducerPanic,
				Message:    fmt.Sprintf("reducer panicked: %v", p),
				ActionType: action.Type,
			}
		}
	}()

	out := s.registry.Reducer()(state, action)
	tree, ok := ir.AsState(out)
	if !ok {
		return nil, &Error{
			Code:       ErrCodeInvalidState,
			Message:    fmt.Sprintf("root reducer returned %T, want state tree", out),
			ActionType: action.Type,
		}
	}
	return tree, nil
}

// observerPanic logs a panic recovered from one observer of the named
// stream. The remaining observers still receive the value.
func (s *Store) observerPanic(name string) func(p any) {
	return func(p any) {
		s.logger.Error("observer panicked",
			"stream", name,
			"session", s.session,
			"panic", fmt.Sprint(p),
		)
	}
}

// deliver hands the action to action observers (including effects).
func (s *Store) deliver(action ir.Action) {
	s.actions.Next(action)
}

// notify publishes the transition feed and runs extension hooks.
func (s *Store) notify(tr Transition) {
	s.transitions.Next(tr)

	for _, ext := range s.Extensions() {
		s.callHook(ext, "OnActionAndState", func() error {
			return ext.OnActionAndState(tr.Action, tr.State)
		})
	}
}

// Select derives a replay-latest stream from the state tree. It emits the
// current value on subscribe and then only when fn's result changes
// identity.
func Select[R any](s *Store, fn func(ir.State) R) stream.Observable[R] {
	return stream.Select[ir.State, R](s.state, fn)
}
