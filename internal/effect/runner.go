package effect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/minirx/internal/ir"
	"github.com/roach88/minirx/internal/stream"
)

// Dispatcher receives the actions effects produce.
type Dispatcher interface {
	Dispatch(action ir.Action)
}

// ErrorHook observes every handler failure.
type ErrorHook func(err *TransformError)

// Runner subscribes effects to an action source and dispatches their results.
//
// Thread-safety: Register, Wait and Close are safe for concurrent use.
type Runner struct {
	dispatcher Dispatcher
	logger     *slog.Logger
	hooks      []ErrorHook

	ctx    context.Context
	cancel context.CancelFunc
	active Tracker
	shared *Tracker
	subs   stream.Group

	unnamed atomic.Int64
	closed  atomic.Bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger used for effect failures.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithErrorHook registers a callback for every handler failure.
func WithErrorHook(h ErrorHook) Option {
	return func(r *Runner) {
		if h != nil {
			r.hooks = append(r.hooks, h)
		}
	}
}

// WithTracker also counts every asynchronous invocation on t, so a caller
// can wait for effects together with other work it tracks there. An
// invocation is released only after the actions it produced were handed
// to the dispatcher.
func WithTracker(t *Tracker) Option {
	return func(r *Runner) {
		r.shared = t
	}
}

// NewRunner creates a runner dispatching into d.
func NewRunner(d Dispatcher, opts ...Option) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		dispatcher: d,
		logger:     slog.Default(),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddErrorHook registers a failure callback after construction.
// Not safe to call while effects are failing concurrently.
func (r *Runner) AddErrorHook(h ErrorHook) {
	if h != nil {
		r.hooks = append(r.hooks, h)
	}
}

// Register subscribes e to source. The returned subscription stops the
// effect and cancels its in-flight asynchronous invocations.
func (r *Runner) Register(source stream.Observable[ir.Action], e Effect) (stream.Subscription, error) {
	if e.Handler == nil {
		return nil, errors.New("effect handler is required")
	}
	if _, ok := modeNames[e.Mode]; !ok {
		return nil, fmt.Errorf("effect %q: invalid mode %d", e.Name, int(e.Mode))
	}
	if r.closed.Load() {
		return nil, errors.New("effect runner is closed")
	}
	if e.Name == "" {
		e.Name = fmt.Sprintf("effect-%d", r.unnamed.Add(1))
	}

	inst := newInstance(r, e)
	src := source.Subscribe(func(a ir.Action) {
		if e.Matches(a) {
			inst.trigger(a)
		}
	})

	sub := stream.NewSubscription(func() {
		src.Unsubscribe()
		inst.stop()
	})
	r.subs.Add(sub)

	r.logger.Debug("effect registered", "effect", e.Name, "mode", e.Mode.String(), "types", e.Types)
	return sub, nil
}

// Wait blocks until every in-flight asynchronous invocation has finished.
// Invocations started while waiting are waited for too.
func (r *Runner) Wait() {
	r.active.Wait(context.Background())
}

// InFlight returns the number of running asynchronous invocations.
func (r *Runner) InFlight() int {
	return r.active.Count()
}

func (r *Runner) begin() {
	r.active.Add(1)
	if r.shared != nil {
		r.shared.Add(1)
	}
}

func (r *Runner) end() {
	if r.shared != nil {
		r.shared.Done()
	}
	r.active.Done()
}

// Close stops all effects, cancels in-flight work and waits for it.
func (r *Runner) Close() {
	if !r.closed.CompareAndSwap(false, true) {
		return
	}
	r.subs.Unsubscribe()
	r.cancel()
	r.active.Wait(context.Background())
}

func (r *Runner) report(err *TransformError) {
	r.logger.Error("effect failed, subscription kept",
		"effect", err.Effect,
		"action", err.ActionType,
		"error", err.Error(),
	)
	for _, h := range r.hooks {
		h(err)
	}
}

// instance is one registered effect with its flattening state.
type instance struct {
	runner *Runner
	effect Effect
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	switchCtl context.CancelFunc // Switch: cancels the in-flight invocation
	pending   []ir.Action        // Concat: triggers waiting for the worker
	working   bool               // Concat: worker goroutine running
	busy      atomic.Bool        // Exhaust: invocation in flight
}

func newInstance(r *Runner, e Effect) *instance {
	ctx, cancel := context.WithCancel(r.ctx)
	return &instance{runner: r, effect: e, ctx: ctx, cancel: cancel}
}

func (inst *instance) stop() {
	inst.cancel()
}

func (inst *instance) trigger(a ir.Action) {
	if inst.ctx.Err() != nil {
		return
	}

	switch inst.effect.Mode {
	case Inline:
		inst.invoke(inst.ctx, a)

	case Merge:
		inst.goInvoke(inst.ctx, a)

	case Switch:
		ctx, cancel := context.WithCancel(inst.ctx)
		inst.mu.Lock()
		if inst.switchCtl != nil {
			inst.switchCtl()
		}
		inst.switchCtl = cancel
		inst.mu.Unlock()
		inst.goInvoke(ctx, a)

	case Concat:
		inst.mu.Lock()
		inst.pending = append(inst.pending, a)
		if inst.working {
			inst.mu.Unlock()
			return
		}
		inst.working = true
		inst.runner.begin()
		inst.mu.Unlock()
		go inst.drainConcat()

	case Exhaust:
		if !inst.busy.CompareAndSwap(false, true) {
			inst.runner.logger.Debug("effect busy, trigger ignored", "effect", inst.effect.Name, "action", a.Type)
			return
		}
		inst.runner.begin()
		go func() {
			defer inst.runner.end()
			defer inst.busy.Store(false)
			inst.invoke(inst.ctx, a)
		}()
	}
}

func (inst *instance) goInvoke(ctx context.Context, a ir.Action) {
	inst.runner.begin()
	go func() {
		defer inst.runner.end()
		inst.invoke(ctx, a)
	}()
}

func (inst *instance) drainConcat() {
	defer inst.runner.end()
	for {
		inst.mu.Lock()
		if len(inst.pending) == 0 || inst.ctx.Err() != nil {
			inst.pending = nil
			inst.working = false
			inst.mu.Unlock()
			return
		}
		a := inst.pending[0]
		inst.pending = inst.pending[1:]
		inst.mu.Unlock()

		inst.invoke(inst.ctx, a)
	}
}

// invoke runs the handler once and dispatches its results. Failures are
// reported and swallowed so the effect stays subscribed.
func (inst *instance) invoke(ctx context.Context, a ir.Action) {
	results, err := inst.call(ctx, a)
	if err != nil {
		inst.runner.report(err)
		return
	}
	if inst.effect.NoDispatch || ctx.Err() != nil {
		return
	}
	for _, res := range results {
		if res.Type == "" {
			continue
		}
		inst.runner.dispatcher.Dispatch(res)
	}
}

func (inst *instance) call(ctx context.Context, a ir.Action) (results []ir.Action, terr *TransformError) {
	defer func() {
		if p := recover(); p != nil {
			terr = &TransformError{Effect: inst.effect.Name, ActionType: a.Type, Panic: p}
		}
	}()

	out, err := inst.effect.Handler(ctx, a)
	if err != nil {
		return nil, &TransformError{Effect: inst.effect.Name, ActionType: a.Type, Err: err}
	}
	return out, nil
}
