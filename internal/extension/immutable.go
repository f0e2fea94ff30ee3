package extension

import (
	"log/slog"
	"sync"

	"github.com/roach88/minirx/internal/engine"
	"github.com/roach88/minirx/internal/ir"
)

// ImmutableState detects in-place mutation of state values.
//
// Two checks run inside the root reducer chain. The state handed to the
// reducer must hash the same after the reducer returns, and the tree
// published after the previous action must still hash as it did then,
// which catches writes made by observers or effects. Violations are
// reported as REDUCER_PURITY_VIOLATION errors.
type ImmutableState struct {
	logger *slog.Logger
	strict bool

	mu          sync.Mutex
	published   ir.State
	publishedFP string
	reports     []error
}

// ImmutableOption configures ImmutableState.
type ImmutableOption func(*ImmutableState)

// Strict makes violations panic inside the reducer, so the offending action
// is dropped by the store.
func Strict() ImmutableOption {
	return func(x *ImmutableState) {
		x.strict = true
	}
}

// NewImmutableState creates the purity check extension.
func NewImmutableState(l *slog.Logger, opts ...ImmutableOption) *ImmutableState {
	if l == nil {
		l = slog.Default()
	}
	x := &ImmutableState{logger: l}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Name implements engine.Named.
func (x *ImmutableState) Name() string { return "immutable-state" }

// Init implements engine.Extension.
func (x *ImmutableState) Init(h engine.Host) error {
	return x.remember(h.State())
}

// OnActionAndState implements engine.Extension.
func (x *ImmutableState) OnActionAndState(_ ir.Action, s ir.State) error {
	return x.remember(s)
}

// Violations returns the violations seen so far.
func (x *ImmutableState) Violations() []error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]error(nil), x.reports...)
}

// MetaReducer implements engine.MetaReducerProvider.
func (x *ImmutableState) MetaReducer() engine.MetaReducer {
	return func(next engine.Reducer) engine.Reducer {
		return func(state any, a ir.Action) any {
			before, err := ir.Fingerprint(state)
			if err != nil {
				return next(state, a)
			}

			if x.publishedChanged() {
				x.violate(engine.NewPurityError(a.Type, "state was mutated outside a reducer"))
			}

			out := next(state, a)

			after, err := ir.Fingerprint(state)
			if err == nil && after != before {
				x.violate(engine.NewPurityError(a.Type, "reducer mutated its input state"))
			}
			return out
		}
	}
}

func (x *ImmutableState) remember(s ir.State) error {
	fp, err := ir.Fingerprint(s)
	if err != nil {
		return err
	}
	x.mu.Lock()
	x.published = s
	x.publishedFP = fp
	x.mu.Unlock()
	return nil
}

// publishedChanged re-hashes the last published tree. A change is reported
// once; the new hash becomes the reference.
func (x *ImmutableState) publishedChanged() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.published == nil {
		return false
	}
	fp, err := ir.Fingerprint(x.published)
	if err != nil || fp == x.publishedFP {
		return false
	}
	x.publishedFP = fp
	return true
}

func (x *ImmutableState) violate(err *engine.Error) {
	x.mu.Lock()
	x.reports = append(x.reports, err)
	x.mu.Unlock()

	x.logger.Error("state mutation detected",
		"code", string(err.Code),
		"action", err.ActionType,
		"error", err.Error(),
	)
	if x.strict {
		panic(err)
	}
}
