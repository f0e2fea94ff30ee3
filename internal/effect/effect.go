package effect

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/minirx/internal/ir"
)

// Handler turns one triggering action into zero or more result actions.
// Results with an empty Type are ignored.
type Handler func(ctx context.Context, action ir.Action) ([]ir.Action, error)

// Mode selects how overlapping invocations are flattened.
type Mode int

const (
	Inline Mode = iota
	Merge
	Switch
	Concat
	Exhaust
)

var modeNames = map[Mode]string{
	Inline:  "inline",
	Merge:   "merge",
	Switch:  "switch",
	Concat:  "concat",
	Exhaust: "exhaust",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode maps a mode name to a Mode. The empty string is Inline.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return Inline, nil
	}
	for m, name := range modeNames {
		if strings.EqualFold(name, s) {
			return m, nil
		}
	}
	return Inline, fmt.Errorf("unknown effect mode %q", s)
}

// Effect binds an action filter to a handler.
type Effect struct {
	// Name identifies the effect in logs and errors.
	Name string

	// Types restricts triggers to these action types. Empty means every action.
	Types []string

	// Filter is an optional extra predicate applied after Types.
	Filter func(ir.Action) bool

	Handler Handler
	Mode    Mode

	// NoDispatch runs the handler for its side work only; results are dropped.
	NoDispatch bool
}

// Matches reports whether a triggers the effect.
func (e Effect) Matches(a ir.Action) bool {
	if len(e.Types) > 0 && !slices.Contains(e.Types, a.Type) {
		return false
	}
	if e.Filter != nil && !e.Filter(a) {
		return false
	}
	return true
}

// OfType returns a predicate matching any of the given action types.
func OfType(types ...string) func(ir.Action) bool {
	return func(a ir.Action) bool {
		return slices.Contains(types, a.Type)
	}
}

// Map builds a handler that answers every trigger with exactly one action.
func Map(fn func(ctx context.Context, a ir.Action) (ir.Action, error)) Handler {
	return func(ctx context.Context, a ir.Action) ([]ir.Action, error) {
		out, err := fn(ctx, a)
		if err != nil {
			return nil, err
		}
		return []ir.Action{out}, nil
	}
}

// Tap builds a handler that performs side work and produces no actions.
func Tap(fn func(ctx context.Context, a ir.Action) error) Handler {
	return func(ctx context.Context, a ir.Action) ([]ir.Action, error) {
		return nil, fn(ctx, a)
	}
}

// TransformError is any failure that escaped an effect handler.
type TransformError struct {
	Effect     string
	ActionType string
	Err        error
	Panic      any
}

// Error implements the error interface.
func (e *TransformError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("effect %s panicked on %s: %v", e.Effect, e.ActionType, e.Panic)
	}
	return fmt.Sprintf("effect %s failed on %s: %v", e.Effect, e.ActionType, e.Err)
}

// Unwrap returns the handler error.
func (e *TransformError) Unwrap() error {
	return e.Err
}
