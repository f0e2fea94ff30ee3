package extension

import (
	"sync"

	"github.com/roach88/minirx/internal/engine"
	"github.com/roach88/minirx/internal/ir"
)

// DefaultUndoBufferSize is the number of actions Undo can roll back.
const DefaultUndoBufferSize = 100

// UndoAction builds the action that asks the Undo extension to drop a from
// the history.
func UndoAction(a ir.Action) ir.Action {
	return ir.Action{Type: ir.UndoType, Payload: a}
}

// Undo keeps a bounded history of applied actions. On ir.UndoType it
// removes the most recent action equal to the payload and recomputes the
// state by replaying the rest of the history from the oldest retained
// state. The history starts with the first action the extension sees.
//
// Full-state replacements (ir.UpdateStateType) are not part of the history;
// an undo after one replays from the state before it.
type Undo struct {
	size int

	mu       sync.Mutex
	executed []ir.Action
	base     any
	started  bool
}

// NewUndo creates an undo extension remembering bufferSize actions.
// A non-positive size means DefaultUndoBufferSize.
func NewUndo(bufferSize int) *Undo {
	if bufferSize <= 0 {
		bufferSize = DefaultUndoBufferSize
	}
	return &Undo{size: bufferSize}
}

// Name implements engine.Named.
func (u *Undo) Name() string { return "undo" }

// Init implements engine.Extension.
func (u *Undo) Init(engine.Host) error { return nil }

// OnActionAndState implements engine.Extension.
func (u *Undo) OnActionAndState(ir.Action, ir.State) error { return nil }

// History returns the actions that can currently be undone, oldest first.
func (u *Undo) History() []ir.Action {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]ir.Action(nil), u.executed...)
}

// MetaReducer implements engine.MetaReducerProvider.
func (u *Undo) MetaReducer() engine.MetaReducer {
	return func(next engine.Reducer) engine.Reducer {
		return func(state any, a ir.Action) any {
			u.mu.Lock()
			defer u.mu.Unlock()

			if a.Type == ir.UndoType {
				target, ok := a.Payload.(ir.Action)
				if !ok {
					return state
				}
				if !u.remove(target) {
					return state
				}
				out := u.base
				for _, past := range u.executed {
					out = next(out, past)
				}
				if out == nil {
					return ir.State{}
				}
				return out
			}

			if !u.started {
				u.base = state
				u.started = true
			}
			u.executed = append(u.executed, a)
			out := next(state, a)
			if len(u.executed) > u.size {
				u.base = next(u.base, u.executed[0])
				u.executed = u.executed[1:]
			}
			return out
		}
	}
}

func (u *Undo) remove(target ir.Action) bool {
	for i := len(u.executed) - 1; i >= 0; i-- {
		if u.executed[i].Equal(target) {
			u.executed = append(u.executed[:i:i], u.executed[i+1:]...)
			return true
		}
	}
	return false
}
