package engine

import (
	"fmt"

	"github.com/roach88/minirx/internal/ir"
)

// Extension plugs into the store lifecycle.
//
// Init runs once when the extension is added. OnActionAndState runs after
// every accepted transition, including external state replacements (seen
// with action type ir.UpdateStateType). Extensions are invoked in the order
// they were added; an error or panic from one is logged and does not stop
// the others.
type Extension interface {
	Init(h Host) error
	OnActionAndState(action ir.Action, state ir.State) error
}

// Host is the view of the store an extension receives in Init.
type Host interface {
	Dispatch(action ir.Action)
	State() ir.State
	UpdateState(state ir.State)
	Session() string
}

// MetaReducerProvider is implemented by extensions that need to wrap the
// root reducer (undo history, purity checks, tracing).
type MetaReducerProvider interface {
	MetaReducer() MetaReducer
}

// Named is implemented by extensions that want a stable name in logs.
type Named interface {
	Name() string
}

func extensionName(ext Extension) string {
	if n, ok := ext.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", ext)
}

// callHook runs one extension hook with panic isolation.
func (s *Store) callHook(ext Extension, hook string, fn func() error) {
	name := extensionName(ext)
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("panic: %v", p)
			}
		}()
		return fn()
	}()
	if err != nil {
		wrapped := NewExtensionError(name, hook, err)
		s.logger.Error("extension hook failed",
			"extension", name,
			"hook", hook,
			"error", wrapped.Error(),
		)
	}
}
