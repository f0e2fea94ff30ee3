package journal

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/minirx/internal/ir"
)

// StateReplacer is the part of a store that time travel needs.
type StateReplacer interface {
	UpdateState(state ir.State)
}

// JumpTo restores the state recorded at seq into target without running
// reducers. It returns the restored tree.
func JumpTo(ctx context.Context, j *Journal, session string, seq int64, target StateReplacer) (ir.State, error) {
	state, err := j.StateAt(ctx, session, seq)
	if err != nil {
		return nil, fmt.Errorf("jump to %d: %w", seq, err)
	}
	target.UpdateState(state)
	return state, nil
}

// Dispatcher is the part of a store that re-execution needs.
type Dispatcher interface {
	Dispatch(action ir.Action)
}

// Redispatch feeds the recorded actions of a session with seq <= upTo
// (all of them when upTo <= 0) into target, skipping actions the store
// synthesizes itself (init, feature lifecycle). External state
// replacements are re-applied from the recorded tree when target is also
// a StateReplacer and skipped otherwise. It returns the number of
// actions and replacements fed to target.
func Redispatch(ctx context.Context, j *Journal, session string, upTo int64, target Dispatcher) (int, error) {
	records, err := j.ReadTransitions(ctx, session)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		if _, err := j.ReadSession(ctx, session); err != nil {
			return 0, err
		}
	}

	n := 0
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if upTo > 0 && r.Seq > upTo {
			break
		}
		if r.Action.Type == ir.UpdateStateType {
			if sr, ok := target.(StateReplacer); ok {
				sr.UpdateState(r.State)
				n++
			}
			continue
		}
		if synthesized(r.Action.Type) {
			continue
		}
		target.Dispatch(r.Action)
		n++
	}
	return n, nil
}

func synthesized(actionType string) bool {
	if actionType == ir.InitType || actionType == ir.UpdateStateType {
		return true
	}
	if !strings.HasPrefix(actionType, ir.TypePrefix+"/") {
		return false
	}
	return strings.HasSuffix(actionType, "/INIT-FEATURE") || strings.HasSuffix(actionType, "/DESTROY-FEATURE")
}
