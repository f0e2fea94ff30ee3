package harness

import (
	"github.com/roach88/minirx/internal/ir"
	"github.com/roach88/minirx/internal/journal"
)

// TraceEvent is one journaled transition as seen by assertions and
// golden snapshots.
type TraceEvent struct {
	Seq       int64  `json:"seq"`
	Action    string `json:"action"`
	Payload   any    `json:"payload,omitempty"`
	Changed   bool   `json:"changed"`
	StateHash string `json:"state_hash"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Session is the session id the store ran under.
	Session string `json:"session"`

	// SpecHash identifies the compiled specs the store was built from.
	SpecHash string `json:"spec_hash"`

	// Trace holds every transition after store creation, in seq order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the final state tree.
	State ir.State `json:"state,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  ir.State{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddRecord appends a journal record to the trace.
func (r *Result) AddRecord(rec journal.Record) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:       rec.Seq,
		Action:    rec.Action.Type,
		Payload:   rec.Action.Payload,
		Changed:   rec.Changed,
		StateHash: rec.StateHash,
	})
}
