// Package harness runs YAML store scenarios against compiled CUE specs.
//
// A scenario names spec files, a sequence of actions to dispatch, and
// assertions over the resulting trace and final state. Each run uses a
// fresh store recorded into an in-memory journal; the trace is read back
// from the journal, so what the harness checks is what a recorded
// session would contain.
//
// # Scenario Format
//
//	name: counter_basic
//	description: "increment and add update the counter"
//	session: session-counter
//	specs:
//	  - ../specs/counter.cue
//	initial_state:
//	  counter: { count: 10 }
//	setup:
//	  - dispatch: increment
//	flow:
//	  - dispatch: add
//	    payload: 5
//	    expect:
//	      counter: { count: 16 }
//	  - update_state:
//	      counter: { count: 0 }
//	assertions:
//	  - type: trace_contains
//	    action: add
//	    payload: 5
//	  - type: trace_order
//	    actions: [increment, add]
//	  - type: trace_count
//	    action: increment
//	    count: 1
//	  - type: final_state
//	    key: counter
//	    expect: { count: 0 }
//
// Object expectations match as subsets. Numbers compare by canonical JSON,
// so 3 and 3.0 are equal.
//
// # Deterministic Testing
//
// Runs use a fixed session id (scenario.session or DefaultSession) and a
// store clock starting at zero. After every step the harness waits for
// in-flight effects, so effect results land in the trace in a stable
// order. Golden snapshots (RunWithGolden) are canonical JSON under
// testdata/golden.
package harness
