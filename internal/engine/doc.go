// Package engine implements the minirx state container.
//
// The engine owns the state tree, the reducer registry, the action stream
// and the dispatch queue. Feature facades, selectors, effects and
// extensions all sit on top of the Store defined here.
//
// ARCHITECTURE:
//
// Single drain loop:
// Every Dispatch and UpdateState call becomes a task on a FIFO queue. One
// goroutine at a time drains the queue. This ensures:
//   - Exactly one state write in flight at any instant
//   - Re-entrant dispatches (from effects and extensions) run after the
//     current task, in FIFO order, never recursively
//   - Predictable ordering for the journal and golden traces
//
// Task processing flow:
//  1. Root reducer computes the next tree (meta-reducers outermost first)
//  2. New tree is published on the replay-latest state stream, unless it
//     is the same tree as before
//  3. Action is delivered to action observers and effects
//  4. (action, state) transition goes to the debug feed and extensions
//
// Change detection relies on identity (ir.Same): reducers that do not
// handle an action must return the state they received.
//
// Errors from effects and extensions are logged and isolated; they never
// reach the dispatcher. Configuration errors (duplicate feature keys) are
// returned synchronously.
package engine
