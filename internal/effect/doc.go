// Package effect runs side effects in response to dispatched actions.
//
// An Effect observes a filtered view of the action stream and may answer
// each triggering action with zero or more new actions, which the Runner
// dispatches back into the store. Effects are isolated: an error or panic
// in one invocation is caught at the effect boundary, logged, reported to
// the optional error hook, and the effect keeps its subscription so later
// triggers are still handled.
//
// Modes control how overlapping invocations of the same effect interact:
//
//	Inline   run on the dispatching goroutine; results are queued before
//	         the triggering Dispatch returns
//	Merge    run every trigger concurrently
//	Switch   cancel the in-flight invocation when a new trigger arrives
//	Concat   run triggers one at a time in arrival order
//	Exhaust  ignore triggers while an invocation is in flight
package effect
