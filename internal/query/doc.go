// Package query is a small filter language over journaled transitions.
//
// A filter is a tree of predicates (Equals, Prefix, Compare, And) over the
// fields of a transition:
//
//	seq          logical clock
//	action       action type
//	action_id    content-addressed action id
//	state_hash   hash of the state after the action
//	changed      whether the action changed the state
//	payload      the action payload; payload.a.b addresses a nested field
//	state        the state tree; state.counter.count a nested field
//
// Predicate and its implementations form a sealed set: the SQL backend
// switches over them exhaustively. Parse turns command-line expressions
// such as "payload.amount>=3" or "action^=@mini-rx/todo/" into predicates.
//
// Compile emits a parameterized WHERE fragment for the SQLite journal.
// Values are never interpolated into the SQL text; nested fields are read
// with json_extract.
package query
