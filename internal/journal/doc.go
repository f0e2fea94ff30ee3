// Package journal provides SQLite-backed durable storage for store
// transitions.
//
// A journal holds:
//   - Sessions: one row per store instance, with its initial state
//   - Transitions: every accepted (action, state) pair in logical order
//
// # Ordering
//
// All ordering uses the store's logical clock (seq), never timestamps, so
// reading a session back always yields the same sequence. Queries order by
// seq ASC.
//
// # Encoding
//
// Payloads and states are stored as canonical JSON (ir.MarshalCanonical).
// Action ids and state hashes come from internal/ir/hash.go, so a replayed
// session can be verified byte for byte.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package journal
