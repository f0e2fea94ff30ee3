// Package ir provides the shared data model for minirx.
//
// This package contains the action and state types, identity comparison,
// canonical JSON encoding, and the declarative feature/effect spec types
// produced by the compiler. All other internal packages import ir; ir
// imports nothing internal.
//
// Key design constraints:
//   - Actions compare structurally (type + canonical payload)
//   - State slices compare by identity (see Same), never by deep equality
//   - Action type strings follow the @mini-rx/<key>/... naming scheme exactly
//   - All JSON tags use snake_case
package ir
