// Package feature is the application-facing facade over one state slice.
//
// A Feature[T] registers a reducer for its key that understands only the
// synthesized SET-STATE actions:
//
//	@mini-rx/<key>/SET-STATE[/<name>]
//	@mini-rx/<key>/EFFECT/<name>/SET-STATE
//
// so every local mutation travels through the store's normal dispatch
// pipeline and is visible to extensions, effects and debugging tools.
//
// Features can share an application store (New) or own a private one
// (Standalone). Selectors built with package selector work on both.
package feature
