// Package extension provides store extensions: structured action logging,
// undo of previously applied actions and a reducer purity check.
//
// Each type implements engine.Extension; Undo and ImmutableState also wrap
// the root reducer through engine.MetaReducerProvider.
package extension
