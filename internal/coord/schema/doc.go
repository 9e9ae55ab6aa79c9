// Package schema provides the data model shared by the sync coordination packages.
//
// # Overview
//
// A coordination pass works on four kinds of values:
//
//   - Descriptor: static definition of a trackable component (plugin, theme,
//     CSS framework, page builder) and where its version comes from
//   - Snapshot: component-id → version mapping captured at one instant
//   - ChangeEvent: a single component whose version differs between two snapshots
//   - HistoryEntry: an append-only log record of what changed
//
// CompatibilityStatus is derived state and is never treated as authoritative.
//
// # Immutability
//
// Snapshots are immutable once captured. Versions() returns a copy, and
// Snapshot has no exported mutators, so a snapshot stored by the Version
// Store can be shared between the coordinator and the status reporter.
//
// # Errors
//
// Sentinel errors live in errors.go and are checked with errors.Is:
//
//	if errors.Is(err, schema.ErrComponentAbsent) {
//	    // component not installed, omit it from the snapshot
//	}
package schema
