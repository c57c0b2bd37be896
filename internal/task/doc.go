// Package task implements the per-worker task lifecycle coordinator: the
// synchronization hub that owns a task's state machine, version beacon,
// execution holder, and dynamic-filter/io-stats projections, and that routes
// control commands from the coordinator node and long-poll reads from
// downstream consumers.
//
// Task execution itself, the output buffer, and the RPC layer are external
// collaborators; this package only defines the contracts it consumes from
// them (see collab.go).
package task
