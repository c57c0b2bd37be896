// Package task is the public entry point for the per-worker task lifecycle
// coordinator. It is a thin wrapper over internal/task, mirroring the split
// between a small exported surface and an internal implementation package
// used elsewhere in this stack (e.g. pkg/engine over pkg/engine/internal).
package task
