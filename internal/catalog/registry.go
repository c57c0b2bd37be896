// Package catalog provides a concurrent name→handle registry (§4.7). It is
// unrelated to task lifecycle; it exists as a sibling example of the shared
// thread-safe primitives the worker process exposes, generalized from the
// column-name resolution pattern used elsewhere in this stack.
package catalog

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry is a concurrent name→handle map. Register is serialized to
// enforce the uniqueness check atomically; Get/Names/Remove only need the
// read lock or a short write lock, never a shared one across callers.
type Registry[T any] struct {
	mu      sync.RWMutex
	entries map[string]T
}

// New creates an empty Registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{entries: make(map[string]T)}
}

// Register adds handle under name. It fails if name is already present.
func (r *Registry[T]) Register(name string, handle T) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("catalog: %q is already registered", name)
	}
	r.entries[name] = handle
	return nil
}

// Remove deletes name from the registry, returning the removed handle and
// true if it was present.
func (r *Registry[T]) Remove(name string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	handle, ok := r.entries[name]
	if ok {
		delete(r.entries, name)
	}
	return handle, ok
}

// Get returns the handle registered under name, if any.
func (r *Registry[T]) Get(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handle, ok := r.entries[name]
	return handle, ok
}

// Names returns a snapshot of every currently registered name, in no
// particular order.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}

// Len returns the current number of registered entries.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// SizeGauge returns a GaugeFunc collector that reports Len(), for an
// embedding process to register alongside its own metrics (e.g. as
// loki_taskcoord_catalog_registry_size).
func (r *Registry[T]) SizeGauge(opts prometheus.GaugeOpts) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(opts, func() float64 { return float64(r.Len()) })
}
