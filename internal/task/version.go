package task

import "sync"

// Beacon is the version counter and change-notification handle of §4.2. A
// single mutex guards both the counter increment and the replacement of the
// pending channel, so that a waiter who observes version V and registers on
// the then-current channel under the same critical section cannot miss a
// concurrent NotifyChanged (§4.2 "Critical-section ordering guarantees").
type Beacon struct {
	mu      sync.Mutex
	version int64
	pending chan struct{}
}

// NewBeacon creates a Beacon starting at StartingVersion.
func NewBeacon() *Beacon {
	return &Beacon{
		version: StartingVersion,
		pending: make(chan struct{}),
	}
}

// Version returns the current version.
func (b *Beacon) Version() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.version
}

// NotifyChanged increments the version and completes (closes) the current
// change handle, atomically installing a fresh pending one for subsequent
// waiters. Returns the new version.
func (b *Beacon) NotifyChanged() int64 {
	b.mu.Lock()
	b.version++
	v := b.version
	fired := b.pending
	b.pending = make(chan struct{})
	b.mu.Unlock()

	close(fired)
	return v
}

// watch returns the version observed at the time of the call together with
// the channel that will close on the next NotifyChanged. Callers must read
// both values under the same lock acquisition (which watch does) to avoid
// missing a concurrent notification.
func (b *Beacon) watch() (int64, <-chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.version, b.pending
}
