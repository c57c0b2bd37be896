package task

import (
	"go.uber.org/atomic"
)

// holderKind discriminates the three shapes a Holder can take, per §3's
// "Task holder" data model.
type holderKind int

const (
	holderEmpty holderKind = iota
	holderLive
	holderFinal
)

// FinalSnapshot is the frozen terminal snapshot captured exactly once when
// the holder transitions to Final. It freezes the last TaskInfo, IoStats,
// and dynamic-filter domains observed at the moment of terminal transition
// (§4.3).
type FinalSnapshot struct {
	Info    Info
	Stats   IOStats
	Domains VersionedDomains
}

// snapshot is the immutable value stored behind the Holder's atomic
// pointer. Holder never mutates a snapshot in place; every transition swaps
// in a new one.
type snapshot struct {
	kind  holderKind
	exec  Execution
	final *FinalSnapshot
}

// Holder is the tri-state atomic reference of §4.3: Empty, Live(execution),
// or Final(frozen snapshot). Exactly one swap moves Empty→Live, and exactly
// one CAS loop moves {Empty,Live}→Final.
type Holder struct {
	ref atomic.Pointer[snapshot]
}

// NewHolder creates a Holder in the Empty state.
func NewHolder() *Holder {
	h := &Holder{}
	h.ref.Store(&snapshot{kind: holderEmpty})
	return h
}

func (h *Holder) load() *snapshot {
	return h.ref.Load()
}

// NeedsPlan reports whether the holder is Empty, per invariant 5 of §3.
func (h *Holder) NeedsPlan() bool {
	return h.load().kind == holderEmpty
}

// IsFinal reports whether the holder has reached Final.
func (h *Holder) IsFinal() bool {
	return h.load().kind == holderFinal
}

// Execution returns the installed execution and true if the holder is Live.
func (h *Holder) Execution() (Execution, bool) {
	s := h.load()
	if s.kind != holderLive {
		return nil, false
	}
	return s.exec, true
}

// Final returns the frozen snapshot and true if the holder is Final.
func (h *Holder) Final() (*FinalSnapshot, bool) {
	s := h.load()
	if s.kind != holderFinal {
		return nil, false
	}
	return s.final, true
}

// SetLive installs exec as the holder's execution, moving Empty → Live.
// Callers must hold whatever external lock serializes calls to update
// (§4.3: "performed inside the coordinator's update critical section"), so
// the CAS below is guaranteed to succeed; SetLive reports false only if the
// holder is no longer Empty (e.g. a concurrent finalize already moved it to
// Final), in which case it silently no-ops per §4.3.
func (h *Holder) SetLive(exec Execution) bool {
	old := h.load()
	if old.kind != holderEmpty {
		return false
	}
	return h.ref.CompareAndSwap(old, &snapshot{kind: holderLive, exec: exec})
}

// Finalize runs a CAS loop that moves {Empty,Live} → Final, calling build to
// construct the FinalSnapshot from whatever execution (if any) is currently
// installed. If the holder is already Final, Finalize returns the existing
// snapshot and false (another caller already finalized). Otherwise it
// returns the newly installed snapshot and true.
func (h *Holder) Finalize(build func(exec Execution) *FinalSnapshot) (*FinalSnapshot, bool) {
	for {
		old := h.load()
		if old.kind == holderFinal {
			return old.final, false
		}

		final := build(old.exec)
		next := &snapshot{kind: holderFinal, final: final}
		if h.ref.CompareAndSwap(old, next) {
			return final, true
		}
		// Lost the race (another SetLive or Finalize beat us); retry.
	}
}
