package task

import (
	"context"
	"sync"
)

// Domain is a predicate refinement produced at runtime (e.g. the build side
// of a hash join) and broadcast to other stages (GLOSSARY "Dynamic filter
// domain"). The coordinator treats domain payloads as opaque; only their
// per-filter version matters for delta computation.
type Domain struct {
	Values []string
}

// domainEntry pairs a Domain with the version at which it was last updated,
// so domainTable.AcknowledgeAndGetNewDomains can select entries newer than a
// caller's high-water mark.
type domainEntry struct {
	domain  Domain
	version int64
}

// VersionedDomains is the delta-retrievable view of §4.5: a set of dynamic
// filter domains keyed by filter ID, plus the high-water version across all
// of them.
type VersionedDomains struct {
	Version int64
	Domains map[string]Domain
}

// emptyDomains is returned while the holder is Empty (§4.5).
func emptyDomains() VersionedDomains {
	return VersionedDomains{Version: StartingVersion - 1, Domains: map[string]Domain{}}
}

// domainTable is the execution-side accumulator that AcknowledgeAndGetNewDomains
// consults while Live. It is unexported, so only Execution implementations
// inside this package (the test fakes) can use it; the coordinator never
// constructs one directly.
type domainTable struct {
	mu      sync.Mutex
	version int64
	entries map[string]domainEntry
}

func newDomainTable() *domainTable {
	return &domainTable{entries: map[string]domainEntry{}}
}

// Publish records a new domain value for filterID, bumping the table's
// high-water version. Saturates instead of wrapping on overflow, per §4.5's
// "on monotonic wrap-around ... implementations must saturate".
func (t *domainTable) Publish(filterID string, d Domain) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.version < maxInt64 {
		t.version++
	}
	t.entries[filterID] = domainEntry{domain: d, version: t.version}
}

// AcknowledgeAndGetNewDomains returns the domains whose version is in
// (callersVersion, t.version], together with t.version.
func (t *domainTable) AcknowledgeAndGetNewDomains(_ context.Context, callersVersion int64) VersionedDomains {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]Domain)
	for filterID, e := range t.entries {
		if e.version > callersVersion {
			out[filterID] = e.domain
		}
	}
	return VersionedDomains{Version: t.version, Domains: out}
}

// Snapshot freezes the table's current contents for FinalSnapshot capture.
func (t *domainTable) Snapshot() VersionedDomains {
	return t.AcknowledgeAndGetNewDomains(context.Background(), 0)
}

// Version returns the table's current high-water version without
// consulting or returning any domain contents.
func (t *domainTable) Version() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.version
}

const maxInt64 = int64(^uint64(0) >> 1)

// dynamicFilterView routes acknowledge_and_get_new_domains to whichever
// holder shape is current, per §4.5:
//   - Empty:  empty initial domains.
//   - Live:   delegate to the execution.
//   - Final:  the frozen final domains, whose version is immutable.
func dynamicFilterView(ctx context.Context, h *Holder, callersVersion int64) VersionedDomains {
	if final, ok := h.Final(); ok {
		return final.Domains
	}
	if exec, ok := h.Execution(); ok {
		return exec.AcknowledgeAndGetNewDynamicFilterDomains(ctx, callersVersion)
	}
	return emptyDomains()
}
