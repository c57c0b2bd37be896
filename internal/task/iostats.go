package task

import "time"

// IOStats aggregates the byte/row/memory counters of §4.6. It is the
// io/stats view's output shape.
type IOStats struct {
	QueuedDrivers                  int
	QueuedPartitionedSplitsWeight  int64
	RunningDrivers                 int
	RunningPartitionedSplitsWeight int64

	PhysicalWrittenBytes int64

	UserMemoryReservation      int64
	PeakMemoryReservation      int64
	RevocableMemoryReservation int64

	FullGCCount int64

	DynamicFilterVersion int64
}

// Info is the full point-in-time snapshot returned by Coordinator.Info and
// awaited by AwaitInfo.
type Info struct {
	ID            ID
	State         State
	Version       int64
	CreatedTime   time.Time
	LastHeartbeat time.Time
	FailureCauses []error
	NeedsPlan     bool
	Stats         IOStats
	OutputBuffer  OutputBufferInfo
	TraceToken    TraceToken
}

// Status is the lighter-weight snapshot returned by Coordinator.Status and
// awaited by AwaitStatus; it omits fields (failure causes, trace token) that
// long-poll callers typically don't need on every wake-up.
type Status struct {
	ID          ID
	State       State
	Version     int64
	CreatedTime time.Time
	Stats       IOStats
}

// ioStatsView computes IOStats. DynamicFilterVersion is the task's own
// dynamic-filter domain table version (§4.5), not the coordinator's overall
// status/notification version (§4.2's beacon) — the two counters advance
// independently and must never be conflated (a status change with no new
// filter published, or a new filter published with no other status change,
// must not move the other's counter). It is sampled *before* reading any
// other value, per §4.6's no-lost-update rule: a concurrent publish that
// bumps the version after the sample is always observed by the next poll,
// never folded silently into this one.
//
//   - Final: read from the frozen TaskInfo.Stats and the frozen domain
//     snapshot's version.
//   - Live:  sum over the execution's pipeline statuses, plus the query
//     context's memory/GC counters; dynamic-filter version comes from the
//     execution's own domain table.
//   - Empty: all zeros; dynamic-filter version is the table's pre-publish
//     starting value.
func ioStatsView(h *Holder) IOStats {
	if final, ok := h.Final(); ok {
		stats := final.Stats
		stats.DynamicFilterVersion = final.Domains.Version
		return stats
	}

	exec, ok := h.Execution()
	if !ok {
		return IOStats{DynamicFilterVersion: emptyDomains().Version}
	}

	dynamicFilterVersion := exec.DynamicFiltersVersion()

	stats := IOStats{DynamicFilterVersion: dynamicFilterVersion}
	for _, ps := range exec.PipelineStatuses() {
		stats.QueuedDrivers += ps.QueuedDrivers
		stats.QueuedPartitionedSplitsWeight += ps.QueuedPartitionedSplitsWeight
		stats.RunningDrivers += ps.RunningDrivers
		stats.RunningPartitionedSplitsWeight += ps.RunningPartitionedSplitsWeight
		stats.PhysicalWrittenBytes += ps.PhysicalWrittenBytes
	}

	qc := exec.TaskContext()
	stats.UserMemoryReservation = qc.UserMemoryReservation()
	stats.PeakMemoryReservation = qc.PeakMemoryReservation()
	stats.RevocableMemoryReservation = qc.RevocableMemoryReservation()
	stats.FullGCCount = qc.FullGCCount()

	return stats
}
