package task

import (
	"context"
	"time"
)

// This file defines the contracts the coordinator consumes from its
// external collaborators (§6): the execution factory and execution itself
// (the operator runtime, out of scope per §1), and the output buffer (the
// ring-buffered pipelined output subsystem, also out of scope). The
// coordinator never constructs these directly; it only calls through the
// interfaces below.

// Session carries the query-scoped request context a coordinator node sends
// with update. Its concrete shape belongs to the RPC layer; the coordinator
// only needs to thread it through to the execution factory.
type Session interface {
	// QueryID returns the originating query's identifier.
	QueryID() QueryID
}

// QueryContext exposes the query-level memory accounting and GC counters
// read into TaskStatus while the holder is Live (§4.6). Ownership belongs to
// the query-level memory accounting context, out of scope per §1.
type QueryContext interface {
	UserMemoryReservation() int64
	PeakMemoryReservation() int64
	RevocableMemoryReservation() int64
	FullGCCount() int64
}

// PlanFragment is the opaque plan-fragment data structure a coordinator node
// sends on first update. Its internal shape belongs to the planner, out of
// scope per §1; the coordinator only needs to know whether one was
// supplied.
type PlanFragment interface {
	FragmentID() string
}

// SplitAssignment is a unit of input-data assignment delivered to a task
// after creation (see GLOSSARY "Split").
type SplitAssignment struct {
	NodeID PlanNodeID
	Split  any
}

// OutputBufferDescriptor describes how a task's output buffer should be
// wired to downstream consumers (partition count, broadcast vs. partitioned,
// etc.); its concrete shape belongs to the output buffer subsystem.
type OutputBufferDescriptor interface {
	BufferCount() int
}

// PipelineStatus is a snapshot of one running pipeline's driver counts and
// bytes, as exposed by the execution's task context (§4.6).
type PipelineStatus struct {
	QueuedDrivers                  int
	QueuedPartitionedSplitsWeight  int64
	RunningDrivers                 int
	RunningPartitionedSplitsWeight int64
	PhysicalWrittenBytes           int64
}

// StatusNotifier is handed to the execution factory so execution can request
// a status/version bump without reaching back into the coordinator's
// internals (§6 "Execution factory").
type StatusNotifier interface {
	NotifyStatusChanged()
}

// Execution is the per-task handle into the operator runtime (§1, §6). It is
// shared once installed into the Holder: the coordinator reads its stats,
// the operator runtime mutates it.
type Execution interface {
	AddSplitAssignments(ctx context.Context, assignments []SplitAssignment) error

	// NoMoreSplits reports, for each plan node that has received its final
	// split assignment, that no more splits are coming.
	NoMoreSplits() map[PlanNodeID]struct{}

	PipelineStatuses() []PipelineStatus
	TaskContext() QueryContext

	AcknowledgeAndGetNewDynamicFilterDomains(ctx context.Context, callersVersion int64) VersionedDomains

	// DynamicFiltersVersion reports the execution's own dynamic-filter
	// domain table version (§4.5), distinct from the coordinator's overall
	// status/notification version (§4.2). IOStats.DynamicFilterVersion is
	// sourced from here while the holder is Live, never from the
	// coordinator's version beacon.
	DynamicFiltersVersion() int64

	// ApplyDynamicFilterDomains merges domains pushed down from upstream
	// stages (carried on update, §4.4 step 4) into the execution's own
	// predicate state. This is the inbound direction; outbound deltas
	// produced by this task flow through AcknowledgeAndGetNewDynamicFilterDomains.
	ApplyDynamicFilterDomains(ctx context.Context, domains map[string]Domain) error
}

// ExecutionFactory constructs an Execution the first time a plan fragment
// arrives for a task (§4.3 "Empty → Live"). notifier lets the execution
// drive the coordinator's version beacon without a back-reference to the
// coordinator itself.
type ExecutionFactory func(
	session Session,
	queryCtx QueryContext,
	sm *StateMachine,
	buffer OutputBuffer,
	fragment PlanFragment,
	notifier StatusNotifier,
) (Execution, error)

// ResultsPage is a page of buffered output results returned by
// OutputBuffer.Get.
type ResultsPage struct {
	Data       [][]byte
	NextToken  int64
	BufferComplete bool
}

// OutputBufferInfo summarizes an output buffer's lifecycle state for
// TaskInfo reporting.
type OutputBufferInfo struct {
	State string
}

// OutputBuffer is the producer-side result queue shared between the
// coordinator (lifecycle), the execution (producer), and downstream
// fetchers (consumers). Out of scope per §1; this is its consumed contract.
type OutputBuffer interface {
	SetOutputBuffers(ctx context.Context, desc OutputBufferDescriptor) error

	Get(ctx context.Context, bufferID BufferID, startingSequence int64, maxSize int64) (ResultsPage, error)
	Acknowledge(bufferID BufferID, sequence int64)
	DestroyBuffer(bufferID BufferID)

	Destroy()
	Abort()

	Info() OutputBufferInfo
	IsOverutilized() bool
}

// OutputBufferFactory constructs the lazily-configured output buffer owned
// by a task at coordinator creation time (§4.4 "create").
type OutputBufferFactory func(id ID, limits BufferLimits) OutputBuffer

// BufferLimits carries the byte-quantity configuration of §6
// ("max_buffer_size", "max_broadcast_buffer_size").
type BufferLimits struct {
	MaxBufferSize          int64
	MaxBroadcastBufferSize int64
}

// FailedTaskCounter is the injected counter bumped exactly once per task
// that terminates in Failed (§4.4 termination callback, §6 "Counters").
type FailedTaskCounter interface {
	Inc()
}

// HeartbeatClock abstracts time.Now for heartbeat bookkeeping so tests can
// control it; production callers pass RealClock.
type HeartbeatClock interface {
	Now() time.Time
}

// RealClock is the production HeartbeatClock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// ExchangeRegistry publishes a task's output buffer so that downstream
// tasks on other workers can discover it without routing back through the
// coordinator node. Out of scope per §1 (cluster-level scheduling); the
// coordinator only calls Publish once, at construction.
type ExchangeRegistry interface {
	Publish(id ID, buffer OutputBuffer)
	Unpublish(id ID)
}
