package task

import (
	"github.com/go-kit/log"

	internal "github.com/dsqlio/taskcoord/internal/task"
)

// Identity and state types, re-exported so callers never need to import
// internal/task directly.
type (
	ID          = internal.ID
	QueryID     = internal.QueryID
	StageID     = internal.StageID
	PartitionID = internal.PartitionID
	AttemptID   = internal.AttemptID
	TraceToken  = internal.TraceToken
	PlanNodeID  = internal.PlanNodeID
	BufferID    = internal.BufferID

	State = internal.State

	Info      = internal.Info
	Status    = internal.Status
	IOStats   = internal.IOStats
	ErrorKind = internal.ErrorKind

	Domain           = internal.Domain
	VersionedDomains = internal.VersionedDomains

	Session                = internal.Session
	QueryContext           = internal.QueryContext
	PlanFragment           = internal.PlanFragment
	SplitAssignment        = internal.SplitAssignment
	OutputBufferDescriptor = internal.OutputBufferDescriptor
	Execution              = internal.Execution
	ExecutionFactory       = internal.ExecutionFactory
	ResultsPage            = internal.ResultsPage
	OutputBufferInfo       = internal.OutputBufferInfo
	OutputBuffer           = internal.OutputBuffer
	OutputBufferFactory    = internal.OutputBufferFactory
	BufferLimits           = internal.BufferLimits
	FailedTaskCounter      = internal.FailedTaskCounter
	HeartbeatClock         = internal.HeartbeatClock
	RealClock              = internal.RealClock
	ExchangeRegistry       = internal.ExchangeRegistry
	PipelineStatus         = internal.PipelineStatus
	StatusNotifier         = internal.StatusNotifier

	CatalogExchangeRegistry = internal.CatalogExchangeRegistry
)

// NewCatalogExchangeRegistry builds the default ExchangeRegistry, backed by
// the shared catalog.Registry primitive (§4.7/§4.9) rather than a registry
// private to this package. Its RegisterMetrics/UnregisterMetrics pair wires
// loki_taskcoord_catalog_registry_size into an embedding process's registry,
// independently of any single Coordinator's RegisterMetrics.
func NewCatalogExchangeRegistry() *CatalogExchangeRegistry {
	return internal.NewCatalogExchangeRegistry()
}

const StartingVersion = internal.StartingVersion

const (
	StatePlanned  = internal.StatePlanned
	StateRunning  = internal.StateRunning
	StateFlushing = internal.StateFlushing
	StateFinished = internal.StateFinished
	StateCanceled = internal.StateCanceled
	StateAborted  = internal.StateAborted
	StateFailed   = internal.StateFailed
)

const (
	KindInvalidArgument  = internal.KindInvalidArgument
	KindInvalidState     = internal.KindInvalidState
	KindExecutionFailure = internal.KindExecutionFailure
	KindFatal            = internal.KindFatal
)

var (
	ErrUnknownTask      = internal.ErrUnknownTask
	ErrAlreadyDestroyed = internal.ErrAlreadyDestroyed
)

// NewID builds a fresh task identifier, regenerating its instance ULID.
func NewID(query QueryID, stage StageID, partition PartitionID, attempt AttemptID) ID {
	return internal.NewID(query, stage, partition, attempt)
}

// Kind classifies an error returned by a Coordinator method.
func Kind(err error) ErrorKind { return internal.Kind(err) }

// Params wires a Coordinator's collaborators and configuration; see
// internal/task.Params for field documentation.
type Params = internal.Params

// Coordinator is the per-task lifecycle coordinator (§4.4). It embeds the
// internal implementation so the full method set (Update, Status, Info,
// AwaitStatus, AwaitInfo, GetResults, AcknowledgeResults, DestroyResults,
// Cancel, Abort, Failed, AcknowledgeDynamicFilters, RecordHeartbeat, and
// the embedded services.Service's StartAsync/AwaitRunning/StopAsync/
// AwaitTerminated) is promoted automatically.
type Coordinator struct {
	*internal.Coordinator
}

// New constructs a Coordinator in Planned state with an Empty holder.
func New(params Params) (*Coordinator, error) {
	c, err := internal.New(params)
	if err != nil {
		return nil, err
	}
	return &Coordinator{Coordinator: c}, nil
}

// NewLogger is a small convenience matching the teacher's
// log.With(logger, "engine", "v2")-style context attachment, for callers
// wiring a Params.Logger from their own root logger.
func NewLogger(root log.Logger, taskcoordComponent string) log.Logger {
	return log.With(root, "component", taskcoordComponent)
}
