package task

import (
	"context"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

// Params wires a Coordinator's collaborators and configuration at
// construction (§4.4 "create"), mirroring the engine's Params/validate
// convention: required fields are checked, optional ones get a default.
type Params struct {
	ID       ID
	Location string
	NodeID   string

	QueryContext      QueryContext
	ExecutionFactory  ExecutionFactory
	BufferFactory     OutputBufferFactory
	BufferLimits      BufferLimits
	ExchangeRegistry  ExchangeRegistry
	FailedTaskCounter FailedTaskCounter

	// OnDone is invoked exactly once, after the terminal snapshot has been
	// frozen and the output buffer torn down, with the coordinator that just
	// finished. Errors panicking out of OnDone are caught and logged, never
	// propagated.
	OnDone func(*Coordinator)

	// Executor runs listener and notification callbacks off the calling
	// goroutine (§5 "the task coordinator does not own a thread"). Defaults
	// to an unbounded go statement per call.
	Executor func(func())
	Clock    HeartbeatClock

	Logger     log.Logger
	Registerer prometheus.Registerer
}

func (p *Params) validate() error {
	if p.ExecutionFactory == nil {
		return errors.New("task: ExecutionFactory is required")
	}
	if p.BufferFactory == nil {
		return errors.New("task: BufferFactory is required")
	}
	if p.QueryContext == nil {
		return errors.New("task: QueryContext is required")
	}
	if p.FailedTaskCounter == nil {
		p.FailedTaskCounter = noopCounter{}
	}
	if p.OnDone == nil {
		p.OnDone = func(*Coordinator) {}
	}
	if p.Executor == nil {
		p.Executor = func(f func()) { go f() }
	}
	if p.Clock == nil {
		p.Clock = RealClock{}
	}
	if p.Logger == nil {
		p.Logger = log.NewNopLogger()
	}
	return nil
}

type noopCounter struct{}

func (noopCounter) Inc() {}

// Coordinator is the per-task lifecycle coordinator of §4.4: the
// synchronization hub owning the state machine, version beacon, and holder
// for exactly one task instance. It embeds services.Service so an owning
// process can manage a task the same way it manages any other dskit
// service: the service's running phase lasts exactly as long as the task
// is non-terminal, and stopping it cancels the task if it hasn't already
// reached a terminal state on its own.
type Coordinator struct {
	services.Service

	id       ID
	location string
	nodeID   string

	params Params
	logger log.Logger

	sm     *StateMachine
	beacon *Beacon
	holder *Holder

	// updateMu is the "coordinator lock" of §4.3/§4.4: it serializes the
	// Empty→Live transition and the reuse-vs-construct decision in update.
	updateMu sync.Mutex

	buffer   OutputBuffer
	traceTok atomic.String

	createdTime   time.Time
	lastHeartbeat atomic.Int64 // unix nanoseconds
	// bufferCount is the partition count of the most recent
	// OutputBufferDescriptor applied via Update, 0 until the first one
	// arrives. GetResults validates bufferID against it once it's non-zero.
	bufferCount atomic.Int64

	// destroyedMu guards destroyedBuffers, the set of bufferIDs DestroyResults
	// has been called for; GetResults consults it to reject a downstream
	// consumer that already signaled it's gone (§4.4 "destroy_results").
	destroyedMu      sync.Mutex
	destroyedBuffers map[BufferID]struct{}

	finalizeOnce sync.Once

	metrics *metrics
}

// New constructs a Coordinator in StatePlanned with an Empty holder, version
// StartingVersion (§4.4 "create": "never fails" besides parameter
// validation). The output buffer is created eagerly but left unconfigured
// until the first update supplies an OutputBufferDescriptor, matching §4.4
// step 2's "lazy output buffer".
func New(params Params) (*Coordinator, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	logger := log.With(params.Logger, "task", params.ID.String())

	c := &Coordinator{
		id:               params.ID,
		location:         params.Location,
		nodeID:           params.NodeID,
		params:           params,
		logger:           logger,
		beacon:           NewBeacon(),
		holder:           NewHolder(),
		createdTime:      time.Now(),
		buffer:           params.BufferFactory(params.ID, params.BufferLimits),
		metrics:          newMetrics(),
		destroyedBuffers: make(map[BufferID]struct{}),
	}
	c.metrics.createdTasksTotal.Inc()
	c.sm = NewStateMachine(params.Executor)
	c.lastHeartbeat.Store(c.createdTime.UnixNano())

	if params.ExchangeRegistry != nil {
		params.ExchangeRegistry.Publish(c.id, c.buffer)
	}

	// Registered inside New, once every field onStateChange reads is set.
	// The listener's synthetic StatePlanned notification may run before New
	// returns (inline, with a synchronous Executor); New has no separate
	// post-construction registration step.
	c.sm.AddStateChangeListener(c.onStateChange)

	c.Service = services.NewBasicService(nil, c.running, c.stopping)

	return c, nil
}

// running implements the Service interface's running method: it blocks
// until the task reaches a terminal state. StopAsync cancels ctx, which is
// the owning process's signal to stop waiting, not a failure; running
// returns cleanly so stopping (not switchState(Failed, ...)) decides the
// task's fate.
func (c *Coordinator) running(ctx context.Context) error {
	version := int64(0)
	for {
		info, err := c.AwaitInfo(ctx, version)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if info.State.Terminal() {
			return nil
		}
		version = info.Version
	}
}

// stopping implements the Service interface's stopping method: if the task
// hasn't already reached a terminal state on its own, stopping the service
// cancels it rather than leaving it to finish unsupervised.
func (c *Coordinator) stopping(failureCase error) error {
	if !c.sm.State().Terminal() {
		c.Cancel()
	}
	return failureCase
}

// RegisterMetrics registers this coordinator's metrics with reg, mirroring
// the engine wrapper's RegisterMetrics/UnregisterMetrics pair (§6).
func (c *Coordinator) RegisterMetrics(reg prometheus.Registerer) error {
	return c.metrics.Register(reg)
}

// UnregisterMetrics removes this coordinator's metrics from reg.
func (c *Coordinator) UnregisterMetrics(reg prometheus.Registerer) {
	c.metrics.Unregister(reg)
}

func (c *Coordinator) recordTransition(s State) {
	c.metrics.transitionsTotal.WithLabelValues(s.String()).Inc()
}

// onStateChange fires the termination callback exactly once, on the first
// terminal state observed (§4.4 "Termination callback"). It runs on the
// state machine's listener executor, so it must not block indefinitely.
func (c *Coordinator) onStateChange(s State) {
	c.recordTransition(s)
	if !s.Terminal() {
		return
	}
	c.finalizeOnce.Do(func() {
		c.finalize(s)
	})
}

func (c *Coordinator) finalize(terminal State) {
	if terminal == StateFailed {
		c.params.FailedTaskCounter.Inc()
		c.metrics.failedTasksTotal.Inc()
	}

	// finalizeOnce already guarantees this body runs exactly once per
	// coordinator, so the CAS loop below always installs the snapshot; the
	// returned bool only matters to callers outside that guarantee.
	c.holder.Finalize(func(exec Execution) *FinalSnapshot {
		return &FinalSnapshot{
			Info:    c.snapshotInfo(terminal),
			Stats:   ioStatsView(c.holder),
			Domains: dynamicFilterViewFromExec(exec),
		}
	})

	if terminal == StateFailed || terminal == StateAborted {
		c.buffer.Abort()
	} else {
		c.buffer.Destroy()
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				level.Error(c.logger).Log("msg", "panic in task on_done callback", "panic", r)
			}
		}()
		c.params.OnDone(c)
	}()

	level.Info(c.logger).Log("msg", "task reached terminal state", "state", terminal.String())
	c.NotifyStatusChanged()

	c.sm.clearListeners()
}

// dynamicFilterViewFromExec snapshots an execution's dynamic filter domains
// for freezing into a FinalSnapshot; exec may be nil if the holder never
// left Empty.
func dynamicFilterViewFromExec(exec Execution) VersionedDomains {
	if exec == nil {
		return emptyDomains()
	}
	return exec.AcknowledgeAndGetNewDynamicFilterDomains(context.Background(), 0)
}

// NotifyStatusChanged implements StatusNotifier: it bumps the version beacon
// and releases every waiter registered against the prior version (§4.2).
func (c *Coordinator) NotifyStatusChanged() {
	c.beacon.NotifyChanged()
	c.metrics.notificationsTotal.Inc()
}

// Update implements the protocol of §4.4: record the trace token, apply the
// output-buffer descriptor, lazily construct execution under the
// coordinator lock, then forward splits and dynamic filter domains outside
// the lock. KindInvalidArgument and KindInvalidState errors are returned to
// the caller and leave the task's state untouched; a KindExecutionFailure
// error transitions the task to Failed and is not returned; any other error
// (KindFatal) transitions the task to Failed and is also returned.
func (c *Coordinator) Update(
	ctx context.Context,
	session Session,
	traceToken TraceToken,
	fragment PlanFragment,
	splits []SplitAssignment,
	outputBuffers OutputBufferDescriptor,
	dynamicFilterDomains map[string]Domain,
) (Info, error) {
	start := c.params.Clock.Now()
	err := c.doUpdate(ctx, session, traceToken, fragment, splits, outputBuffers, dynamicFilterDomains)
	c.metrics.updateSeconds.Observe(c.params.Clock.Now().Sub(start).Seconds())
	if err == nil {
		return c.Info(), nil
	}
	switch Kind(err) {
	case KindInvalidArgument, KindInvalidState:
		// Rejected outright; the task's state is left untouched so a
		// corrected retry (e.g. a follow-up update carrying the missing
		// fragment) can still succeed.
		return c.Info(), err
	case KindExecutionFailure:
		c.Failed(err)
		return c.Info(), nil
	default: // KindFatal, or an unclassified error from a panic recovery
		c.Failed(err)
		return c.Info(), err
	}
}

func (c *Coordinator) doUpdate(
	ctx context.Context,
	session Session,
	traceToken TraceToken,
	fragment PlanFragment,
	splits []SplitAssignment,
	outputBuffers OutputBufferDescriptor,
	dynamicFilterDomains map[string]Domain,
) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = WrapFatal(errors.Errorf("%v", r), "panic during task update")
		}
	}()

	// Step 1: first non-empty trace token wins.
	if traceToken != "" {
		c.traceTok.CompareAndSwap("", string(traceToken))
	}

	// Step 2: apply the output-buffer descriptor before execution can
	// publish results into it.
	if outputBuffers != nil {
		if applyErr := c.buffer.SetOutputBuffers(ctx, outputBuffers); applyErr != nil {
			return WrapExecutionFailure(applyErr, "apply output buffer descriptor")
		}
		c.bufferCount.Store(int64(outputBuffers.BufferCount()))
	}

	exec, execErr := c.resolveExecution(session, fragment)
	if execErr != nil {
		return execErr
	}
	if exec == nil {
		// Holder had already reached Final; late update is ignored (§4.4
		// step 3 "late-arriving updates are ignored").
		return nil
	}

	// Step 4: outside the lock, forward splits and dynamic filter domains to
	// the execution. NoMoreSplits bookkeeping for nodes this update didn't
	// mention is handled by the caller.
	if len(splits) > 0 {
		if addErr := exec.AddSplitAssignments(ctx, splits); addErr != nil {
			return WrapExecutionFailure(addErr, "add split assignments")
		}
	}
	if len(dynamicFilterDomains) > 0 {
		if applyErr := exec.ApplyDynamicFilterDomains(ctx, dynamicFilterDomains); applyErr != nil {
			return WrapExecutionFailure(applyErr, "apply dynamic filter domains")
		}
	}

	c.NotifyStatusChanged()
	return nil
}

// resolveExecution implements §4.3's Empty→Live transition and §4.4 step 3:
// under the coordinator lock, reuse a Live execution, construct one if
// Empty (requiring fragment), or report nil if the holder is already Final.
func (c *Coordinator) resolveExecution(session Session, fragment PlanFragment) (Execution, error) {
	c.updateMu.Lock()
	defer c.updateMu.Unlock()

	if c.holder.IsFinal() {
		return nil, nil
	}
	if exec, ok := c.holder.Execution(); ok {
		return exec, nil
	}

	if fragment == nil {
		return nil, NewInvalidState("update without fragment on empty task holder")
	}

	exec, err := c.params.ExecutionFactory(session, c.params.QueryContext, c.sm, c.buffer, fragment, c)
	if err != nil {
		return nil, WrapExecutionFailure(err, "construct execution")
	}

	if !c.holder.SetLive(exec) {
		// Lost the race to a concurrent finalize; treat as a late update.
		return nil, nil
	}
	c.sm.TransitionToRunning()
	return exec, nil
}

// Status returns the lightweight point-in-time snapshot (§4.4 "status").
func (c *Coordinator) Status() Status {
	version, _ := c.beacon.watch()
	return Status{
		ID:          c.id,
		State:       c.sm.State(),
		Version:     version,
		CreatedTime: c.createdTime,
		Stats:       ioStatsView(c.holder),
	}
}

// Info returns the full point-in-time snapshot (§4.4 "info").
func (c *Coordinator) Info() Info {
	return c.snapshotInfo(c.sm.State())
}

func (c *Coordinator) snapshotInfo(state State) Info {
	version, _ := c.beacon.watch()
	return Info{
		ID:            c.id,
		State:         state,
		Version:       version,
		CreatedTime:   c.createdTime,
		LastHeartbeat: time.Unix(0, c.lastHeartbeat.Load()),
		FailureCauses: c.sm.FailureCauses(),
		NeedsPlan:     c.holder.NeedsPlan(),
		Stats:         ioStatsView(c.holder),
		OutputBuffer:  c.buffer.Info(),
		TraceToken:    TraceToken(c.traceTok.Load()),
	}
}

// AwaitStatus implements §4.2's long-poll contract for Status: if
// callersVersion is stale or the holder is already Final, it returns
// immediately; otherwise it blocks (respecting ctx) until the next
// notification.
func (c *Coordinator) AwaitStatus(ctx context.Context, callersVersion int64) (Status, error) {
	if err := c.awaitVersion(ctx, callersVersion); err != nil {
		return Status{}, err
	}
	return c.Status(), nil
}

// AwaitInfo is AwaitStatus's full-Info counterpart.
func (c *Coordinator) AwaitInfo(ctx context.Context, callersVersion int64) (Info, error) {
	if err := c.awaitVersion(ctx, callersVersion); err != nil {
		return Info{}, err
	}
	return c.Info(), nil
}

func (c *Coordinator) awaitVersion(ctx context.Context, callersVersion int64) error {
	version, pending := c.beacon.watch()
	if callersVersion < version || c.holder.IsFinal() {
		return nil
	}
	select {
	case <-pending:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetResults fetches a page of buffered output (§4.4 "get_results"). It is
// the only results-path operation the spec allows to fail: AcknowledgeResults
// and DestroyResults are never-fails / idempotent by design.
func (c *Coordinator) GetResults(ctx context.Context, bufferID BufferID, startingSequence int64, maxSize int64) (ResultsPage, error) {
	if maxSize <= 0 {
		return ResultsPage{}, NewInvalidArgument("max_size must be positive, got %d", maxSize)
	}
	if n := c.bufferCount.Load(); n > 0 && (bufferID < 0 || int64(bufferID) >= n) {
		return ResultsPage{}, ErrUnknownTask
	}
	c.destroyedMu.Lock()
	_, destroyed := c.destroyedBuffers[bufferID]
	c.destroyedMu.Unlock()
	if destroyed {
		return ResultsPage{}, ErrAlreadyDestroyed
	}
	page, err := c.buffer.Get(ctx, bufferID, startingSequence, maxSize)
	if err != nil {
		return ResultsPage{}, err
	}
	return page, nil
}

// AcknowledgeResults advances the buffer's low-water sequence for bufferID
// (§4.4 "acknowledge_results"); never fails.
func (c *Coordinator) AcknowledgeResults(bufferID BufferID, sequence int64) {
	c.buffer.Acknowledge(bufferID, sequence)
}

// DestroyResults signals that a downstream consumer is gone (§4.4
// "destroy_results"); idempotent. A subsequent GetResults against the same
// bufferID fails with ErrAlreadyDestroyed.
func (c *Coordinator) DestroyResults(bufferID BufferID) Info {
	c.destroyedMu.Lock()
	c.destroyedBuffers[bufferID] = struct{}{}
	c.destroyedMu.Unlock()
	c.buffer.DestroyBuffer(bufferID)
	return c.Info()
}

// Cancel transitions the task to Canceled if non-terminal; idempotent.
func (c *Coordinator) Cancel() Info {
	c.sm.Cancel()
	return c.Info()
}

// Abort transitions the task to Aborted if non-terminal; idempotent.
func (c *Coordinator) Abort() Info {
	c.sm.Abort()
	return c.Info()
}

// Failed transitions the task to Failed if non-terminal, always recording
// cause regardless of current state (§4.4 "failed"); idempotent.
func (c *Coordinator) Failed(cause error) Info {
	if cause != nil {
		level.Warn(c.logger).Log("msg", "task failed", "err", cause)
	}
	c.sm.Failed(cause)
	return c.Info()
}

// AcknowledgeDynamicFilters routes to the holder's current shape per §4.5.
func (c *Coordinator) AcknowledgeDynamicFilters(ctx context.Context, callersVersion int64) VersionedDomains {
	return dynamicFilterView(ctx, c.holder, callersVersion)
}

// RecordHeartbeat updates the last-observed liveness moment. Per the Open
// Question resolution in §9, heartbeats never bump the version beacon, to
// avoid poll storms on long-poll waiters.
func (c *Coordinator) RecordHeartbeat() {
	c.lastHeartbeat.Store(c.params.Clock.Now().UnixNano())
}
