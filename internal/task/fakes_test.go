package task

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// This file holds the fakes used across the package's test files, grounded
// on the teacher's nopStreamHandler/fakeWatcher style of hand-written test
// doubles rather than a mocking framework.

type fakeQueryContext struct {
	userMem, peakMem, revocableMem, gc int64
}

func (f *fakeQueryContext) UserMemoryReservation() int64      { return f.userMem }
func (f *fakeQueryContext) PeakMemoryReservation() int64      { return f.peakMem }
func (f *fakeQueryContext) RevocableMemoryReservation() int64 { return f.revocableMem }
func (f *fakeQueryContext) FullGCCount() int64                { return f.gc }

type fakeFragment struct{ id string }

func (f fakeFragment) FragmentID() string { return f.id }

type fakeSession struct{ qid QueryID }

func (f fakeSession) QueryID() QueryID { return f.qid }

type fakeBufferDescriptor struct{ count int }

func (f fakeBufferDescriptor) BufferCount() int { return f.count }

// fakeExecution is the test double for Execution: it records split
// assignments and exposes a domainTable for the dynamic-filter tests.
type fakeExecution struct {
	mu     sync.Mutex
	splits []SplitAssignment

	domains *domainTable
	qc      QueryContext
	status  PipelineStatus

	addSplitsErr error
}

func newFakeExecution(qc QueryContext) *fakeExecution {
	return &fakeExecution{domains: newDomainTable(), qc: qc}
}

func (f *fakeExecution) AddSplitAssignments(_ context.Context, assignments []SplitAssignment) error {
	if f.addSplitsErr != nil {
		return f.addSplitsErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.splits = append(f.splits, assignments...)
	return nil
}

func (f *fakeExecution) NoMoreSplits() map[PlanNodeID]struct{} { return nil }

func (f *fakeExecution) PipelineStatuses() []PipelineStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return []PipelineStatus{f.status}
}

func (f *fakeExecution) TaskContext() QueryContext { return f.qc }

func (f *fakeExecution) AcknowledgeAndGetNewDynamicFilterDomains(ctx context.Context, callersVersion int64) VersionedDomains {
	return f.domains.AcknowledgeAndGetNewDomains(ctx, callersVersion)
}

func (f *fakeExecution) DynamicFiltersVersion() int64 {
	return f.domains.Version()
}

func (f *fakeExecution) ApplyDynamicFilterDomains(_ context.Context, domains map[string]Domain) error {
	for filterID, d := range domains {
		f.domains.Publish(filterID, d)
	}
	return nil
}

func (f *fakeExecution) splitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.splits)
}

// fakeOutputBuffer is the test double for OutputBuffer.
type fakeOutputBuffer struct {
	mu sync.Mutex

	desc               OutputBufferDescriptor
	destroyed, aborted bool
	destroyedBufferIDs []BufferID
	info               OutputBufferInfo

	setOutputBuffersErr error
}

func newFakeOutputBuffer() *fakeOutputBuffer {
	return &fakeOutputBuffer{info: OutputBufferInfo{State: "OPEN"}}
}

func (b *fakeOutputBuffer) SetOutputBuffers(_ context.Context, desc OutputBufferDescriptor) error {
	if b.setOutputBuffersErr != nil {
		return b.setOutputBuffersErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.desc = desc
	return nil
}

func (b *fakeOutputBuffer) Get(_ context.Context, _ BufferID, _ int64, _ int64) (ResultsPage, error) {
	return ResultsPage{BufferComplete: true}, nil
}

func (b *fakeOutputBuffer) Acknowledge(BufferID, int64) {}

func (b *fakeOutputBuffer) DestroyBuffer(id BufferID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroyedBufferIDs = append(b.destroyedBufferIDs, id)
}

func (b *fakeOutputBuffer) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroyed = true
	b.info.State = "FINISHED"
}

func (b *fakeOutputBuffer) Abort() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.aborted = true
	b.info.State = "FAILED"
}

func (b *fakeOutputBuffer) Info() OutputBufferInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.info
}

func (b *fakeOutputBuffer) IsOverutilized() bool { return false }

func (b *fakeOutputBuffer) wasDestroyed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.destroyed
}

func (b *fakeOutputBuffer) wasAborted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.aborted
}

// fakeCounter is the test double for FailedTaskCounter.
type fakeCounter struct{ n atomic.Int64 }

func (c *fakeCounter) Inc() { c.n.Add(1) }

func (c *fakeCounter) value() int64 { return c.n.Load() }

// fakeClock is the test double for HeartbeatClock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// syncExecutor runs listener callbacks synchronously, inline, for tests that
// don't need to exercise the async dispatch path itself.
func syncExecutor(f func()) { f() }

// newTestExecutionFactory returns an ExecutionFactory that records every
// fakeExecution it constructs and can be made to fail via newExecErr.
func newTestExecutionFactory(newExecErr error) (ExecutionFactory, *[]*fakeExecution) {
	var created []*fakeExecution
	factory := func(_ Session, qc QueryContext, _ *StateMachine, _ OutputBuffer, _ PlanFragment, _ StatusNotifier) (Execution, error) {
		if newExecErr != nil {
			return nil, newExecErr
		}
		exec := newFakeExecution(qc)
		created = append(created, exec)
		return exec, nil
	}
	return factory, &created
}
