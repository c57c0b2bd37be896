package task

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStateMachine_Transitions(t *testing.T) {
	t.Run("happy path Planned to Finished", func(t *testing.T) {
		sm := NewStateMachine(syncExecutor)
		require.Equal(t, StatePlanned, sm.State())

		require.True(t, sm.TransitionToRunning())
		require.Equal(t, StateRunning, sm.State())

		require.True(t, sm.TransitionToFlushing())
		require.Equal(t, StateFlushing, sm.State())

		require.True(t, sm.TransitionToFinished())
		require.Equal(t, StateFinished, sm.State())
	})

	t.Run("out of order transitions are no-ops", func(t *testing.T) {
		sm := NewStateMachine(syncExecutor)

		require.False(t, sm.TransitionToFlushing())
		require.Equal(t, StatePlanned, sm.State())

		require.False(t, sm.TransitionToFinished())
		require.Equal(t, StatePlanned, sm.State())
	})

	t.Run("terminal states cannot transition further", func(t *testing.T) {
		sm := NewStateMachine(syncExecutor)
		sm.Cancel()
		require.Equal(t, StateCanceled, sm.State())

		require.False(t, sm.TransitionToRunning())
		require.Equal(t, StateCanceled, sm.State())
	})
}

func TestStateMachine_CancelAbort(t *testing.T) {
	t.Run("cancel is idempotent", func(t *testing.T) {
		sm := NewStateMachine(syncExecutor)
		require.True(t, sm.Cancel())
		require.False(t, sm.Cancel())
		require.Equal(t, StateCanceled, sm.State())
	})

	t.Run("abort after running", func(t *testing.T) {
		sm := NewStateMachine(syncExecutor)
		sm.TransitionToRunning()
		require.True(t, sm.Abort())
		require.Equal(t, StateAborted, sm.State())
	})

	t.Run("cancel does not affect an already-aborted task", func(t *testing.T) {
		sm := NewStateMachine(syncExecutor)
		sm.Abort()
		require.False(t, sm.Cancel())
		require.Equal(t, StateAborted, sm.State())
	})
}

func TestStateMachine_Failed(t *testing.T) {
	t.Run("records cause and transitions from non-terminal", func(t *testing.T) {
		sm := NewStateMachine(syncExecutor)
		cause := errString("boom")

		sm.Failed(cause)
		require.Equal(t, StateFailed, sm.State())
		require.Equal(t, []error{cause}, sm.FailureCauses())
	})

	t.Run("records cause but leaves state unchanged once a different terminal is reached", func(t *testing.T) {
		sm := NewStateMachine(syncExecutor)
		sm.Cancel()

		sm.Failed(errString("late failure"))
		require.Equal(t, StateCanceled, sm.State())
		require.Equal(t, []error{errString("late failure")}, sm.FailureCauses())
	})

	t.Run("accumulates causes across repeated calls", func(t *testing.T) {
		sm := NewStateMachine(syncExecutor)
		sm.Failed(errString("first"))
		sm.Failed(errString("second"))

		require.Equal(t, StateFailed, sm.State())
		require.Equal(t, []error{errString("first"), errString("second")}, sm.FailureCauses())
	})
}

func TestStateMachine_ListenerSyntheticNotification(t *testing.T) {
	sm := NewStateMachine(syncExecutor)
	sm.TransitionToRunning()

	var seen []State
	sm.AddStateChangeListener(func(s State) { seen = append(seen, s) })

	require.Equal(t, []State{StateRunning}, seen)

	sm.TransitionToFlushing()
	require.Equal(t, []State{StateRunning, StateFlushing}, seen)
}

func TestStateMachine_ListenerPerListenerOrdering(t *testing.T) {
	// Each listener must observe its own notifications in transition order,
	// even when the executor runs callbacks on separate goroutines.
	sm := NewStateMachine(func(f func()) { go f() })

	var mu sync.Mutex
	var seen []State

	sm.AddStateChangeListener(func(s State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	sm.TransitionToRunning()
	sm.TransitionToFlushing()
	sm.TransitionToFinished()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 4
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []State{StatePlanned, StateRunning, StateFlushing, StateFinished}, seen)
}

func TestStateMachine_ClearListeners(t *testing.T) {
	sm := NewStateMachine(syncExecutor)

	var calls int
	sm.AddStateChangeListener(func(State) { calls++ })
	require.Equal(t, 1, calls)

	sm.clearListeners()
	sm.TransitionToRunning()
	require.Equal(t, 1, calls)
}

type errString string

func (e errString) Error() string { return string(e) }
