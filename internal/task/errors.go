package task

import "github.com/pkg/errors"

// ErrorKind classifies coordinator errors per §7, so RPC-layer callers can
// map them onto wire status codes without string matching.
type ErrorKind int

const (
	// KindInvalidArgument means the caller supplied a malformed request
	// (unknown buffer ID, non-positive max size).
	KindInvalidArgument ErrorKind = iota
	// KindInvalidState means the request conflicts with the task's current
	// state (e.g. an update without a plan fragment for a task whose holder
	// is still Empty).
	KindInvalidState
	// KindExecutionFailure means the underlying execution or output buffer
	// collaborator returned an error, including a failure to construct the
	// execution.
	KindExecutionFailure
	// KindFatal means a coordinator invariant was violated; it should never
	// be observed outside of a programming error.
	KindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindInvalidState:
		return "invalid_state"
	case KindExecutionFailure:
		return "execution_failure"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// kindError pairs an ErrorKind with its wrapped cause. Construct with the
// New/Wrap helpers below rather than directly.
type kindError struct {
	kind  ErrorKind
	cause error
}

func (e *kindError) Error() string { return e.cause.Error() }
func (e *kindError) Cause() error  { return e.cause }
func (e *kindError) Unwrap() error { return e.cause }

// Kind extracts the ErrorKind attached by NewInvalidArgument/NewInvalidState/
// WrapExecutionFailure/WrapFatal. Errors produced outside this package report
// KindFatal, erring toward treating the unexpected as severe.
func Kind(err error) ErrorKind {
	var ke *kindError
	for err != nil {
		if k, ok := err.(*kindError); ok {
			ke = k
			break
		}
		err = errors.Unwrap(err)
	}
	if ke == nil {
		return KindFatal
	}
	return ke.kind
}

// NewInvalidArgument reports a malformed caller request (§7).
func NewInvalidArgument(format string, args ...any) error {
	return &kindError{kind: KindInvalidArgument, cause: errors.Errorf(format, args...)}
}

// NewInvalidState reports a request that conflicts with the task's current
// state (§7).
func NewInvalidState(format string, args ...any) error {
	return &kindError{kind: KindInvalidState, cause: errors.Errorf(format, args...)}
}

// WrapExecutionFailure attaches KindExecutionFailure to an error surfaced by
// the execution or output buffer collaborator (§7).
func WrapExecutionFailure(err error, message string) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: KindExecutionFailure, cause: errors.Wrap(err, message)}
}

// WrapFatal attaches KindFatal to an error that should never occur in
// practice (§7); surfacing it loudly is preferable to silently ignoring it.
func WrapFatal(err error, message string) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: KindFatal, cause: errors.Wrap(err, message)}
}

var (
	// ErrUnknownTask is returned by GetResults when bufferID addresses a
	// destination partition the task's output buffer was never configured
	// for (outside [0, BufferCount) of the most recent OutputBufferDescriptor).
	ErrUnknownTask = NewInvalidArgument("unknown task")
	// ErrAlreadyDestroyed is returned by GetResults once DestroyResults has
	// already been called for that bufferID (§4.4 "destroy_results": the
	// downstream consumer signaled it's gone). AcknowledgeResults and
	// DestroyResults remain never-fails/idempotent per §4.4 and do not
	// return it.
	ErrAlreadyDestroyed = NewInvalidState("task results already destroyed")
)
