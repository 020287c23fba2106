package flowz

import (
	"errors"
	"fmt"
	"runtime/debug"
	"time"
)

// Sentinel errors.
var (
	// ErrSkip may be returned by a step function to drop the current event,
	// exactly as if a Filter had rejected it.
	ErrSkip = errors.New("flowz: skip")

	// ErrTimeout marks an execution that outlived a Timeout operator.
	ErrTimeout = errors.New("flowz: timeout")

	// ErrExhausted marks retry or poll attempts that ran out.
	ErrExhausted = errors.New("flowz: attempts exhausted")

	// ErrCancelled is the cause carried by a Token after Flow.Cancel.
	// Run never returns it.
	ErrCancelled = errors.New("flowz: flow cancelled")

	// ErrSuperseded is the cause carried by a Token whose invocation was
	// replaced by a newer event. Run never returns it.
	ErrSuperseded = errors.New("flowz: superseded by a newer event")

	// ErrSealed is the panic value raised when an operator is registered on a
	// Flow that has already started executing.
	ErrSealed = errors.New("flowz: flow is sealed after its first run")

	// ErrUnwrappable is the panic value raised when Catch, Retry or Poll is
	// registered directly after a Retry or Poll.
	ErrUnwrappable = errors.New("flowz: operator cannot be driven by retry or poll")
)

// Error describes an unrecovered failure inside a Flow execution.
// It records which operator failed, the value that operator received and
// which execution it belonged to.
type Error struct {
	Timestamp time.Time
	Input     any
	Err       error
	Execution string
	Kind      Kind
	Index     int
	Duration  time.Duration
	Timeout   bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	location := fmt.Sprintf("%s (op %d)", e.Kind, e.Index)

	if e.Timeout {
		return fmt.Sprintf("%s timed out after %v: %v", location, e.Duration, e.Err)
	}
	return fmt.Sprintf("%s failed after %v: %v", location, e.Duration, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether the failure was a Timeout expiry.
func (e *Error) IsTimeout() bool {
	return e.Timeout || errors.Is(e.Err, ErrTimeout)
}

// PanicError carries a panic recovered from a user-supplied function.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// recoverFromPanic converts a panic in the deferring frame into a *PanicError.
func recoverFromPanic(err *error) {
	if r := recover(); r != nil {
		*err = &PanicError{Value: r, Stack: debug.Stack()}
	}
}

// exhausted joins ErrExhausted with the last failure so both stay matchable.
func exhausted(attempts int, last error) error {
	if last == nil {
		return fmt.Errorf("%w after %d attempts", ErrExhausted, attempts)
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, last)
}

// disposition reports whether err is an internal drop signal rather than a
// failure that catch operators may see.
func disposition(err error) bool {
	return errors.Is(err, ErrSkip) || errors.Is(err, ErrSuperseded) || errors.Is(err, ErrCancelled)
}
