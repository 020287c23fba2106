package flowz

import (
	"context"
)

// Token is the cooperative cancellation signal handed to step functions.
// It is a context.Context, so it can be passed straight into I/O calls, and
// adds observer registration on top of Done.
//
// A Flow owns one pipeline-wide Token. Every execution derives a child from it,
// and operators that need to abort a single invocation (SwitchMap, Timeout)
// derive narrower children again. Tripping a child never trips its parent;
// tripping a parent trips every child. Once tripped, a Token stays tripped.
type Token struct {
	context.Context
	cancel context.CancelCauseFunc
}

func newToken(parent context.Context) *Token {
	ctx, cancel := context.WithCancelCause(parent)
	return &Token{Context: ctx, cancel: cancel}
}

// Cancelled reports whether the token has been tripped.
func (t *Token) Cancelled() bool {
	return t.Err() != nil
}

// Cause returns why the token was tripped, or nil while it is live.
// Pipeline-wide cancellation reports ErrCancelled, a replaced SwitchMap
// invocation reports ErrSuperseded and an expired Timeout reports ErrTimeout.
func (t *Token) Cause() error {
	if t.Err() == nil {
		return nil
	}
	return context.Cause(t.Context)
}

// OnCancel registers fn to run in its own goroutine once the token trips.
// The returned stop function unregisters fn; it reports false if fn has
// already been started.
func (t *Token) OnCancel(fn func()) (stop func() bool) {
	return context.AfterFunc(t.Context, fn)
}

func (t *Token) child() *Token {
	return newToken(t)
}

func (t *Token) trip(cause error) {
	t.cancel(cause)
}
