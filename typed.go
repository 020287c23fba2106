package flowz

import (
	"context"
	"time"
)

// Typed is a builder handle over a Flow that tracks, at compile time, the
// input type I accepted by Run and the output type O produced by the chain so
// far. It holds no state of its own: every registration appends to the same
// underlying Flow and returns a handle typed for the new output.
//
// Operators that keep the value type are methods. Operators that change it
// (Step, Map, SwitchMap, ExhaustMap) are package functions, since Go methods
// cannot introduce type parameters:
//
//	search := flowz.From("", api)
//	results := flowz.SwitchMap(
//	    search.Debounce(300*time.Millisecond).Distinct(nil).Filter(func(q string) bool { return q != "" }),
//	    func(tok *flowz.Token, q string, api *Client) ([]Hit, error) {
//	        return api.Search(tok, q)
//	    },
//	)
//	hits, ok, err := results.Run(ctx, "gopher")
type Typed[I, O, C any] struct {
	flow *Flow[C]
}

// From creates a Flow carrying c as its context and input as the value run by
// RunInitial, and returns its typed handle.
func From[I, C any](input I, c C) *Typed[I, I, C] {
	f := New(c)
	f.initial = input
	return &Typed[I, I, C]{flow: f}
}

// Of returns a typed handle over an existing Flow.
func Of[I, C any](f *Flow[C]) *Typed[I, I, C] {
	return &Typed[I, I, C]{flow: f}
}

func as[T any](v any) T {
	t, _ := v.(T)
	return t
}

func rehandle[I, N, O, C any](t *Typed[I, O, C]) *Typed[I, N, C] {
	return &Typed[I, N, C]{flow: t.flow}
}

// Flow returns the untyped engine behind the handle.
func (t *Typed[I, O, C]) Flow() *Flow[C] {
	return t.flow
}

// Run pushes in through the chain. See Flow.Run.
func (t *Typed[I, O, C]) Run(ctx context.Context, in I) (O, bool, error) {
	out, ok, err := t.flow.Run(ctx, in)
	return as[O](out), ok, err
}

// RunInitial runs the input given to From.
func (t *Typed[I, O, C]) RunInitial(ctx context.Context) (O, bool, error) {
	out, ok, err := t.flow.RunInitial(ctx)
	return as[O](out), ok, err
}

// Submit starts an execution in its own goroutine. See Flow.Submit.
func (t *Typed[I, O, C]) Submit(ctx context.Context, in I) <-chan Result[O] {
	ch := make(chan Result[O], 1)
	go func() {
		out, ok, err := t.Run(ctx, in)
		ch <- Result[O]{Value: out, OK: ok, Err: err}
	}()
	return ch
}

// Tap calls fn with the current value for its side effects.
func (t *Typed[I, O, C]) Tap(fn func(v O, c C)) *Typed[I, O, C] {
	t.flow.Tap(func(v any, c C) { fn(as[O](v), c) })
	return t
}

// Filter drops the event when cond reports false.
func (t *Typed[I, O, C]) Filter(cond func(v O) bool) *Typed[I, O, C] {
	t.flow.Filter(func(v any) bool { return cond(as[O](v)) })
	return t
}

// Distinct drops values equal to the last one that passed. A nil compare uses
// reflect.DeepEqual.
func (t *Typed[I, O, C]) Distinct(compare func(prev, next O) bool) *Typed[I, O, C] {
	if compare == nil {
		t.flow.Distinct(nil)
		return t
	}
	t.flow.Distinct(func(prev, next any) bool { return compare(as[O](prev), as[O](next)) })
	return t
}

// Take lets at most n events pass.
func (t *Typed[I, O, C]) Take(n int) *Typed[I, O, C] {
	t.flow.Take(n)
	return t
}

// Debounce keeps only the latest event of a burst. See Flow.Debounce.
func (t *Typed[I, O, C]) Debounce(d time.Duration) *Typed[I, O, C] {
	t.flow.Debounce(d)
	return t
}

// Throttle passes the first event of each window of d.
func (t *Typed[I, O, C]) Throttle(d time.Duration) *Typed[I, O, C] {
	t.flow.Throttle(d)
	return t
}

// Leading passes events that end a quiet period of d.
func (t *Typed[I, O, C]) Leading(d time.Duration) *Typed[I, O, C] {
	t.flow.Leading(d)
	return t
}

// Retry re-invokes the next operator up to times more on failure.
func (t *Typed[I, O, C]) Retry(times int) *Typed[I, O, C] {
	t.flow.Retry(times)
	return t
}

// RetryWith re-invokes the next operator with delays between attempts.
func (t *Typed[I, O, C]) RetryWith(opts RetryOptions) *Typed[I, O, C] {
	t.flow.RetryWith(opts)
	return t
}

// Poll repeatedly invokes the next operator. See Flow.Poll.
func (t *Typed[I, O, C]) Poll(interval time.Duration, opts PollOptions) *Typed[I, O, C] {
	t.flow.Poll(interval, opts)
	return t
}

// Timeout bounds the rest of the execution to d.
func (t *Typed[I, O, C]) Timeout(d time.Duration) *Typed[I, O, C] {
	t.flow.Timeout(d)
	return t
}

// Catch recovers upstream failures with a replacement value.
func (t *Typed[I, O, C]) Catch(fn func(err error, c C) (O, error)) *Typed[I, O, C] {
	t.flow.Catch(func(err error, c C) (any, error) { return fn(err, c) })
	return t
}

// Finally registers a cleanup fired once per execution.
func (t *Typed[I, O, C]) Finally(fn func()) *Typed[I, O, C] {
	t.flow.Finally(fn)
	return t
}

// OnStart registers a handler fired before each execution's first operator.
func (t *Typed[I, O, C]) OnStart(fn func()) *Typed[I, O, C] {
	t.flow.OnStart(fn)
	return t
}

// OnDone registers a handler fired when an execution completes the chain.
func (t *Typed[I, O, C]) OnDone(fn func()) *Typed[I, O, C] {
	t.flow.OnDone(fn)
	return t
}

// OnError registers a handler fired on unrecovered failures.
func (t *Typed[I, O, C]) OnError(fn func(error)) *Typed[I, O, C] {
	t.flow.OnError(fn)
	return t
}

// OnCancel registers a handler fired once when the flow is cancelled.
func (t *Typed[I, O, C]) OnCancel(fn func()) *Typed[I, O, C] {
	t.flow.OnCancel(fn)
	return t
}

// Cancel cancels the underlying flow.
func (t *Typed[I, O, C]) Cancel() {
	t.flow.Cancel()
}

// Pause arms the pause gate.
func (t *Typed[I, O, C]) Pause() *Typed[I, O, C] {
	t.flow.Pause()
	return t
}

// ResumeFlow releases executions held by Pause.
func (t *Typed[I, O, C]) ResumeFlow() *Typed[I, O, C] {
	t.flow.ResumeFlow()
	return t
}

// Context returns the flow's context value.
func (t *Typed[I, O, C]) Context() C {
	return t.flow.ctx
}

// Step appends a blocking, fallible transform from O to N.
func Step[I, O, N, C any](t *Typed[I, O, C], fn StepFunc[O, N, C]) *Typed[I, N, C] {
	t.flow.Step(func(tok *Token, v any, c C) (any, error) {
		return fn(tok, as[O](v), c)
	})
	return rehandle[I, N](t)
}

// Map appends a pure transform from O to N.
func Map[I, O, N, C any](t *Typed[I, O, C], fn func(v O, c C) N) *Typed[I, N, C] {
	t.flow.Map(func(v any, c C) any { return fn(as[O](v), c) })
	return rehandle[I, N](t)
}

// SwitchMap appends a cancel-and-replace step from O to N. See Flow.SwitchMap.
func SwitchMap[I, O, N, C any](t *Typed[I, O, C], fn StepFunc[O, N, C]) *Typed[I, N, C] {
	t.flow.SwitchMap(func(tok *Token, v any, c C) (any, error) {
		return fn(tok, as[O](v), c)
	})
	return rehandle[I, N](t)
}

// ExhaustMap appends a step from O to N that ignores events while busy.
// See Flow.ExhaustMap.
func ExhaustMap[I, O, N, C any](t *Typed[I, O, C], fn StepFunc[O, N, C]) *Typed[I, N, C] {
	t.flow.ExhaustMap(func(tok *Token, v any, c C) (any, error) {
		return fn(tok, as[O](v), c)
	})
	return rehandle[I, N](t)
}
