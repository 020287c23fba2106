package flowz

// StepFunc is an asynchronous step. It receives the execution's Token, which
// trips when the flow is cancelled or the invocation is superseded, and should
// return early once it does. Returning ErrSkip drops the event.
type StepFunc[In, Out, C any] func(tok *Token, in In, c C) (Out, error)

// Tap calls fn with the current value for its side effects. The value passes
// through unchanged. A panic in fn fails the execution like any step error.
func (f *Flow[C]) Tap(fn func(v any, c C)) *Flow[C] {
	return f.push(&operation[C]{
		kind: KindTap,
		apply: func(ex *execution[C], v any) (any, error) {
			fn(v, ex.flow.ctx)
			return v, nil
		},
	})
}

// Map replaces the current value with fn's result.
func (f *Flow[C]) Map(fn func(v any, c C) any) *Flow[C] {
	return f.push(&operation[C]{
		kind: KindMap,
		apply: func(ex *execution[C], v any) (any, error) {
			return fn(v, ex.flow.ctx), nil
		},
	})
}

// Step replaces the current value with the result of a step that may block
// and fail. It is the only transform that receives the Token directly.
func (f *Flow[C]) Step(fn StepFunc[any, any, C]) *Flow[C] {
	return f.push(&operation[C]{
		kind: KindStep,
		apply: func(ex *execution[C], v any) (any, error) {
			return fn(ex.tok, v, ex.flow.ctx)
		},
	})
}
