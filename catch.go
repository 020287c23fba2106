package flowz

// Catch recovers an execution that failed upstream. fn receives the failure
// as an *Error together with the flow context and returns a replacement value
// that continues the chain. If fn itself fails, the next Catch downstream is
// tried. Executions that have not failed pass through untouched.
func (f *Flow[C]) Catch(fn func(err error, c C) (any, error)) *Flow[C] {
	return f.push(&operation[C]{kind: KindCatch, catch: fn})
}
