package flowz

import (
	"context"
	"sync"
)

// Binding ties a flow to the lifetime of a host component. The flow is built
// and its source submitted when the Binding is created, and the flow is
// cancelled when the host's context ends.
type Binding[I, O, C any] struct {
	typed   *Typed[I, O, C]
	initial <-chan Result[O]
	stop    func() bool
	mu      sync.Mutex // guards stop, which AfterFunc may read before Bind assigns it
	once    sync.Once
}

// Bind builds a flow over source with build, submits source once, and
// cancels the flow when ctx ends.
func Bind[I, O, C any](ctx context.Context, source I, build func(*Typed[I, I, C]) *Typed[I, O, C], c C) *Binding[I, O, C] {
	b := &Binding[I, O, C]{typed: build(From(source, c))}
	b.initial = b.typed.Submit(context.Background(), source)
	b.mu.Lock()
	b.stop = context.AfterFunc(ctx, b.Cancel)
	b.mu.Unlock()
	return b
}

// Initial returns the channel receiving the result of the first submission.
func (b *Binding[I, O, C]) Initial() <-chan Result[O] {
	return b.initial
}

// Update submits a new source value, as when the host re-renders.
func (b *Binding[I, O, C]) Update(source I) <-chan Result[O] {
	return b.typed.Submit(context.Background(), source)
}

// Flow returns the bound flow.
func (b *Binding[I, O, C]) Flow() *Flow[C] {
	return b.typed.Flow()
}

// Pause arms the bound flow's pause gate.
func (b *Binding[I, O, C]) Pause() {
	b.typed.Pause()
}

// Resume releases executions held by Pause.
func (b *Binding[I, O, C]) Resume() {
	b.typed.ResumeFlow()
}

// Cancel cancels the bound flow and releases its observers. It is idempotent
// and is called automatically when the host context ends.
func (b *Binding[I, O, C]) Cancel() {
	b.once.Do(func() {
		b.mu.Lock()
		stop := b.stop
		b.mu.Unlock()
		if stop != nil {
			stop()
		}
		flow := b.typed.Flow()
		flow.Cancel()
		_ = flow.Close() //nolint:errcheck
	})
}
