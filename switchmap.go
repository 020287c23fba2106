package flowz

import (
	"context"
	"sync"
)

type switchState struct {
	current *Token
	mu      sync.Mutex
}

// SwitchMap runs fn for each event with a Token of its own. When a newer event
// reaches this point before the previous invocation settles, the previous
// Token trips with ErrSuperseded and that execution resolves without a value;
// only the newest invocation continues the chain. Pipeline-wide cancellation
// is unaffected.
func (f *Flow[C]) SwitchMap(fn StepFunc[any, any, C]) *Flow[C] {
	state := &switchState{}

	return f.push(&operation[C]{
		kind: KindSwitchMap,
		apply: func(ex *execution[C], v any) (any, error) {
			inv := ex.tok.child()
			defer inv.trip(context.Canceled)

			state.mu.Lock()
			if state.current != nil {
				state.current.trip(ErrSuperseded)
			}
			state.current = inv
			state.mu.Unlock()

			out, err := fn(inv, v, ex.flow.ctx)

			state.mu.Lock()
			latest := state.current == inv
			if latest {
				state.current = nil
			}
			state.mu.Unlock()

			if !latest {
				return nil, ErrSuperseded
			}
			return out, err
		},
	})
}

type exhaustState struct {
	mu   sync.Mutex
	busy bool
}

// ExhaustMap runs fn for an event only when no earlier invocation is still
// pending; events arriving meanwhile are dropped.
func (f *Flow[C]) ExhaustMap(fn StepFunc[any, any, C]) *Flow[C] {
	state := &exhaustState{}

	return f.push(&operation[C]{
		kind: KindExhaustMap,
		apply: func(ex *execution[C], v any) (any, error) {
			state.mu.Lock()
			if state.busy {
				state.mu.Unlock()
				return nil, ErrSkip
			}
			state.busy = true
			state.mu.Unlock()

			defer func() {
				state.mu.Lock()
				state.busy = false
				state.mu.Unlock()
			}()
			return fn(ex.tok, v, ex.flow.ctx)
		},
	})
}
