package flowz

import (
	"sync"
	"time"
)

type debounceState struct {
	pending chan struct{} // closed when a newer event arrives
	mu      sync.Mutex
}

// Debounce holds each event for d and lets it continue only if no newer event
// reached this point in the meantime. Every arrival restarts the wait, so a
// burst yields one continuation carrying the latest value, d after the last
// event. Replaced executions resolve without a value.
func (f *Flow[C]) Debounce(d time.Duration) *Flow[C] {
	state := &debounceState{}

	return f.push(&operation[C]{
		kind:     KindDebounce,
		duration: d,
		apply: func(ex *execution[C], v any) (any, error) {
			mine := make(chan struct{})
			state.mu.Lock()
			if state.pending != nil {
				close(state.pending)
			}
			state.pending = mine
			state.mu.Unlock()

			select {
			case <-ex.clock.After(d):
				state.mu.Lock()
				defer state.mu.Unlock()
				if state.pending != mine {
					return nil, ErrSuperseded
				}
				state.pending = nil
				return v, nil
			case <-mine:
				return nil, ErrSuperseded
			case <-ex.tok.Done():
				state.mu.Lock()
				if state.pending == mine {
					state.pending = nil
				}
				state.mu.Unlock()
				return nil, ex.halted()
			}
		},
	})
}
