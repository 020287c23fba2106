package flowz

import (
	"sync"
	"time"
)

type windowState struct {
	last  time.Time
	mu    sync.Mutex
	armed bool
}

// Throttle lets the first event through and opens a window of d. Events that
// arrive while the window is open are dropped; the first event after it
// closes passes and opens the next window.
func (f *Flow[C]) Throttle(d time.Duration) *Flow[C] {
	state := &windowState{}

	return f.push(&operation[C]{
		kind:     KindThrottle,
		duration: d,
		apply: func(ex *execution[C], v any) (any, error) {
			now := ex.clock.Now()
			state.mu.Lock()
			defer state.mu.Unlock()

			if state.armed && now.Sub(state.last) < d {
				return nil, ErrSkip
			}
			state.last = now
			state.armed = true
			return v, nil
		},
	})
}

// Leading lets an event through immediately when it ends a quiet period of at
// least d and drops it otherwise. Unlike Throttle, every event re-arms the
// quiet period, dropped ones included, so a continuous burst passes only its
// triggering event.
func (f *Flow[C]) Leading(d time.Duration) *Flow[C] {
	state := &windowState{}

	return f.push(&operation[C]{
		kind:     KindLeading,
		duration: d,
		apply: func(ex *execution[C], v any) (any, error) {
			now := ex.clock.Now()
			state.mu.Lock()
			defer state.mu.Unlock()

			quiet := !state.armed || now.Sub(state.last) >= d
			state.last = now
			state.armed = true
			if !quiet {
				return nil, ErrSkip
			}
			return v, nil
		},
	})
}
