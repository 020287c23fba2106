package flowz

import (
	"reflect"
	"sync"
)

// Filter drops the event when cond reports false.
func (f *Flow[C]) Filter(cond func(v any) bool) *Flow[C] {
	return f.push(&operation[C]{
		kind: KindFilter,
		apply: func(_ *execution[C], v any) (any, error) {
			if !cond(v) {
				return nil, ErrSkip
			}
			return v, nil
		},
	})
}

type distinctState struct {
	prev any
	mu   sync.Mutex
	seen bool
}

// Distinct drops an event whose value equals the last value that passed this
// point. A nil compare uses reflect.DeepEqual.
func (f *Flow[C]) Distinct(compare func(prev, next any) bool) *Flow[C] {
	if compare == nil {
		compare = reflect.DeepEqual
	}
	state := &distinctState{}

	return f.push(&operation[C]{
		kind: KindDistinct,
		apply: func(_ *execution[C], v any) (any, error) {
			state.mu.Lock()
			defer state.mu.Unlock()

			if state.seen && compare(state.prev, v) {
				return nil, ErrSkip
			}
			state.prev = v
			state.seen = true
			return v, nil
		},
	})
}

type takeState struct {
	mu   sync.Mutex
	left int
}

// Take lets at most n events pass this point over the Flow's lifetime.
// Later events are dropped here without reaching downstream operators.
func (f *Flow[C]) Take(n int) *Flow[C] {
	state := &takeState{left: n}

	return f.push(&operation[C]{
		kind: KindTake,
		apply: func(_ *execution[C], v any) (any, error) {
			state.mu.Lock()
			defer state.mu.Unlock()

			if state.left <= 0 {
				return nil, ErrSkip
			}
			state.left--
			return v, nil
		},
	})
}
