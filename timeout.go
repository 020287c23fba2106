package flowz

import (
	"context"
	"time"
)

// Timeout races the rest of the execution against d. If d elapses first the
// remainder's Token trips and the execution fails with ErrTimeout, which a
// downstream Catch may recover like any other failure.
func (f *Flow[C]) Timeout(d time.Duration) *Flow[C] {
	return f.push(&operation[C]{kind: KindTimeout, duration: d})
}

type walked struct {
	v   any
	err error
}

func (ex *execution[C]) timeout(i int, v any) (any, error) {
	op := ex.ops[i]
	sub := ex.fork()

	done := make(chan walked, 1)
	go func() {
		out, err := sub.walk(i+1, v)
		done <- walked{v: out, err: err}
	}()

	select {
	case w := <-done:
		sub.tok.trip(context.Canceled)
		return w.v, w.err

	case <-ex.clock.After(op.duration):
		sub.tok.trip(ErrTimeout)
		ex.flow.metrics.Counter(FlowTimeoutsTotal).Inc()
		ex.log.Debug().Dur("timeout", op.duration).Int("index", op.index).Msg("execution timed out")
		ex.flow.emit(ex, FlowEventTimedOut, FlowEvent{Kind: op.kind, Index: op.index, Input: v})

		out, j, err := ex.recover(i, op, v, ErrTimeout)
		if err != nil {
			return nil, err
		}
		return ex.walk(j+1, out)

	case <-ex.tok.Done():
		return nil, ex.halted()
	}
}
