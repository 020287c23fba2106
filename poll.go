package flowz

import (
	"time"
)

// PollOptions configures Poll.
type PollOptions struct {
	// Until stops polling once it reports true for a result.
	Until func(result any) bool
	// Max bounds the number of attempts; zero means unbounded.
	Max int
	// FailOnExhaust turns running out of attempts into an ErrExhausted
	// failure instead of resolving with the last result.
	FailOnExhaust bool
}

// Poll invokes the next operator with the current value immediately and then
// every interval, until opts.Until accepts a result or opts.Max attempts have
// been made. The last result continues down the chain. With neither Until nor
// Max set, polling lasts until the flow is cancelled. When the next operator is
// a Timeout, each attempt runs the rest of the chain under a fresh timeout and
// Until sees that chain's result.
func (f *Flow[C]) Poll(interval time.Duration, opts PollOptions) *Flow[C] {
	return f.push(&operation[C]{kind: KindPoll, duration: interval, poll: opts})
}

func (ex *execution[C]) poll(op, next *operation[C], v any, attempt func(any) (any, error)) (any, error) {
	opts := op.poll

	for n := 1; ; n++ {
		out, err := attempt(v)
		if err != nil {
			return nil, err
		}
		ex.flow.metrics.Counter(FlowPollsTotal).Inc()

		done, err := satisfied(opts.Until, out)
		if err != nil {
			return nil, err
		}
		if done {
			return out, nil
		}

		if opts.Max > 0 && n >= opts.Max {
			ex.log.Debug().Int("attempts", n).Msg("poll attempts exhausted")
			if opts.FailOnExhaust {
				return nil, exhausted(n, nil)
			}
			return out, nil
		}

		if err := ex.wait(op.duration); err != nil {
			return nil, err
		}
		if err := ex.barrier(); err != nil {
			return nil, err
		}
	}
}

func satisfied(until func(any) bool, v any) (ok bool, err error) {
	if until == nil {
		return false, nil
	}
	defer recoverFromPanic(&err)
	return until(v), nil
}
