package flowz

import (
	"time"
)

// Backoff is the growth policy for the wait between retry attempts.
type Backoff int

// Backoff policies.
const (
	// BackoffConstant waits Delay before every attempt.
	BackoffConstant Backoff = iota
	// BackoffLinear waits Delay multiplied by the attempt number.
	BackoffLinear
	// BackoffExponential waits Delay multiplied by 2^(attempt-1).
	BackoffExponential
)

func (b Backoff) String() string {
	switch b {
	case BackoffLinear:
		return "linear"
	case BackoffExponential:
		return "exponential"
	default:
		return "constant"
	}
}

// RetryOptions configures Retry.
type RetryOptions struct {
	Times   int           // Additional attempts after the first failure
	Delay   time.Duration // Base wait between attempts
	Backoff Backoff       // Growth policy for Delay
}

// delay returns the wait before retry number attempt (1-based).
func (o RetryOptions) delay(attempt int) time.Duration {
	switch o.Backoff {
	case BackoffLinear:
		return o.Delay * time.Duration(attempt)
	case BackoffExponential:
		return o.Delay * time.Duration(1<<(attempt-1))
	default:
		return o.Delay
	}
}

// Retry re-invokes the next operator up to times more when it fails. When the
// next operator is a Timeout, each attempt reruns the rest of the chain under
// a fresh timeout.
func (f *Flow[C]) Retry(times int) *Flow[C] {
	return f.RetryWith(RetryOptions{Times: times})
}

// RetryWith re-invokes the next operator when it fails, waiting between
// attempts as configured. Drops, supersedes and cancellation are never
// retried. When every attempt fails the error matches both ErrExhausted and
// the last failure. Registering Catch, Retry or Poll directly after it panics
// with ErrUnwrappable.
func (f *Flow[C]) RetryWith(opts RetryOptions) *Flow[C] {
	if opts.Times < 0 {
		opts.Times = 0
	}
	return f.push(&operation[C]{kind: KindRetry, retry: opts})
}

func (ex *execution[C]) retry(op, next *operation[C], v any, attempt func(any) (any, error)) (any, error) {
	opts := op.retry

	var lastErr error
	for n := 0; n <= opts.Times; n++ {
		if n > 0 {
			wait := opts.delay(n)
			ex.flow.metrics.Counter(FlowRetriesTotal).Inc()
			ex.log.Debug().
				Err(lastErr).
				Int("attempt", n).
				Dur("delay", wait).
				Str("backoff", opts.Backoff.String()).
				Msg("retrying operation")
			ex.flow.emit(ex, FlowEventRetried, FlowEvent{
				Kind:    next.kind,
				Index:   next.index,
				Attempt: n,
				Input:   v,
				Error:   lastErr,
			})

			if err := ex.wait(wait); err != nil {
				return nil, err
			}
		}

		out, err := attempt(v)
		if err == nil {
			return out, nil
		}
		if disposition(err) || ex.halted() != nil {
			return nil, err
		}
		lastErr = err
	}

	if opts.Times == 0 {
		return nil, lastErr
	}
	return nil, exhausted(opts.Times+1, lastErr)
}
