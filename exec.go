package flowz

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/zoobzio/clockz"
)

// operation is one configured step in the chain. Static parameters live in the
// record; operators with memory keep it in a private state value captured by
// apply, so only the owning operator can reach it.
type operation[C any] struct {
	apply    func(ex *execution[C], v any) (any, error)
	catch    func(err error, c C) (any, error)
	poll     PollOptions
	retry    RetryOptions
	kind     Kind
	index    int
	duration time.Duration
}

// execution is one event travelling through the chain.
type execution[C any] struct {
	start time.Time
	ctx   context.Context
	clock clockz.Clock
	flow  *Flow[C]
	tok   *Token
	stop  func() bool
	id    string
	name  Name
	ops   []*operation[C]
	log   zerolog.Logger
}

func (ex *execution[C]) release() {
	ex.stop()
	ex.tok.trip(context.Canceled)
}

// fork derives an execution sharing everything but a narrower token, used to
// run the remainder of the chain under a Timeout.
func (ex *execution[C]) fork() *execution[C] {
	sub := *ex
	sub.tok = ex.tok.child()
	sub.stop = func() bool { return true }
	return &sub
}

// halted returns why the execution's token tripped, or nil while it is live.
func (ex *execution[C]) halted() error {
	return ex.tok.Cause()
}

// barrier is checked before every operator: a tripped token ends the
// execution and an armed pause gate holds it until resumed.
func (ex *execution[C]) barrier() error {
	if err := ex.halted(); err != nil {
		return err
	}
	if !ex.flow.gate.wait(ex.tok.Done()) {
		return ex.halted()
	}
	return nil
}

// walk drives v through the operators starting at from.
func (ex *execution[C]) walk(from int, v any) (any, error) {
	for i := from; i < len(ex.ops); i++ {
		if err := ex.barrier(); err != nil {
			return nil, err
		}

		op := ex.ops[i]
		in := v
		var err error

		switch {
		case op.kind == KindCatch || op.kind == KindFinally:
			continue
		case op.kind == KindTimeout:
			return ex.timeout(i, v)
		case op.kind.wraps():
			n := ex.wrapped(i)
			if n < 0 {
				continue
			}
			next := ex.ops[n]
			if next.kind == KindTimeout {
				return ex.bounded(op, n, v)
			}
			i = n
			v, err = ex.drive(op, next, v, func(v any) (any, error) {
				return ex.apply(next, v)
			})
			op = next
		default:
			v, err = ex.apply(op, v)
		}

		if err != nil {
			v, i, err = ex.recover(i, op, in, err)
			if err != nil {
				return nil, err
			}
		}
	}
	return v, nil
}

// wrapped returns the index of the operator driven by the Retry or Poll at i,
// skipping finally markers, or -1 when none follows.
func (ex *execution[C]) wrapped(i int) int {
	for j := i + 1; j < len(ex.ops); j++ {
		if ex.ops[j].kind != KindFinally {
			return j
		}
	}
	return -1
}

// drive runs attempt under the Retry or Poll op.
func (ex *execution[C]) drive(op, next *operation[C], v any, attempt func(any) (any, error)) (any, error) {
	if op.kind == KindRetry {
		return ex.retry(op, next, v, attempt)
	}
	return ex.poll(op, next, v, attempt)
}

// bounded drives the Timeout at n under op. Every attempt forks a fresh
// timeout over the rest of the chain, catches included, so whatever the
// wrapper finally returns settles the execution.
func (ex *execution[C]) bounded(op *operation[C], n int, v any) (any, error) {
	next := ex.ops[n]
	out, err := ex.drive(op, next, v, func(v any) (any, error) {
		return ex.timeout(n, v)
	})
	if errors.Is(err, ErrExhausted) && ex.halted() == nil {
		return nil, ex.fail(next, v, err)
	}
	return out, err
}

// apply runs a single operator, recovering panics from user code.
func (ex *execution[C]) apply(op *operation[C], v any) (out any, err error) {
	_, span := ex.flow.tracer.StartSpan(ex.ctx, FlowOpSpan)
	span.SetTag(FlowTagKind, op.kind.String())
	span.SetTag(FlowTagIndex, strconv.Itoa(op.index))
	defer func() {
		if err != nil {
			span.SetTag(FlowTagError, err.Error())
		}
		span.Finish()
	}()
	defer recoverFromPanic(&err)

	return op.apply(ex, v)
}

// recover decides what an operator failure means for the execution. Drops and
// halts end it quietly; anything else is offered to the nearest downstream
// catch operators in order. It returns the index to resume after.
func (ex *execution[C]) recover(i int, op *operation[C], in any, err error) (any, int, error) {
	if h := ex.halted(); h != nil {
		return nil, i, h
	}

	switch {
	case errors.Is(err, ErrSkip):
		ex.flow.metrics.Counter(FlowDroppedTotal).Inc()
		ex.log.Debug().Str("op", op.kind.String()).Int("index", op.index).Msg("event dropped")
		ex.flow.emit(ex, FlowEventDropped, FlowEvent{Kind: op.kind, Index: op.index, Input: in})
		return nil, i, ErrSkip
	case errors.Is(err, ErrSuperseded):
		ex.flow.metrics.Counter(FlowSupersededTotal).Inc()
		ex.log.Debug().Str("op", op.kind.String()).Int("index", op.index).Msg("execution superseded")
		ex.flow.emit(ex, FlowEventSuperseded, FlowEvent{Kind: op.kind, Index: op.index, Input: in})
		return nil, i, ErrSuperseded
	}

	err = ex.wrap(op, in, err)
	for j := i + 1; j < len(ex.ops); j++ {
		handler := ex.ops[j]
		if handler.kind != KindCatch {
			continue
		}
		out, cerr := ex.catch(handler, err)
		if cerr == nil {
			return out, j, nil
		}
		if h := ex.halted(); h != nil {
			return nil, j, h
		}
		if errors.Is(cerr, ErrSkip) {
			return ex.recover(j, handler, err, cerr)
		}
		err = ex.wrap(handler, err, cerr)
	}
	return nil, len(ex.ops), err
}

func (ex *execution[C]) catch(op *operation[C], failure error) (out any, err error) {
	defer recoverFromPanic(&err)
	ex.flow.metrics.Counter(FlowCaughtTotal).Inc()
	return op.catch(failure, ex.flow.ctx)
}

// wrap attaches operator context to err unless it already carries an *Error.
func (ex *execution[C]) wrap(op *operation[C], in any, err error) error {
	var flowErr *Error
	if errors.As(err, &flowErr) {
		return err
	}
	return ex.fail(op, in, err)
}

// fail wraps err in a new *Error for op.
func (ex *execution[C]) fail(op *operation[C], in any, err error) *Error {
	return &Error{
		Err:       err,
		Input:     in,
		Execution: ex.id,
		Kind:      op.kind,
		Index:     op.index,
		Timestamp: ex.clock.Now(),
		Duration:  ex.elapsed(),
		Timeout:   errors.Is(err, ErrTimeout),
	}
}

// wait blocks for d on the flow's clock, returning the halt cause if the
// execution ends first.
func (ex *execution[C]) wait(d time.Duration) error {
	if d <= 0 {
		return ex.halted()
	}
	select {
	case <-ex.clock.After(d):
		return nil
	case <-ex.tok.Done():
		return ex.halted()
	}
}
