package flowz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Name is a type alias for flow names.
type Name = string

// Result is the deferred outcome of one execution.
// OK is false when the event was dropped, superseded or cancelled.
type Result[T any] struct {
	Value T
	Err   error
	OK    bool
}

// Flow is an ordered chain of operators through which discrete events are run.
// Each call to Run is one execution; operators with memory (debounce, throttle,
// leading, switchMap, exhaustMap, distinct, take) share their state across every
// execution of the same Flow.
//
// Flow is the untyped engine: values travel as any. Use From and the Typed
// handle for compile-time tracking of the value type through the chain.
//
// A Flow is built once and then run many times. Registering an operator after
// the first Run has started panics with ErrSealed. Lifecycle handlers may be
// added at any time.
//
// Cancel is terminal: the pipeline-wide Token trips, every in-flight execution
// resolves without a value, OnCancel handlers fire once, and later calls to Run
// return immediately. Build a new Flow to run again.
//
// # Observability
//
// Metrics:
//   - flow.runs.total, flow.done.total, flow.errors.total: execution outcomes
//   - flow.dropped.total, flow.superseded.total, flow.cancelled.total: discarded executions
//   - flow.retries.total, flow.polls.total, flow.timeouts.total, flow.caught.total
//   - flow.inflight: Gauge of executions currently running
//   - flow.duration.ms: Gauge of the last execution's duration
//
// Traces:
//   - flow.run: Span per execution
//   - flow.op: Child span per applied operator
//
// Events (via hooks):
//   - flow.completed, flow.dropped, flow.superseded, flow.retried, flow.timed_out
type Flow[C any] struct {
	ctx        C
	initial    any
	token      *Token
	gate       *gate
	clock      clockz.Clock
	cancelDone chan struct{}
	metrics    *metricz.Registry
	tracer     *tracez.Tracer
	hooks      *hookz.Hooks[FlowEvent]
	logger     zerolog.Logger
	name       Name
	ops        []*operation[C]
	onStart    []func()
	onDone     []func()
	onError    []func(error)
	onCancel   []func()
	finally    []func()
	inflight   atomic.Int64
	cancelOnce sync.Once
	closeOnce  sync.Once
	mu         sync.RWMutex
	sealed     bool
}

// New creates an empty Flow carrying c as the context visible to every step.
func New[C any](c C) *Flow[C] {
	metrics := metricz.New()
	metrics.Counter(FlowRunsTotal)
	metrics.Counter(FlowDoneTotal)
	metrics.Counter(FlowErrorsTotal)
	metrics.Counter(FlowDroppedTotal)
	metrics.Counter(FlowSupersededTotal)
	metrics.Counter(FlowCancelledTotal)
	metrics.Counter(FlowRetriesTotal)
	metrics.Counter(FlowPollsTotal)
	metrics.Counter(FlowTimeoutsTotal)
	metrics.Counter(FlowCaughtTotal)
	metrics.Gauge(FlowInflight)
	metrics.Gauge(FlowDurationMs)

	return &Flow[C]{
		name:       "flow",
		ctx:        c,
		token:      newToken(context.Background()),
		gate:       &gate{},
		clock:      clockz.RealClock,
		cancelDone: make(chan struct{}),
		metrics:    metrics,
		tracer:     tracez.New(),
		hooks:      hookz.New[FlowEvent](),
		logger:     zerolog.Nop(),
	}
}

// WithName sets the name used in logs, spans and events.
func (f *Flow[C]) WithName(name Name) *Flow[C] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.name = name
	return f
}

// WithClock sets a custom clock for testing.
func (f *Flow[C]) WithClock(clock clockz.Clock) *Flow[C] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock = clock
	return f
}

// WithLogger sets the logger. The default discards everything.
func (f *Flow[C]) WithLogger(logger zerolog.Logger) *Flow[C] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logger = logger
	return f
}

// Name returns the name of this flow.
func (f *Flow[C]) Name() Name {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.name
}

// Context returns the context value shared with every step.
func (f *Flow[C]) Context() C {
	return f.ctx
}

// Metrics returns the metrics registry for this flow.
func (f *Flow[C]) Metrics() *metricz.Registry {
	return f.metrics
}

// Tracer returns the tracer for this flow.
func (f *Flow[C]) Tracer() *tracez.Tracer {
	return f.tracer
}

// Len returns the number of registered operators.
func (f *Flow[C]) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.ops)
}

// Kinds returns the operator kinds in chain order.
func (f *Flow[C]) Kinds() []Kind {
	f.mu.RLock()
	defer f.mu.RUnlock()

	kinds := make([]Kind, len(f.ops))
	for i, op := range f.ops {
		kinds[i] = op.kind
	}
	return kinds
}

func (f *Flow[C]) push(op *operation[C]) *Flow[C] {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sealed {
		panic(fmt.Errorf("registering %s: %w", op.kind, ErrSealed))
	}
	if prev := f.driver(); prev != nil && !op.kind.wrappable() {
		panic(fmt.Errorf("registering %s after %s: %w", op.kind, prev.kind, ErrUnwrappable))
	}
	op.index = len(f.ops)
	f.ops = append(f.ops, op)
	return f
}

// driver returns the trailing Retry or Poll, ignoring finally markers, or nil.
func (f *Flow[C]) driver() *operation[C] {
	for i := len(f.ops) - 1; i >= 0; i-- {
		op := f.ops[i]
		if op.kind == KindFinally {
			continue
		}
		if op.kind.wraps() {
			return op
		}
		return nil
	}
	return nil
}

// seal freezes the operator list and returns it.
func (f *Flow[C]) seal() []*operation[C] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sealed = true
	return f.ops
}

// OnStart registers a handler fired once per execution before the first operator.
func (f *Flow[C]) OnStart(fn func()) *Flow[C] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onStart = append(f.onStart, fn)
	return f
}

// OnDone registers a handler fired once per execution that reaches the end of the chain.
func (f *Flow[C]) OnDone(fn func()) *Flow[C] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onDone = append(f.onDone, fn)
	return f
}

// OnError registers a handler fired when an execution ends with an unrecovered error.
func (f *Flow[C]) OnError(fn func(error)) *Flow[C] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onError = append(f.onError, fn)
	return f
}

// OnCancel registers a handler fired once, when the Flow is cancelled.
func (f *Flow[C]) OnCancel(fn func()) *Flow[C] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onCancel = append(f.onCancel, fn)
	return f
}

// Finally registers a cleanup fired once per execution whatever its outcome:
// done, failed, dropped, superseded or cancelled. A panic inside fn is not
// recovered and propagates out of Run.
//
// While the Flow is still being built the cleanup is also recorded as a
// finally operator so it shows up in Kinds.
func (f *Flow[C]) Finally(fn func()) *Flow[C] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finally = append(f.finally, fn)
	if !f.sealed {
		f.ops = append(f.ops, &operation[C]{kind: KindFinally, index: len(f.ops)})
	}
	return f
}

// Cancel trips the pipeline-wide Token. In-flight executions resolve without a
// value, OnCancel handlers fire exactly once, and no further execution starts.
// Cancel is idempotent.
func (f *Flow[C]) Cancel() {
	f.cancelOnce.Do(func() {
		f.token.trip(ErrCancelled)
		f.metrics.Counter(FlowCancelledTotal).Inc()
		f.log().Info().Msg("flow cancelled")

		f.mu.RLock()
		handlers := append([]func(){}, f.onCancel...)
		f.mu.RUnlock()
		for _, fn := range handlers {
			fn()
		}
		close(f.cancelDone)
	})
}

// Cancelled reports whether Cancel has been called.
func (f *Flow[C]) Cancelled() bool {
	return f.token.Cancelled()
}

// Pause holds every execution at its next operator boundary until ResumeFlow.
// An operator already running its function completes first.
func (f *Flow[C]) Pause() *Flow[C] {
	if f.gate.pause() {
		f.log().Debug().Msg("flow paused")
	}
	return f
}

// ResumeFlow releases every execution held by Pause, in arrival order.
func (f *Flow[C]) ResumeFlow() *Flow[C] {
	if f.gate.resume() {
		f.log().Debug().Msg("flow resumed")
	}
	return f
}

// Paused reports whether the pause gate is armed.
func (f *Flow[C]) Paused() bool {
	return f.gate.armed()
}

// Run pushes one event through the chain and blocks until it settles.
//
// It returns the final value with ok=true when the chain completes, ok=false
// with a nil error when the event was dropped, superseded or cancelled, and a
// *Error when an unrecovered failure reached the end of the chain. When ctx
// ends before the execution settles, Run returns the context's error and only
// Finally handlers fire. After Cancel, Run resolves at once with no value and
// fires only Finally handlers.
func (f *Flow[C]) Run(ctx context.Context, input any) (any, bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ops := f.seal()
	if f.token.Cancelled() {
		f.fire(f.handlers(&f.finally))
		return nil, false, nil
	}

	ex := f.begin(ctx, ops)
	defer ex.release()

	f.metrics.Counter(FlowRunsTotal).Inc()
	f.metrics.Gauge(FlowInflight).Set(float64(f.inflight.Add(1)))
	defer func() {
		f.metrics.Gauge(FlowInflight).Set(float64(f.inflight.Add(-1)))
	}()

	spanCtx, span := f.tracer.StartSpan(ctx, FlowRunSpan)
	span.SetTag(FlowTagName, string(ex.name))
	span.SetTag(FlowTagExecution, ex.id)
	defer span.Finish()
	ex.ctx = spanCtx

	f.fire(f.handlers(&f.onStart))

	out, err := ex.walk(0, input)
	if err == nil {
		err = ex.halted()
	}

	f.metrics.Gauge(FlowDurationMs).Set(float64(ex.elapsed().Milliseconds()))

	var flowErr *Error
	switch {
	case err == nil:
		span.SetTag(FlowTagOutcome, outcomeDone)
		f.metrics.Counter(FlowDoneTotal).Inc()
		f.fire(f.handlers(&f.onDone))
		f.emit(ex, FlowEventCompleted, FlowEvent{})
		f.fire(f.handlers(&f.finally))
		return out, true, nil

	case errors.As(err, &flowErr):
		span.SetTag(FlowTagOutcome, outcomeFailed)
		span.SetTag(FlowTagError, flowErr.Error())
		f.metrics.Counter(FlowErrorsTotal).Inc()
		ex.log.Warn().Err(flowErr).Str("op", flowErr.Kind.String()).Int("index", flowErr.Index).Msg("execution failed")
		f.mu.RLock()
		onError := append([]func(error){}, f.onError...)
		f.mu.RUnlock()
		for _, fn := range onError {
			fn(flowErr)
		}
		f.fire(f.handlers(&f.finally))
		return nil, false, flowErr

	case errors.Is(err, ErrSkip):
		span.SetTag(FlowTagOutcome, outcomeDropped)
		f.fire(f.handlers(&f.finally))
		return nil, false, nil

	case errors.Is(err, ErrSuperseded):
		span.SetTag(FlowTagOutcome, outcomeSuperseded)
		f.fire(f.handlers(&f.finally))
		return nil, false, nil

	case errors.Is(err, ErrCancelled):
		span.SetTag(FlowTagOutcome, outcomeCancelled)
		// OnCancel handlers run before this execution's Finally handlers.
		<-f.cancelDone
		f.fire(f.handlers(&f.finally))
		return nil, false, nil

	default:
		span.SetTag(FlowTagOutcome, outcomeAborted)
		ex.log.Debug().Err(err).Msg("execution aborted by caller")
		f.fire(f.handlers(&f.finally))
		return nil, false, err
	}
}

// Submit starts an execution in its own goroutine and returns a channel that
// receives its Result exactly once.
func (f *Flow[C]) Submit(ctx context.Context, input any) <-chan Result[any] {
	ch := make(chan Result[any], 1)
	go func() {
		out, ok, err := f.Run(ctx, input)
		ch <- Result[any]{Value: out, OK: ok, Err: err}
	}()
	return ch
}

// RunInitial runs the input given to From. Flows created with New run nil.
func (f *Flow[C]) RunInitial(ctx context.Context) (any, bool, error) {
	f.mu.RLock()
	input := f.initial
	f.mu.RUnlock()
	return f.Run(ctx, input)
}

// Close releases the tracer and hook workers. It does not cancel the flow.
func (f *Flow[C]) Close() error {
	f.closeOnce.Do(func() {
		if f.tracer != nil {
			f.tracer.Close()
		}
		f.hooks.Close()
	})
	return nil
}

func (f *Flow[C]) begin(ctx context.Context, ops []*operation[C]) *execution[C] {
	f.mu.RLock()
	clock := f.clock
	name := f.name
	logger := f.logger
	f.mu.RUnlock()

	id := uuid.NewString()
	tok := f.token.child()
	// The caller's context is a second abort source for this execution only.
	stop := context.AfterFunc(ctx, func() {
		tok.trip(context.Cause(ctx))
	})

	return &execution[C]{
		flow:  f,
		ops:   ops,
		tok:   tok,
		ctx:   ctx,
		id:    id,
		name:  name,
		clock: clock,
		start: clock.Now(),
		log:   logger.With().Str("flow", name).Str("execution", id).Logger(),
		stop:  stop,
	}
}

func (f *Flow[C]) handlers(list *[]func()) []func() {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]func(){}, (*list)...)
}

func (*Flow[C]) fire(handlers []func()) {
	for _, fn := range handlers {
		fn()
	}
}

func (f *Flow[C]) emit(ex *execution[C], key hookz.Key, event FlowEvent) {
	event.Name = ex.name
	event.Execution = ex.id
	event.Duration = ex.elapsed()
	event.Timestamp = ex.clock.Now()
	_ = f.hooks.Emit(ex.ctx, key, event) //nolint:errcheck
}

func (f *Flow[C]) log() *zerolog.Logger {
	f.mu.RLock()
	defer f.mu.RUnlock()
	logger := f.logger.With().Str("flow", f.name).Logger()
	return &logger
}

// elapsed is measured on the flow's clock.
func (ex *execution[C]) elapsed() time.Duration {
	return ex.clock.Since(ex.start)
}
