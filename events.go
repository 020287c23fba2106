package flowz

import (
	"context"
	"time"

	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Observability constants for Flow.
const (
	// Metrics.
	FlowRunsTotal       = metricz.Key("flow.runs.total")
	FlowDoneTotal       = metricz.Key("flow.done.total")
	FlowErrorsTotal     = metricz.Key("flow.errors.total")
	FlowDroppedTotal    = metricz.Key("flow.dropped.total")
	FlowSupersededTotal = metricz.Key("flow.superseded.total")
	FlowCancelledTotal  = metricz.Key("flow.cancelled.total")
	FlowRetriesTotal    = metricz.Key("flow.retries.total")
	FlowPollsTotal      = metricz.Key("flow.polls.total")
	FlowTimeoutsTotal   = metricz.Key("flow.timeouts.total")
	FlowCaughtTotal     = metricz.Key("flow.caught.total")
	FlowInflight        = metricz.Key("flow.inflight")
	FlowDurationMs      = metricz.Key("flow.duration.ms")

	// Spans.
	FlowRunSpan = tracez.Key("flow.run")
	FlowOpSpan  = tracez.Key("flow.op")

	// Tags.
	FlowTagName      = tracez.Tag("flow.name")
	FlowTagExecution = tracez.Tag("flow.execution")
	FlowTagOutcome   = tracez.Tag("flow.outcome")
	FlowTagKind      = tracez.Tag("flow.kind")
	FlowTagIndex     = tracez.Tag("flow.index")
	FlowTagError     = tracez.Tag("flow.error")

	// Hook event keys.
	FlowEventCompleted  = hookz.Key("flow.completed")
	FlowEventDropped    = hookz.Key("flow.dropped")
	FlowEventSuperseded = hookz.Key("flow.superseded")
	FlowEventRetried    = hookz.Key("flow.retried")
	FlowEventTimedOut   = hookz.Key("flow.timed_out")
)

// Execution outcomes recorded on the run span.
const (
	outcomeDone       = "done"
	outcomeFailed     = "failed"
	outcomeDropped    = "dropped"
	outcomeSuperseded = "superseded"
	outcomeCancelled  = "cancelled"
	outcomeAborted    = "aborted"
)

// FlowEvent is emitted via hookz as executions move through a Flow.
// These events are observational and delivered asynchronously; the ordered
// lifecycle handlers (OnStart, OnDone, ...) are separate and synchronous.
type FlowEvent struct {
	Name      Name          // Flow name
	Execution string        // Execution id
	Kind      Kind          // Operator involved, zero for whole-execution events
	Index     int           // Operator position in the chain
	Attempt   int           // Retry attempt number (for retried)
	Input     any           // Value at the operator
	Error     error         // Failure that triggered a retry
	Duration  time.Duration // Execution time so far
	Timestamp time.Time     // When the event occurred
}

// OnCompleted registers a handler for executions that reach the end of the chain.
func (f *Flow[C]) OnCompleted(handler func(context.Context, FlowEvent) error) error {
	_, err := f.hooks.Hook(FlowEventCompleted, handler)
	return err
}

// OnDropped registers a handler for events dropped by a gate
// (filter, distinct, take, throttle, leading, exhaustMap or ErrSkip).
func (f *Flow[C]) OnDropped(handler func(context.Context, FlowEvent) error) error {
	_, err := f.hooks.Hook(FlowEventDropped, handler)
	return err
}

// OnSuperseded registers a handler for executions replaced by a newer event
// under Debounce or SwitchMap.
func (f *Flow[C]) OnSuperseded(handler func(context.Context, FlowEvent) error) error {
	_, err := f.hooks.Hook(FlowEventSuperseded, handler)
	return err
}

// OnRetried registers a handler fired before each retry attempt.
func (f *Flow[C]) OnRetried(handler func(context.Context, FlowEvent) error) error {
	_, err := f.hooks.Hook(FlowEventRetried, handler)
	return err
}

// OnTimedOut registers a handler fired when a Timeout operator expires.
func (f *Flow[C]) OnTimedOut(handler func(context.Context, FlowEvent) error) error {
	_, err := f.hooks.Hook(FlowEventTimedOut, handler)
	return err
}
