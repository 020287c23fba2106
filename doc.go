// Package flowz provides composable async event flows for Go.
//
// # Overview
//
// A flow is an ordered chain of operators through which discrete events are
// pushed. Each push is an execution: it walks the operators in order, may
// block on timers or I/O, and settles exactly once as done, failed, dropped,
// superseded or cancelled. Operators with memory (Debounce, Throttle,
// Leading, SwitchMap, ExhaustMap, Distinct, Take) share their state across
// every execution of the same flow, which is how a later event can supersede
// an earlier one still in flight.
//
// # Core Concepts
//
//   - Flow[C]: the engine. Values travel as any; C is a context value handed
//     to every step.
//   - Typed[I, O, C]: a builder handle that tracks the input and current
//     output types at compile time. Create one with From.
//   - Token: the cooperative cancellation signal handed to steps. It is a
//     context.Context, so it can be passed straight into I/O calls.
//
// # Operators
//
// Transform and inspect:
//
//   - Tap: side effect, value unchanged
//   - Filter: drop when a predicate fails
//   - Map: pure transform
//   - Step: blocking, fallible transform that receives the Token
//
// Timing gates:
//
//   - Debounce: keep only the latest event of a burst
//   - Throttle: pass the first event of each fixed window
//   - Leading: pass events that end a quiet period
//
// Concurrency:
//
//   - SwitchMap: newer events supersede the invocation in flight
//   - ExhaustMap: drop events while an invocation is in flight
//   - Distinct: drop values equal to the last one that passed
//   - Take: pass at most n events
//
// Resilience:
//
//   - Retry, RetryWith: re-invoke the next operator on failure
//   - Poll: re-invoke the next operator until a condition holds
//   - Timeout: bound the rest of the execution
//   - Catch: recover a failure with a replacement value
//   - Finally: cleanup fired once per execution
//
// # Usage Example
//
//	type Client struct{ /* ... */ }
//
//	search := flowz.From("", client)
//	results := flowz.SwitchMap(
//	    search.
//	        Debounce(300*time.Millisecond).
//	        Distinct(nil).
//	        Filter(func(q string) bool { return q != "" }),
//	    func(tok *flowz.Token, q string, c *Client) ([]Hit, error) {
//	        return c.Search(tok, q)
//	    },
//	).Catch(func(err error, _ *Client) ([]Hit, error) {
//	    return nil, nil
//	})
//
//	for q := range keystrokes {
//	    go func(q string) {
//	        hits, ok, err := results.Run(ctx, q)
//	        if ok {
//	            render(hits)
//	        }
//	    }(q)
//	}
//
// # Lifecycle
//
// OnStart, OnDone and OnError fire per execution. Finally fires once per
// execution whatever its outcome. OnCancel fires once, when Cancel is called.
// Pause holds executions at their next operator boundary until ResumeFlow.
//
// # Observability
//
// Every flow carries a metricz registry, a tracez tracer and hookz events.
// Logging goes through zerolog and is silent unless WithLogger is used.
// Timers run on a clockz clock, which tests replace with a fake via WithClock.
package flowz
