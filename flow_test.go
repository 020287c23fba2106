package flowz

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// recorder collects lifecycle calls in order.
type recorder struct {
	calls []string
	mu    sync.Mutex
}

func (r *recorder) add(s string) func() {
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls = append(r.calls, s)
	}
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.calls...)
}

func sameCalls(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected calls %v, got %v", want, got)
		}
	}
}

// blockUntilCancelled is a step that parks until its token trips.
func blockUntilCancelled(tok *Token, _ any, _ struct{}) (any, error) {
	<-tok.Done()
	return nil, tok.Cause()
}

func await[T any](t *testing.T, ch <-chan Result[T]) Result[T] {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(time.Second):
		t.Fatal("execution did not settle")
	}
	return Result[T]{}
}

func TestFlow(t *testing.T) {
	t.Run("Empty Flow Returns Input", func(t *testing.T) {
		f := New(struct{}{})
		defer f.Close()

		out, ok, err := f.Run(context.Background(), 42)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok || out != 42 {
			t.Errorf("expected 42, got %v (ok=%t)", out, ok)
		}
	})

	t.Run("Lifecycle Order On Success", func(t *testing.T) {
		rec := &recorder{}
		f := New(struct{}{}).
			Map(func(v any, _ struct{}) any { return v.(int) + 1 }).
			OnStart(rec.add("start")).
			OnDone(rec.add("done")).
			OnError(func(error) { rec.add("error")() }).
			Finally(rec.add("finally"))
		defer f.Close()

		out, ok, err := f.Run(context.Background(), 1)
		if err != nil || !ok || out != 2 {
			t.Fatalf("expected 2, got %v (ok=%t, err=%v)", out, ok, err)
		}
		sameCalls(t, rec.list(), []string{"start", "done", "finally"})
	})

	t.Run("Lifecycle Order On Failure", func(t *testing.T) {
		rec := &recorder{}
		boom := errors.New("boom")
		var seen error
		f := New(struct{}{}).
			Step(func(_ *Token, _ any, _ struct{}) (any, error) { return nil, boom }).
			OnStart(rec.add("start")).
			OnDone(rec.add("done")).
			OnError(func(err error) {
				seen = err
				rec.add("error")()
			}).
			Finally(rec.add("finally"))
		defer f.Close()

		_, ok, err := f.Run(context.Background(), 1)
		if ok {
			t.Error("expected ok=false")
		}
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		var flowErr *Error
		if !errors.As(seen, &flowErr) {
			t.Fatalf("expected *Error in OnError, got %T", seen)
		}
		if flowErr.Kind != KindStep || flowErr.Index != 0 {
			t.Errorf("expected step at 0, got %s at %d", flowErr.Kind, flowErr.Index)
		}
		if flowErr.Input != 1 {
			t.Errorf("expected input 1, got %v", flowErr.Input)
		}
		if flowErr.Execution == "" {
			t.Error("expected execution id")
		}
		sameCalls(t, rec.list(), []string{"start", "error", "finally"})
	})

	t.Run("Dropped Event Fires Only Finally", func(t *testing.T) {
		rec := &recorder{}
		f := New(struct{}{}).
			Filter(func(any) bool { return false }).
			OnStart(rec.add("start")).
			OnDone(rec.add("done")).
			OnError(func(error) { rec.add("error")() }).
			Finally(rec.add("finally"))
		defer f.Close()

		out, ok, err := f.Run(context.Background(), 1)
		if err != nil || ok || out != nil {
			t.Fatalf("expected silent drop, got %v (ok=%t, err=%v)", out, ok, err)
		}
		sameCalls(t, rec.list(), []string{"start", "finally"})
	})

	t.Run("Panicking Step Fails Execution", func(t *testing.T) {
		f := New(struct{}{}).
			Step(func(_ *Token, _ any, _ struct{}) (any, error) { panic("kaboom") })
		defer f.Close()

		_, _, err := f.Run(context.Background(), 1)
		var panicErr *PanicError
		if !errors.As(err, &panicErr) {
			t.Fatalf("expected *PanicError, got %v", err)
		}
		if panicErr.Value != "kaboom" {
			t.Errorf("expected kaboom, got %v", panicErr.Value)
		}
		if len(panicErr.Stack) == 0 {
			t.Error("expected stack trace")
		}
	})

	t.Run("Registering After Run Panics", func(t *testing.T) {
		f := New(struct{}{}).Map(func(v any, _ struct{}) any { return v })
		defer f.Close()
		f.Run(context.Background(), 1)

		defer func() {
			r := recover()
			err, ok := r.(error)
			if !ok || !errors.Is(err, ErrSealed) {
				t.Errorf("expected ErrSealed panic, got %v", r)
			}
		}()
		f.Filter(func(any) bool { return true })
	})

	t.Run("Lifecycle Handlers After Run Are Allowed", func(t *testing.T) {
		rec := &recorder{}
		f := New(struct{}{}).Map(func(v any, _ struct{}) any { return v })
		defer f.Close()
		f.Run(context.Background(), 1)

		f.OnDone(rec.add("done")).Finally(rec.add("finally"))
		f.Run(context.Background(), 2)

		sameCalls(t, rec.list(), []string{"done", "finally"})
		if f.Len() != 1 {
			t.Errorf("expected late Finally to add no operator, got %d", f.Len())
		}
	})

	t.Run("Kinds Reflect Chain Order", func(t *testing.T) {
		f := New(struct{}{}).
			Tap(func(any, struct{}) {}).
			Debounce(time.Millisecond).
			Retry(1).
			Step(blockUntilCancelled).
			Catch(func(error, struct{}) (any, error) { return nil, nil }).
			Finally(func() {})
		defer f.Close()

		want := []Kind{KindTap, KindDebounce, KindRetry, KindStep, KindCatch, KindFinally}
		got := f.Kinds()
		if len(got) != len(want) {
			t.Fatalf("expected %v, got %v", want, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("kind %d: expected %s, got %s", i, want[i], got[i])
			}
		}
	})

	t.Run("Configuration Methods", func(t *testing.T) {
		f := New("ctx").WithName("search").WithLogger(zerolog.Nop())
		defer f.Close()

		if f.Name() != "search" {
			t.Errorf("expected 'search', got %q", f.Name())
		}
		if f.Context() != "ctx" {
			t.Errorf("expected context value, got %q", f.Context())
		}
	})

	t.Run("Step Receives Context Value", func(t *testing.T) {
		type deps struct{ prefix string }
		f := New(deps{prefix: "id-"}).
			Step(func(_ *Token, v any, d deps) (any, error) { return d.prefix + v.(string), nil })
		defer f.Close()

		out, _, err := f.Run(context.Background(), "7")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out != "id-7" {
			t.Errorf("expected id-7, got %v", out)
		}
	})
}

func TestFlowCancel(t *testing.T) {
	t.Run("In Flight Execution Resolves Without Value", func(t *testing.T) {
		rec := &recorder{}
		f := New(struct{}{}).
			Step(blockUntilCancelled).
			OnStart(rec.add("start")).
			OnDone(rec.add("done")).
			OnError(func(error) { rec.add("error")() }).
			OnCancel(rec.add("cancel")).
			Finally(rec.add("finally"))
		defer f.Close()

		result := f.Submit(context.Background(), 1)
		time.Sleep(10 * time.Millisecond)
		f.Cancel()

		r := await(t, result)
		if r.OK || r.Err != nil || r.Value != nil {
			t.Fatalf("expected silent resolution, got %+v", r)
		}
		sameCalls(t, rec.list(), []string{"start", "cancel", "finally"})
		if !f.Cancelled() {
			t.Error("expected Cancelled to report true")
		}
		if v := f.Metrics().Counter(FlowCancelledTotal).Value(); v != 1 {
			t.Errorf("expected 1 cancellation, got %f", v)
		}
	})

	t.Run("Cancel Is Idempotent", func(t *testing.T) {
		var calls int
		f := New(struct{}{}).OnCancel(func() { calls++ })
		defer f.Close()

		f.Cancel()
		f.Cancel()
		if calls != 1 {
			t.Errorf("expected OnCancel once, got %d", calls)
		}
	})

	t.Run("Run After Cancel Fires Only Finally", func(t *testing.T) {
		rec := &recorder{}
		f := New(struct{}{}).
			Map(func(v any, _ struct{}) any { return v }).
			OnStart(rec.add("start")).
			Finally(rec.add("finally"))
		defer f.Close()

		f.Cancel()
		out, ok, err := f.Run(context.Background(), 1)
		if out != nil || ok || err != nil {
			t.Fatalf("expected no-op, got %v (ok=%t, err=%v)", out, ok, err)
		}
		if got := rec.list(); len(got) != 1 || got[0] != "finally" {
			t.Errorf("expected only finally, got %v", got)
		}
	})

	t.Run("Token Observers Fire On Cancel", func(t *testing.T) {
		observed := make(chan error, 1)
		f := New(struct{}{}).
			Step(func(tok *Token, _ any, _ struct{}) (any, error) {
				tok.OnCancel(func() { observed <- tok.Cause() })
				<-tok.Done()
				return nil, tok.Cause()
			})
		defer f.Close()

		result := f.Submit(context.Background(), 1)
		time.Sleep(10 * time.Millisecond)
		f.Cancel()
		await(t, result)

		select {
		case cause := <-observed:
			if !errors.Is(cause, ErrCancelled) {
				t.Errorf("expected ErrCancelled, got %v", cause)
			}
		case <-time.After(time.Second):
			t.Fatal("observer never fired")
		}
	})

	t.Run("Caller Context Aborts Only Its Execution", func(t *testing.T) {
		rec := &recorder{}
		f := New(struct{}{}).
			Step(blockUntilCancelled).
			OnError(func(error) { rec.add("error")() }).
			OnCancel(rec.add("cancel")).
			Finally(rec.add("finally"))
		defer f.Close()

		ctx, cancel := context.WithCancel(context.Background())
		result := f.Submit(ctx, 1)
		time.Sleep(10 * time.Millisecond)
		cancel()

		r := await(t, result)
		if !errors.Is(r.Err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", r.Err)
		}
		sameCalls(t, rec.list(), []string{"finally"})
		if f.Cancelled() {
			t.Error("flow should stay live")
		}
	})
}

func TestFlowPause(t *testing.T) {
	t.Run("Paused Flow Holds Executions Until Resumed", func(t *testing.T) {
		f := New(struct{}{}).Map(func(v any, _ struct{}) any { return v.(int) * 10 })
		defer f.Close()

		f.Pause()
		if !f.Paused() {
			t.Fatal("expected Paused to report true")
		}
		result := f.Submit(context.Background(), 3)
		time.Sleep(20 * time.Millisecond)

		select {
		case r := <-result:
			t.Fatalf("expected execution to wait, got %+v", r)
		default:
		}

		f.ResumeFlow()
		r := await(t, result)
		if !r.OK || r.Value != 30 {
			t.Errorf("expected 30, got %+v", r)
		}
		if f.Paused() {
			t.Error("expected Paused to report false")
		}
	})

	t.Run("Cancel Releases Paused Executions", func(t *testing.T) {
		f := New(struct{}{}).Map(func(v any, _ struct{}) any { return v })
		defer f.Close()

		f.Pause()
		result := f.Submit(context.Background(), 1)
		time.Sleep(10 * time.Millisecond)
		f.Cancel()

		r := await(t, result)
		if r.OK || r.Err != nil {
			t.Errorf("expected silent resolution, got %+v", r)
		}
	})

	t.Run("Pause Twice Is Harmless", func(t *testing.T) {
		f := New(struct{}{}).Map(func(v any, _ struct{}) any { return v })
		defer f.Close()

		f.Pause().Pause()
		f.ResumeFlow().ResumeFlow()
		if _, ok, _ := f.Run(context.Background(), 1); !ok {
			t.Error("expected execution to complete")
		}
	})
}

func TestFlowObservability(t *testing.T) {
	t.Run("Metrics", func(t *testing.T) {
		f := New(struct{}{}).
			Filter(func(v any) bool { return v.(int) > 0 }).
			Step(func(_ *Token, v any, _ struct{}) (any, error) {
				if v.(int) > 5 {
					return nil, errors.New("too big")
				}
				return v, nil
			})
		defer f.Close()

		for _, n := range []int{-1, 1, 2, 9} {
			f.Run(context.Background(), n)
		}

		checks := map[metricz.Key]float64{
			FlowRunsTotal:    4,
			FlowDoneTotal:    2,
			FlowDroppedTotal: 1,
			FlowErrorsTotal:  1,
		}
		for key, want := range checks {
			if got := f.Metrics().Counter(key).Value(); got != want {
				t.Errorf("%s: expected %f, got %f", key, want, got)
			}
		}
		if got := f.Metrics().Gauge(FlowInflight).Value(); got != 0 {
			t.Errorf("expected no executions in flight, got %f", got)
		}
	})

	t.Run("Spans", func(t *testing.T) {
		f := New(struct{}{}).WithName("traced").Map(func(v any, _ struct{}) any { return v })
		defer f.Close()

		var spans []tracez.Span
		var spanMu sync.Mutex
		f.Tracer().OnSpanComplete(func(span tracez.Span) {
			spanMu.Lock()
			spans = append(spans, span)
			spanMu.Unlock()
		})

		if _, _, err := f.Run(context.Background(), 1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		time.Sleep(50 * time.Millisecond)

		spanMu.Lock()
		defer spanMu.Unlock()

		var run, op bool
		for _, span := range spans {
			switch span.Name {
			case FlowRunSpan:
				run = true
				if outcome, ok := span.Tags[FlowTagOutcome]; !ok || outcome != outcomeDone {
					t.Errorf("expected outcome done, got %v", outcome)
				}
				if name, ok := span.Tags[FlowTagName]; !ok || name != "traced" {
					t.Errorf("expected flow name tag, got %v", name)
				}
			case FlowOpSpan:
				op = true
				if kind, ok := span.Tags[FlowTagKind]; !ok || kind != "map" {
					t.Errorf("expected kind map, got %v", kind)
				}
			}
		}
		if !run || !op {
			t.Errorf("expected run and op spans, got %d spans", len(spans))
		}
	})

	t.Run("Completed And Dropped Events", func(t *testing.T) {
		f := New(struct{}{}).WithName("hooked").Filter(func(v any) bool { return v.(int)%2 == 0 })
		defer f.Close()

		var mu sync.Mutex
		var completed, dropped []FlowEvent
		if err := f.OnCompleted(func(_ context.Context, e FlowEvent) error {
			mu.Lock()
			completed = append(completed, e)
			mu.Unlock()
			return nil
		}); err != nil {
			t.Fatalf("hook: %v", err)
		}
		if err := f.OnDropped(func(_ context.Context, e FlowEvent) error {
			mu.Lock()
			dropped = append(dropped, e)
			mu.Unlock()
			return nil
		}); err != nil {
			t.Fatalf("hook: %v", err)
		}

		for i := 1; i <= 4; i++ {
			f.Run(context.Background(), i)
		}
		time.Sleep(50 * time.Millisecond)

		mu.Lock()
		defer mu.Unlock()
		if len(completed) != 2 || len(dropped) != 2 {
			t.Fatalf("expected 2 completed and 2 dropped, got %d and %d", len(completed), len(dropped))
		}
		for _, e := range dropped {
			if e.Name != "hooked" || e.Kind != KindFilter || e.Execution == "" {
				t.Errorf("unexpected dropped event: %+v", e)
			}
		}
	})
}

func TestRunInitial(t *testing.T) {
	t.Run("New Runs Nil", func(t *testing.T) {
		f := New(struct{}{})
		defer f.Close()

		out, ok, err := f.RunInitial(context.Background())
		if out != nil || !ok || err != nil {
			t.Errorf("expected nil value, got %v (ok=%t, err=%v)", out, ok, err)
		}
	})

	t.Run("From Runs Initial Input", func(t *testing.T) {
		typed := From("seed", struct{}{})
		defer typed.Flow().Close()

		out, ok, err := typed.RunInitial(context.Background())
		if out != "seed" || !ok || err != nil {
			t.Errorf("expected seed, got %q (ok=%t, err=%v)", out, ok, err)
		}
	})
}
