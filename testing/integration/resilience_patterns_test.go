package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zoobzio/flowz"
	flowztesting "github.com/zoobzio/flowz/testing"
)

func identity(_ *flowz.Token, n int, _ struct{}) (int, error) { return n, nil }

func TestResilience_RetryWithChaos(t *testing.T) {
	tests := []struct {
		name        string
		failureRate float64
		times       int
		seed        int64
	}{
		{name: "mostly_healthy", failureRate: 0.2, times: 3, seed: 11},
		{name: "very_flaky", failureRate: 0.7, times: 2, seed: 23},
		{name: "always_down", failureRate: 1, times: 4, seed: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			chaos := flowztesting.NewChaosStep(identity, flowztesting.ChaosConfig{
				FailureRate: tt.failureRate,
				Seed:        tt.seed,
			})

			f := flowz.Step(flowz.From(0, struct{}{}).RetryWith(flowz.RetryOptions{Times: tt.times}), chaos.Step)
			defer f.Flow().Close()

			const runs = 40
			var succeeded, exhausted int
			for i := 0; i < runs; i++ {
				out, ok, err := f.Run(ctx, i)
				switch {
				case err == nil && ok && out == i:
					succeeded++
				case errors.Is(err, flowztesting.ErrChaos) && errors.Is(err, flowz.ErrExhausted):
					exhausted++
				default:
					t.Fatalf("run %d: unexpected outcome %v (ok=%t, err=%v)", i, out, ok, err)
				}
			}

			stats := chaos.Stats()
			if succeeded+exhausted != runs {
				t.Errorf("expected %d settled runs, got %d", runs, succeeded+exhausted)
			}
			// Every call after a run's first one is a retry.
			retries := f.Flow().Metrics().Counter(flowz.FlowRetriesTotal).Value()
			if int64(retries) != stats.TotalCalls-runs {
				t.Errorf("expected %d retries, got %.0f (%s)", stats.TotalCalls-runs, retries, stats)
			}
			if stats.FailedCalls != stats.TotalCalls-int64(succeeded) {
				t.Errorf("expected %d failed calls, got %s", stats.TotalCalls-int64(succeeded), stats)
			}
			if tt.failureRate == 1 && succeeded != 0 {
				t.Errorf("expected no successes, got %d", succeeded)
			}
		})
	}
}

func TestResilience_RetryAroundTimeout(t *testing.T) {
	ctx := context.Background()
	slow := flowztesting.NewMockStep[string, string, struct{}](t, "slow-upstream").
		WithReturn("late", nil).
		WithDelay(time.Second)

	f := flowz.Step(
		flowz.From("", struct{}{}).Retry(2).Timeout(15*time.Millisecond),
		slow.Step,
	)
	defer f.Flow().Close()

	_, ok, err := f.Run(ctx, "order-1")
	if ok {
		t.Error("expected ok=false")
	}
	if !errors.Is(err, flowz.ErrExhausted) || !errors.Is(err, flowz.ErrTimeout) {
		t.Fatalf("expected exhausted timeouts, got %v", err)
	}

	flowztesting.AssertCalled(t, slow, 3)
	flowztesting.AssertCalledWith(t, slow, "order-1")
	for i, call := range slow.CallHistory() {
		if !errors.Is(call.Token.Cause(), flowz.ErrTimeout) {
			t.Errorf("attempt %d: expected its token to trip with ErrTimeout, got %v", i, call.Token.Cause())
		}
	}
	if v := f.Flow().Metrics().Counter(flowz.FlowTimeoutsTotal).Value(); v != 3 {
		t.Errorf("expected 3 timeouts, got %f", v)
	}
}

func TestResilience_CatchRecoversPanics(t *testing.T) {
	ctx := context.Background()
	chaos := flowztesting.NewChaosStep(identity, flowztesting.ChaosConfig{PanicRate: 1, Seed: 3})

	var caught error
	f := flowz.Step(flowz.From(0, struct{}{}), chaos.Step).
		Catch(func(err error, _ struct{}) (int, error) {
			caught = err
			return -1, nil
		})
	defer f.Flow().Close()

	out, ok, err := f.Run(ctx, 9)
	if err != nil || !ok || out != -1 {
		t.Fatalf("expected fallback -1, got %v (ok=%t, err=%v)", out, ok, err)
	}
	var panicErr *flowz.PanicError
	if !errors.As(caught, &panicErr) {
		t.Errorf("expected catch to receive a panic, got %v", caught)
	}
	if stats := chaos.Stats(); stats.PanicCalls != 1 {
		t.Errorf("expected 1 panic, got %s", stats)
	}
}

func TestResilience_PollUntilReady(t *testing.T) {
	ctx := context.Background()
	status := flowztesting.NewMockStep[string, string, struct{}](t, "job-status").WithReturn("running", nil)

	f := flowz.Step(
		flowz.From("job-1", struct{}{}).Poll(5*time.Millisecond, flowz.PollOptions{
			Until: func(v any) bool { return v == "done" },
			Max:   50,
		}),
		status.Step,
	)
	defer f.Flow().Close()

	result := f.Submit(ctx, "job-1")
	if !flowztesting.WaitForCalls(status, 3, time.Second) {
		t.Fatalf("expected at least 3 polls, got %d", status.CallCount())
	}
	status.WithReturn("done", nil)

	r := flowztesting.AssertSettled(t, result, time.Second)
	if !r.OK || r.Value != "done" {
		t.Errorf("expected done, got %+v", r)
	}
	flowztesting.AssertCalledWith(t, status, "job-1")
}
