package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/zoobzio/flowz"
)

var errUnavailable = errors.New("service unavailable")

// sleep blocks for d or until tok trips.
func sleep(tok *flowz.Token, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-tok.Done():
		return tok.Cause()
	}
}

func collect[T any](out io.Writer, labels []string, results []<-chan flowz.Result[T]) {
	for i, ch := range results {
		r := <-ch
		report(out, labels[i], r.Value, r.OK, r.Err)
	}
}

type catalog struct {
	items []string
	calls atomic.Int32
}

func (c *catalog) search(tok *flowz.Token, q string) ([]string, error) {
	c.calls.Add(1)
	if err := sleep(tok, 80*time.Millisecond); err != nil {
		return nil, err
	}
	var hits []string
	for _, item := range c.items {
		if strings.Contains(item, q) {
			hits = append(hits, item)
		}
	}
	return hits, nil
}

type searchScenario struct{}

func (*searchScenario) Name() string { return "search" }
func (*searchScenario) Description() string {
	return "Keystrokes are debounced, deduplicated and searched; only the latest query answers."
}

func (*searchScenario) Run(ctx context.Context, out io.Writer, logger zerolog.Logger) error {
	api := &catalog{items: []string{"gopher", "goroutine", "golang", "channel", "go vet"}}

	search := flowz.From("", api)
	search.Flow().WithName("search").WithLogger(logger)
	defer search.Flow().Close()

	results := flowz.SwitchMap(
		search.
			Debounce(100*time.Millisecond).
			Distinct(nil).
			Filter(func(q string) bool { return q != "" }),
		func(tok *flowz.Token, q string, api *catalog) ([]string, error) {
			return api.search(tok, q)
		},
	)

	keys := []string{"g", "go", "gor", "go", "gop"}
	pending := make([]<-chan flowz.Result[[]string], 0, len(keys))
	for _, k := range keys {
		pending = append(pending, results.Submit(ctx, k))
		time.Sleep(30 * time.Millisecond)
	}
	collect(out, keys, pending)
	fmt.Fprintf(out, "  backend calls: %d\n", api.calls.Load())
	return nil
}

type switchScenario struct{}

func (*switchScenario) Name() string { return "switch" }
func (*switchScenario) Description() string {
	return "Each new request supersedes the one still in flight."
}

func (*switchScenario) Run(ctx context.Context, out io.Writer, logger zerolog.Logger) error {
	var superseded atomic.Int32

	load := flowz.SwitchMap(
		flowz.From(0, struct{}{}),
		func(tok *flowz.Token, page int, _ struct{}) (string, error) {
			if err := sleep(tok, 60*time.Millisecond); err != nil {
				return "", err
			}
			return fmt.Sprintf("page %d", page), nil
		},
	)
	flow := load.Flow().WithName("pager").WithLogger(logger)
	defer flow.Close()
	if err := flow.OnSuperseded(func(_ context.Context, _ flowz.FlowEvent) error {
		superseded.Add(1)
		return nil
	}); err != nil {
		return err
	}

	pages := []string{"1", "2", "3"}
	pending := make([]<-chan flowz.Result[string], 0, len(pages))
	for i := range pages {
		pending = append(pending, load.Submit(ctx, i+1))
		time.Sleep(20 * time.Millisecond)
	}
	collect(out, pages, pending)
	time.Sleep(10 * time.Millisecond)
	fmt.Fprintf(out, "  superseded: %d\n", superseded.Load())
	return nil
}

type retryScenario struct{}

func (*retryScenario) Name() string { return "retry" }
func (*retryScenario) Description() string {
	return "A flaky step fails twice and succeeds on the third attempt."
}

func (*retryScenario) Run(ctx context.Context, out io.Writer, logger zerolog.Logger) error {
	var attempts atomic.Int32

	fetch := flowz.Step(
		flowz.From("order-42", struct{}{}).RetryWith(flowz.RetryOptions{
			Times:   3,
			Delay:   20 * time.Millisecond,
			Backoff: flowz.BackoffExponential,
		}),
		func(_ *flowz.Token, id string, _ struct{}) (string, error) {
			n := attempts.Add(1)
			if n < 3 {
				logger.Info().Int32("attempt", n).Msg("upstream failed")
				return "", errUnavailable
			}
			return id + ": shipped", nil
		},
	)
	fetch.Flow().WithName("order").WithLogger(logger)
	defer fetch.Flow().Close()

	v, ok, err := fetch.RunInitial(ctx)
	report(out, "order-42", v, ok, err)
	fmt.Fprintf(out, "  attempts: %d\n", attempts.Load())
	return nil
}

type pollScenario struct{}

func (*pollScenario) Name() string { return "poll" }
func (*pollScenario) Description() string {
	return "A job is polled until it reports done, bounded by a timeout."
}

func (*pollScenario) Run(ctx context.Context, out io.Writer, logger zerolog.Logger) error {
	var progress atomic.Int32

	status := flowz.Step(
		flowz.From("job-7", struct{}{}).
			Timeout(time.Second).
			Poll(25*time.Millisecond, flowz.PollOptions{
				Until: func(v any) bool { return v == "done" },
				Max:   20,
			}),
		func(_ *flowz.Token, _ string, _ struct{}) (string, error) {
			if progress.Add(25) >= 100 {
				return "done", nil
			}
			return "running", nil
		},
	).Tap(func(s string, _ struct{}) {
		logger.Info().Str("status", s).Msg("job settled")
	})
	status.Flow().WithName("job").WithLogger(logger)
	defer status.Flow().Close()

	v, ok, err := status.RunInitial(ctx)
	report(out, "job-7", v, ok, err)
	fmt.Fprintf(out, "  polls: %.0f\n", status.Flow().Metrics().Counter(flowz.FlowPollsTotal).Value())
	return nil
}

type throttleScenario struct{}

func (*throttleScenario) Name() string { return "throttle" }
func (*throttleScenario) Description() string {
	return "Rapid clicks pass through throttle and leading gates."
}

func (*throttleScenario) Run(ctx context.Context, out io.Writer, logger zerolog.Logger) error {
	throttled := flowz.From(0, struct{}{}).Throttle(100 * time.Millisecond)
	throttled.Flow().WithName("throttle").WithLogger(logger)
	defer throttled.Flow().Close()

	leading := flowz.From(0, struct{}{}).Leading(100 * time.Millisecond)
	leading.Flow().WithName("leading").WithLogger(logger)
	defer leading.Flow().Close()

	gaps := []int{0, 30, 30, 30, 30, 150, 30}
	for i, gap := range gaps {
		time.Sleep(time.Duration(gap) * time.Millisecond)
		click := i + 1
		_, tOK, _ := throttled.Run(ctx, click)
		_, lOK, _ := leading.Run(ctx, click)
		fmt.Fprintf(out, "  click %d  throttle=%-5t leading=%t\n", click, tOK, lOK)
	}
	return nil
}
