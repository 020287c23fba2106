// Package testing provides test utilities for flowz-based applications.
//
// It includes mock steps that record their calls, assertion helpers and a
// chaos step for exercising retry, timeout and catch operators.
//
// Example usage:
//
//	func TestSearch(t *testing.T) {
//		mock := flowztesting.NewMockStep[string, []string, struct{}](t, "search")
//		mock.WithReturn([]string{"gopher"}, nil)
//
//		results := flowz.SwitchMap(flowz.From("", struct{}{}), mock.Step)
//		hits, ok, err := results.Run(context.Background(), "go")
//
//		flowztesting.AssertCalled(t, mock, 1)
//	}
package testing

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	mathrand "math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/flowz"
)

// ErrChaos is returned by a ChaosStep when it injects a failure.
var ErrChaos = errors.New("chaos step induced failure")

// MockStep is a configurable step function that records every call.
// Pass its Step method anywhere a flowz.StepFunc is expected.
type MockStep[I, O, C any] struct { //nolint:govet // fieldalignment: test helper
	t          *testing.T
	name       string
	calls      atomic.Int64
	lastInput  I
	returnVal  O
	returnErr  error
	delay      time.Duration
	panicMsg   string
	block      bool
	history    []MockCall[I]
	maxHistory int
	mu         sync.RWMutex
}

// MockCall is a single recorded call.
type MockCall[I any] struct {
	Input     I
	Timestamp time.Time
	Token     *flowz.Token
}

// NewMockStep creates a mock step that keeps the last 100 calls.
func NewMockStep[I, O, C any](t *testing.T, name string) *MockStep[I, O, C] {
	return &MockStep[I, O, C]{
		t:          t,
		name:       name,
		maxHistory: 100,
	}
}

// WithReturn sets the value and error returned by every call.
func (m *MockStep[I, O, C]) WithReturn(val O, err error) *MockStep[I, O, C] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.returnVal = val
	m.returnErr = err
	return m
}

// WithDelay makes every call wait d before returning. The wait ends early
// when the call's token trips.
func (m *MockStep[I, O, C]) WithDelay(d time.Duration) *MockStep[I, O, C] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithBlock makes every call park until its token trips.
func (m *MockStep[I, O, C]) WithBlock() *MockStep[I, O, C] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.block = true
	return m
}

// WithPanic makes every call panic with msg.
func (m *MockStep[I, O, C]) WithPanic(msg string) *MockStep[I, O, C] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panicMsg = msg
	return m
}

// Name returns the mock's name.
func (m *MockStep[I, O, C]) Name() string {
	return m.name
}

// Step records the call and returns the configured result.
func (m *MockStep[I, O, C]) Step(tok *flowz.Token, in I, _ C) (O, error) {
	m.calls.Add(1)

	m.mu.Lock()
	m.lastInput = in
	if m.maxHistory > 0 {
		m.history = append(m.history, MockCall[I]{Input: in, Timestamp: time.Now(), Token: tok})
		if len(m.history) > m.maxHistory {
			m.history = m.history[1:]
		}
	}
	delay, block := m.delay, m.block
	val, err := m.returnVal, m.returnErr
	panicMsg := m.panicMsg
	m.mu.Unlock()

	if panicMsg != "" {
		panic(panicMsg)
	}

	var zero O
	if block {
		<-tok.Done()
		return zero, tok.Cause()
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-tok.Done():
			return zero, tok.Cause()
		}
	}
	return val, err
}

// CallCount returns how many times Step has been called.
func (m *MockStep[I, O, C]) CallCount() int {
	return int(m.calls.Load())
}

// LastInput returns the input of the most recent call.
func (m *MockStep[I, O, C]) LastInput() I {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastInput
}

// CallHistory returns a copy of the recorded calls.
func (m *MockStep[I, O, C]) CallHistory() []MockCall[I] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	history := make([]MockCall[I], len(m.history))
	copy(history, m.history)
	return history
}

// Reset clears the recorded calls.
func (m *MockStep[I, O, C]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Store(0)
	m.lastInput = *new(I)
	m.history = nil
}

// AssertCalled verifies that mock was called exactly n times.
func AssertCalled[I, O, C any](t *testing.T, mock *MockStep[I, O, C], n int) {
	t.Helper()
	if got := mock.CallCount(); got != n {
		t.Errorf("expected mock step %s to be called %d times, but was called %d times", mock.name, n, got)
	}
}

// AssertNotCalled verifies that mock was never called.
func AssertNotCalled[I, O, C any](t *testing.T, mock *MockStep[I, O, C]) {
	t.Helper()
	AssertCalled(t, mock, 0)
}

// AssertCalledWith verifies the input of the most recent call.
func AssertCalledWith[I comparable, O, C any](t *testing.T, mock *MockStep[I, O, C], want I) {
	t.Helper()
	if mock.CallCount() == 0 {
		t.Errorf("expected mock step %s to be called with %v, but it was never called", mock.name, want)
		return
	}
	if got := mock.LastInput(); got != want {
		t.Errorf("expected mock step %s to be called with %v, but was called with %v", mock.name, want, got)
	}
}

// AssertSettled verifies that an execution's Result is ready within timeout
// and returns it.
func AssertSettled[T any](t *testing.T, ch <-chan flowz.Result[T], timeout time.Duration) flowz.Result[T] {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(timeout):
		t.Fatalf("execution did not settle within %v", timeout)
	}
	return flowz.Result[T]{}
}

// AssertPending verifies that an execution has not settled yet.
func AssertPending[T any](t *testing.T, ch <-chan flowz.Result[T]) {
	t.Helper()
	select {
	case r := <-ch:
		t.Errorf("expected pending execution, got %+v", r)
	default:
	}
}

// ChaosConfig configures a ChaosStep.
type ChaosConfig struct {
	FailureRate float64       // Probability of returning ErrChaos (0.0 to 1.0)
	PanicRate   float64       // Probability of panicking (0.0 to 1.0)
	LatencyMin  time.Duration // Minimum injected latency
	LatencyMax  time.Duration // Maximum injected latency
	Seed        int64         // Random seed, 0 for a random one
}

// ChaosStep wraps a step function and randomly injects failures, panics and
// latency.
type ChaosStep[I, O, C any] struct { //nolint:govet // fieldalignment: test helper
	wrapped flowz.StepFunc[I, O, C]
	config  ChaosConfig
	rng     *mathrand.Rand
	mu      sync.Mutex
	total   atomic.Int64
	failed  atomic.Int64
	panics  atomic.Int64
}

// NewChaosStep wraps fn with chaos injection.
func NewChaosStep[I, O, C any](fn flowz.StepFunc[I, O, C], config ChaosConfig) *ChaosStep[I, O, C] {
	seed := config.Seed
	if seed == 0 {
		var b [8]byte
		if _, err := rand.Read(b[:]); err != nil {
			seed = time.Now().UnixNano()
		} else {
			seed = int64(binary.BigEndian.Uint64(b[:])) //nolint:gosec // seed only
		}
	}
	return &ChaosStep[I, O, C]{
		wrapped: fn,
		config:  config,
		rng:     mathrand.New(mathrand.NewSource(seed)), //nolint:gosec // test randomness
	}
}

// Step implements flowz.StepFunc with chaos injection.
func (c *ChaosStep[I, O, C]) Step(tok *flowz.Token, in I, ctx C) (O, error) {
	c.total.Add(1)

	c.mu.Lock()
	doPanic := c.rng.Float64() < c.config.PanicRate
	doFail := c.rng.Float64() < c.config.FailureRate
	latency := c.config.LatencyMin
	if span := c.config.LatencyMax - c.config.LatencyMin; span > 0 {
		latency += time.Duration(c.rng.Int63n(int64(span)))
	}
	c.mu.Unlock()

	var zero O
	if doPanic {
		c.panics.Add(1)
		panic("chaos step induced panic")
	}
	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-tok.Done():
			return zero, tok.Cause()
		}
	}

	out, err := c.wrapped(tok, in, ctx)
	if doFail && err == nil {
		c.failed.Add(1)
		return zero, ErrChaos
	}
	return out, err
}

// Stats returns what the chaos step has injected so far.
func (c *ChaosStep[I, O, C]) Stats() ChaosStats {
	return ChaosStats{
		TotalCalls:  c.total.Load(),
		FailedCalls: c.failed.Load(),
		PanicCalls:  c.panics.Load(),
	}
}

// ChaosStats counts injected faults.
type ChaosStats struct {
	TotalCalls  int64
	FailedCalls int64
	PanicCalls  int64
}

// FailureRate returns the observed failure rate.
func (s ChaosStats) FailureRate() float64 {
	if s.TotalCalls == 0 {
		return 0
	}
	return float64(s.FailedCalls) / float64(s.TotalCalls)
}

func (s ChaosStats) String() string {
	return fmt.Sprintf("ChaosStats{Total: %d, Failed: %d (%.1f%%), Panics: %d}",
		s.TotalCalls, s.FailedCalls, s.FailureRate()*100, s.PanicCalls)
}

// WaitForCalls polls until mock has been called at least n times or timeout
// elapses, and reports whether the count was reached.
func WaitForCalls[I, O, C any](mock *MockStep[I, O, C], n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if mock.CallCount() >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return mock.CallCount() >= n
}

// ParallelTest runs fn from the given number of goroutines and waits for all.
func ParallelTest(t *testing.T, goroutines int, fn func(int)) {
	t.Helper()

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			fn(id)
		}(i)
	}
	wg.Wait()
}
