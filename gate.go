package flowz

import "sync"

// gate is the shared pause barrier. While armed, executions queue at their
// next operator boundary; resume releases them in the order they arrived.
type gate struct {
	waiters []chan struct{}
	mu      sync.Mutex
	paused  bool
}

func (g *gate) pause() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		return false
	}
	g.paused = true
	return true
}

func (g *gate) resume() bool {
	g.mu.Lock()
	if !g.paused {
		g.mu.Unlock()
		return false
	}
	g.paused = false
	waiters := g.waiters
	g.waiters = nil
	g.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
	return true
}

func (g *gate) armed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// wait returns true once the gate is open, or false if done closes first.
func (g *gate) wait(done <-chan struct{}) bool {
	g.mu.Lock()
	if !g.paused {
		g.mu.Unlock()
		return true
	}
	w := make(chan struct{})
	g.waiters = append(g.waiters, w)
	g.mu.Unlock()

	select {
	case <-w:
		return true
	case <-done:
		return false
	}
}
