// Package coalesce merges concurrent identical requests into a single
// in-flight fetch per key. It is a fan-in mechanism only: it never
// retries, and it never caches results beyond a short grace window.
package coalesce

import (
	"context"
	"sync"
	"time"

	"github.com/gridwatch/energy-data-cache/internal/core/observability"
)

// DefaultGrace keeps a settled call around briefly so that requests
// arriving in the same tick window share the outcome instead of
// re-triggering a fetch.
const DefaultGrace = 100 * time.Millisecond

type call[V any] struct {
	done chan struct{}
	val  V
	err  error
}

// Group coalesces calls by key. The zero value is not usable; use New.
type Group[V any] struct {
	mu    sync.Mutex
	calls map[string]*call[V]
	grace time.Duration
}

func New[V any](grace time.Duration) *Group[V] {
	if grace < 0 {
		grace = DefaultGrace
	}
	return &Group[V]{
		calls: make(map[string]*call[V]),
		grace: grace,
	}
}

// Do returns the result of fn for key, starting fn only when no call
// for key is in flight. Concurrent callers with the same key share the
// single pending result, success or error. The returned bool is true
// for the caller that actually ran fn.
func (g *Group[V]) Do(ctx context.Context, key string, fn func(context.Context) (V, error)) (V, bool, error) {
	g.mu.Lock()
	if c, ok := g.calls[key]; ok {
		g.mu.Unlock()
		observability.IncCoalesced(false)
		return g.wait(ctx, c)
	}

	c := &call[V]{done: make(chan struct{})}
	g.calls[key] = c
	g.mu.Unlock()
	observability.IncCoalesced(true)

	c.val, c.err = fn(ctx)
	close(c.done)

	// Remove after the grace window, not immediately, so near-simultaneous
	// arrivals coalesce onto the settled result.
	if g.grace == 0 {
		g.remove(key, c)
	} else {
		time.AfterFunc(g.grace, func() { g.remove(key, c) })
	}

	return c.val, true, c.err
}

// InFlight reports the number of registered calls, settled ones inside
// their grace window included.
func (g *Group[V]) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// Forget drops any registered call for key so the next Do runs fresh.
func (g *Group[V]) Forget(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.calls, key)
}

func (g *Group[V]) remove(key string, c *call[V]) {
	g.mu.Lock()
	defer g.mu.Unlock()
	// only remove our own registration; Forget may have raced us
	if cur, ok := g.calls[key]; ok && cur == c {
		delete(g.calls, key)
	}
}

func (g *Group[V]) wait(ctx context.Context, c *call[V]) (V, bool, error) {
	select {
	case <-c.done:
		return c.val, false, c.err
	case <-ctx.Done():
		var zero V
		return zero, false, ctx.Err()
	}
}
