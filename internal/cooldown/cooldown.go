// Package cooldown rate-limits on-demand refreshes of individual levels.
package cooldown

import (
	"sync"
	"time"
)

// Gate tracks the last refresh time per level id. It is constructed once at
// process start and shared by all request handlers.
type Gate struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
}

// NewGate creates a Gate with the given cooldown window.
func NewGate(window time.Duration) *Gate {
	return &Gate{
		window: window,
		last:   make(map[string]time.Time),
	}
}

// ShouldUseCache reports whether a refresh of levelID at time now falls
// inside the cooldown window of a previous refresh.
func (g *Gate) ShouldUseCache(levelID string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	last, ok := g.last[levelID]
	return ok && now.Sub(last) < g.window
}

// Acquire atomically checks the cooldown and claims a refresh slot for
// levelID. It returns false when the level is still cooling down. The
// check and the timestamp update happen under one lock so two concurrent
// requests for the same level cannot both acquire. The timestamp is recorded
// regardless of whether the refresh later succeeds, bounding the upstream
// call rate under repeated failures too.
func (g *Gate) Acquire(levelID string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if last, ok := g.last[levelID]; ok && now.Sub(last) < g.window {
		return false
	}
	g.last[levelID] = now
	return true
}
