// Package admission guards the shift submission path against repeated
// invalid attempts.
package admission

import (
	"sync"
	"time"
)

type attemptState struct {
	failures int
	last     time.Time
}

// Limiter counts failed submission attempts per source and locks a source
// out once it exceeds maxAttempts, until the lockout window elapses or an
// attempt succeeds.
type Limiter struct {
	mu          sync.Mutex
	maxAttempts int
	window      time.Duration
	sources     map[string]*attemptState
}

// NewLimiter creates a Limiter allowing maxAttempts failures per source
// before locking it out for window.
func NewLimiter(maxAttempts int, window time.Duration) *Limiter {
	return &Limiter{
		maxAttempts: maxAttempts,
		window:      window,
		sources:     make(map[string]*attemptState),
	}
}

// Allowed reports whether source may attempt a submission at time now.
// A locked-out source becomes eligible again once the window has elapsed
// since its last failure.
func (l *Limiter) Allowed(source string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.sources[source]
	if !ok || st.failures < l.maxAttempts {
		return true
	}
	if now.Sub(st.last) >= l.window {
		delete(l.sources, source)
		return true
	}
	return false
}

// Failure records a failed attempt for source.
func (l *Limiter) Failure(source string, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.sources[source]
	if !ok {
		st = &attemptState{}
		l.sources[source] = st
	}
	st.failures++
	st.last = now
}

// Success clears the attempt counter for source.
func (l *Limiter) Success(source string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.sources, source)
}
