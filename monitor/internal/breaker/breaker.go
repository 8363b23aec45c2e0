// Package breaker implements the per-source failure suspension policy.
//
// Each source moves through Healthy → Degrading → Suspended as
// consecutive checks fail. Any success resets to Healthy. A suspended
// source stays suspended until an explicit reactivation or a successful
// manual check; there is no timed half-open probe, because a dead
// regulator endpoint needs operator attention, not automatic retries.
package breaker

import (
	"sync"
	"time"
)

// State is the health state of one source.
type State int

const (
	Healthy State = iota
	Degrading
	Suspended
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Degrading:
		return "degrading"
	case Suspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// DefaultMaxFailures is the consecutive-failure threshold that suspends
// a source.
const DefaultMaxFailures = 5

type sourceState struct {
	state       State
	failures    int
	lastFailure time.Time
}

// Breaker tracks failure state per source ID. Thread-safe.
type Breaker struct {
	mu          sync.Mutex
	maxFailures int
	states      map[string]*sourceState
	now         func() time.Time
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithMaxFailures sets the consecutive-failure threshold.
func WithMaxFailures(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.maxFailures = n
		}
	}
}

// WithClock sets a custom clock function (for testing).
func WithClock(fn func() time.Time) Option {
	return func(b *Breaker) { b.now = fn }
}

// New creates a Breaker with the default threshold of 5 failures.
func New(opts ...Option) *Breaker {
	b := &Breaker{
		maxFailures: DefaultMaxFailures,
		states:      make(map[string]*sourceState),
		now:         time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// MaxFailures returns the configured suspension threshold.
func (b *Breaker) MaxFailures() int {
	return b.maxFailures
}

// RecordFailure registers a failed check and returns the new consecutive
// failure count and whether the source is now suspended.
func (b *Breaker) RecordFailure(id string) (failures int, suspended bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.state(id)
	st.failures++
	st.lastFailure = b.now()
	if st.failures >= b.maxFailures {
		st.state = Suspended
	} else {
		st.state = Degrading
	}
	return st.failures, st.state == Suspended
}

// RecordSuccess registers a successful check: the source returns to
// Healthy from any state and the failure count resets to zero.
func (b *Breaker) RecordSuccess(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.state(id)
	st.state = Healthy
	st.failures = 0
}

// Reactivate clears a suspension without requiring a successful check.
// Administrative operation.
func (b *Breaker) Reactivate(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.state(id)
	st.state = Healthy
	st.failures = 0
}

// State returns the current state for a source. Sources never seen
// report Healthy.
func (b *Breaker) State(id string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.states[id]; ok {
		return st.state
	}
	return Healthy
}

// Failures returns the current consecutive failure count for a source.
func (b *Breaker) Failures(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.states[id]; ok {
		return st.failures
	}
	return 0
}

// Forget drops all state for a removed source.
func (b *Breaker) Forget(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.states, id)
}

// state returns the tracked state for id, creating it if absent.
// Must be called with mu held.
func (b *Breaker) state(id string) *sourceState {
	st, ok := b.states[id]
	if !ok {
		st = &sourceState{state: Healthy}
		b.states[id] = st
	}
	return st
}
