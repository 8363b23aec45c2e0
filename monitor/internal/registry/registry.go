// Package registry holds the set of configured sources and their mutable
// health and schedule state.
//
// All mutating operations serialize on a single registry-wide mutex.
// Reads return copies taken under the lock; the lock is never held across
// I/O, and callers never see the live map.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrDuplicateID is returned by Add when a source with the same ID exists.
var ErrDuplicateID = errors.New("registry: source ID already exists")

// ErrDuplicateEndpoint is returned when another source already watches
// the same endpoint.
var ErrDuplicateEndpoint = errors.New("registry: endpoint already registered")

// ErrLimitExceeded is returned by Add when the source limit is reached.
var ErrLimitExceeded = errors.New("registry: source limit reached")

// ErrNotFound is returned when a source ID is unknown.
var ErrNotFound = errors.New("registry: source not found")

// Source types.
const (
	TypeFeed = "feed"
	TypeHTML = "html"
	TypeAPI  = "api"
)

// Source is a configured regulatory endpoint to be polled.
//
// LastCheckedAt is updated only through MarkChecked (scheduler),
// ConsecutiveFailures and Suspended only through SetHealth (circuit
// breaker via scheduler).
type Source struct {
	ID                  string        `json:"id"`
	Name                string        `json:"name"`
	Endpoint            string        `json:"endpoint"`
	SourceType          string        `json:"source_type"` // feed | html | api
	CheckInterval       time.Duration `json:"check_interval"`
	Active              bool          `json:"active"`
	LastCheckedAt       time.Time     `json:"last_checked_at"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	Suspended           bool          `json:"suspended"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// Registry is a thread-safe in-memory source store.
type Registry struct {
	mu      sync.Mutex
	sources map[string]*Source
	now     func() time.Time
	limit   int
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets a custom clock function (for testing).
func WithClock(fn func() time.Time) Option {
	return func(r *Registry) { r.now = fn }
}

// WithLimit caps the number of sources Add will accept. Zero means
// unlimited.
func WithLimit(n int) Option {
	return func(r *Registry) { r.limit = n }
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		sources: make(map[string]*Source),
		now:     time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Add inserts a new source. ID and endpoint uniqueness and the source
// limit are all enforced under the registry lock, so two racing adds of
// the same endpoint cannot both pass.
func (r *Registry) Add(src *Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sources[src.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, src.ID)
	}
	for _, cur := range r.sources {
		if cur.Endpoint == src.Endpoint {
			return fmt.Errorf("%w: %s", ErrDuplicateEndpoint, src.Endpoint)
		}
	}
	if r.limit > 0 && len(r.sources) >= r.limit {
		return fmt.Errorf("%w: maximum %d", ErrLimitExceeded, r.limit)
	}
	now := r.now()
	cp := *src
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	r.sources[src.ID] = &cp
	return nil
}

// Get returns a copy of the source, or ErrNotFound.
func (r *Registry) Get(id string) (*Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	src, ok := r.sources[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cp := *src
	return &cp, nil
}

// Update replaces the operator-controlled fields of an existing source
// (name, endpoint, type, interval, active). Health and schedule state is
// preserved. Fails with ErrNotFound if the ID is unknown and with
// ErrDuplicateEndpoint if the new endpoint belongs to another source.
func (r *Registry) Update(src *Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.sources[src.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, src.ID)
	}
	for id, other := range r.sources {
		if id != src.ID && other.Endpoint == src.Endpoint {
			return fmt.Errorf("%w: %s", ErrDuplicateEndpoint, src.Endpoint)
		}
	}
	cur.Name = src.Name
	cur.Endpoint = src.Endpoint
	cur.SourceType = src.SourceType
	cur.CheckInterval = src.CheckInterval
	cur.Active = src.Active
	cur.UpdatedAt = r.now()
	return nil
}

// Remove deletes a source. Fails with ErrNotFound if the ID is unknown.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sources[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(r.sources, id)
	return nil
}

// List returns a point-in-time snapshot of all sources, ordered by
// creation time. The returned slice and its elements are copies.
func (r *Registry) List() []*Source {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Source, 0, len(r.sources))
	for _, src := range r.sources {
		cp := *src
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Count returns the number of registered sources.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sources)
}

// DueSources returns copies of all sources that are active, not
// suspended, and whose check interval has elapsed since the last check.
// Ordered by ascending LastCheckedAt so the longest-unchecked source is
// served first.
func (r *Registry) DueSources(now time.Time) []*Source {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*Source
	for _, src := range r.sources {
		if !src.Active || src.Suspended {
			continue
		}
		if !src.LastCheckedAt.IsZero() && now.Sub(src.LastCheckedAt) < src.CheckInterval {
			continue
		}
		cp := *src
		due = append(due, &cp)
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].LastCheckedAt.Before(due[j].LastCheckedAt)
	})
	return due
}

// MarkChecked records the time of a completed check attempt. The update
// is monotonic: an older timestamp never overwrites a newer one.
func (r *Registry) MarkChecked(id string, t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	src, ok := r.sources[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if t.After(src.LastCheckedAt) {
		src.LastCheckedAt = t
	}
	return nil
}

// SetHealth records the circuit-breaker outcome for a source.
func (r *Registry) SetHealth(id string, consecutiveFailures int, suspended bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	src, ok := r.sources[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	src.ConsecutiveFailures = consecutiveFailures
	src.Suspended = suspended
	return nil
}

// SetActive flips the operator-controlled active flag.
func (r *Registry) SetActive(id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	src, ok := r.sources[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	src.Active = active
	src.UpdatedAt = r.now()
	return nil
}
