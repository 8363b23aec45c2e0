// Package scheduler runs the periodic check loop: it polls the registry
// for due sources and drives each one through fetch, extraction,
// deduplication, and delivery.
//
// Concurrency model: one dispatch loop, a bounded worker pool, and an
// in-flight set keyed by source ID so no source is ever checked twice
// at once. Source state is only touched through the registry and
// breaker, never shared directly between workers.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/veillelab/regwatch/idgen"
	"github.com/veillelab/regwatch/monitor/internal/breaker"
	"github.com/veillelab/regwatch/monitor/internal/dedup"
	"github.com/veillelab/regwatch/monitor/internal/extract"
	"github.com/veillelab/regwatch/monitor/internal/fetch"
	"github.com/veillelab/regwatch/monitor/internal/registry"
	"github.com/veillelab/regwatch/monitor/internal/sink"
	"github.com/veillelab/regwatch/monitor/internal/stats"
	"github.com/veillelab/regwatch/monitor/internal/store"
)

// State is the scheduler lifecycle state.
type State int32

const (
	Initializing State = iota
	Active
	ShuttingDown
	Stopped
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Active:
		return "active"
	case ShuttingDown:
		return "shutting_down"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config configures the check loop.
type Config struct {
	// TickInterval is how often due sources are polled. Default: 5s.
	TickInterval time.Duration
	// Workers bounds concurrent source checks. Default: 8.
	Workers int
}

func (c *Config) defaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = 5 * time.Second
	}
	if c.Workers <= 0 {
		c.Workers = 8
	}
}

// Deps are the collaborators the scheduler drives.
type Deps struct {
	Registry *registry.Registry
	Breaker  *breaker.Breaker
	Fetcher  *fetch.Fetcher
	Dedup    *dedup.Deduplicator
	Store    *store.Store
	Sink     sink.Sink
	Stats    *stats.Collector
	Logger   *slog.Logger
	IDGen    idgen.Generator
}

// validators holds the conditional-GET state remembered per source.
type validators struct {
	etag    string
	lastMod string
}

// Scheduler is the periodic check loop.
type Scheduler struct {
	deps   Deps
	config Config

	state  atomic.Int32
	cancel context.CancelFunc
	wg     sync.WaitGroup
	sem    chan struct{}

	mu       sync.Mutex
	inFlight map[string]bool
	cond     map[string]validators
}

// New creates a Scheduler. Call Start to begin checking.
func New(deps Deps, cfg Config) *Scheduler {
	cfg.defaults()
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.IDGen == nil {
		deps.IDGen = idgen.Default
	}
	s := &Scheduler{
		deps:     deps,
		config:   cfg,
		sem:      make(chan struct{}, cfg.Workers),
		inFlight: make(map[string]bool),
		cond:     make(map[string]validators),
	}
	s.state.Store(int32(Initializing))
	return s
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Start launches the dispatch loop. Idempotent after the first call.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if !s.state.CompareAndSwap(int32(Initializing), int32(Active)) {
		s.mu.Unlock()
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	s.mu.Unlock()
	go s.run(ctx)
	s.deps.Logger.Info("scheduler started",
		"tick_interval", s.config.TickInterval, "workers", s.config.Workers)
}

// Stop halts the loop and blocks until in-flight checks drain. On a
// never-started scheduler it transitions straight to Stopped. Safe to
// call more than once.
func (s *Scheduler) Stop() {
	// The state transition shares the mutex with submit so no check can
	// be enqueued after the drain has begun.
	s.mu.Lock()
	if s.state.CompareAndSwap(int32(Initializing), int32(Stopped)) {
		s.mu.Unlock()
		return
	}
	if !s.state.CompareAndSwap(int32(Active), int32(ShuttingDown)) {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.state.Store(int32(Stopped))
	s.deps.Logger.Info("scheduler stopped")
}

// cycleRetryBackoff delays the loop after a dispatch fault so a
// persistent fault does not spin.
const cycleRetryBackoff = 5 * time.Second

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	// Check once immediately on start.
	s.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

// cycle runs one dispatch round, containing any fault so it cannot kill
// the loop goroutine while State still reports active.
func (s *Scheduler) cycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.deps.Logger.Error("dispatch faulted", "panic", fmt.Sprint(r))
			select {
			case <-time.After(cycleRetryBackoff):
			case <-ctx.Done():
			}
		}
	}()
	s.dispatch(ctx)
}

// dispatch submits every due source to the worker pool. A dispatch
// never blocks the loop past ctx cancellation.
func (s *Scheduler) dispatch(ctx context.Context) {
	due := s.deps.Registry.DueSources(time.Now())
	for _, src := range due {
		s.submit(ctx, src, nil)
	}
}

// submit runs one check on the pool. Sources already in flight are
// skipped, and no work is accepted once shutdown has begun. Reports
// whether the check was actually enqueued. cycle, when non-nil, is
// completed when the check finishes.
func (s *Scheduler) submit(ctx context.Context, src *registry.Source, cycle *sync.WaitGroup) bool {
	s.mu.Lock()
	if State(s.state.Load()) >= ShuttingDown || s.inFlight[src.ID] {
		s.mu.Unlock()
		return false
	}
	s.inFlight[src.ID] = true
	// Joining the drain group under the same lock as the state check
	// means Stop can never pass wg.Wait before this check is in it.
	s.wg.Add(1)
	if cycle != nil {
		cycle.Add(1)
	}
	s.mu.Unlock()

	finish := func() {
		s.clearInFlight(src.ID)
		s.wg.Done()
		if cycle != nil {
			cycle.Done()
		}
	}

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		finish()
		return false
	}

	go func() {
		defer finish()
		defer func() { <-s.sem }()
		// Detached from the loop context so Stop drains in-flight
		// checks instead of aborting them. The fetch timeout bounds
		// how long the drain can take.
		s.checkSource(context.WithoutCancel(ctx), src)
	}()
	return true
}

func (s *Scheduler) clearInFlight(id string) {
	s.mu.Lock()
	delete(s.inFlight, id)
	s.mu.Unlock()
}

// ForceCheckAll runs one check cycle over every active source
// immediately, ignoring check intervals, and returns once all checks in
// the cycle have completed and been recorded. Suspended sources and
// sources already in flight are skipped; use ForceCheckOne to probe a
// suspended one. Returns the number of sources actually checked.
func (s *Scheduler) ForceCheckAll(ctx context.Context) int {
	var cycle sync.WaitGroup
	var checked int
	for _, src := range s.deps.Registry.List() {
		if !src.Active || src.Suspended {
			continue
		}
		if s.submit(ctx, src, &cycle) {
			checked++
		}
	}
	cycle.Wait()
	return checked
}

// ForceCheckOne checks one source synchronously, bypassing both the
// interval and any suspension. A success clears the suspension, which
// is the recovery path for a suspended source.
func (s *Scheduler) ForceCheckOne(ctx context.Context, id string) error {
	src, err := s.deps.Registry.Get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.inFlight[id] {
		s.mu.Unlock()
		return fmt.Errorf("source %s: check already in progress", id)
	}
	s.inFlight[id] = true
	s.mu.Unlock()
	defer s.clearInFlight(id)

	s.checkSource(ctx, src)
	return nil
}

// ForgetSource drops scheduler-held state for a removed source.
func (s *Scheduler) ForgetSource(id string) {
	s.mu.Lock()
	delete(s.cond, id)
	s.mu.Unlock()
}

// checkSource runs the full pipeline for one source. Panics in any
// stage are contained and counted as a failed check.
func (s *Scheduler) checkSource(ctx context.Context, src *registry.Source) {
	defer func() {
		if r := recover(); r != nil {
			s.deps.Logger.Error("check panicked",
				"source_id", src.ID, "panic", fmt.Sprint(r))
			s.recordFailure(ctx, src, "panic", fmt.Sprint(r), 0, time.Now())
		}
	}()

	started := time.Now()
	log := s.deps.Logger.With("source_id", src.ID, "source_type", src.SourceType)

	s.mu.Lock()
	cond := s.cond[src.ID]
	s.mu.Unlock()

	res, err := s.deps.Fetcher.Fetch(ctx, src.Endpoint, cond.etag, cond.lastMod)
	if err != nil {
		kind, status := classifyFetchError(err)
		log.Warn("fetch failed", "kind", kind, "error", err)
		s.recordFailure(ctx, src, kind, err.Error(), status, started)
		return
	}

	s.mu.Lock()
	s.cond[src.ID] = validators{etag: res.ETag, lastMod: res.LastMod}
	s.mu.Unlock()

	if res.NotModified {
		s.recordSuccess(ctx, src, &store.CheckLogEntry{
			Status:     "unchanged",
			StatusCode: res.StatusCode,
		}, started)
		log.Debug("source unchanged")
		return
	}

	candidates, err := extract.Extract(src.SourceType, src.ID, src.Endpoint, res.Body)
	if err != nil {
		log.Warn("extraction failed", "error", err)
		s.recordFailure(ctx, src, "malformed", err.Error(), res.StatusCode, started)
		return
	}

	var newChanges, duplicates int
	for _, cand := range candidates {
		changeID := dedup.ChangeID(cand.SourceID, cand.Title, cand.ContentURL)
		first, err := s.deps.Dedup.Admit(ctx, changeID, cand.SourceID)
		if err != nil {
			log.Error("dedup admit failed", "change_id", changeID, "error", err)
			continue
		}
		if !first {
			duplicates++
			s.deps.Stats.RecordDuplicate()
			continue
		}

		change := &store.ChangeRecord{
			ChangeID:    changeID,
			SourceID:    cand.SourceID,
			SourceName:  src.Name,
			Title:       cand.Title,
			ContentURL:  cand.ContentURL,
			Description: cand.Description,
			Impact:      cand.Impact,
			DetectedAt:  time.Now().UnixMilli(),
		}
		if !cand.PublishedAt.IsZero() {
			change.PublishedAt = cand.PublishedAt.UnixMilli()
		}

		if err := s.deps.Store.InsertChange(ctx, change); err != nil {
			log.Error("persist change failed", "change_id", changeID, "error", err)
			continue
		}
		newChanges++
		s.deps.Stats.RecordChange()

		if s.deps.Sink != nil {
			if err := s.deps.Sink.Publish(ctx, change); err != nil {
				// The change is persisted; delivery failure is counted
				// but never re-emitted.
				log.Warn("sink publish failed", "change_id", changeID, "error", err)
				s.deps.Stats.RecordSinkFailure()
			}
		}
		log.Info("change detected",
			"change_id", changeID, "impact", change.Impact, "title", change.Title)
	}

	s.recordSuccess(ctx, src, &store.CheckLogEntry{
		Status:     "ok",
		StatusCode: res.StatusCode,
		NewChanges: newChanges,
		Duplicates: duplicates,
	}, started)
}

// recordSuccess resets the breaker, marks the check, updates counters,
// and writes the check log row.
func (s *Scheduler) recordSuccess(ctx context.Context, src *registry.Source, entry *store.CheckLogEntry, started time.Time) {
	now := time.Now()
	s.deps.Breaker.RecordSuccess(src.ID)
	if err := s.deps.Registry.SetHealth(src.ID, 0, false); err != nil && !errors.Is(err, registry.ErrNotFound) {
		s.deps.Logger.Error("set health", "source_id", src.ID, "error", err)
	}
	if err := s.deps.Registry.MarkChecked(src.ID, now); err != nil && !errors.Is(err, registry.ErrNotFound) {
		s.deps.Logger.Error("mark checked", "source_id", src.ID, "error", err)
	}
	s.deps.Stats.RecordSuccess(now)

	entry.ID = s.deps.IDGen()
	entry.SourceID = src.ID
	entry.DurationMs = now.Sub(started).Milliseconds()
	entry.CheckedAt = now.UnixMilli()
	if err := s.deps.Store.InsertCheckLog(ctx, entry); err != nil {
		s.deps.Logger.Error("check log insert", "source_id", src.ID, "error", err)
	}
}

// recordFailure advances the breaker, mirrors the outcome into the
// registry, updates counters, and writes the check log row.
func (s *Scheduler) recordFailure(ctx context.Context, src *registry.Source, kind, detail string, status int, started time.Time) {
	now := time.Now()
	failures, suspended := s.deps.Breaker.RecordFailure(src.ID)
	if err := s.deps.Registry.SetHealth(src.ID, failures, suspended); err != nil && !errors.Is(err, registry.ErrNotFound) {
		s.deps.Logger.Error("set health", "source_id", src.ID, "error", err)
	}
	if err := s.deps.Registry.MarkChecked(src.ID, now); err != nil && !errors.Is(err, registry.ErrNotFound) {
		s.deps.Logger.Error("mark checked", "source_id", src.ID, "error", err)
	}
	s.deps.Stats.RecordFailure()

	if suspended {
		s.deps.Logger.Warn("source suspended",
			"source_id", src.ID, "consecutive_failures", failures)
	}

	entry := &store.CheckLogEntry{
		ID:          s.deps.IDGen(),
		SourceID:    src.ID,
		Status:      "error",
		StatusCode:  status,
		ErrorKind:   kind,
		ErrorDetail: detail,
		DurationMs:  now.Sub(started).Milliseconds(),
		CheckedAt:   now.UnixMilli(),
	}
	if err := s.deps.Store.InsertCheckLog(ctx, entry); err != nil {
		s.deps.Logger.Error("check log insert", "source_id", src.ID, "error", err)
	}
}

func classifyFetchError(err error) (kind string, status int) {
	var fe *fetch.Error
	if errors.As(err, &fe) {
		return string(fe.Kind), fe.Status
	}
	return string(fetch.KindOther), 0
}
