// Package monitor watches regulatory sources (feeds, listing pages,
// JSON APIs) for new publications. Sources are polled on their own
// intervals; new documents are deduplicated, persisted, and delivered
// to configured sinks. Sources that fail repeatedly are suspended
// until an operator reactivates them or a forced check succeeds.
package monitor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/veillelab/regwatch/idgen"
	"github.com/veillelab/regwatch/monitor/internal/breaker"
	"github.com/veillelab/regwatch/monitor/internal/dedup"
	"github.com/veillelab/regwatch/monitor/internal/fetch"
	"github.com/veillelab/regwatch/monitor/internal/registry"
	"github.com/veillelab/regwatch/monitor/internal/scheduler"
	"github.com/veillelab/regwatch/monitor/internal/sink"
	"github.com/veillelab/regwatch/monitor/internal/stats"
	"github.com/veillelab/regwatch/monitor/internal/store"
	"github.com/veillelab/regwatch/safeurl"
)

// Service is the main monitor orchestrator.
type Service struct {
	config   *Config
	registry *registry.Registry
	breaker  *breaker.Breaker
	store    *store.Store
	stats    *stats.Collector
	sinks    *sink.Router
	sched    *scheduler.Scheduler
	logger   *slog.Logger

	newID        idgen.Generator
	urlValidator func(string) error
	stopped      atomic.Bool
}

// ServiceOption configures a Service during creation.
type ServiceOption func(*Service)

// WithURLValidator overrides endpoint validation (default:
// safeurl.Validate). Use in tests with httptest servers that listen on
// loopback addresses.
func WithURLValidator(fn func(string) error) ServiceOption {
	return func(svc *Service) { svc.urlValidator = fn }
}

// WithSink registers an additional delivery sink.
func WithSink(s sink.Sink) ServiceOption {
	return func(svc *Service) { svc.sinks.Add(s) }
}

// WithIDGenerator overrides ID generation (for testing).
func WithIDGenerator(gen idgen.Generator) ServiceOption {
	return func(svc *Service) { svc.newID = gen }
}

// New creates a monitor Service on an already-opened database. The
// schema is applied; the check loop does not run until Start.
func New(db *sql.DB, cfg *Config, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	if err := store.ApplySchema(db); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	st := store.NewStore(db)

	dd, err := dedup.New(st, cfg.DedupCacheSize)
	if err != nil {
		return nil, fmt.Errorf("dedup cache: %w", err)
	}

	svc := &Service{
		config:       cfg,
		registry:     registry.New(registry.WithLimit(MaxSources)),
		breaker:      breaker.New(breaker.WithMaxFailures(cfg.MaxFailures)),
		store:        st,
		stats:        stats.New(),
		sinks:        sink.NewRouter(logger),
		logger:       logger,
		newID:        idgen.Default,
		urlValidator: safeurl.Validate,
	}

	if cfg.Sinks.Stdout {
		svc.sinks.Add(sink.NewStdout(nil))
	}
	for _, whc := range cfg.Sinks.Webhooks {
		wh, err := sink.NewWebhook(whc)
		if err != nil {
			return nil, fmt.Errorf("webhook sink: %w", err)
		}
		svc.sinks.Add(wh)
	}

	for _, opt := range opts {
		opt(svc)
	}

	fcfg := cfg.fetchConfig()
	fcfg.URLValidator = svc.urlValidator
	svc.sched = scheduler.New(scheduler.Deps{
		Registry: svc.registry,
		Breaker:  svc.breaker,
		Fetcher:  fetch.New(fcfg),
		Dedup:    dd,
		Store:    st,
		Sink:     svc.sinks,
		Stats:    svc.stats,
		Logger:   logger,
		IDGen:    svc.newID,
	}, cfg.schedulerConfig())

	return svc, nil
}

// Start launches the background check loop. Non-blocking.
func (svc *Service) Start(ctx context.Context) {
	svc.sched.Start(ctx)
	svc.logger.Info("monitor started", "sources", svc.registry.Count())
}

// Stop halts the check loop and waits for in-flight checks, then
// closes the sinks. The service cannot be restarted.
func (svc *Service) Stop() error {
	if svc.stopped.Swap(true) {
		return nil
	}
	svc.sched.Stop()
	err := svc.sinks.Close()
	svc.logger.Info("monitor stopped")
	return err
}

// SchedulerState reports the check loop lifecycle state.
func (svc *Service) SchedulerState() string {
	return svc.sched.State().String()
}

// Stopped reports whether Stop has been called.
func (svc *Service) Stopped() bool {
	return svc.stopped.Load()
}

// --- Sources ---

// AddSource registers a new source. A missing ID is generated; type
// defaults to feed and interval to one hour.
func (svc *Service) AddSource(ctx context.Context, s *Source) error {
	if svc.stopped.Load() {
		return ErrStopped
	}
	if s.ID == "" {
		s.ID = svc.newID()
	}
	if s.SourceType == "" {
		s.SourceType = TypeFeed
	}
	if s.CheckInterval == 0 {
		s.CheckInterval = defaultCheckInterval
	}

	if err := validateSourceInput(s); err != nil {
		return err
	}
	normalized, err := NormalizeEndpoint(s.Endpoint)
	if err != nil {
		return err
	}
	s.Endpoint = normalized
	if err := svc.urlValidator(s.Endpoint); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	// Uniqueness and the cap are enforced inside the registry lock so
	// concurrent adds cannot both pass a pre-check.
	if err := svc.registry.Add(s); err != nil {
		switch {
		case errors.Is(err, registry.ErrDuplicateID):
			return fmt.Errorf("%w: id %s", ErrDuplicateSource, s.ID)
		case errors.Is(err, registry.ErrDuplicateEndpoint):
			return fmt.Errorf("%w: endpoint %s", ErrDuplicateSource, s.Endpoint)
		case errors.Is(err, registry.ErrLimitExceeded):
			return fmt.Errorf("%w: maximum %d sources", ErrQuotaExceeded, MaxSources)
		default:
			return err
		}
	}
	svc.logger.Info("source added",
		"source_id", s.ID, "endpoint", s.Endpoint, "source_type", s.SourceType)
	return nil
}

// GetSource returns one source by ID.
func (svc *Service) GetSource(id string) (*Source, error) {
	src, err := svc.registry.Get(id)
	if err != nil {
		return nil, mapRegistryErr(err, id)
	}
	return src, nil
}

// ListSources returns all sources, oldest first.
func (svc *Service) ListSources() []*Source {
	return svc.registry.List()
}

// UpdateSource replaces a source's operator-set fields. Unset fields
// keep their current values; health state is never touched.
func (svc *Service) UpdateSource(ctx context.Context, s *Source) error {
	if svc.stopped.Load() {
		return ErrStopped
	}
	existing, err := svc.registry.Get(s.ID)
	if err != nil {
		return mapRegistryErr(err, s.ID)
	}

	if s.Name == "" {
		s.Name = existing.Name
	}
	if s.Endpoint == "" {
		s.Endpoint = existing.Endpoint
	}
	if s.SourceType == "" {
		s.SourceType = existing.SourceType
	}
	if s.CheckInterval == 0 {
		s.CheckInterval = existing.CheckInterval
	}

	if err := validateSourceInput(s); err != nil {
		return err
	}
	normalized, err := NormalizeEndpoint(s.Endpoint)
	if err != nil {
		return err
	}
	s.Endpoint = normalized
	if err := svc.urlValidator(s.Endpoint); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if err := svc.registry.Update(s); err != nil {
		if errors.Is(err, registry.ErrDuplicateEndpoint) {
			return fmt.Errorf("%w: endpoint %s", ErrDuplicateSource, s.Endpoint)
		}
		return mapRegistryErr(err, s.ID)
	}
	svc.logger.Info("source updated", "source_id", s.ID)
	return nil
}

// RemoveSource deletes a source and all scheduler and breaker state
// for it. With purge set, its stored changes and fingerprints are
// deleted too; otherwise history is kept.
func (svc *Service) RemoveSource(ctx context.Context, id string, purge bool) error {
	if err := svc.registry.Remove(id); err != nil {
		return mapRegistryErr(err, id)
	}
	svc.breaker.Forget(id)
	svc.sched.ForgetSource(id)
	if purge {
		if err := svc.store.DeleteChangesForSource(ctx, id); err != nil {
			return fmt.Errorf("purge source %s: %w", id, err)
		}
	}
	svc.logger.Info("source removed", "source_id", id, "purged", purge)
	return nil
}

// SetSourceActive flips the operator-controlled active flag.
func (svc *Service) SetSourceActive(id string, active bool) error {
	if err := svc.registry.SetActive(id, active); err != nil {
		return mapRegistryErr(err, id)
	}
	return nil
}

// ReactivateSource clears a suspension so the scheduler picks the
// source up again. The failure history resets.
func (svc *Service) ReactivateSource(id string) error {
	if _, err := svc.registry.Get(id); err != nil {
		return mapRegistryErr(err, id)
	}
	svc.breaker.Reactivate(id)
	if err := svc.registry.SetHealth(id, 0, false); err != nil {
		return mapRegistryErr(err, id)
	}
	svc.logger.Info("source reactivated", "source_id", id)
	return nil
}

// SourceHealth reports the breaker view of one source.
func (svc *Service) SourceHealth(id string) (state string, failures int, err error) {
	if _, err := svc.registry.Get(id); err != nil {
		return "", 0, mapRegistryErr(err, id)
	}
	return svc.breaker.State(id).String(), svc.breaker.Failures(id), nil
}

// --- Checks ---

// ForceCheckAll runs one check cycle over every active, non-suspended
// source, ignoring intervals, and returns once every check in the
// cycle has completed and been recorded. Returns the number of sources
// checked. Callers that cannot block should run it in a goroutine.
func (svc *Service) ForceCheckAll(ctx context.Context) (int, error) {
	if svc.stopped.Load() {
		return 0, ErrStopped
	}
	return svc.sched.ForceCheckAll(ctx), nil
}

// ForceCheckOne checks one source synchronously, even a suspended one.
// A success clears the suspension.
func (svc *Service) ForceCheckOne(ctx context.Context, id string) error {
	if svc.stopped.Load() {
		return ErrStopped
	}
	if err := svc.sched.ForceCheckOne(ctx, id); err != nil {
		return mapRegistryErr(err, id)
	}
	return nil
}

// --- Read operations ---

// Stats returns the process-wide monitoring counters.
func (svc *Service) Stats() Stats {
	return svc.stats.Read()
}

// RecentChanges returns the newest detected changes, optionally scoped
// to one source (empty sourceID means all).
func (svc *Service) RecentChanges(ctx context.Context, sourceID string, limit int) ([]*Change, error) {
	return svc.store.RecentChanges(ctx, sourceID, limit)
}

// CheckHistory returns the newest check log entries, optionally scoped
// to one source (empty sourceID means all).
func (svc *Service) CheckHistory(ctx context.Context, sourceID string, limit int) ([]*CheckLogEntry, error) {
	return svc.store.CheckHistory(ctx, sourceID, limit)
}

// ApplySchema applies the monitor schema to a database. Exported for
// migration scripts.
func ApplySchema(db *sql.DB) error {
	return store.ApplySchema(db)
}

func mapRegistryErr(err error, id string) error {
	if errors.Is(err, registry.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, id)
	}
	return err
}
