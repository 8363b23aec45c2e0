// Package sink delivers detected changes to their consumers. A Sink
// receives each admitted change exactly once per process; delivery
// failures are the sink's to report, never to retry by re-emitting the
// change.
package sink

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/veillelab/regwatch/monitor/internal/store"
)

// Sink consumes detected changes.
type Sink interface {
	// Publish delivers one change. Implementations must be safe for
	// concurrent use.
	Publish(ctx context.Context, change *store.ChangeRecord) error
	// Close releases resources. Publish must not be called after Close.
	Close() error
}

// Router fans one change out to every registered sink. Delivery is
// sequential and continues past failures; the first error is returned
// and the rest are logged.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a Router over the given sinks.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

// Add registers another sink. Not safe to call concurrently with
// Publish.
func (r *Router) Add(s Sink) {
	r.sinks = append(r.sinks, s)
}

// Publish delivers the change to every sink.
func (r *Router) Publish(ctx context.Context, change *store.ChangeRecord) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Publish(ctx, change); err != nil {
			if firstErr == nil {
				firstErr = err
			} else {
				r.logger.Warn("sink delivery failed",
					"change_id", change.ChangeID, "error", err)
			}
		}
	}
	if firstErr != nil {
		return fmt.Errorf("sink: %w", firstErr)
	}
	return nil
}

// Close closes every sink, returning the first error.
func (r *Router) Close() error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
