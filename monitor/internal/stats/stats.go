// Package stats aggregates process-wide monitoring counters.
//
// Counters are monotonically increasing atomics, reset only on process
// restart. Snapshot reads are eventually consistent across concurrent
// checks but increments are never lost.
package stats

import (
	"sync/atomic"
	"time"
)

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	TotalChecks           uint64    `json:"total_checks"`
	SuccessfulChecks      uint64    `json:"successful_checks"`
	FailedChecks          uint64    `json:"failed_checks"`
	ChangesDetected       uint64    `json:"changes_detected"`
	DuplicatesAvoided     uint64    `json:"duplicates_avoided"`
	SinkFailures          uint64    `json:"sink_failures"`
	LastSuccessfulCheckAt time.Time `json:"last_successful_check_at"`
}

// Collector holds the shared counters.
type Collector struct {
	totalChecks       atomic.Uint64
	successfulChecks  atomic.Uint64
	failedChecks      atomic.Uint64
	changesDetected   atomic.Uint64
	duplicatesAvoided atomic.Uint64
	sinkFailures      atomic.Uint64
	lastSuccessUnixNs atomic.Int64
}

// New creates a zeroed Collector.
func New() *Collector {
	return &Collector{}
}

// RecordSuccess counts one successful source check.
func (c *Collector) RecordSuccess(at time.Time) {
	c.totalChecks.Add(1)
	c.successfulChecks.Add(1)
	// Keep the newest success timestamp; concurrent checks may race,
	// so only move it forward.
	ns := at.UnixNano()
	for {
		cur := c.lastSuccessUnixNs.Load()
		if ns <= cur || c.lastSuccessUnixNs.CompareAndSwap(cur, ns) {
			return
		}
	}
}

// RecordFailure counts one failed source check.
func (c *Collector) RecordFailure() {
	c.totalChecks.Add(1)
	c.failedChecks.Add(1)
}

// RecordChange counts one admitted change record.
func (c *Collector) RecordChange() {
	c.changesDetected.Add(1)
}

// RecordDuplicate counts one candidate rejected as already seen.
func (c *Collector) RecordDuplicate() {
	c.duplicatesAvoided.Add(1)
}

// RecordSinkFailure counts one failed downstream publish.
func (c *Collector) RecordSinkFailure() {
	c.sinkFailures.Add(1)
}

// Read returns a consistent-enough snapshot of all counters.
func (c *Collector) Read() Snapshot {
	s := Snapshot{
		TotalChecks:       c.totalChecks.Load(),
		SuccessfulChecks:  c.successfulChecks.Load(),
		FailedChecks:      c.failedChecks.Load(),
		ChangesDetected:   c.changesDetected.Load(),
		DuplicatesAvoided: c.duplicatesAvoided.Load(),
		SinkFailures:      c.sinkFailures.Load(),
	}
	if ns := c.lastSuccessUnixNs.Load(); ns > 0 {
		s.LastSuccessfulCheckAt = time.Unix(0, ns)
	}
	return s
}
