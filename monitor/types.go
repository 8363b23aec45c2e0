package monitor

import (
	"github.com/veillelab/regwatch/monitor/internal/registry"
	"github.com/veillelab/regwatch/monitor/internal/stats"
	"github.com/veillelab/regwatch/monitor/internal/store"
)

// Source is a monitored regulatory endpoint.
type Source = registry.Source

// Source types.
const (
	TypeFeed = registry.TypeFeed
	TypeHTML = registry.TypeHTML
	TypeAPI  = registry.TypeAPI
)

// Change is a detected regulatory change.
type Change = store.ChangeRecord

// CheckLogEntry is one completed check of a source.
type CheckLogEntry = store.CheckLogEntry

// Stats is a point-in-time copy of the monitoring counters.
type Stats = stats.Snapshot
