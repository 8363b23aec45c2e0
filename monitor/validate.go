package monitor

import (
	"fmt"
	"time"
)

const (
	maxNameLen     = 512
	maxEndpointLen = 4096
	minInterval    = time.Minute
	maxInterval    = 7 * 24 * time.Hour

	defaultCheckInterval = time.Hour

	// MaxSources is the maximum number of registered sources.
	MaxSources = 1000
)

// allowedSourceTypes is the set of valid source_type values.
var allowedSourceTypes = map[string]bool{
	TypeFeed: true,
	TypeHTML: true,
	TypeAPI:  true,
}

// validateSourceInput validates a source's operator-set fields before
// insert or update.
func validateSourceInput(s *Source) error {
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if len(s.Name) > maxNameLen {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidInput, maxNameLen)
	}

	if s.Endpoint == "" {
		return fmt.Errorf("%w: endpoint is required", ErrInvalidInput)
	}
	if len(s.Endpoint) > maxEndpointLen {
		return fmt.Errorf("%w: endpoint exceeds %d characters", ErrInvalidInput, maxEndpointLen)
	}

	if !allowedSourceTypes[s.SourceType] {
		return fmt.Errorf("%w: unknown source_type %q", ErrInvalidInput, s.SourceType)
	}

	if s.CheckInterval < minInterval || s.CheckInterval > maxInterval {
		return fmt.Errorf("%w: check_interval must be between %s and %s",
			ErrInvalidInput, minInterval, maxInterval)
	}

	return nil
}
