package monitor

import "errors"

// ErrInvalidInput is returned when source input fails validation.
var ErrInvalidInput = errors.New("monitor: invalid input")

// ErrDuplicateSource is returned when a source with the same ID or
// endpoint already exists.
var ErrDuplicateSource = errors.New("monitor: source already exists")

// ErrSourceNotFound is returned when a source ID is unknown.
var ErrSourceNotFound = errors.New("monitor: source not found")

// ErrQuotaExceeded is returned when the source limit is reached.
var ErrQuotaExceeded = errors.New("monitor: quota exceeded")

// ErrStopped is returned for operations on a stopped service.
var ErrStopped = errors.New("monitor: service stopped")
