package sink

import (
	"context"
	"fmt"

	"github.com/veillelab/regwatch/monitor/internal/store"
)

// Callback invokes a Go function for each change. Intended for
// embedding the monitor in a larger program.
type Callback struct {
	fn func(ctx context.Context, change *store.ChangeRecord) error
}

// NewCallback wraps fn as a Sink. fn must be safe for concurrent use.
func NewCallback(fn func(ctx context.Context, change *store.ChangeRecord) error) *Callback {
	return &Callback{fn: fn}
}

func (c *Callback) Publish(ctx context.Context, change *store.ChangeRecord) error {
	if c.fn == nil {
		return nil
	}
	// Contain callback panics: a misbehaving consumer must not take
	// down the check cycle.
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("callback panicked: %v", r)
			}
		}()
		err = c.fn(ctx, change)
	}()
	return err
}

func (c *Callback) Close() error { return nil }
