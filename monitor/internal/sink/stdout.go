package sink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/veillelab/regwatch/monitor/internal/store"
)

// Stdout writes each change as one JSON line. Useful for piping the
// monitor into other tooling.
type Stdout struct {
	mu  sync.Mutex
	out io.Writer
}

// NewStdout creates a line-JSON sink. A nil writer selects os.Stdout.
func NewStdout(out io.Writer) *Stdout {
	if out == nil {
		out = os.Stdout
	}
	return &Stdout{out: out}
}

func (s *Stdout) Publish(_ context.Context, change *store.ChangeRecord) error {
	line, err := json.Marshal(change)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.out.Write(append(line, '\n'))
	return err
}

func (s *Stdout) Close() error { return nil }
