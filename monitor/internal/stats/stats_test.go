package stats

import (
	"sync"
	"testing"
	"time"
)

func TestConcurrentIncrements_NotLost(t *testing.T) {
	// WHAT: Counters survive concurrent increments without loss.
	// WHY: Checks of different sources update stats in parallel.
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.RecordSuccess(time.Now())
				c.RecordFailure()
				c.RecordChange()
				c.RecordDuplicate()
			}
		}()
	}
	wg.Wait()

	s := c.Read()
	if s.TotalChecks != 10000 {
		t.Errorf("total: got %d, want 10000", s.TotalChecks)
	}
	if s.SuccessfulChecks != 5000 || s.FailedChecks != 5000 {
		t.Errorf("success/failed: got %d/%d, want 5000/5000", s.SuccessfulChecks, s.FailedChecks)
	}
	if s.ChangesDetected != 5000 || s.DuplicatesAvoided != 5000 {
		t.Errorf("changes/dups: got %d/%d", s.ChangesDetected, s.DuplicatesAvoided)
	}
}

func TestLastSuccess_OnlyMovesForward(t *testing.T) {
	// WHAT: An out-of-order older success does not rewind the timestamp.
	c := New()
	newer := time.Now()
	older := newer.Add(-time.Hour)

	c.RecordSuccess(newer)
	c.RecordSuccess(older)

	if got := c.Read().LastSuccessfulCheckAt; !got.Equal(newer) {
		t.Errorf("last success rewound: %v", got)
	}
}

func TestZeroValueSnapshot(t *testing.T) {
	// WHAT: A fresh collector reads as all-zero with a zero timestamp.
	s := New().Read()
	if s.TotalChecks != 0 || !s.LastSuccessfulCheckAt.IsZero() {
		t.Errorf("unexpected non-zero snapshot: %+v", s)
	}
}
