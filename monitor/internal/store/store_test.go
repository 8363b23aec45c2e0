package store

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	// modernc in-memory databases are per-connection.
	db.SetMaxOpenConns(1)
	if err := ApplySchema(db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return NewStore(db)
}

func testChange(id, sourceID string) *ChangeRecord {
	return &ChangeRecord{
		ChangeID:   id,
		SourceID:   sourceID,
		SourceName: "Test Regulator",
		Title:      "Final Rule on Something",
		ContentURL: "https://example.gov/rules/1",
		Impact:     "HIGH",
		DetectedAt: time.Now().UnixMilli(),
	}
}

func TestFingerprint_FirstInsertWins(t *testing.T) {
	// WHAT: RecordFingerprint returns true exactly once per change ID.
	// WHY: the dedup layer relies on this to admit each change exactly once.
	s := testStore(t)
	ctx := context.Background()

	inserted, err := s.RecordFingerprint(ctx, "abc123", "src-1")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !inserted {
		t.Error("first insert should report inserted=true")
	}

	inserted, err = s.RecordFingerprint(ctx, "abc123", "src-1")
	if err != nil {
		t.Fatalf("record again: %v", err)
	}
	if inserted {
		t.Error("second insert should report inserted=false")
	}

	exists, err := s.ExistsFingerprint(ctx, "abc123")
	if err != nil || !exists {
		t.Errorf("exists: %v %v", exists, err)
	}
	exists, err = s.ExistsFingerprint(ctx, "nothere")
	if err != nil || exists {
		t.Errorf("exists for unknown id: %v %v", exists, err)
	}
}

func TestFingerprint_ConcurrentAdmission(t *testing.T) {
	// WHAT: N goroutines racing on the same change ID; exactly one wins.
	s := testStore(t)
	ctx := context.Background()

	const n = 16
	var wg sync.WaitGroup
	wins := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inserted, err := s.RecordFingerprint(ctx, "raced", "src-1")
			if err != nil {
				t.Errorf("record: %v", err)
				return
			}
			wins <- inserted
		}()
	}
	wg.Wait()
	close(wins)

	var winners int
	for w := range wins {
		if w {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("winners: got %d, want exactly 1", winners)
	}
}

func TestChange_InsertAndQuery(t *testing.T) {
	// WHAT: inserted changes come back newest-first, with the optional
	// published_at round-tripping through NULL when unset.
	s := testStore(t)
	ctx := context.Background()

	for i, id := range []string{"c1", "c2", "c3"} {
		if _, err := s.RecordFingerprint(ctx, id, "src-1"); err != nil {
			t.Fatalf("fingerprint: %v", err)
		}
		c := testChange(id, "src-1")
		c.DetectedAt = int64(1000 + i)
		if id == "c2" {
			c.PublishedAt = 999
		}
		if err := s.InsertChange(ctx, c); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}

	got, err := s.RecentChanges(ctx, "", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("count: got %d, want 3", len(got))
	}
	if got[0].ChangeID != "c3" || got[2].ChangeID != "c1" {
		t.Errorf("order: %s, %s, %s", got[0].ChangeID, got[1].ChangeID, got[2].ChangeID)
	}
	if got[1].PublishedAt != 999 {
		t.Errorf("published_at: got %d, want 999", got[1].PublishedAt)
	}
	if got[0].PublishedAt != 0 {
		t.Errorf("unset published_at should stay 0, got %d", got[0].PublishedAt)
	}

	one, err := s.GetChange(ctx, "c2")
	if err != nil || one == nil || one.Title != "Final Rule on Something" {
		t.Errorf("get: %+v %v", one, err)
	}
	missing, err := s.GetChange(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("get missing: %+v %v", missing, err)
	}
}

func TestChange_ScopedToSource(t *testing.T) {
	// WHAT: RecentChanges with a source ID filters; DeleteChangesForSource
	// purges both changes and fingerprints for that source only.
	s := testStore(t)
	ctx := context.Background()

	for _, pair := range [][2]string{{"a1", "src-a"}, {"a2", "src-a"}, {"b1", "src-b"}} {
		if _, err := s.RecordFingerprint(ctx, pair[0], pair[1]); err != nil {
			t.Fatalf("fingerprint: %v", err)
		}
		if err := s.InsertChange(ctx, testChange(pair[0], pair[1])); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	got, err := s.RecentChanges(ctx, "src-a", 10)
	if err != nil || len(got) != 2 {
		t.Fatalf("scoped: %d %v", len(got), err)
	}

	if err := s.DeleteChangesForSource(ctx, "src-a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err = s.RecentChanges(ctx, "src-a", 10)
	if err != nil || len(got) != 0 {
		t.Errorf("after delete: %d %v", len(got), err)
	}
	count, err := s.CountFingerprints(ctx, "src-a")
	if err != nil || count != 0 {
		t.Errorf("fingerprints after delete: %d %v", count, err)
	}
	count, err = s.CountFingerprints(ctx, "")
	if err != nil || count != 1 {
		t.Errorf("src-b fingerprint should survive: %d %v", count, err)
	}
}

func TestCheckLog_HistoryAndPrune(t *testing.T) {
	// WHAT: check log entries come back newest-first per source, and
	// PruneCheckLog removes only entries older than the cutoff.
	s := testStore(t)
	ctx := context.Background()

	entries := []*CheckLogEntry{
		{ID: "l1", SourceID: "src-1", Status: "ok", StatusCode: 200, NewChanges: 2, CheckedAt: 1000},
		{ID: "l2", SourceID: "src-1", Status: "error", ErrorKind: "timeout", ErrorDetail: "deadline exceeded", CheckedAt: 2000},
		{ID: "l3", SourceID: "src-2", Status: "unchanged", StatusCode: 304, CheckedAt: 3000},
	}
	for _, e := range entries {
		if err := s.InsertCheckLog(ctx, e); err != nil {
			t.Fatalf("insert %s: %v", e.ID, err)
		}
	}

	got, err := s.CheckHistory(ctx, "src-1", 10)
	if err != nil || len(got) != 2 {
		t.Fatalf("history: %d %v", len(got), err)
	}
	if got[0].ID != "l2" || got[0].ErrorKind != "timeout" {
		t.Errorf("order/fields: %+v", got[0])
	}
	if got[1].StatusCode != 200 {
		t.Errorf("status code: %d", got[1].StatusCode)
	}

	removed, err := s.PruneCheckLog(ctx, 2500)
	if err != nil || removed != 2 {
		t.Fatalf("prune: %d %v", removed, err)
	}
	got, err = s.CheckHistory(ctx, "", 10)
	if err != nil || len(got) != 1 || got[0].ID != "l3" {
		t.Errorf("after prune: %+v %v", got, err)
	}
}
