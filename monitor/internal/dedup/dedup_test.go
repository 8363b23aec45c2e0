package dedup

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/veillelab/regwatch/monitor/internal/store"
	_ "modernc.org/sqlite"
)

func testDedup(t *testing.T, cacheSize int) *Deduplicator {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)
	if err := store.ApplySchema(db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	d, err := New(store.NewStore(db), cacheSize)
	if err != nil {
		t.Fatalf("new dedup: %v", err)
	}
	return d
}

func TestChangeID_Deterministic(t *testing.T) {
	// WHAT: the same source/title/url always yields the same ID, and
	// title case or spacing differences do not change it.
	a := ChangeID("sec", "Final Rule on Climate Disclosure", "https://sec.example/r/1")
	b := ChangeID("sec", "  final RULE on   climate disclosure ", "https://sec.example/r/1")
	if a != b {
		t.Errorf("normalized titles should collide:\n%s\n%s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected hex sha-256, got %d chars", len(a))
	}

	// WHY: source and URL are part of the identity; the same headline
	// from two regulators is two distinct changes.
	c := ChangeID("fca", "Final Rule on Climate Disclosure", "https://sec.example/r/1")
	if a == c {
		t.Error("different sources must not collide")
	}
	d := ChangeID("sec", "Final Rule on Climate Disclosure", "https://sec.example/r/2")
	if a == d {
		t.Error("different URLs must not collide")
	}
}

func TestAdmit_FirstCallerWins(t *testing.T) {
	// WHAT: Admit is true once per change ID, then false, and
	// IsDuplicate agrees.
	d := testDedup(t, 0)
	ctx := context.Background()
	id := ChangeID("sec", "New Rule", "https://sec.example/r/9")

	dup, err := d.IsDuplicate(ctx, id)
	if err != nil || dup {
		t.Fatalf("fresh id reported duplicate: %v %v", dup, err)
	}

	first, err := d.Admit(ctx, id, "sec")
	if err != nil || !first {
		t.Fatalf("first admit: %v %v", first, err)
	}
	second, err := d.Admit(ctx, id, "sec")
	if err != nil || second {
		t.Fatalf("second admit should lose: %v %v", second, err)
	}

	dup, err = d.IsDuplicate(ctx, id)
	if err != nil || !dup {
		t.Errorf("admitted id should be duplicate: %v %v", dup, err)
	}
}

func TestAdmit_Concurrent(t *testing.T) {
	// WHAT: goroutines racing to admit one ID; exactly one wins.
	// WHY: two overlapping checks of the same source must not emit the
	// same change twice.
	d := testDedup(t, 0)
	ctx := context.Background()
	id := ChangeID("ecb", "Press Release", "https://ecb.example/pr/1")

	const n = 16
	var wg sync.WaitGroup
	wins := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			first, err := d.Admit(ctx, id, "ecb")
			if err != nil {
				t.Errorf("admit: %v", err)
				return
			}
			wins <- first
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

func TestDedup_SurvivesCacheEviction(t *testing.T) {
	// WHAT: with a tiny cache, IDs evicted from the LRU are still caught
	// by the store fallback.
	d := testDedup(t, 2)
	ctx := context.Background()

	ids := []string{
		ChangeID("s", "one", "https://x.example/1"),
		ChangeID("s", "two", "https://x.example/2"),
		ChangeID("s", "three", "https://x.example/3"),
	}
	for _, id := range ids {
		if first, err := d.Admit(ctx, id, "s"); err != nil || !first {
			t.Fatalf("admit %s: %v %v", id[:8], first, err)
		}
	}

	// ids[0] has been evicted from the 2-entry cache by now.
	if d.CacheLen() != 2 {
		t.Fatalf("cache len: got %d, want 2", d.CacheLen())
	}
	dup, err := d.IsDuplicate(ctx, ids[0])
	if err != nil || !dup {
		t.Errorf("evicted id should still be duplicate via store: %v %v", dup, err)
	}
	if first, err := d.Admit(ctx, ids[0], "s"); err != nil || first {
		t.Errorf("evicted id should not be re-admitted: %v %v", first, err)
	}
}
