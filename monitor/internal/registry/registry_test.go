package registry

import (
	"errors"
	"testing"
	"time"
)

func newSource(id string, interval time.Duration) *Source {
	return &Source{
		ID:            id,
		Name:          "Source " + id,
		Endpoint:      "https://example.com/" + id,
		SourceType:    TypeFeed,
		CheckInterval: interval,
		Active:        true,
	}
}

func TestAdd_DuplicateID(t *testing.T) {
	// WHAT: Adding the same ID twice fails with ErrDuplicateID.
	// WHY: Source IDs are the registry key; silent overwrite would lose health state.
	r := New()
	if err := r.Add(newSource("sec", time.Minute)); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := r.Add(newSource("sec", time.Minute)); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("expected ErrDuplicateID, got %v", err)
	}
}

func TestAdd_DuplicateEndpoint(t *testing.T) {
	// WHAT: Two sources cannot watch the same endpoint.
	// WHY: The check runs under the registry lock, so racing adds of one
	// endpoint cannot both pass.
	r := New()
	if err := r.Add(newSource("a", time.Minute)); err != nil {
		t.Fatalf("first add: %v", err)
	}
	b := newSource("b", time.Minute)
	b.Endpoint = "https://example.com/a"
	if err := r.Add(b); !errors.Is(err, ErrDuplicateEndpoint) {
		t.Errorf("expected ErrDuplicateEndpoint, got %v", err)
	}
}

func TestAdd_LimitExceeded(t *testing.T) {
	// WHAT: Add refuses sources past the configured cap; removing one
	// frees a slot.
	r := New(WithLimit(2))
	r.Add(newSource("a", time.Minute))
	r.Add(newSource("b", time.Minute))
	if err := r.Add(newSource("c", time.Minute)); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}
	r.Remove("a")
	if err := r.Add(newSource("c", time.Minute)); err != nil {
		t.Errorf("add after remove: %v", err)
	}
}

func TestUpdate_RejectsEndpointCollision(t *testing.T) {
	// WHAT: An update cannot move a source onto another source's
	// endpoint, but keeping its own endpoint is fine.
	r := New()
	r.Add(newSource("a", time.Minute))
	r.Add(newSource("b", time.Minute))

	upd := newSource("b", time.Minute)
	upd.Endpoint = "https://example.com/a"
	if err := r.Update(upd); !errors.Is(err, ErrDuplicateEndpoint) {
		t.Errorf("expected ErrDuplicateEndpoint, got %v", err)
	}
	if err := r.Update(newSource("a", 2*time.Minute)); err != nil {
		t.Errorf("self endpoint rejected: %v", err)
	}
}

func TestUpdateRemove_NotFound(t *testing.T) {
	// WHAT: Update and Remove on unknown IDs fail with ErrNotFound.
	r := New()
	if err := r.Update(newSource("ghost", time.Minute)); !errors.Is(err, ErrNotFound) {
		t.Errorf("update: expected ErrNotFound, got %v", err)
	}
	if err := r.Remove("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("remove: expected ErrNotFound, got %v", err)
	}
}

func TestUpdate_PreservesHealthState(t *testing.T) {
	// WHAT: Update replaces operator fields but keeps failure counters and last-check.
	// WHY: An admin editing a name must not reset the circuit breaker.
	r := New()
	r.Add(newSource("fca", time.Minute))
	r.SetHealth("fca", 3, false)
	checked := time.Now().Add(-30 * time.Second)
	r.MarkChecked("fca", checked)

	upd := newSource("fca", 2*time.Minute)
	upd.Name = "FCA Handbook"
	if err := r.Update(upd); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, _ := r.Get("fca")
	if got.Name != "FCA Handbook" || got.CheckInterval != 2*time.Minute {
		t.Errorf("operator fields not updated: %+v", got)
	}
	if got.ConsecutiveFailures != 3 {
		t.Errorf("failures: got %d, want 3", got.ConsecutiveFailures)
	}
	if !got.LastCheckedAt.Equal(checked) {
		t.Errorf("last checked changed: %v", got.LastCheckedAt)
	}
}

func TestList_ReturnsCopies(t *testing.T) {
	// WHAT: Mutating a listed source does not affect registry state.
	// WHY: List is a snapshot; callers must not share the live map entries.
	r := New()
	r.Add(newSource("ecb", time.Minute))

	list := r.List()
	list[0].Name = "mutated"

	got, _ := r.Get("ecb")
	if got.Name == "mutated" {
		t.Error("List leaked a live pointer")
	}
}

func TestDueSources_Filtering(t *testing.T) {
	// WHAT: DueSources excludes inactive, suspended, and not-yet-due sources.
	// WHY: The scheduler must never dispatch checks for these.
	now := time.Now()
	r := New()

	due := newSource("due", time.Minute)
	r.Add(due)
	r.MarkChecked("due", now.Add(-2*time.Minute))

	fresh := newSource("fresh", time.Hour)
	r.Add(fresh)
	r.MarkChecked("fresh", now.Add(-time.Minute))

	inactive := newSource("inactive", time.Minute)
	inactive.Active = false
	r.Add(inactive)

	susp := newSource("suspended", time.Minute)
	r.Add(susp)
	r.SetHealth("suspended", 5, true)

	never := newSource("never-checked", time.Hour)
	r.Add(never)

	got := r.DueSources(now)
	ids := map[string]bool{}
	for _, s := range got {
		ids[s.ID] = true
	}
	if !ids["due"] {
		t.Error("overdue source missing")
	}
	if !ids["never-checked"] {
		t.Error("never-checked source should be due immediately")
	}
	if ids["fresh"] || ids["inactive"] || ids["suspended"] {
		t.Errorf("excluded sources leaked into due set: %v", ids)
	}
}

func TestDueSources_OldestFirst(t *testing.T) {
	// WHAT: Due sources are ordered by ascending LastCheckedAt.
	// WHY: Fairness — the longest-unchecked source goes first.
	now := time.Now()
	r := New()
	for i, id := range []string{"a", "b", "c"} {
		r.Add(newSource(id, time.Minute))
		r.MarkChecked(id, now.Add(-time.Duration(i+2)*time.Minute))
	}

	got := r.DueSources(now)
	if len(got) != 3 {
		t.Fatalf("due: got %d, want 3", len(got))
	}
	// c was checked longest ago.
	if got[0].ID != "c" || got[2].ID != "a" {
		t.Errorf("order: got %s,%s,%s want c,b,a", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestMarkChecked_Monotonic(t *testing.T) {
	// WHAT: An older timestamp never overwrites a newer LastCheckedAt.
	// WHY: Out-of-order completion of a forced check must not rewind the schedule.
	r := New()
	r.Add(newSource("sec", time.Minute))
	newer := time.Now()
	older := newer.Add(-time.Minute)

	r.MarkChecked("sec", newer)
	r.MarkChecked("sec", older)

	got, _ := r.Get("sec")
	if !got.LastCheckedAt.Equal(newer) {
		t.Errorf("LastCheckedAt rewound to %v", got.LastCheckedAt)
	}
}
