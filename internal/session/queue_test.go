package session

import (
	"testing"

	"github.com/koinonia/liveworkshop/internal/domain"
)

// TestHandQueueRaiseIdempotent ensures a double raise yields one entry.
func TestHandQueueRaiseIdempotent(t *testing.T) {
	q := NewHandQueue()
	if !q.Raise("u1") {
		t.Fatal("first raise should change the queue")
	}
	if q.Raise("u1") {
		t.Fatal("second raise should be a no-op")
	}
	if q.Len() != 1 {
		t.Fatalf("expected exactly one entry, got %d", q.Len())
	}
}

// TestHandQueueKeyedRemoval ensures any entry can be removed, not just the
// head, and order is preserved for the rest.
func TestHandQueueKeyedRemoval(t *testing.T) {
	q := NewHandQueue()
	q.Raise("u1")
	q.Raise("u2")
	q.Raise("u3")

	if !q.Lower("u2") {
		t.Fatal("expected removal of middle entry")
	}
	if q.Lower("u2") {
		t.Fatal("second removal should report no change")
	}

	snap := q.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(snap))
	}
	if snap[0].UserID != "u1" || snap[1].UserID != "u3" {
		t.Fatalf("unexpected order: %+v", snap)
	}
	if snap[0].Position != 0 || snap[1].Position != 1 {
		t.Fatalf("positions not recomputed: %+v", snap)
	}
}

// TestHandQueueContains exercises the membership accessor.
func TestHandQueueContains(t *testing.T) {
	q := NewHandQueue()
	q.Raise("u1")
	if !q.Contains("u1") {
		t.Fatal("expected u1 pending")
	}
	if q.Contains(domain.UserID("u2")) {
		t.Fatal("did not expect u2 pending")
	}
}
