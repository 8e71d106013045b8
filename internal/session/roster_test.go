package session

import (
	"testing"
	"time"

	"github.com/koinonia/liveworkshop/internal/domain"
)

func participant(id domain.UserID, role domain.Role, joined time.Time) *domain.Participant {
	return &domain.Participant{
		UserID:      id,
		DisplayName: string(id),
		Role:        role,
		CanSpeak:    role != domain.RoleAttendee,
		Conn:        domain.Connected,
		JoinedAt:    joined,
	}
}

// TestRosterRejoinReplacesEntry ensures re-joining with the same user id
// replaces rather than duplicates, keeping the earned role.
func TestRosterRejoinReplacesEntry(t *testing.T) {
	r := NewRoster()
	t0 := time.Now()
	first := participant("u1", domain.RoleSpeaker, t0)
	r.Upsert(first)
	r.MarkDisconnected("u1")

	rejoin := participant("u1", domain.RoleAttendee, t0.Add(time.Minute))
	rejoin.DisplayName = "renamed"
	r.Upsert(rejoin)

	if r.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", r.Len())
	}
	p, ok := r.Get("u1")
	if !ok {
		t.Fatal("expected entry for u1")
	}
	if p.Role != domain.RoleSpeaker {
		t.Fatalf("expected earned role kept, got %s", p.Role)
	}
	if p.DisplayName != "renamed" {
		t.Fatalf("expected identity refreshed, got %q", p.DisplayName)
	}
	if p.Conn != domain.Connected {
		t.Fatalf("expected latest connection authoritative, got %s", p.Conn)
	}
}

// TestRosterHostCount ensures the invariant accessor counts hosts only.
func TestRosterHostCount(t *testing.T) {
	r := NewRoster()
	t0 := time.Now()
	r.Upsert(participant("h", domain.RoleHost, t0))
	r.Upsert(participant("c", domain.RoleCoHost, t0))
	r.Upsert(participant("a", domain.RoleAttendee, t0))
	if got := r.HostCount(); got != 1 {
		t.Fatalf("HostCount = %d, want 1", got)
	}
	r.Upsert(participant("h2", domain.RoleHost, t0))
	if got := r.HostCount(); got != 2 {
		t.Fatalf("HostCount = %d, want 2", got)
	}
}

// TestRosterSnapshotOrder ensures snapshots come out in join order.
func TestRosterSnapshotOrder(t *testing.T) {
	r := NewRoster()
	t0 := time.Now()
	r.Upsert(participant("b", domain.RoleAttendee, t0.Add(2*time.Second)))
	r.Upsert(participant("a", domain.RoleAttendee, t0))
	r.Upsert(participant("c", domain.RoleAttendee, t0.Add(time.Second)))

	snap := r.Snapshot()
	want := []domain.UserID{"a", "c", "b"}
	if len(snap) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(snap))
	}
	for i, id := range want {
		if snap[i].UserID != id {
			t.Fatalf("snapshot[%d] = %s, want %s", i, snap[i].UserID, id)
		}
	}
}

// TestRosterConnectedExcludesDisconnected ensures disconnected entries stay
// in the roster but out of the connected set.
func TestRosterConnectedExcludesDisconnected(t *testing.T) {
	r := NewRoster()
	t0 := time.Now()
	r.Upsert(participant("u1", domain.RoleAttendee, t0))
	r.Upsert(participant("u2", domain.RoleAttendee, t0.Add(time.Second)))
	r.MarkDisconnected("u1")

	conn := r.Connected()
	if len(conn) != 1 || conn[0].UserID != "u2" {
		t.Fatalf("unexpected connected set: %+v", conn)
	}
	if r.Len() != 2 {
		t.Fatalf("expected disconnected entry kept, len = %d", r.Len())
	}
}
