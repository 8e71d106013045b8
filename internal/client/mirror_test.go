package client

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/koinonia/liveworkshop/internal/core"
	"github.com/koinonia/liveworkshop/internal/domain"
	"github.com/koinonia/liveworkshop/internal/session"
)

func baseSnapshot() core.Snapshot {
	return core.Snapshot{
		SessionID:  "s1",
		WorkshopID: "42",
		State:      domain.StateLive,
		Seq:        5,
		HostID:     "host",
		Participants: []core.ParticipantView{
			{UserID: "host", DisplayName: "host", Role: domain.RoleHost, CanSpeak: true, Conn: domain.Connected},
			{UserID: "u2", DisplayName: "u2", Role: domain.RoleAttendee, Conn: domain.Connected},
		},
	}
}

// TestMirrorAppliesSequencedDeltas replays an in-order stream.
func TestMirrorAppliesSequencedDeltas(t *testing.T) {
	m := NewMirror()
	m.ApplySnapshot(baseSnapshot())
	if m.Phase() != PhaseLive || m.Seq() != 5 {
		t.Fatalf("after snapshot: phase=%s seq=%d", m.Phase(), m.Seq())
	}

	if !m.ApplyDelta(core.Delta{Type: core.DeltaHandRaised, Seq: 6, UserID: "u2"}) {
		t.Fatal("in-order delta rejected")
	}
	canSpeak := true
	if !m.ApplyDelta(core.Delta{Type: core.DeltaSpeakingChanged, Seq: 7, UserID: "u2", Role: domain.RoleSpeaker, CanSpeak: &canSpeak}) {
		t.Fatal("in-order delta rejected")
	}

	for _, p := range m.Roster() {
		if p.UserID == "u2" && (!p.CanSpeak || p.Role != domain.RoleSpeaker) {
			t.Fatalf("u2 not updated: %+v", p)
		}
	}
	if len(m.RaisedHands()) != 1 {
		t.Fatalf("raised hands = %v", m.RaisedHands())
	}
}

// TestMirrorDuplicateDeltaIgnored covers at-least-once delivery.
func TestMirrorDuplicateDeltaIgnored(t *testing.T) {
	m := NewMirror()
	m.ApplySnapshot(baseSnapshot())
	d := core.Delta{Type: core.DeltaHandRaised, Seq: 6, UserID: "u2"}
	if !m.ApplyDelta(d) || !m.ApplyDelta(d) {
		t.Fatal("duplicate should be accepted as a no-op")
	}
	if len(m.RaisedHands()) != 1 {
		t.Fatalf("duplicate raised twice: %v", m.RaisedHands())
	}
	if m.Seq() != 6 {
		t.Fatalf("seq = %d, want 6", m.Seq())
	}
}

// TestMirrorGapForcesResync: a missed sequence number flips the mirror into
// resync mode and later deltas are discarded until a snapshot arrives.
func TestMirrorGapForcesResync(t *testing.T) {
	m := NewMirror()
	m.ApplySnapshot(baseSnapshot())
	if !m.ApplyDelta(core.Delta{Type: core.DeltaHandRaised, Seq: 6, UserID: "u2"}) {
		t.Fatal("in-order delta rejected")
	}
	// Seq 7 lost; 8 arrives.
	if m.ApplyDelta(core.Delta{Type: core.DeltaHandLowered, Seq: 8, UserID: "u2"}) {
		t.Fatal("gapped delta must be rejected")
	}
	if !m.NeedsResync() {
		t.Fatal("gap did not flag resync")
	}
	if m.ApplyDelta(core.Delta{Type: core.DeltaHandRaised, Seq: 9, UserID: "u2"}) {
		t.Fatal("buffered deltas after a gap must be discarded")
	}

	snap := baseSnapshot()
	snap.Seq = 9
	m.ApplySnapshot(snap)
	if m.NeedsResync() {
		t.Fatal("snapshot did not clear resync")
	}
	if m.Seq() != 9 {
		t.Fatalf("seq after resync = %d, want 9", m.Seq())
	}
}

// TestMirrorLifecyclePhases maps lifecycle deltas onto UI phases.
func TestMirrorLifecyclePhases(t *testing.T) {
	m := NewMirror()
	snap := baseSnapshot()
	snap.State = domain.StateLobby
	m.ApplySnapshot(snap)
	if m.Phase() != PhaseLobby {
		t.Fatalf("phase = %s, want %s", m.Phase(), PhaseLobby)
	}
	m.ApplyDelta(core.Delta{Type: core.DeltaLifecycleChanged, Seq: 6, State: domain.StateLive})
	if m.Phase() != PhaseLive {
		t.Fatalf("phase = %s, want %s", m.Phase(), PhaseLive)
	}
	m.ApplyDelta(core.Delta{Type: core.DeltaSessionEnded, Seq: 7, State: domain.StateEnded})
	if m.Phase() != PhaseEnded {
		t.Fatalf("phase = %s, want %s", m.Phase(), PhaseEnded)
	}
}

// --- Scenario: gap against a real coordinator, then resync convergence ---

type recordingConn struct {
	mu     sync.Mutex
	frames [][]byte
}

func (c *recordingConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(f))
	copy(cp, f)
	c.frames = append(c.frames, cp)
	return nil
}

func (c *recordingConn) Close() {}

func (c *recordingConn) collected(t *testing.T) []core.Delta {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []core.Delta
	for _, f := range c.frames {
		var env struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(f, &env); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if env.Type == core.MessageCredential {
			continue
		}
		var d core.Delta
		if err := json.Unmarshal(f, &d); err != nil {
			t.Fatalf("unmarshal delta: %v", err)
		}
		out = append(out, d)
	}
	return out
}

type nopIssuer struct{}

func (nopIssuer) IssueCredential(ctx context.Context, sessionID domain.SessionID, userID domain.UserID, role domain.CredentialRole) (domain.VideoCredential, error) {
	return domain.VideoCredential{AppID: "a", Channel: string(sessionID), Token: "t", Role: role, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (nopIssuer) RevokeCredential(ctx context.Context, cred domain.VideoCredential) error { return nil }

type nopStore struct{ w domain.Workshop }

func (s nopStore) Workshop(ctx context.Context, id domain.WorkshopID) (domain.Workshop, error) {
	return s.w, nil
}
func (nopStore) FinishWorkshop(ctx context.Context, id domain.WorkshopID, n int) error { return nil }

type nopNotifier struct{}

func (nopNotifier) Notify(event string, workshopID domain.WorkshopID) {}

func sortedByUser(ps []core.ParticipantView) []core.ParticipantView {
	out := append([]core.ParticipantView(nil), ps...)
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// TestScenarioGapThenResyncConverges drives a real session, drops one delta
// on the way to the mirror, and checks the mirror converges with the
// server's roster after a snapshot resync.
func TestScenarioGapThenResyncConverges(t *testing.T) {
	w := domain.Workshop{ID: "42", Title: "w", HostID: "host"}
	s := session.NewSession(w, session.Deps{
		Issuer:       nopIssuer{},
		Store:        nopStore{w: w},
		Notifier:     nopNotifier{},
		IssueRetries: 1,
		RetryBackoff: time.Millisecond,
		IssueTimeout: time.Second,
	})
	go s.Run()
	t.Cleanup(s.Stop)

	ctx := context.Background()
	observer := &recordingConn{}

	snap, err := s.Join("watcher", "watcher", "")
	if err != nil {
		t.Fatalf("Join watcher: %v", err)
	}
	s.Dispatcher().Subscribe("watcher", observer)

	m := NewMirror()
	m.ApplySnapshot(snap)

	if _, err := s.Join("host", "host", ""); err != nil {
		t.Fatalf("Join host: %v", err)
	}
	if _, err := s.Join("u2", "u2", ""); err != nil {
		t.Fatalf("Join u2: %v", err)
	}
	if err := s.Start(ctx, "host"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.RaiseHand("u2"); err != nil {
		t.Fatalf("RaiseHand: %v", err)
	}
	if err := s.ApproveSpeaker(ctx, "host", "u2"); err != nil {
		t.Fatalf("ApproveSpeaker: %v", err)
	}

	deltas := observer.collected(t)
	if len(deltas) < 4 {
		t.Fatalf("expected a delta stream, got %d", len(deltas))
	}

	// Replay everything except one dropped delta in the middle.
	dropped := len(deltas) / 2
	gapped := false
	for i, d := range deltas {
		if i == dropped {
			continue
		}
		if !m.ApplyDelta(d) {
			gapped = true
			break
		}
	}
	if !gapped || !m.NeedsResync() {
		t.Fatal("dropped delta did not force a resync")
	}

	// Resync: fetch the authoritative snapshot and compare rosters.
	authoritative, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	m.ApplySnapshot(authoritative)

	got := m.Roster()
	want := sortedByUser(authoritative.Participants)
	if len(got) != len(want) {
		t.Fatalf("roster size: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("roster mismatch at %d:\n got %+v\nwant %+v", i, got[i], want[i])
		}
	}
	if m.Seq() != authoritative.Seq {
		t.Fatalf("seq: got %d, want %d", m.Seq(), authoritative.Seq)
	}
	if len(m.RaisedHands()) != len(authoritative.HandRaises) {
		t.Fatalf("hand queue mismatch: %v vs %v", m.RaisedHands(), authoritative.HandRaises)
	}
}
