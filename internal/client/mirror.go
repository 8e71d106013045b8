// Package client implements the mirror state machine a client runs against
// the coordinator: it replays sequenced deltas over a snapshot, drives the
// UI phase, and falls back to a full resync when it detects a gap instead
// of patching around it.
package client

import (
	"sort"

	"github.com/koinonia/liveworkshop/internal/core"
	"github.com/koinonia/liveworkshop/internal/domain"
)

type Phase string

const (
	PhaseLoading Phase = "loading"
	PhaseLobby   Phase = "lobby"
	PhaseLive    Phase = "live"
	PhaseEnded   Phase = "ended"
	PhaseError   Phase = "error"
)

// Mirror is the client-side replica of one session. Not threadsafe: feed it
// from the single receive loop.
type Mirror struct {
	phase      Phase
	seq        uint64
	sessionID  domain.SessionID
	hostID     domain.UserID
	roster     map[domain.UserID]core.ParticipantView
	raised     []domain.UserID
	credential *domain.VideoCredential
	needResync bool
}

func NewMirror() *Mirror {
	return &Mirror{
		phase:  PhaseLoading,
		roster: make(map[domain.UserID]core.ParticipantView),
	}
}

func (m *Mirror) Phase() Phase          { return m.phase }
func (m *Mirror) Seq() uint64           { return m.seq }
func (m *Mirror) NeedsResync() bool     { return m.needResync }
func (m *Mirror) HostID() domain.UserID { return m.hostID }

// Credential returns the current SFU grant, if any.
func (m *Mirror) Credential() *domain.VideoCredential { return m.credential }

// ApplySnapshot replaces the whole replica with the authoritative view and
// clears any pending resync.
func (m *Mirror) ApplySnapshot(snap core.Snapshot) {
	m.sessionID = snap.SessionID
	m.hostID = snap.HostID
	m.seq = snap.Seq
	m.roster = make(map[domain.UserID]core.ParticipantView, len(snap.Participants))
	for _, p := range snap.Participants {
		m.roster[p.UserID] = p
	}
	m.raised = m.raised[:0]
	for _, hr := range snap.HandRaises {
		m.raised = append(m.raised, hr.UserID)
	}
	m.needResync = false
	m.phase = phaseFor(snap.State)
}

// ApplyDelta folds one delta into the replica. A duplicate (at-least-once
// delivery) is ignored; a gap flips the mirror into resync mode and the
// delta is discarded — the caller must request a snapshot.
func (m *Mirror) ApplyDelta(d core.Delta) bool {
	if m.needResync {
		return false
	}
	if d.Seq <= m.seq {
		// Redelivery of something already folded in.
		return true
	}
	if d.Seq != m.seq+1 {
		m.needResync = true
		return false
	}
	m.seq = d.Seq

	switch d.Type {
	case core.DeltaParticipantJoined:
		if d.Participant != nil {
			m.roster[d.UserID] = *d.Participant
		}
	case core.DeltaParticipantLeft:
		if p, ok := m.roster[d.UserID]; ok {
			p.Conn = domain.Disconnected
			m.roster[d.UserID] = p
		}
	case core.DeltaRoleChanged, core.DeltaSpeakingChanged:
		if p, ok := m.roster[d.UserID]; ok {
			if d.Role != "" {
				p.Role = d.Role
			}
			if d.CanSpeak != nil {
				p.CanSpeak = *d.CanSpeak
			}
			m.roster[d.UserID] = p
		}
	case core.DeltaHandRaised:
		m.raise(d.UserID)
	case core.DeltaHandLowered:
		m.lower(d.UserID)
	case core.DeltaMuted:
		// Advisory transport signal; no roster state to change.
	case core.DeltaLifecycleChanged:
		m.phase = phaseFor(d.State)
	case core.DeltaSessionEnded:
		m.phase = PhaseEnded
	}
	return true
}

// ApplyCredential records a targeted SFU grant.
func (m *Mirror) ApplyCredential(g core.CredentialGrant) {
	cred := g.Credential
	m.credential = &cred
}

// Fail marks a connectivity failure; only a snapshot recovers the mirror.
func (m *Mirror) Fail() {
	m.phase = PhaseError
	m.needResync = true
}

// Roster returns the replica's participants in a stable order.
func (m *Mirror) Roster() []core.ParticipantView {
	out := make([]core.ParticipantView, 0, len(m.roster))
	for _, p := range m.roster {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// RaisedHands returns pending hand-raises in queue order.
func (m *Mirror) RaisedHands() []domain.UserID {
	out := make([]domain.UserID, len(m.raised))
	copy(out, m.raised)
	return out
}

func (m *Mirror) raise(id domain.UserID) {
	for _, uid := range m.raised {
		if uid == id {
			return
		}
	}
	m.raised = append(m.raised, id)
}

func (m *Mirror) lower(id domain.UserID) {
	for i, uid := range m.raised {
		if uid == id {
			m.raised = append(m.raised[:i], m.raised[i+1:]...)
			return
		}
	}
}

func phaseFor(state domain.SessionState) Phase {
	switch state {
	case domain.StateLive:
		return PhaseLive
	case domain.StateEnded, domain.StateCancelled:
		return PhaseEnded
	default:
		return PhaseLobby
	}
}
