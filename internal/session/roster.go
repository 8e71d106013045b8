// Package session implements the live workshop coordinator: roster and
// hand-raise tracking, the moderation rule set, the per-session lifecycle
// actor and the delta dispatcher.
package session

import (
	"sort"
	"time"

	"github.com/koinonia/liveworkshop/internal/core"
	"github.com/koinonia/liveworkshop/internal/domain"
)

// Roster is the per-session participant map. It is not threadsafe on its
// own; all access happens on the owning Session's command loop.
type Roster struct {
	byUser map[domain.UserID]*domain.Participant
}

func NewRoster() *Roster {
	return &Roster{byUser: make(map[domain.UserID]*domain.Participant)}
}

// Upsert adds or refreshes a participant. Re-joining with the same user id
// replaces the prior entry; the latest connection is authoritative.
func (r *Roster) Upsert(p *domain.Participant) {
	if prev, ok := r.byUser[p.UserID]; ok {
		// Keep earned role/speech across reconnects, refresh identity meta.
		prev.DisplayName = p.DisplayName
		prev.AvatarURL = p.AvatarURL
		prev.Conn = domain.Connected
		prev.JoinedAt = p.JoinedAt
		return
	}
	r.byUser[p.UserID] = p
}

func (r *Roster) Get(id domain.UserID) (*domain.Participant, bool) {
	p, ok := r.byUser[id]
	return p, ok
}

func (r *Roster) Remove(id domain.UserID) {
	delete(r.byUser, id)
}

// MarkDisconnected keeps the entry to support reconnect.
func (r *Roster) MarkDisconnected(id domain.UserID) bool {
	p, ok := r.byUser[id]
	if !ok {
		return false
	}
	p.Conn = domain.Disconnected
	return true
}

func (r *Roster) Len() int { return len(r.byUser) }

// HostCount supports the single-host invariant check.
func (r *Roster) HostCount() int {
	n := 0
	for _, p := range r.byUser {
		if p.Role == domain.RoleHost {
			n++
		}
	}
	return n
}

// Connected returns the connected participants in join order.
func (r *Roster) Connected() []*domain.Participant {
	out := make([]*domain.Participant, 0, len(r.byUser))
	for _, p := range r.byUser {
		if p.Conn == domain.Connected {
			out = append(out, p)
		}
	}
	sortByJoin(out)
	return out
}

// Snapshot returns read-only views in join order.
func (r *Roster) Snapshot() []core.ParticipantView {
	all := make([]*domain.Participant, 0, len(r.byUser))
	for _, p := range r.byUser {
		all = append(all, p)
	}
	sortByJoin(all)
	out := make([]core.ParticipantView, 0, len(all))
	for _, p := range all {
		out = append(out, View(p))
	}
	return out
}

func sortByJoin(ps []*domain.Participant) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].JoinedAt.Equal(ps[j].JoinedAt) {
			return ps[i].UserID < ps[j].UserID
		}
		return ps[i].JoinedAt.Before(ps[j].JoinedAt)
	})
}

// View converts a participant to its wire representation.
func View(p *domain.Participant) core.ParticipantView {
	return core.ParticipantView{
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		Role:        p.Role,
		CanSpeak:    p.CanSpeak,
		Conn:        p.Conn,
	}
}

// now is a test seam.
var now = time.Now
