package session

import (
	"context"
	"fmt"

	"github.com/koinonia/liveworkshop/internal/core"
	"github.com/koinonia/liveworkshop/internal/domain"
)

// Join adds or refreshes a participant and returns the full snapshot to the
// caller (deltas carry everything afterwards). Idempotent per user id: a
// rejoin replaces the prior entry. The designated host joins as host with
// speech; everyone else starts as attendee.
func (s *Session) Join(userID domain.UserID, name, avatar string) (core.Snapshot, error) {
	var snap core.Snapshot
	needCred := false
	err := s.do(func() error {
		if err := s.guard(); err != nil {
			return err
		}
		p, err := domain.NewParticipant(userID, name, avatar)
		if err != nil {
			return err
		}
		if userID == s.workshop.HostID {
			p.Role = domain.RoleHost
			p.CanSpeak = true
		}
		s.roster.Upsert(p)
		if s.state == domain.StateScheduled {
			// First join opens the waiting room.
			s.transition(domain.StateLobby)
		}
		joined, _ := s.roster.Get(userID)
		view := View(joined)
		s.emit(core.Delta{Type: core.DeltaParticipantJoined, UserID: userID, Participant: &view})
		s.checkInvariant()
		needCred = s.state == domain.StateLive
		snap = s.snapshotLocked()
		return nil
	})
	if err != nil {
		return core.Snapshot{}, err
	}
	if needCred {
		// Late joiner during broadcast gets a token right away.
		go s.grantCredential(userID)
	}
	return snap, nil
}

// Leave marks the participant disconnected (not removed, to support
// reconnect) and drops any pending hand-raise. Host disconnect does not
// auto-end the session; it is logged and the lobby/broadcast stays up.
func (s *Session) Leave(userID domain.UserID) error {
	return s.do(func() error {
		if err := s.guard(); err != nil {
			return err
		}
		p, ok := s.roster.Get(userID)
		if !ok {
			return fmt.Errorf("%w: unknown participant", core.ErrNotFound)
		}
		if p.Conn == domain.Disconnected {
			return nil
		}
		if s.queue.Lower(userID) {
			s.emit(core.Delta{Type: core.DeltaHandLowered, UserID: userID})
		}
		s.roster.MarkDisconnected(userID)
		view := View(p)
		s.emit(core.Delta{Type: core.DeltaParticipantLeft, UserID: userID, Participant: &view})
		if p.Role == domain.RoleHost && s.state == domain.StateLive {
			s.logger.Warn().Str("user", string(userID)).Msg("host disconnected during live session")
		}
		return nil
	})
}

// Start transitions lobby → live, records the start time and triggers
// credential issuance for every connected participant. Host only.
func (s *Session) Start(ctx context.Context, actorID domain.UserID) error {
	var recipients []domain.UserID
	err := s.do(func() error {
		actor, _ := s.roster.Get(actorID)
		if err := Authorize(ActionStartSession, actor, s.state); err != nil {
			return err
		}
		t := now()
		s.startedAt = &t
		s.transition(domain.StateLive)
		for _, p := range s.roster.Connected() {
			recipients = append(recipients, p.UserID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	// Token fetches are blocking network calls; they run outside the loop
	// and re-validate before applying (credentials.go).
	for _, uid := range recipients {
		go s.grantCredential(uid)
	}
	if s.deps.Notifier != nil {
		s.deps.Notifier.Notify("workshop_started", s.workshop.ID)
	}
	return nil
}

// End is the single terminal write: live → ended. Outstanding credentials
// are revoked best-effort and the final attendee count is written back to
// the workshop record. Host only; nothing succeeds afterwards.
func (s *Session) End(ctx context.Context, actorID domain.UserID) error {
	var outstanding []domain.VideoCredential
	attendees := 0
	err := s.do(func() error {
		actor, _ := s.roster.Get(actorID)
		if err := Authorize(ActionEndSession, actor, s.state); err != nil {
			return err
		}
		attendees = s.roster.Len()
		for _, cred := range s.creds {
			outstanding = append(outstanding, cred)
		}
		s.creds = make(map[domain.UserID]domain.VideoCredential)
		s.transition(domain.StateEnded)
		return nil
	})
	if err != nil {
		return err
	}
	go s.revokeAll(outstanding)
	if s.deps.Store != nil {
		if err := s.deps.Store.FinishWorkshop(ctx, s.workshop.ID, attendees); err != nil {
			s.logger.Error().Err(err).Int("attendees", attendees).Msg("write final attendance")
		}
	}
	if s.deps.Notifier != nil {
		s.deps.Notifier.Notify("workshop_ended", s.workshop.ID)
	}
	return nil
}

// Cancel aborts a session that never went live. Reachable from scheduled
// and lobby only; cancelling a live broadcast is a workshop-record
// operation outside this coordinator.
func (s *Session) Cancel(actorID domain.UserID) error {
	return s.do(func() error {
		actor, ok := s.roster.Get(actorID)
		if !ok {
			return fmt.Errorf("%w: actor not in session", core.ErrNotFound)
		}
		if actor.Role != domain.RoleHost {
			return fmt.Errorf("%w: cancel requires the host role", core.ErrUnauthorized)
		}
		if s.state != domain.StateScheduled && s.state != domain.StateLobby {
			return fmt.Errorf("%w: cannot cancel from %s", core.ErrInvalidState, s.state)
		}
		s.transition(domain.StateCancelled)
		return nil
	})
}

// RaiseHand appends a pending speaker request. Rejected for anyone who can
// already speak; a duplicate raise is a no-op with a single queue entry.
func (s *Session) RaiseHand(userID domain.UserID) error {
	return s.do(func() error {
		if err := s.guard(); err != nil {
			return err
		}
		if s.state != domain.StateLive {
			return fmt.Errorf("%w: hand-raise requires a live session", core.ErrInvalidState)
		}
		p, ok := s.roster.Get(userID)
		if !ok {
			return fmt.Errorf("%w: unknown participant", core.ErrNotFound)
		}
		if p.CanSpeak {
			return fmt.Errorf("%w: participant can already speak", core.ErrInvalidState)
		}
		if s.queue.Raise(userID) {
			s.emit(core.Delta{Type: core.DeltaHandRaised, UserID: userID})
		}
		return nil
	})
}

// LowerHand removes a pending request without granting speech. The user may
// lower their own hand; moderators may lower anyone's.
func (s *Session) LowerHand(actorID, targetID domain.UserID) error {
	return s.do(func() error {
		if err := s.guard(); err != nil {
			return err
		}
		if actorID != targetID {
			actor, ok := s.roster.Get(actorID)
			if !ok {
				return fmt.Errorf("%w: actor not in session", core.ErrNotFound)
			}
			if !actor.Role.CanModerate() {
				return fmt.Errorf("%w: lowering another's hand requires a moderator role", core.ErrUnauthorized)
			}
		}
		if _, ok := s.roster.Get(targetID); !ok {
			return fmt.Errorf("%w: target not in session", core.ErrNotFound)
		}
		if s.queue.Lower(targetID) {
			s.emit(core.Delta{Type: core.DeltaHandLowered, UserID: targetID})
		}
		return nil
	})
}
