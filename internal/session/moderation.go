package session

import (
	"context"
	"fmt"

	"github.com/koinonia/liveworkshop/internal/core"
	"github.com/koinonia/liveworkshop/internal/domain"
)

func boolPtr(b bool) *bool { return &b }

// ApproveSpeaker grants speech to a participant with a pending hand-raise.
// The publisher token is fetched first, outside the command loop, then
// applied with a re-validation; the result is discarded if the target has
// meanwhile left or the session has ended.
func (s *Session) ApproveSpeaker(ctx context.Context, actorID, targetID domain.UserID) error {
	var skip bool
	err := s.do(func() error {
		actor, _ := s.roster.Get(actorID)
		if err := Authorize(ActionApproveSpeaker, actor, s.state); err != nil {
			return err
		}
		target, _ := s.roster.Get(targetID)
		noop, err := CheckTarget(ActionApproveSpeaker, target, s.queue)
		skip = noop
		return err
	})
	if err != nil || skip {
		return err
	}

	cred, err := s.issueOutside(ctx, targetID, domain.Publisher)
	if err != nil {
		return err
	}

	return s.do(func() error {
		if s.state != domain.StateLive {
			s.discard(cred)
			return fmt.Errorf("%w: session is %s", core.ErrInvalidState, s.state)
		}
		target, ok := s.roster.Get(targetID)
		if !ok || target.Conn == domain.Disconnected {
			s.discard(cred)
			return fmt.Errorf("%w: target left before approval applied", core.ErrNotFound)
		}
		if target.CanSpeak {
			// Another moderator approved first; idempotent success.
			s.discard(cred)
			return nil
		}
		if !s.queue.Contains(targetID) {
			s.discard(cred)
			return fmt.Errorf("%w: hand-raise withdrawn before approval applied", core.ErrNotFound)
		}
		s.queue.Lower(targetID)
		s.emit(core.Delta{Type: core.DeltaHandLowered, UserID: targetID})
		target.CanSpeak = true
		if target.Role == domain.RoleAttendee {
			target.Role = domain.RoleSpeaker
		}
		s.emit(core.Delta{Type: core.DeltaSpeakingChanged, UserID: targetID, Role: target.Role, CanSpeak: boolPtr(true)})
		s.storeCredential(targetID, cred)
		return nil
	})
}

// RevokeSpeaker takes speech away from a plain speaker (never host/co-host)
// and supersedes their token with a subscriber one.
func (s *Session) RevokeSpeaker(ctx context.Context, actorID, targetID domain.UserID) error {
	var skip bool
	err := s.do(func() error {
		actor, _ := s.roster.Get(actorID)
		if err := Authorize(ActionRevokeSpeaker, actor, s.state); err != nil {
			return err
		}
		target, _ := s.roster.Get(targetID)
		noop, err := CheckTarget(ActionRevokeSpeaker, target, s.queue)
		skip = noop
		return err
	})
	if err != nil || skip {
		return err
	}

	cred, err := s.issueOutside(ctx, targetID, domain.Subscriber)
	if err != nil {
		return err
	}

	return s.do(func() error {
		if s.state != domain.StateLive {
			s.discard(cred)
			return fmt.Errorf("%w: session is %s", core.ErrInvalidState, s.state)
		}
		target, ok := s.roster.Get(targetID)
		if !ok {
			s.discard(cred)
			return fmt.Errorf("%w: target left before revocation applied", core.ErrNotFound)
		}
		if !target.CanSpeak {
			s.discard(cred)
			return nil
		}
		target.CanSpeak = false
		if target.Role == domain.RoleSpeaker {
			target.Role = domain.RoleAttendee
		}
		target.PriorRole = ""
		s.emit(core.Delta{Type: core.DeltaSpeakingChanged, UserID: targetID, Role: target.Role, CanSpeak: boolPtr(false)})
		s.storeCredential(targetID, cred)
		return nil
	})
}

// PromoteCoHost raises an attendee or speaker to co-host with speech.
// Host only; valid in lobby as well as live. A publisher token is issued
// only once the session is broadcasting.
func (s *Session) PromoteCoHost(ctx context.Context, actorID, targetID domain.UserID) error {
	var skip, needCred bool
	err := s.do(func() error {
		actor, _ := s.roster.Get(actorID)
		if err := Authorize(ActionPromoteCoHost, actor, s.state); err != nil {
			return err
		}
		target, _ := s.roster.Get(targetID)
		noop, err := CheckTarget(ActionPromoteCoHost, target, s.queue)
		skip = noop
		needCred = s.state == domain.StateLive
		return err
	})
	if err != nil || skip {
		return err
	}

	var cred domain.VideoCredential
	if needCred {
		if cred, err = s.issueOutside(ctx, targetID, domain.Publisher); err != nil {
			return err
		}
	}

	return s.do(func() error {
		if s.state != domain.StateLive && s.state != domain.StateLobby {
			s.discard(cred)
			return fmt.Errorf("%w: session is %s", core.ErrInvalidState, s.state)
		}
		target, ok := s.roster.Get(targetID)
		if !ok {
			s.discard(cred)
			return fmt.Errorf("%w: target left before promotion applied", core.ErrNotFound)
		}
		if target.Role == domain.RoleCoHost {
			s.discard(cred)
			return nil
		}
		if s.queue.Lower(targetID) {
			s.emit(core.Delta{Type: core.DeltaHandLowered, UserID: targetID})
		}
		target.PriorRole = target.Role
		target.Role = domain.RoleCoHost
		target.CanSpeak = true
		s.emit(core.Delta{Type: core.DeltaRoleChanged, UserID: targetID, Role: target.Role, CanSpeak: boolPtr(true)})
		s.checkInvariant()
		if needCred {
			s.storeCredential(targetID, cred)
		}
		return nil
	})
}

// DemoteCoHost reverts a co-host to the speaking state held before the
// promotion. A subscriber token is issued only when speech is lost while
// live; a co-host demoted back to speaker keeps publishing.
func (s *Session) DemoteCoHost(ctx context.Context, actorID, targetID domain.UserID) error {
	var skip, needCred bool
	err := s.do(func() error {
		actor, _ := s.roster.Get(actorID)
		if err := Authorize(ActionDemoteCoHost, actor, s.state); err != nil {
			return err
		}
		target, _ := s.roster.Get(targetID)
		noop, err := CheckTarget(ActionDemoteCoHost, target, s.queue)
		skip = noop
		if err == nil && !noop {
			needCred = s.state == domain.StateLive && target.PriorRole != domain.RoleSpeaker
		}
		return err
	})
	if err != nil || skip {
		return err
	}

	var cred domain.VideoCredential
	if needCred {
		if cred, err = s.issueOutside(ctx, targetID, domain.Subscriber); err != nil {
			return err
		}
	}

	return s.do(func() error {
		if s.state != domain.StateLive && s.state != domain.StateLobby {
			s.discard(cred)
			return fmt.Errorf("%w: session is %s", core.ErrInvalidState, s.state)
		}
		target, ok := s.roster.Get(targetID)
		if !ok {
			s.discard(cred)
			return fmt.Errorf("%w: target left before demotion applied", core.ErrNotFound)
		}
		if target.Role != domain.RoleCoHost {
			s.discard(cred)
			return nil
		}
		if target.PriorRole == domain.RoleSpeaker {
			target.Role = domain.RoleSpeaker
			target.CanSpeak = true
		} else {
			target.Role = domain.RoleAttendee
			target.CanSpeak = false
		}
		target.PriorRole = ""
		s.emit(core.Delta{Type: core.DeltaRoleChanged, UserID: targetID, Role: target.Role, CanSpeak: boolPtr(target.CanSpeak)})
		if needCred {
			s.storeCredential(targetID, cred)
		}
		return nil
	})
}

// Mute broadcasts a transport-level mute signal for the target. It alters
// neither role nor can_speak and the target may self-unmute; repeated mutes
// succeed idempotently.
func (s *Session) Mute(actorID, targetID domain.UserID) error {
	return s.do(func() error {
		actor, _ := s.roster.Get(actorID)
		if err := Authorize(ActionMuteUser, actor, s.state); err != nil {
			return err
		}
		target, _ := s.roster.Get(targetID)
		noop, err := CheckTarget(ActionMuteUser, target, s.queue)
		if err != nil || noop {
			return err
		}
		s.emit(core.Delta{Type: core.DeltaMuted, UserID: targetID})
		return nil
	})
}

// Remove force-disconnects a participant (never the host) and revokes their
// credential. The roster entry stays disconnected so a later rejoin is a
// plain rejoin, not a duplicate.
func (s *Session) Remove(ctx context.Context, actorID, targetID domain.UserID) error {
	var revoke *domain.VideoCredential
	err := s.do(func() error {
		actor, _ := s.roster.Get(actorID)
		if err := Authorize(ActionRemoveUser, actor, s.state); err != nil {
			return err
		}
		target, _ := s.roster.Get(targetID)
		noop, err := CheckTarget(ActionRemoveUser, target, s.queue)
		if err != nil || noop {
			return err
		}
		if s.queue.Lower(targetID) {
			s.emit(core.Delta{Type: core.DeltaHandLowered, UserID: targetID})
		}
		s.roster.MarkDisconnected(targetID)
		if cred, ok := s.creds[targetID]; ok {
			delete(s.creds, targetID)
			revoke = &cred
		}
		view := View(target)
		s.emit(core.Delta{Type: core.DeltaParticipantLeft, UserID: targetID, Participant: &view, Reason: "removed"})
		return nil
	})
	if err != nil {
		return err
	}
	s.disp.Kick(targetID)
	if revoke != nil {
		s.discard(*revoke)
	}
	return nil
}
