package session

import (
	"fmt"

	"github.com/koinonia/liveworkshop/internal/core"
	"github.com/koinonia/liveworkshop/internal/domain"
)

// Action names a moderation or lifecycle command subject to the rule set.
type Action string

const (
	ActionApproveSpeaker Action = "approve_speaker"
	ActionRevokeSpeaker  Action = "revoke_speaker"
	ActionPromoteCoHost  Action = "promote_co_host"
	ActionDemoteCoHost   Action = "demote_co_host"
	ActionMuteUser       Action = "mute_user"
	ActionRemoveUser     Action = "remove_user"
	ActionStartSession   Action = "start_workshop"
	ActionEndSession     Action = "end_workshop"
)

// hostOnly actions may not be issued by co-hosts.
func (a Action) hostOnly() bool {
	switch a {
	case ActionPromoteCoHost, ActionDemoteCoHost, ActionStartSession, ActionEndSession:
		return true
	}
	return false
}

// Authorize is the stateless permission engine. It validates the actor's
// role and the session lifecycle for the given action; it never mutates.
func Authorize(action Action, actor *domain.Participant, state domain.SessionState) error {
	if state.Terminal() {
		return fmt.Errorf("%w: session is %s", core.ErrInvalidState, state)
	}
	if actor == nil {
		return fmt.Errorf("%w: actor not in session", core.ErrNotFound)
	}
	if !actor.Role.CanModerate() {
		return fmt.Errorf("%w: %s requires a moderator role", core.ErrUnauthorized, action)
	}
	if action.hostOnly() && actor.Role != domain.RoleHost {
		return fmt.Errorf("%w: %s requires the host role", core.ErrUnauthorized, action)
	}
	switch action {
	case ActionPromoteCoHost, ActionDemoteCoHost:
		// Valid while preparing in the lobby as well as during broadcast.
		if state != domain.StateLive && state != domain.StateLobby {
			return fmt.Errorf("%w: %s requires lobby or live, session is %s", core.ErrInvalidState, action, state)
		}
	case ActionStartSession:
		if state != domain.StateLobby {
			return fmt.Errorf("%w: cannot start from %s", core.ErrInvalidState, state)
		}
	case ActionEndSession:
		if state != domain.StateLive {
			return fmt.Errorf("%w: cannot end from %s", core.ErrInvalidState, state)
		}
	default:
		if state != domain.StateLive {
			return fmt.Errorf("%w: %s requires a live session, session is %s", core.ErrInvalidState, action, state)
		}
	}
	return nil
}

// CheckTarget validates the per-action target constraints against the
// current roster/queue. It reports noop=true when the target is already in
// the requested end state (idempotent success, not an error).
func CheckTarget(action Action, target *domain.Participant, queue *HandQueue) (noop bool, err error) {
	if target == nil {
		return false, fmt.Errorf("%w: target not in session", core.ErrNotFound)
	}
	switch action {
	case ActionApproveSpeaker:
		if target.CanSpeak {
			return true, nil
		}
		if !queue.Contains(target.UserID) {
			return false, fmt.Errorf("%w: target has no pending hand-raise", core.ErrNotFound)
		}
	case ActionRevokeSpeaker:
		if target.Role == domain.RoleHost || target.Role == domain.RoleCoHost {
			return false, fmt.Errorf("%w: cannot revoke a %s", core.ErrUnauthorized, target.Role)
		}
		if !target.CanSpeak {
			return true, nil
		}
	case ActionPromoteCoHost:
		if target.Role == domain.RoleCoHost {
			return true, nil
		}
		if target.Role == domain.RoleHost {
			return false, fmt.Errorf("%w: host cannot be promoted", core.ErrUnauthorized)
		}
	case ActionDemoteCoHost:
		if target.Role != domain.RoleCoHost {
			return true, nil
		}
	case ActionMuteUser, ActionRemoveUser:
		// The host is never a valid moderation target.
		if target.Role == domain.RoleHost {
			return false, fmt.Errorf("%w: host cannot be targeted by %s", core.ErrUnauthorized, action)
		}
		if action == ActionRemoveUser && target.Conn == domain.Disconnected {
			return true, nil
		}
	}
	return false, nil
}
