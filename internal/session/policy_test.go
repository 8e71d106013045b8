package session

import (
	"errors"
	"testing"

	"github.com/koinonia/liveworkshop/internal/core"
	"github.com/koinonia/liveworkshop/internal/domain"
)

func actor(role domain.Role) *domain.Participant {
	return &domain.Participant{UserID: "actor", Role: role, Conn: domain.Connected}
}

// TestAuthorizeMatrix walks the role/action/state rule set.
func TestAuthorizeMatrix(t *testing.T) {
	tcs := []struct {
		name   string
		action Action
		role   domain.Role
		state  domain.SessionState
		want   *core.Error
	}{
		{"approve by host live", ActionApproveSpeaker, domain.RoleHost, domain.StateLive, nil},
		{"approve by co-host live", ActionApproveSpeaker, domain.RoleCoHost, domain.StateLive, nil},
		{"approve by speaker", ActionApproveSpeaker, domain.RoleSpeaker, domain.StateLive, core.ErrUnauthorized},
		{"approve by attendee", ActionApproveSpeaker, domain.RoleAttendee, domain.StateLive, core.ErrUnauthorized},
		{"approve in lobby", ActionApproveSpeaker, domain.RoleHost, domain.StateLobby, core.ErrInvalidState},
		{"promote by host in lobby", ActionPromoteCoHost, domain.RoleHost, domain.StateLobby, nil},
		{"promote by host live", ActionPromoteCoHost, domain.RoleHost, domain.StateLive, nil},
		{"promote by co-host", ActionPromoteCoHost, domain.RoleCoHost, domain.StateLive, core.ErrUnauthorized},
		{"demote by co-host", ActionDemoteCoHost, domain.RoleCoHost, domain.StateLive, core.ErrUnauthorized},
		{"mute by co-host", ActionMuteUser, domain.RoleCoHost, domain.StateLive, nil},
		{"remove by co-host", ActionRemoveUser, domain.RoleCoHost, domain.StateLive, nil},
		{"start by host in lobby", ActionStartSession, domain.RoleHost, domain.StateLobby, nil},
		{"start by co-host", ActionStartSession, domain.RoleCoHost, domain.StateLobby, core.ErrUnauthorized},
		{"start while live", ActionStartSession, domain.RoleHost, domain.StateLive, core.ErrInvalidState},
		{"end by host live", ActionEndSession, domain.RoleHost, domain.StateLive, nil},
		{"end in lobby", ActionEndSession, domain.RoleHost, domain.StateLobby, core.ErrInvalidState},
		{"anything after ended", ActionMuteUser, domain.RoleHost, domain.StateEnded, core.ErrInvalidState},
		{"anything after cancelled", ActionApproveSpeaker, domain.RoleHost, domain.StateCancelled, core.ErrInvalidState},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			err := Authorize(tc.action, actor(tc.role), tc.state)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("Authorize returned %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("Authorize error = %v, want %v", err, tc.want)
			}
		})
	}
}

// TestAuthorizeUnknownActor ensures a missing actor maps to NotFound.
func TestAuthorizeUnknownActor(t *testing.T) {
	err := Authorize(ActionMuteUser, nil, domain.StateLive)
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("Authorize error = %v, want %v", err, core.ErrNotFound)
	}
}

// TestCheckTargetConstraints exercises the per-action target rules.
func TestCheckTargetConstraints(t *testing.T) {
	queue := NewHandQueue()
	queue.Raise("pending")

	pending := &domain.Participant{UserID: "pending", Role: domain.RoleAttendee, Conn: domain.Connected}
	speaking := &domain.Participant{UserID: "spk", Role: domain.RoleSpeaker, CanSpeak: true, Conn: domain.Connected}
	host := &domain.Participant{UserID: "h", Role: domain.RoleHost, CanSpeak: true, Conn: domain.Connected}
	cohost := &domain.Participant{UserID: "c", Role: domain.RoleCoHost, CanSpeak: true, Conn: domain.Connected}

	if _, err := CheckTarget(ActionApproveSpeaker, pending, queue); err != nil {
		t.Fatalf("approve of pending target: %v", err)
	}
	if noop, err := CheckTarget(ActionApproveSpeaker, speaking, queue); err != nil || !noop {
		t.Fatalf("approve of speaking target: noop=%v err=%v, want idempotent no-op", noop, err)
	}
	if _, err := CheckTarget(ActionApproveSpeaker, &domain.Participant{UserID: "x"}, queue); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("approve without hand-raise: %v, want %v", err, core.ErrNotFound)
	}
	if _, err := CheckTarget(ActionRevokeSpeaker, cohost, queue); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("revoke of co-host: %v, want %v", err, core.ErrUnauthorized)
	}
	if _, err := CheckTarget(ActionRemoveUser, host, queue); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("remove of host: %v, want %v", err, core.ErrUnauthorized)
	}
	if _, err := CheckTarget(ActionMuteUser, host, queue); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("mute of host: %v, want %v", err, core.ErrUnauthorized)
	}
	if _, err := CheckTarget(ActionMuteUser, nil, queue); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("mute of absent target: %v, want %v", err, core.ErrNotFound)
	}
	if noop, err := CheckTarget(ActionDemoteCoHost, speaking, queue); err != nil || !noop {
		t.Fatalf("demote of non-co-host: noop=%v err=%v, want idempotent no-op", noop, err)
	}
}
