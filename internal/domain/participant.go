// Package domain contains entities without logic, just meta-data.
package domain

import (
	"errors"
	"time"
)

const MaxDisplayNameLen = 64

var (
	ErrDisplayNameEmpty   = errors.New("display name empty")
	ErrDisplayNameTooLong = errors.New("display name too long")
)

type UserID string

// Role is a closed hierarchy: host > co_host > speaker > attendee.
type Role string

const (
	RoleHost     Role = "host"
	RoleCoHost   Role = "co_host"
	RoleSpeaker  Role = "speaker"
	RoleAttendee Role = "attendee"
)

// CanModerate reports whether the role may issue moderation commands.
func (r Role) CanModerate() bool {
	return r == RoleHost || r == RoleCoHost
}

type ConnState string

const (
	Connected    ConnState = "connected"
	Disconnected ConnState = "disconnected"
)

// Participant is one user's membership meta for a session.
// Keyed by UserID; re-joining replaces the entry rather than duplicating it.
type Participant struct {
	UserID      UserID    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Role        Role      `json:"role"`
	CanSpeak    bool      `json:"can_speak"`
	Conn        ConnState `json:"connection"`
	JoinedAt    time.Time `json:"joined_at"`

	// PriorRole remembers the role held before a co-host promotion so a
	// demotion can restore the previous speaking state.
	PriorRole Role `json:"-"`
}

// NewParticipant avoids raw literals in adapters and keeps construction obvious.
func NewParticipant(id UserID, name, avatar string) (*Participant, error) {
	if name == "" {
		return nil, ErrDisplayNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return nil, ErrDisplayNameTooLong
	}
	return &Participant{
		UserID:      id,
		DisplayName: name,
		AvatarURL:   avatar,
		Role:        RoleAttendee,
		Conn:        Connected,
		JoinedAt:    time.Now(),
	}, nil
}
