package core

import (
	"time"

	"github.com/koinonia/liveworkshop/internal/domain"
)

// DeltaType enumerates the sequenced state changes fanned out to subscribers.
type DeltaType string

const (
	DeltaParticipantJoined DeltaType = "participant_joined"
	DeltaParticipantLeft   DeltaType = "participant_left"
	DeltaRoleChanged       DeltaType = "role_changed"
	DeltaSpeakingChanged   DeltaType = "speaking_changed"
	DeltaHandRaised        DeltaType = "hand_raised"
	DeltaHandLowered       DeltaType = "hand_lowered"
	DeltaMuted             DeltaType = "muted"
	DeltaLifecycleChanged  DeltaType = "lifecycle_changed"
	DeltaSessionEnded      DeltaType = "session_ended"
)

// ParticipantView is a read-only roster entry for wire payloads
// (no transport fields).
type ParticipantView struct {
	UserID      domain.UserID    `json:"user_id"`
	DisplayName string           `json:"display_name"`
	AvatarURL   string           `json:"avatar_url,omitempty"`
	Role        domain.Role      `json:"role"`
	CanSpeak    bool             `json:"can_speak"`
	Conn        domain.ConnState `json:"connection"`
}

// Delta is one sequenced, typed state change. Seq is monotonic per session;
// a client observing a gap must resync from a full snapshot.
type Delta struct {
	Type        DeltaType           `json:"type"`
	Seq         uint64              `json:"seq"`
	SessionID   domain.SessionID    `json:"session_id"`
	UserID      domain.UserID       `json:"user_id,omitempty"`
	Participant *ParticipantView    `json:"participant,omitempty"`
	State       domain.SessionState `json:"state,omitempty"`
	CanSpeak    *bool               `json:"can_speak,omitempty"`
	Role        domain.Role         `json:"role,omitempty"`
	Reason      string              `json:"reason,omitempty"`
}

// CredentialGrant is a targeted (non-broadcast) message carrying a fresh
// SFU credential to exactly one participant.
type CredentialGrant struct {
	Type       string                 `json:"type"`
	SessionID  domain.SessionID       `json:"session_id"`
	Credential domain.VideoCredential `json:"credential"`
}

const MessageCredential = "credential"

// Snapshot is the full authoritative session view returned on join and on
// resync. Seq is the sequence number of the last delta folded into it.
type Snapshot struct {
	SessionID    domain.SessionID    `json:"session_id"`
	WorkshopID   domain.WorkshopID   `json:"workshop_id"`
	Title        string              `json:"title"`
	State        domain.SessionState `json:"state"`
	Seq          uint64              `json:"seq"`
	HostID       domain.UserID       `json:"host_id"`
	StartedAt    *time.Time          `json:"started_at,omitempty"`
	Participants []ParticipantView   `json:"participants"`
	HandRaises   []domain.HandRaise  `json:"hand_raises"`
}
