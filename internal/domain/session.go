package domain

import "time"

type SessionID string

// SessionState is the authoritative lifecycle of a live session.
// Transitions are monotonic: scheduled → lobby → live → ended, with
// cancelled reachable from scheduled/lobby only.
type SessionState string

const (
	StateScheduled SessionState = "scheduled"
	StateLobby     SessionState = "lobby"
	StateLive      SessionState = "live"
	StateEnded     SessionState = "ended"
	StateCancelled SessionState = "cancelled"
)

// Terminal reports whether no further mutation is accepted.
func (s SessionState) Terminal() bool {
	return s == StateEnded || s == StateCancelled
}

// HandRaise is a pending request to be granted speaking rights.
// It exists only while the user is an attendee without speech.
type HandRaise struct {
	UserID   UserID    `json:"user_id"`
	RaisedAt time.Time `json:"raised_at"`
	Position int       `json:"position"`
}
