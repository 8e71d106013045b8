package domain

import "time"

// CredentialRole is the right encoded in an SFU token.
type CredentialRole string

const (
	Publisher  CredentialRole = "publisher"
	Subscriber CredentialRole = "subscriber"
)

// VideoCredential is an ephemeral grant for the external video transport.
// It is superseded, never mutated, when the participant's role changes and
// is never persisted beyond the session's lifetime.
type VideoCredential struct {
	AppID     string         `json:"app_id"`
	Channel   string         `json:"channel"`
	Token     string         `json:"token"`
	UID       uint32         `json:"uid"`
	Role      CredentialRole `json:"role"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// Expired reports whether the token TTL has elapsed.
func (c VideoCredential) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
