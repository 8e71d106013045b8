package core

import (
	"context"

	"github.com/koinonia/liveworkshop/internal/domain"
)

// Frame is a raw outbound payload (marshalled delta or snapshot).
type Frame []byte

// SignalConnection abstracts a per-client messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// CredentialIssuer is the narrow boundary to the external SFU provider.
// Issuance is a blocking network call and must never run inside a session's
// critical section.
type CredentialIssuer interface {
	IssueCredential(ctx context.Context, sessionID domain.SessionID, userID domain.UserID, role domain.CredentialRole) (domain.VideoCredential, error)
	RevokeCredential(ctx context.Context, cred domain.VideoCredential) error
}

// WorkshopStore reads workshop meta on session creation and writes the final
// attendance back on session end.
type WorkshopStore interface {
	Workshop(ctx context.Context, id domain.WorkshopID) (domain.Workshop, error)
	FinishWorkshop(ctx context.Context, id domain.WorkshopID, attendeeCount int) error
}

// Notifier receives fire-and-forget lifecycle events for the external
// notification pipeline. No acknowledgement is required.
type Notifier interface {
	Notify(event string, workshopID domain.WorkshopID)
}
