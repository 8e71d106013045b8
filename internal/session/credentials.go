package session

import (
	"context"
	"fmt"
	"time"

	"github.com/koinonia/liveworkshop/internal/core"
	"github.com/koinonia/liveworkshop/internal/domain"
)

// issueOutside fetches a token from the SFU provider with capped exponential
// backoff. It must only be called from outside the command loop.
func (s *Session) issueOutside(ctx context.Context, userID domain.UserID, role domain.CredentialRole) (domain.VideoCredential, error) {
	if s.deps.IssueTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.deps.IssueTimeout)
		defer cancel()
	}
	backoff := s.deps.RetryBackoff
	var lastErr error
	for attempt := 0; attempt <= s.deps.IssueRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return domain.VideoCredential{}, fmt.Errorf("%w: credential issuance: %v", core.ErrExternalService, ctx.Err())
			}
			backoff *= 2
		}
		cred, err := s.deps.Issuer.IssueCredential(ctx, s.id, userID, role)
		if err == nil {
			return cred, nil
		}
		lastErr = err
		s.logger.Warn().Err(err).Str("user", string(userID)).Str("role", string(role)).Int("attempt", attempt+1).Msg("credential issuance failed")
	}
	return domain.VideoCredential{}, fmt.Errorf("%w: credential issuance: %v", core.ErrExternalService, lastErr)
}

// grantCredential provisions a token for one participant after a live
// transition or a late join. Retry exhaustion on a publisher token degrades
// to a subscriber-only admission rather than blocking the participant.
func (s *Session) grantCredential(userID domain.UserID) {
	ctx := context.Background()

	var role domain.CredentialRole
	err := s.do(func() error {
		p, ok := s.roster.Get(userID)
		if !ok || p.Conn == domain.Disconnected || s.state != domain.StateLive {
			return fmt.Errorf("%w: participant not eligible for credential", core.ErrNotFound)
		}
		role = domain.Subscriber
		if p.CanSpeak {
			role = domain.Publisher
		}
		return nil
	})
	if err != nil {
		return
	}

	cred, err := s.issueOutside(ctx, userID, role)
	if err != nil && role == domain.Publisher {
		s.logger.Warn().Str("user", string(userID)).Msg("publisher token exhausted retries, admitting subscriber-only")
		cred, err = s.issueOutside(ctx, userID, domain.Subscriber)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("user", string(userID)).Msg("credential grant abandoned")
		return
	}

	_ = s.do(func() error {
		p, ok := s.roster.Get(userID)
		if !ok || p.Conn == domain.Disconnected || s.state != domain.StateLive {
			s.discard(cred)
			return nil
		}
		s.storeCredential(userID, cred)
		return nil
	})
}

// storeCredential records the active token for later revocation and hands
// it to the participant. Loop-owned.
func (s *Session) storeCredential(userID domain.UserID, cred domain.VideoCredential) {
	if old, ok := s.creds[userID]; ok && old.Token != cred.Token {
		// Superseded, never mutated.
		s.discard(old)
	}
	s.creds[userID] = cred
	s.disp.SendTo(userID, core.CredentialGrant{Type: core.MessageCredential, SessionID: s.id, Credential: cred})
}

// discard revokes a token best-effort in the background. Safe to call with
// the zero credential.
func (s *Session) discard(cred domain.VideoCredential) {
	if cred.Token == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.deps.Issuer.RevokeCredential(ctx, cred); err != nil {
			s.logger.Debug().Err(err).Uint32("uid", cred.UID).Msg("credential revoke failed")
		}
	}()
}

func (s *Session) revokeAll(creds []domain.VideoCredential) {
	for _, cred := range creds {
		s.discard(cred)
	}
}
