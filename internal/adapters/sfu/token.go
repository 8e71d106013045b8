// Package sfu implements the video credential boundary. Tokens are signed
// locally with the provider's app certificate (the usual SFU scheme: the
// token encodes channel, uid, publish rights and expiry), so issuance needs
// no provider round-trip; revocation keeps a local denylist for the token's
// remaining lifetime.
package sfu

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/koinonia/liveworkshop/internal/domain"
)

var (
	ErrMissingAppID = errors.New("sfu: app id not configured")
	ErrBadToken     = errors.New("sfu: malformed token")
)

type TokenService struct {
	appID   string
	appCert []byte
	ttl     time.Duration

	mu      sync.Mutex
	revoked map[string]time.Time
}

func NewTokenService(appID, appCertificate string, ttl time.Duration) (*TokenService, error) {
	if appID == "" {
		return nil, ErrMissingAppID
	}
	return &TokenService{
		appID:   appID,
		appCert: []byte(appCertificate),
		ttl:     ttl,
		revoked: make(map[string]time.Time),
	}, nil
}

// ChannelUID derives the numeric transport uid for a user. Stable per user
// so a superseding token targets the same media identity.
func ChannelUID(userID domain.UserID) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return h.Sum32()
}

// IssueCredential signs a fresh ephemeral credential. The session id doubles
// as the channel name.
func (t *TokenService) IssueCredential(ctx context.Context, sessionID domain.SessionID, userID domain.UserID, role domain.CredentialRole) (domain.VideoCredential, error) {
	if err := ctx.Err(); err != nil {
		return domain.VideoCredential{}, err
	}
	uid := ChannelUID(userID)
	expires := time.Now().Add(t.ttl)
	claims := fmt.Sprintf("%s:%s:%d:%s:%d", t.appID, sessionID, uid, role, expires.Unix())
	token := t.sign(claims)
	return domain.VideoCredential{
		AppID:     t.appID,
		Channel:   string(sessionID),
		Token:     token,
		UID:       uid,
		Role:      role,
		ExpiresAt: expires,
	}, nil
}

// RevokeCredential denylists the token until its natural expiry. Best
// effort: clients holding a revoked token fail Verify on reconnect.
func (t *TokenService) RevokeCredential(ctx context.Context, cred domain.VideoCredential) error {
	if cred.Token == "" {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sweepLocked(time.Now())
	t.revoked[cred.Token] = cred.ExpiresAt
	log.Debug().Str("module", "sfu").Uint32("uid", cred.UID).Str("channel", cred.Channel).Msg("credential revoked")
	return nil
}

// Verify checks signature, expiry and the revocation denylist.
func (t *TokenService) Verify(token string) error {
	claims, sig, ok := strings.Cut(token, ".")
	if !ok {
		return ErrBadToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(claims)
	if err != nil {
		return ErrBadToken
	}
	mac := hmac.New(sha256.New, t.appCert)
	mac.Write(raw)
	want := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(sig), []byte(want)) {
		return errors.New("sfu: bad signature")
	}
	var expiry int64
	parts := strings.Split(string(raw), ":")
	if len(parts) != 5 {
		return ErrBadToken
	}
	if _, err := fmt.Sscanf(parts[4], "%d", &expiry); err != nil {
		return ErrBadToken
	}
	if time.Now().Unix() >= expiry {
		return errors.New("sfu: token expired")
	}
	t.mu.Lock()
	_, revoked := t.revoked[token]
	t.mu.Unlock()
	if revoked {
		return errors.New("sfu: token revoked")
	}
	return nil
}

func (t *TokenService) sign(claims string) string {
	mac := hmac.New(sha256.New, t.appCert)
	mac.Write([]byte(claims))
	return base64.RawURLEncoding.EncodeToString([]byte(claims)) + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// sweepLocked drops denylist entries whose tokens have expired anyway.
func (t *TokenService) sweepLocked(now time.Time) {
	for tok, exp := range t.revoked {
		if now.After(exp) {
			delete(t.revoked, tok)
		}
	}
}
