// Package auth verifies bearer tokens and binds the caller to the request.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/kidlearn/tutor/internal/domain"
)

const (
	claimUserID = "userId"
	claimRole   = "role"
)

// ErrMissingSubject is returned when a valid token carries no user id.
var ErrMissingSubject = errors.New("token has no userId claim")

// Verifier checks HS256 tokens signed with a shared secret.
type Verifier struct {
	key []byte
}

// NewVerifier creates a verifier for the given secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{key: []byte(secret)}
}

// Verify parses and validates a token and returns the caller it names.
func (v *Verifier) Verify(token string) (domain.Principal, error) {
	tok, err := jwt.Parse([]byte(token),
		jwt.WithKey(jwa.HS256(), v.key),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(30*time.Second),
	)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("failed to verify token: %w", err)
	}

	var p domain.Principal
	if err := tok.Get(claimUserID, &p.UserID); err != nil || p.UserID == "" {
		return domain.Principal{}, ErrMissingSubject
	}
	// role is optional
	_ = tok.Get(claimRole, &p.Role)
	return p, nil
}

// Issue signs a token for the given caller. ttl <= 0 means no expiry.
func Issue(secret string, p domain.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	b := jwt.NewBuilder().
		Claim(claimUserID, p.UserID).
		IssuedAt(now)
	if p.Role != "" {
		b = b.Claim(claimRole, p.Role)
	}
	if ttl > 0 {
		b = b.Expiration(now.Add(ttl))
	}
	tok, err := b.Build()
	if err != nil {
		return "", fmt.Errorf("failed to build token: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256(), []byte(secret)))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return string(signed), nil
}
