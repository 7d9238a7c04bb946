// Package auth turns bearer tokens into tenant identities. Tokens are
// HMAC-signed JWTs whose subject is the tenant id; anything else about the
// caller (roles, scopes) is out of scope here.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/meshfirm/lightrag/pkg/namespace"
)

// ErrInvalidToken covers malformed, mis-signed, and expired tokens.
var ErrInvalidToken = errors.New("invalid bearer token")

// Verifier validates tenant bearer tokens against a shared HMAC secret.
type Verifier struct {
	secret []byte
}

// NewVerifier builds a verifier. An empty secret disables token auth; the
// caller should then rely on explicit tenant parameters only.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Enabled reports whether token verification is configured.
func (v *Verifier) Enabled() bool {
	return len(v.secret) > 0
}

// TenantFromToken extracts and validates the tenant id carried in the
// token's subject claim.
func (v *Verifier) TenantFromToken(tokenString string) (string, error) {
	if !v.Enabled() {
		return "", fmt.Errorf("%w: token auth is not configured", ErrInvalidToken)
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}
	if err := namespace.ValidateTenantID(claims.Subject); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims.Subject, nil
}

// IssueToken signs a token for tenantID, valid for ttl. Used by tests and
// the CLI's token subcommand.
func (v *Verifier) IssueToken(tenantID string, ttl time.Duration) (string, error) {
	if !v.Enabled() {
		return "", fmt.Errorf("%w: token auth is not configured", ErrInvalidToken)
	}
	if err := namespace.ValidateTenantID(tenantID); err != nil {
		return "", err
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   tenantID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
