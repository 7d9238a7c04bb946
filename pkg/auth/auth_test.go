package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifier_RoundTrip(t *testing.T) {
	v := NewVerifier("test-secret")

	token, err := v.IssueToken("alice", time.Hour)
	require.NoError(t, err)

	tenantID, err := v.TenantFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", tenantID)
}

func TestVerifier_RejectsWrongSecret(t *testing.T) {
	issuer := NewVerifier("secret-a")
	verifier := NewVerifier("secret-b")

	token, err := issuer.IssueToken("alice", time.Hour)
	require.NoError(t, err)

	_, err = verifier.TenantFromToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifier_RejectsExpired(t *testing.T) {
	v := NewVerifier("test-secret")

	token, err := v.IssueToken("alice", -time.Minute)
	require.NoError(t, err)

	_, err = v.TenantFromToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifier_RejectsBadSubject(t *testing.T) {
	v := NewVerifier("test-secret")

	// Token signed with the right secret but a subject outside the tenant
	// id charset.
	claims := jwt.RegisteredClaims{
		Subject:   "../etc/passwd",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = v.TenantFromToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifier_RejectsGarbage(t *testing.T) {
	v := NewVerifier("test-secret")

	_, err := v.TenantFromToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifier_Disabled(t *testing.T) {
	v := NewVerifier("")
	assert.False(t, v.Enabled())

	_, err := v.TenantFromToken("anything")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.IssueToken("alice", time.Hour)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
