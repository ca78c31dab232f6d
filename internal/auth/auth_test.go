package auth_test

import (
	"testing"
	"time"

	"github.com/laserpanama/legal-practice-stack/internal/auth"
	"github.com/laserpanama/legal-practice-stack/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVerifier(ttl time.Duration) *auth.Verifier {
	return auth.NewVerifier(config.AuthConfig{
		JWTSecret: "unit-test-secret-0123456789",
		TokenTTL:  ttl,
	})
}

func TestVerifyAdminToken(t *testing.T) {
	v := newVerifier(time.Hour)

	token, err := v.Issue("admin-1", "admin@firm.example", auth.RoleAdmin)
	require.NoError(t, err)

	principal, err := v.VerifyAdmin(token)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", principal.UserID)
	assert.Equal(t, "admin@firm.example", principal.Email)
	assert.Equal(t, auth.RoleAdmin, principal.Role)
}

func TestNonAdminRoleDenied(t *testing.T) {
	v := newVerifier(time.Hour)

	token, err := v.Issue("user-1", "user@firm.example", "paralegal")
	require.NoError(t, err)

	_, err = v.Verify(token)
	require.NoError(t, err) // credential itself is fine

	_, err = v.VerifyAdmin(token)
	require.ErrorIs(t, err, auth.ErrAuthorizationDenied)
}

func TestExpiredTokenRejected(t *testing.T) {
	v := newVerifier(-time.Minute)

	token, err := v.Issue("admin-1", "admin@firm.example", auth.RoleAdmin)
	require.NoError(t, err)

	_, err = v.Verify(token)
	require.ErrorIs(t, err, auth.ErrAuthenticationFailed)
}

func TestGarbageTokenRejected(t *testing.T) {
	v := newVerifier(time.Hour)
	_, err := v.Verify("not-a-token")
	require.ErrorIs(t, err, auth.ErrAuthenticationFailed)
}

func TestTokenFromDifferentSecretRejected(t *testing.T) {
	issuer := auth.NewVerifier(config.AuthConfig{JWTSecret: "another-secret-0123456789", TokenTTL: time.Hour})
	token, err := issuer.Issue("admin-1", "admin@firm.example", auth.RoleAdmin)
	require.NoError(t, err)

	_, err = newVerifier(time.Hour).Verify(token)
	require.ErrorIs(t, err, auth.ErrAuthenticationFailed)
}
