package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athenaeum-app/athenaeum/internal/auth"
	"github.com/athenaeum-app/athenaeum/internal/authz"
)

func signClaims(t *testing.T, method jwt.SigningMethod, secret string, claims jwt.Claims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestTokenRoundTrip(t *testing.T) {
	issuer := auth.NewTokenIssuer("secret", time.Hour)
	user := &auth.User{ID: 42, Email: "reader@example.com"}

	token, err := issuer.Issue(user, authz.RoleMember)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "reader@example.com", claims.Email)
	assert.Equal(t, "member", claims.Role)
	assert.Equal(t, "42", claims.Subject)

	p, err := claims.Principal()
	require.NoError(t, err)
	assert.Equal(t, authz.Principal{UserID: 42, Email: "reader@example.com", Authenticated: true}, p)
}

func TestTokenWrongSecret(t *testing.T) {
	issuer := auth.NewTokenIssuer("secret", time.Hour)
	token, err := issuer.Issue(&auth.User{ID: 1, Email: "a@example.com"}, authz.RoleMember)
	require.NoError(t, err)

	other := auth.NewTokenIssuer("different", time.Hour)
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)
}

func TestTokenExpired(t *testing.T) {
	issuer := auth.NewTokenIssuer("secret", time.Hour)
	expired := signClaims(t, jwt.SigningMethodHS256, "secret", jwt.RegisteredClaims{
		Issuer:    "athenaeum",
		Subject:   "42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})

	_, err := issuer.Verify(expired)
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)
}

func TestTokenMissingExpiry(t *testing.T) {
	issuer := auth.NewTokenIssuer("secret", time.Hour)
	token := signClaims(t, jwt.SigningMethodHS256, "secret", jwt.RegisteredClaims{
		Issuer:  "athenaeum",
		Subject: "42",
	})

	_, err := issuer.Verify(token)
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)
}

func TestTokenWrongIssuer(t *testing.T) {
	issuer := auth.NewTokenIssuer("secret", time.Hour)
	token := signClaims(t, jwt.SigningMethodHS256, "secret", jwt.RegisteredClaims{
		Issuer:    "someone-else",
		Subject:   "42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	_, err := issuer.Verify(token)
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)
}

func TestTokenWrongAlgorithm(t *testing.T) {
	issuer := auth.NewTokenIssuer("secret", time.Hour)
	token := signClaims(t, jwt.SigningMethodHS512, "secret", jwt.RegisteredClaims{
		Issuer:    "athenaeum",
		Subject:   "42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	_, err := issuer.Verify(token)
	assert.ErrorIs(t, err, auth.ErrTokenInvalid, "only HS256 is accepted")
}

func TestTokenGarbage(t *testing.T) {
	issuer := auth.NewTokenIssuer("secret", time.Hour)
	_, err := issuer.Verify("definitely-not-a-jwt")
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)
}

func TestClaimsPrincipalBadSubject(t *testing.T) {
	claims := &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "not-a-number"}}
	_, err := claims.Principal()
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)
}
