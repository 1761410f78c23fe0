package security_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JeffZl/frontenduas/internal/security"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := security.NewTokenService("secret", time.Hour)

	tok, err := svc.CreateForUser("user-1")
	require.NoError(t, err)

	id, err := svc.UserID(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id)
}

func TestTokenRejectsWrongSecret(t *testing.T) {
	tok, err := security.NewTokenService("a", time.Hour).CreateForUser("user-1")
	require.NoError(t, err)

	_, err = security.NewTokenService("b", time.Hour).UserID(tok)
	assert.Error(t, err)
}

func TestTokenRejectsExpired(t *testing.T) {
	svc := security.NewTokenService("secret", time.Hour)
	tok, err := svc.CreateWithTTL("user-1", -time.Minute)
	require.NoError(t, err)

	_, err = svc.UserID(tok)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestTokenSubFallback(t *testing.T) {
	claims := jwt.MapClaims{"sub": "user-2", "exp": time.Now().Add(time.Hour).Unix()}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	id, err := security.NewTokenService("secret", time.Hour).UserID(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-2", id)
}

func TestTokenWithoutSubject(t *testing.T) {
	claims := jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = security.NewTokenService("secret", time.Hour).UserID(tok)
	assert.ErrorIs(t, err, security.ErrMissingSubject)
}
