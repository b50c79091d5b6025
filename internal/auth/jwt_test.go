package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := NewVerifier("super-secret")
	tok, err := v.Sign("user-1", "anna@example.se", time.Hour)
	require.NoError(t, err)

	claims, err := v.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "anna@example.se", claims.Email)
}

func TestVerifyRejects(t *testing.T) {
	v := NewVerifier("super-secret")

	expired, err := v.Sign("user-1", "", -time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other, err := NewVerifier("other-secret").Sign("user-1", "", time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("super-secret"))
	require.NoError(t, err)
	_, err = v.Verify(noSub)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGmailNotConfigured(t *testing.T) {
	dir := t.TempDir()
	_, err := NewGmailService(context.Background(), filepath.Join(dir, "missing.json"), filepath.Join(dir, "token.json"), nil)
	assert.ErrorIs(t, err, ErrGmailNotConfigured)
}

func TestTokenFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, saveToken(path, &oauth2.Token{AccessToken: "a", RefreshToken: "r"}))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	tok, err := tokenFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "r", tok.RefreshToken)
}
