package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	iss, err := NewIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	tok, err := iss.Issue("abc123", "alice")
	require.NoError(t, err)
	require.NoError(t, iss.Verify(tok, "abc123", "alice"))

	assert.ErrorIs(t, iss.Verify(tok, "abc123", "bob"), ErrInvalidToken)
	assert.ErrorIs(t, iss.Verify(tok, "zzz999", "alice"), ErrInvalidToken)
	assert.ErrorIs(t, iss.Verify("garbage", "abc123", "alice"), ErrInvalidToken)
	assert.ErrorIs(t, iss.Verify(tok+"x", "abc123", "alice"), ErrInvalidToken)
}

func TestVerifyOtherSecret(t *testing.T) {
	a, err := NewIssuer("one", time.Hour)
	require.NoError(t, err)
	b, err := NewIssuer("two", time.Hour)
	require.NoError(t, err)

	tok, err := a.Issue("abc123", "alice")
	require.NoError(t, err)
	assert.ErrorIs(t, b.Verify(tok, "abc123", "alice"), ErrInvalidToken)
}

func TestRandomSecret(t *testing.T) {
	a, err := NewIssuer("", 0)
	require.NoError(t, err)
	b, err := NewIssuer("", 0)
	require.NoError(t, err)
	assert.NotEqual(t, a.secret, b.secret)

	tok, err := a.Issue("abc123", "alice")
	require.NoError(t, err)
	assert.NoError(t, a.Verify(tok, "abc123", "alice"))
	assert.Error(t, b.Verify(tok, "abc123", "alice"))
}

func TestExpiry(t *testing.T) {
	iss, err := NewIssuer("s", time.Minute)
	require.NoError(t, err)
	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	iss.now = func() time.Time { return now }

	tok, err := iss.Issue("abc123", "alice")
	require.NoError(t, err)
	require.NoError(t, iss.Verify(tok, "abc123", "alice"))

	now = now.Add(2 * time.Minute)
	assert.ErrorIs(t, iss.Verify(tok, "abc123", "alice"), ErrInvalidToken)
}

func TestRejectsNoneAlgorithm(t *testing.T) {
	iss, err := NewIssuer("s", time.Hour)
	require.NoError(t, err)
	claims := SeatClaims{Session: "abc123", RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	assert.ErrorIs(t, iss.Verify(tok, "abc123", "alice"), ErrInvalidToken)
}
