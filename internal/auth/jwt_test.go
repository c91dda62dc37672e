package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t *time.Time) func() time.Time {
	return func() time.Time { return *t }
}

func TestTokenManager_Roundtrip(t *testing.T) {
	m := NewTokenManager("secret", "gallery", time.Hour)

	token, err := m.Issue("u-1", "student")
	require.NoError(t, err)

	claims, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "student", claims.Role)
	assert.Equal(t, "gallery", claims.Issuer)
}

func TestTokenManager_ExpiresAfterOneHour(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewTokenManager("secret", "gallery", time.Hour).WithClock(fixedClock(&now))

	token, err := m.Issue("u-1", "admin")
	require.NoError(t, err)

	now = now.Add(59 * time.Minute)
	_, err = m.Parse(token)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = m.Parse(token)
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestTokenManager_SubSecondIssueKeepsFullLifetime(t *testing.T) {
	issued := time.Date(2024, 3, 1, 12, 0, 0, 500_000_000, time.UTC)
	now := issued
	m := NewTokenManager("secret", "gallery", time.Hour).WithClock(fixedClock(&now))

	token, err := m.Issue("u-1", "admin")
	require.NoError(t, err)

	now = issued.Add(time.Hour - time.Millisecond)
	claims, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 13, 0, 1, 0, time.UTC), claims.ExpiresAt.Time.UTC())

	now = issued.Add(time.Hour + time.Second)
	_, err = m.Parse(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestTokenManager_Rejects(t *testing.T) {
	m := NewTokenManager("secret", "gallery", time.Hour)
	token, err := m.Issue("u-1", "admin")
	require.NoError(t, err)

	t.Run("wrong key", func(t *testing.T) {
		_, err := NewTokenManager("other", "gallery", time.Hour).Parse(token)
		assert.Error(t, err)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		_, err := NewTokenManager("secret", "someone-else", time.Hour).Parse(token)
		assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := m.Parse("not-a-jwt")
		assert.Error(t, err)
	})

	t.Run("other algorithm", func(t *testing.T) {
		none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u-1"}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = m.Parse(none)
		assert.Error(t, err)
	})
}

func TestHasher(t *testing.T) {
	h := NewHasher(4)

	hash, err := h.Hash("hunter22")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", hash)

	assert.NoError(t, h.Compare(hash, "hunter22"))
	assert.Error(t, h.Compare(hash, "hunter23"))
}
