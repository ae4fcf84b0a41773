package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret-passw0rd")
	require.NoError(t, err)
	require.NotEqual(t, "s3cret-passw0rd", hash)

	assert.True(t, VerifyPassword("s3cret-passw0rd", hash))
	assert.False(t, VerifyPassword("wrong", hash))
	assert.False(t, VerifyPassword("s3cret-passw0rd", "not-a-hash"))
}

func TestTokenRoundTrip(t *testing.T) {
	m := NewManager(testSecret, time.Hour)

	token, err := m.Issue(42, "asha@example.com")
	require.NoError(t, err)

	claims, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "asha@example.com", claims.Email)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	m := NewManager(testSecret, time.Hour)
	token, err := m.Issue(1, "a@example.com")
	require.NoError(t, err)

	_, err = m.Verify(token + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := NewManager(testSecret, time.Hour).Issue(1, "a@example.com")
	require.NoError(t, err)

	_, err = NewManager("another-secret-another-secret-32", time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m := NewManager(testSecret, -time.Minute)
	token, err := m.Issue(1, "a@example.com")
	require.NoError(t, err)

	_, err = m.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
