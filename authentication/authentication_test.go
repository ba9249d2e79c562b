package authentication

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhit/go-str2duration/v2"
)

func withClock(t *testing.T, at time.Time) *time.Time {
	t.Helper()
	current := at
	now = func() time.Time { return current }
	t.Cleanup(func() { now = time.Now })
	return &current
}

func TestNewBearerTokenRandomNonce(t *testing.T) {
	first, err := NewBearerToken("test-secret")
	require.NoError(t, err)
	second, err := NewBearerToken("test-secret")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Len(t, strings.Split(first, "."), 2)
	assert.NoError(t, ValidateToken("test-secret", first))
}

func TestNewBearerTokenRequiresSecret(t *testing.T) {
	_, err := NewBearerToken("")
	assert.Error(t, err)
}

func TestNonceRoundTrip(t *testing.T) {
	sessionID := "5f0c7a8e-2b1d-4c1e-9a55-0d3e2f7c9b10"
	token, err := NewBearerToken("test-secret", WithNonce(sessionID))
	require.NoError(t, err)

	nonce, err := Nonce("test-secret", token)
	require.NoError(t, err)
	assert.Equal(t, sessionID, nonce)

	_, err = Nonce("other-secret", token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewBearerToken("test-secret", WithNonce("a.b"))
	assert.Error(t, err)
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	token, err := NewBearerToken("test-secret", WithNonce(strings.Repeat("a", 40)))
	require.NoError(t, err)

	tampered := "b" + token[1:]
	assert.ErrorIs(t, ValidateToken("test-secret", tampered), ErrInvalidToken)
	assert.ErrorIs(t, ValidateToken("test-secret", "short"), ErrInvalidToken)
	assert.ErrorIs(t, ValidateToken("test-secret", strings.Repeat("x", 40)), ErrInvalidToken)
	assert.ErrorIs(t, ValidateToken("test-secret", "1h.notanumber."+strings.Repeat("x", 40)), ErrInvalidToken)
}

func TestExpiringToken(t *testing.T) {
	clock := withClock(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	token, err := NewBearerToken("test-secret", WithTTL(90*time.Minute))
	require.NoError(t, err)
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	ttl, err := str2duration.ParseDuration(parts[0])
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, ttl)
	assert.NoError(t, ValidateToken("test-secret", token))

	*clock = clock.Add(89 * time.Minute)
	assert.NoError(t, ValidateToken("test-secret", token))

	*clock = clock.Add(2 * time.Minute)
	assert.ErrorIs(t, ValidateToken("test-secret", token), ErrTokenExpired)
}

func TestExpirationBounds(t *testing.T) {
	withClock(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	_, err := NewBearerToken("test-secret", WithExpiration(now().Add(-time.Hour)))
	assert.ErrorContains(t, err, "expiration time is in the past")

	_, err = NewBearerToken("test-secret", WithTTL(2*MaxTokenLifetime))
	assert.ErrorContains(t, err, "exceeds maximum")

	token, err := NewBearerToken("test-secret", WithExpiration(now().Add(10*time.Second)))
	require.NoError(t, err)
	ttl, err := str2duration.ParseDuration(strings.Split(token, ".")[0])
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ttl)
}
