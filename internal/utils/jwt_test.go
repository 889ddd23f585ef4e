package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestSessionTokenRoundTrip(t *testing.T) {
	tok, err := NewSessionToken(testSecret, "jdoe", []string{"employee", "expert"}, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, tok.Token)
	require.WithinDuration(t, time.Now().UTC().Add(time.Hour), tok.Exp, 5*time.Second)

	claims, err := ParseSessionToken(testSecret, tok.Token)
	require.NoError(t, err)
	require.Equal(t, "jdoe", claims.Subject)
	require.Equal(t, []string{"employee", "expert"}, claims.Roles)
}

func TestParseSessionTokenRejectsExpired(t *testing.T) {
	tok, err := NewSessionToken(testSecret, "jdoe", nil, -time.Minute)
	require.NoError(t, err)

	_, err = ParseSessionToken(testSecret, tok.Token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseSessionTokenRejectsWrongSecret(t *testing.T) {
	tok, err := NewSessionToken(testSecret, "jdoe", []string{"admin"}, time.Hour)
	require.NoError(t, err)

	_, err = ParseSessionToken("other-secret", tok.Token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseSessionTokenRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "not-a-token", "a.b.c"} {
		_, err := ParseSessionToken(testSecret, raw)
		require.ErrorIs(t, err, ErrInvalidToken, "raw=%q", raw)
	}
}

func TestSessionTokenEmptyRoles(t *testing.T) {
	tok, err := NewSessionToken(testSecret, "jdoe", []string{}, time.Hour)
	require.NoError(t, err)

	claims, err := ParseSessionToken(testSecret, tok.Token)
	require.NoError(t, err)
	require.Empty(t, claims.Roles)
}
