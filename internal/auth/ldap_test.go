package auth

import (
	"context"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/lab-inventory/internal/config"
)

func TestRenderFilterEscapesUserInput(t *testing.T) {
	// A filter injection attempt must come out inert.
	got := RenderFilter("(uid={username})", "admin)(objectClass=*")
	require.Equal(t, `(uid=admin\29\28objectClass=\2a)`, got)

	require.Equal(t, "(uid=jdoe)", RenderFilter("(uid={username})", "jdoe"))
}

func TestRenderUserDNEscapesUserInput(t *testing.T) {
	got := RenderUserDN("uid={username},ou=people,dc=example,dc=org", "doe, john")
	require.Equal(t, `uid=doe\, john,ou=people,dc=example,dc=org`, got)
}

func TestProfileFromEntry(t *testing.T) {
	entry := ldap.NewEntry("uid=jdoe,ou=people,dc=example,dc=org", map[string][]string{
		"uid":       {"jdoe"},
		"cn":        {"John Doe"},
		"givenName": {"John"},
		"sn":        {"Doe"},
		"mail":      {"jdoe@example.org"},
	})
	p := ProfileFromEntry(entry, "typed-name")
	require.Equal(t, "jdoe", p.Username, "directory uid wins over the typed name")
	require.Equal(t, "jdoe@example.org", p.Email)
	require.Equal(t, "John", p.FirstName)
	require.Equal(t, "Doe", p.LastName)
	require.Equal(t, "John Doe", p.DisplayName, "displayName falls back to cn")
}

func TestProfileFromEntryPrefersSAMAccountName(t *testing.T) {
	entry := ldap.NewEntry("cn=John Doe,ou=users,dc=corp", map[string][]string{
		"sAMAccountName": {"JDOE"},
		"uid":            {"jdoe"},
		"displayName":    {"Doe, John"},
	})
	p := ProfileFromEntry(entry, "typed-name")
	require.Equal(t, "JDOE", p.Username)
	require.Equal(t, "Doe, John", p.DisplayName)
}

func TestAuthenticateRejectsEmptyPassword(t *testing.T) {
	// An empty password must be refused before any connection is attempted;
	// an unreachable URL proves no dial happened.
	a := NewLDAPAuthenticator(config.LDAPConfig{URL: "ldap://256.0.0.1:1", Mode: "direct"})
	_, err := a.Authenticate(context.Background(), "jdoe", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = a.Authenticate(context.Background(), "", "secret")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}
