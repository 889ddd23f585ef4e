package auth

import (
	"context"
	"crypto/tls"
	"errors"
	"log"
	"net"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"github.com/iliyamo/lab-inventory/internal/config"
)

// ErrInvalidCredentials is the single failure every authentication path
// collapses into.  Connection errors, bind failures and empty searches are
// indistinguishable to the caller so that responses never reveal whether a
// username exists in the directory.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Profile is the normalized identity returned after a successful bind.  The
// username is the directory-reported account name when available, falling
// back to the name the user typed.
type Profile struct {
	Username    string
	Email       string
	FirstName   string
	LastName    string
	DisplayName string
}

// profileAttributes lists the directory attributes requested for the profile
// search.  Both Active Directory (sAMAccountName) and classic OpenLDAP (uid)
// naming attributes are included.
var profileAttributes = []string{"uid", "sAMAccountName", "cn", "displayName", "givenName", "sn", "mail"}

// LDAPAuthenticator validates username/password pairs against an external
// directory.  It holds no state besides its configuration; every call dials
// a fresh connection bounded by the configured timeout and makes exactly one
// bind attempt per stage (no retries).
type LDAPAuthenticator struct {
	cfg config.LDAPConfig
}

// NewLDAPAuthenticator returns an authenticator for the given directory.
func NewLDAPAuthenticator(cfg config.LDAPConfig) *LDAPAuthenticator {
	return &LDAPAuthenticator{cfg: cfg}
}

// Authenticate proves the supplied credential against the directory and
// returns the user's profile.  Service mode binds with the service account,
// searches for the user's DN and re-binds as that DN with the supplied
// password; direct mode renders the DN template and binds straight away.
// Every failure surfaces as ErrInvalidCredentials; the underlying cause is
// logged server-side only.
func (a *LDAPAuthenticator) Authenticate(ctx context.Context, username, password string) (Profile, error) {
	username = strings.TrimSpace(username)
	// An empty password would trigger an LDAP unauthenticated bind, which
	// most servers report as success.  Reject it before touching the wire.
	if username == "" || password == "" {
		return Profile{}, ErrInvalidCredentials
	}

	conn, err := a.dial(ctx)
	if err != nil {
		log.Printf("ldap: dial %s failed: %v", a.cfg.URL, err)
		return Profile{}, ErrInvalidCredentials
	}
	defer conn.Close()

	var userDN string
	if a.cfg.Mode == "service" {
		if err := conn.Bind(a.cfg.BindDN, a.cfg.BindPassword); err != nil {
			log.Printf("ldap: service bind failed: %v", err)
			return Profile{}, ErrInvalidCredentials
		}
		entry, err := a.searchUser(conn, username)
		if err != nil {
			return Profile{}, ErrInvalidCredentials
		}
		userDN = entry.DN
	} else {
		userDN = RenderUserDN(a.cfg.UserDNTemplate, username)
	}

	// Second stage: prove the credential by binding as the user.
	if err := conn.Bind(userDN, password); err != nil {
		return Profile{}, ErrInvalidCredentials
	}

	// Profile search as the now-authenticated identity.  An empty result is
	// treated exactly like a failed bind.
	entry, err := a.searchUser(conn, username)
	if err != nil {
		return Profile{}, ErrInvalidCredentials
	}
	return ProfileFromEntry(entry, username), nil
}

// dial opens a connection honoring the configured transport security and
// timeout.  The timeout applies to the dial and to every later operation on
// the connection.
func (a *LDAPAuthenticator) dial(ctx context.Context) (*ldap.Conn, error) {
	tlsCfg := &tls.Config{
		MinVersion:         a.cfg.MinTLSVersion,
		InsecureSkipVerify: a.cfg.InsecureSkipVerify,
	}
	dialer := &net.Dialer{Timeout: a.cfg.Timeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}
	conn, err := ldap.DialURL(a.cfg.URL,
		ldap.DialWithDialer(dialer),
		ldap.DialWithTLSConfig(tlsCfg),
	)
	if err != nil {
		return nil, err
	}
	conn.SetTimeout(a.cfg.Timeout)
	if a.cfg.StartTLS && !strings.HasPrefix(a.cfg.URL, "ldaps://") {
		if err := conn.StartTLS(tlsCfg); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

// searchUser runs the configured filter for one user and returns the single
// matching entry.  Zero or multiple matches are errors.
func (a *LDAPAuthenticator) searchUser(conn *ldap.Conn, username string) (*ldap.Entry, error) {
	req := ldap.NewSearchRequest(
		a.cfg.SearchBase,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases,
		2, int(a.cfg.Timeout.Seconds()), false,
		RenderFilter(a.cfg.SearchFilter, username),
		profileAttributes,
		nil,
	)
	res, err := conn.Search(req)
	if err != nil {
		log.Printf("ldap: search failed: %v", err)
		return nil, err
	}
	if len(res.Entries) != 1 {
		return nil, errors.New("user search did not return exactly one entry")
	}
	return res.Entries[0], nil
}

// RenderFilter substitutes the username into a filter template, escaping it
// per RFC 4515 so user input cannot alter the filter structure.
func RenderFilter(template, username string) string {
	return strings.ReplaceAll(template, "{username}", ldap.EscapeFilter(username))
}

// RenderUserDN substitutes the username into a DN template with RFC 4514
// escaping applied.
func RenderUserDN(template, username string) string {
	return strings.ReplaceAll(template, "{username}", ldap.EscapeDN(username))
}

// ProfileFromEntry normalizes a directory entry into a Profile.  The
// directory-reported account name (sAMAccountName, then uid) wins over the
// user-supplied one; display name falls back to cn.
func ProfileFromEntry(entry *ldap.Entry, fallbackUsername string) Profile {
	p := Profile{
		Username:    fallbackUsername,
		Email:       entry.GetAttributeValue("mail"),
		FirstName:   entry.GetAttributeValue("givenName"),
		LastName:    entry.GetAttributeValue("sn"),
		DisplayName: entry.GetAttributeValue("displayName"),
	}
	if v := entry.GetAttributeValue("sAMAccountName"); v != "" {
		p.Username = v
	} else if v := entry.GetAttributeValue("uid"); v != "" {
		p.Username = v
	}
	if p.DisplayName == "" {
		p.DisplayName = entry.GetAttributeValue("cn")
	}
	return p
}
