package model

import "strings"

// Canonical role names.  The set is closed: roles are seeded once at startup
// and user role assignments must stay within it.
const (
	RoleEmployee     = "employee"
	RoleGestionnaire = "gestionnaire"
	RoleExpert       = "expert"
	RoleAdmin        = "admin"
)

// CanonicalRoles lists every role the application knows about, in seed order.
var CanonicalRoles = []string{RoleEmployee, RoleGestionnaire, RoleExpert, RoleAdmin}

// IsCanonicalRole reports whether name is one of the seeded role names.
func IsCanonicalRole(name string) bool {
	for _, r := range CanonicalRoles {
		if r == name {
			return true
		}
	}
	return false
}

// User represents an application user record as stored in the `users` table.
// Accounts are created by auto-provisioning on first successful directory
// authentication, or explicitly by an admin.  Profile fields mirror the
// directory attributes and may be absent; once populated they are never
// overwritten by a later login (backfill-only semantics).
//
// Fields:
//  ID        – primary key identifier of the user.
//  Username  – unique login name, as reported by the directory.
//  Email     – optional email address.
//  FirstName – optional given name.
//  LastName  – optional family name.
type User struct {
	ID        uint64  `json:"id"`
	Username  string  `json:"username"`
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
}

// DisplayName derives a human readable name: "First Last" when at least one
// name part is present, otherwise the username.
func (u User) DisplayName() string {
	parts := make([]string, 0, 2)
	if u.FirstName != nil && *u.FirstName != "" {
		parts = append(parts, *u.FirstName)
	}
	if u.LastName != nil && *u.LastName != "" {
		parts = append(parts, *u.LastName)
	}
	if len(parts) == 0 {
		return u.Username
	}
	return strings.Join(parts, " ")
}

// Role represents a row in the `roles` table.  Role rows are immutable once
// seeded and are never deleted while referenced by a user_roles row.
type Role struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

// UserWithRoles bundles a user with the names of its assigned roles.  The
// role set is always a subset of CanonicalRoles.
type UserWithRoles struct {
	User
	Roles []string `json:"roles"`
}
