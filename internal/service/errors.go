// Package service implements the inventory orchestrator: it composes the
// directory authenticator, the identity store, the authorization policy and
// the loan ledger behind small port interfaces, and owns the error taxonomy
// exposed to the transport layer.
package service

import (
	"errors"

	"github.com/iliyamo/lab-inventory/internal/repository"
)

// The store-side kinds are shared with the repositories so errors.Is works
// across layers; the authentication kinds exist only here.
var (
	// ErrInvalidCredentials covers bad passwords, bad or expired tokens and
	// directory connectivity failures alike. The caller can never tell
	// which check failed.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotProvisioned means the directory accepted the credential but no
	// local role assignment exists and auto-provisioning is disabled. It is
	// deliberately distinct from ErrInvalidCredentials.
	ErrNotProvisioned = errors.New("user not provisioned")

	ErrForbidden   = repository.ErrForbidden
	ErrNotFound    = repository.ErrNotFound
	ErrConflict    = repository.ErrConflict
	ErrUnknownRole = repository.ErrUnknownRole
)
