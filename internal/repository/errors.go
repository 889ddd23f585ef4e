// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// inventory service to distinguish between different failure scenarios
// without depending on database driver errors. ErrNotFound replaces raw
// sql.ErrNoRows at the repository boundary; ErrConflict covers state
// transitions the loan ledger must refuse (device already loaned, device
// in maintenance, no open loan to close); ErrForbidden is reserved for
// policy rejections decided above the repositories.
package repository

import "errors"

// ErrNotFound is returned when a requested device, loan or user does not
// exist. Handlers translate it into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an operation cannot proceed because of the
// current lifecycle state, such as checking out a device that is already
// loaned. Handlers translate it into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrForbidden is returned when the caller's role set does not satisfy the
// authorization policy for the target device. Handlers translate it into
// an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrUnknownRole is returned when a role assignment names a role outside
// the canonical set. Handlers translate it into an HTTP 400 response.
var ErrUnknownRole = errors.New("unknown role")
