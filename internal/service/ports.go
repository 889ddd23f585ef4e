package service

import (
	"context"

	"github.com/iliyamo/lab-inventory/internal/auth"
	"github.com/iliyamo/lab-inventory/internal/model"
)

// Directory validates a username/password pair against the external
// directory and returns a verified profile. Implemented by
// auth.LDAPAuthenticator.
type Directory interface {
	Authenticate(ctx context.Context, username, password string) (auth.Profile, error)
}

// IdentityStore owns users, roles and their association. Implemented by
// repository.UserRepo and memory.Store.
type IdentityStore interface {
	EnsureRoles(ctx context.Context) error
	CountUsers(ctx context.Context) (int64, error)
	GetByUsername(ctx context.Context, username string) (model.User, error)
	UserByID(ctx context.Context, id uint64) (model.User, error)
	ResolveRoles(ctx context.Context, username string) ([]string, error)
	UpsertWithRoles(ctx context.Context, username string, roles []string, email, firstName, lastName *string) (model.UserWithRoles, error)
	UpdateProfile(ctx context.Context, username string, email, firstName, lastName *string) error
	ListWithRoles(ctx context.Context) ([]model.UserWithRoles, error)
}

// DeviceStore is the read side of the device table used by the core flows.
// Implemented by repository.DeviceRepo and memory.Store.
type DeviceStore interface {
	GetByID(ctx context.Context, id uint64) (model.Device, error)
	GetByInventory(ctx context.Context, inventoryNumber string) (model.Device, error)
	List(ctx context.Context, f model.DeviceFilter) (int64, []model.DeviceWithLoan, error)
}

// LoanLedger performs the atomic loan/return transitions. Implemented by
// repository.LoanRepo and memory.Store.
type LoanLedger interface {
	Open(ctx context.Context, req model.LoanRequest) (model.Loan, error)
	Close(ctx context.Context, deviceID uint64, notes *string) (model.Loan, error)
	OpenByDevice(ctx context.Context, deviceID uint64) (model.Loan, error)
	ListAll(ctx context.Context) ([]model.Loan, error)
}
