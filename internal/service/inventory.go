package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/iliyamo/lab-inventory/internal/auth"
	"github.com/iliyamo/lab-inventory/internal/config"
	"github.com/iliyamo/lab-inventory/internal/model"
	"github.com/iliyamo/lab-inventory/internal/utils"
)

// Inventory is the orchestrator behind every core operation: it
// authenticates requests, resolves roles, evaluates the security policy and
// drives the loan ledger. It holds no mutable state of its own; all state
// lives behind the ports.
type Inventory struct {
	cfg     config.Config
	dir     Directory
	users   IdentityStore
	devices DeviceStore
	loans   LoanLedger
}

func NewInventory(cfg config.Config, dir Directory, users IdentityStore, devices DeviceStore, loans LoanLedger) *Inventory {
	return &Inventory{cfg: cfg, dir: dir, users: users, devices: devices, loans: loans}
}

// Actor is the authenticated caller of an operation: the token subject and
// its effective role set.
type Actor struct {
	Username string
	Roles    []string
}

// CurrentUser is the concrete identity shape returned by every
// authentication path, token-based and dev-bypass alike.
type CurrentUser struct {
	Username    string   `json:"username"`
	Roles       []string `json:"roles"`
	DisplayName string   `json:"display_name"`
	Email       string   `json:"email,omitempty"`
	FirstName   string   `json:"first_name,omitempty"`
	LastName    string   `json:"last_name,omitempty"`
}

// Login authenticates against the directory, resolves or auto-provisions
// the local role assignment and mints a session token. The first user ever
// provisioned becomes admin; all later ones become employee. When
// auto-provisioning is disabled and the user has no local roles, it fails
// with ErrNotProvisioned; every directory failure collapses into
// ErrInvalidCredentials.
func (s *Inventory) Login(ctx context.Context, username, password string) (utils.SessionToken, error) {
	// Dev bypass: token for the configured identity, no directory involved.
	if s.cfg.AuthDisabled {
		return utils.NewSessionToken(s.cfg.JWTSecret, s.cfg.DevUser, s.cfg.DevRoles, s.cfg.TokenTTL)
	}

	profile, err := s.dir.Authenticate(ctx, username, password)
	if err != nil {
		return utils.SessionToken{}, ErrInvalidCredentials
	}

	if err := s.users.EnsureRoles(ctx); err != nil {
		log.Printf("login: ensure roles failed: %v", err)
		return utils.SessionToken{}, fmt.Errorf("seeding roles: %w", err)
	}

	roles, err := s.resolveOrProvision(ctx, profile)
	if err != nil {
		return utils.SessionToken{}, err
	}
	return utils.NewSessionToken(s.cfg.JWTSecret, profile.Username, roles, s.cfg.TokenTTL)
}

// resolveOrProvision returns the user's current role set, creating the
// local record when auto-provisioning allows it. Existing users get their
// empty profile fields backfilled from the directory.
func (s *Inventory) resolveOrProvision(ctx context.Context, profile auth.Profile) ([]string, error) {
	roles, err := s.users.ResolveRoles(ctx, profile.Username)
	switch {
	case err == nil && len(roles) > 0:
		if err := s.users.UpdateProfile(ctx, profile.Username,
			optional(profile.Email), optional(profile.FirstName), optional(profile.LastName)); err != nil {
			// Backfill is best-effort; the login itself already succeeded.
			log.Printf("login: profile backfill for %s failed: %v", profile.Username, err)
		}
		return roles, nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return nil, err
	}

	// No record, or a record without any role assignment.
	if !s.cfg.AutoProvision {
		return nil, ErrNotProvisioned
	}
	n, err := s.users.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	role := model.RoleEmployee
	if n == 0 {
		role = model.RoleAdmin
	}
	u, err := s.users.UpsertWithRoles(ctx, profile.Username, []string{role},
		optional(profile.Email), optional(profile.FirstName), optional(profile.LastName))
	if err != nil {
		return nil, err
	}
	return u.Roles, nil
}

// CurrentUser resolves the caller's identity from verified token claims.
// When a local record exists, the store's current roles and profile take
// precedence; the token-embedded roles are used only for users that were
// never persisted locally. A store failure other than "not found" is
// surfaced, never silently swallowed.
func (s *Inventory) CurrentUser(ctx context.Context, claims utils.SessionClaims) (CurrentUser, error) {
	u, err := s.users.GetByUsername(ctx, claims.Subject)
	if errors.Is(err, ErrNotFound) {
		return CurrentUser{
			Username:    claims.Subject,
			Roles:       fallbackRoles(claims.Roles),
			DisplayName: claims.Subject,
		}, nil
	}
	if err != nil {
		return CurrentUser{}, fmt.Errorf("identity lookup: %w", err)
	}
	roles, err := s.users.ResolveRoles(ctx, claims.Subject)
	if err != nil {
		return CurrentUser{}, fmt.Errorf("role lookup: %w", err)
	}
	if len(roles) == 0 {
		roles = fallbackRoles(claims.Roles)
	}
	return CurrentUser{
		Username:    u.Username,
		Roles:       roles,
		DisplayName: u.DisplayName(),
		Email:       deref(u.Email),
		FirstName:   deref(u.FirstName),
		LastName:    deref(u.LastName),
	}, nil
}

// resolveBorrower decides who the loan is booked against. A caller-supplied
// borrower id wins, so a manager can check a device out on another user's
// behalf; it must name an existing user. Zero means the actor borrows for
// themselves.
func (s *Inventory) resolveBorrower(ctx context.Context, actor Actor, requested uint64) (uint64, error) {
	if requested != 0 {
		if _, err := s.users.UserByID(ctx, requested); err != nil {
			return 0, fmt.Errorf("borrower %d: %w", requested, err)
		}
		return requested, nil
	}
	return s.actorID(ctx, actor)
}

// actorID resolves the actor to its local user record, provisioning one on
// the fly when auto-provisioning is on. The dev-bypass identity has no
// local record until its first loan; this is where it gets one.
func (s *Inventory) actorID(ctx context.Context, actor Actor) (uint64, error) {
	u, err := s.users.GetByUsername(ctx, actor.Username)
	if err == nil {
		return u.ID, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	if !s.cfg.AutoProvision {
		return 0, fmt.Errorf("no local record for %s: %w", actor.Username, ErrForbidden)
	}
	if err := s.users.EnsureRoles(ctx); err != nil {
		return 0, err
	}
	uw, err := s.users.UpsertWithRoles(ctx, actor.Username, canonicalSubset(actor.Roles), nil, nil, nil)
	if err != nil {
		return 0, err
	}
	return uw.ID, nil
}

// Checkout performs the loan half of the state machine: device lookup,
// policy gate against the device's current security level, then the atomic
// ledger transition. The loan is booked against req.BorrowerID when set and
// against the actor otherwise; the device is returned alongside the loan so
// callers can describe the event without a second lookup.
func (s *Inventory) Checkout(ctx context.Context, actor Actor, req model.LoanRequest) (model.Loan, model.Device, error) {
	device, err := s.devices.GetByID(ctx, req.DeviceID)
	if err != nil {
		return model.Loan{}, model.Device{}, err
	}
	if !auth.Allowed(device.SecurityLevel, actor.Roles) {
		return model.Loan{}, model.Device{}, fmt.Errorf("security level %s requires one of %v: %w",
			device.SecurityLevel, auth.RequiredRoles(device.SecurityLevel), ErrForbidden)
	}
	if req.BorrowerID, err = s.resolveBorrower(ctx, actor, req.BorrowerID); err != nil {
		return model.Loan{}, model.Device{}, err
	}
	loan, err := s.loans.Open(ctx, req)
	return loan, device, err
}

// Return closes the device's open loan. The policy is re-evaluated against
// the device's current security level on every call.
func (s *Inventory) Return(ctx context.Context, actor Actor, deviceID uint64, notes *string) (model.Loan, model.Device, error) {
	device, err := s.devices.GetByID(ctx, deviceID)
	if err != nil {
		return model.Loan{}, model.Device{}, err
	}
	if !auth.Allowed(device.SecurityLevel, actor.Roles) {
		return model.Loan{}, model.Device{}, fmt.Errorf("security level %s requires one of %v: %w",
			device.SecurityLevel, auth.RequiredRoles(device.SecurityLevel), ErrForbidden)
	}
	loan, err := s.loans.Close(ctx, deviceID, notes)
	return loan, device, err
}

// ScanDecision is the outcome of scanning an inventory number: the implied
// next action for the device in its current state.
type ScanDecision struct {
	DeviceID        uint64 `json:"device_id"`
	InventoryNumber string `json:"inventory_number"`
	Action          string `json:"action"`
	Status          string `json:"status"`
}

// Scan looks a device up by inventory number and derives the implied next
// action: "loan" when the device is available, "return" for every other
// status. A maintenance device is therefore reported as "return" even
// though Return will refuse it with a conflict; this mirrors the historical
// behavior that clients depend on.
func (s *Inventory) Scan(ctx context.Context, actor Actor, inventoryNumber string) (ScanDecision, error) {
	device, err := s.devices.GetByInventory(ctx, inventoryNumber)
	if err != nil {
		return ScanDecision{}, err
	}
	if !auth.Allowed(device.SecurityLevel, actor.Roles) {
		return ScanDecision{}, fmt.Errorf("security level %s requires one of %v: %w",
			device.SecurityLevel, auth.RequiredRoles(device.SecurityLevel), ErrForbidden)
	}
	action := "return"
	if device.StatusName == model.StatusAvailable {
		action = "loan"
	}
	return ScanDecision{
		DeviceID:        device.ID,
		InventoryNumber: device.InventoryNumber,
		Action:          action,
		Status:          device.StatusName,
	}, nil
}

// GetDevice returns one device with its current open loan attached, the
// same shape the listing uses.
func (s *Inventory) GetDevice(ctx context.Context, id uint64) (model.DeviceWithLoan, error) {
	device, err := s.devices.GetByID(ctx, id)
	if err != nil {
		return model.DeviceWithLoan{}, err
	}
	out := model.DeviceWithLoan{Device: device}
	loan, err := s.loans.OpenByDevice(ctx, device.ID)
	switch {
	case err == nil:
		out.CurrentLoan = &loan
	case !errors.Is(err, ErrNotFound):
		return model.DeviceWithLoan{}, err
	}
	return out, nil
}

// ListDevices pages through the device table with the given filters,
// attaching each device's current open loan.
func (s *Inventory) ListDevices(ctx context.Context, f model.DeviceFilter) (int64, []model.DeviceWithLoan, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Skip < 0 {
		f.Skip = 0
	}
	return s.devices.List(ctx, f)
}

// ListLoans returns the full loan history, newest first.
func (s *Inventory) ListLoans(ctx context.Context) ([]model.Loan, error) {
	return s.loans.ListAll(ctx)
}

// ListUsers returns every user with its role names. Admin gating happens in
// the transport layer.
func (s *Inventory) ListUsers(ctx context.Context) ([]model.UserWithRoles, error) {
	if err := s.users.EnsureRoles(ctx); err != nil {
		return nil, err
	}
	return s.users.ListWithRoles(ctx)
}

// SetUserRoles assigns exactly the given role set to the user, creating it
// if needed. The assignment is a total overwrite; unknown role names are
// rejected with ErrUnknownRole.
func (s *Inventory) SetUserRoles(ctx context.Context, username string, roles []string, email, firstName, lastName *string) (model.UserWithRoles, error) {
	for _, name := range roles {
		if !model.IsCanonicalRole(name) {
			return model.UserWithRoles{}, fmt.Errorf("%q: %w", name, ErrUnknownRole)
		}
	}
	if err := s.users.EnsureRoles(ctx); err != nil {
		return model.UserWithRoles{}, err
	}
	return s.users.UpsertWithRoles(ctx, username, roles, email, firstName, lastName)
}

// canonicalSubset drops any role name that is not a canonical role, so a
// token minted with free-form dev roles never fails provisioning.
func canonicalSubset(roles []string) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		if model.IsCanonicalRole(r) {
			out = append(out, r)
		}
	}
	return out
}

func fallbackRoles(roles []string) []string {
	if roles == nil {
		return []string{}
	}
	return roles
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
