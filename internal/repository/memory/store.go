// Package memory provides an in-memory implementation of the inventory
// service ports. It mirrors the SQL repositories' semantics, including the
// single-open-loan exclusion and backfill-only profile updates, and is used
// by tests and the local sandbox where no MySQL instance is available.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/lab-inventory/internal/model"
	"github.com/iliyamo/lab-inventory/internal/repository"
)

type Store struct {
	mu sync.Mutex

	usersByName map[string]*model.User
	rolesByUser map[string][]string
	devicesByID map[uint64]*model.Device
	loansByID   map[uint64]*model.Loan

	userSeq   uint64
	deviceSeq uint64
	loanSeq   uint64
}

func NewStore() *Store {
	return &Store{
		usersByName: make(map[string]*model.User),
		rolesByUser: make(map[string][]string),
		devicesByID: make(map[uint64]*model.Device),
		loansByID:   make(map[uint64]*model.Loan),
	}
}

// ---- identity store ----

func (s *Store) EnsureRoles(ctx context.Context) error { return nil }

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.usersByName)), nil
}

func (s *Store) GetByUsername(ctx context.Context, username string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.usersByName[username]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return *u, nil
}

func (s *Store) UserByID(ctx context.Context, id uint64) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.usersByName {
		if u.ID == id {
			return *u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (s *Store) ResolveRoles(ctx context.Context, username string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.usersByName[username]; !ok {
		return nil, repository.ErrNotFound
	}
	roles := append([]string(nil), s.rolesByUser[username]...)
	sort.Strings(roles)
	return roles, nil
}

func (s *Store) UpsertWithRoles(ctx context.Context, username string, roles []string, email, firstName, lastName *string) (model.UserWithRoles, error) {
	for _, name := range roles {
		if !model.IsCanonicalRole(name) {
			return model.UserWithRoles{}, fmt.Errorf("%q: %w", name, repository.ErrUnknownRole)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.usersByName[username]
	if !ok {
		s.userSeq++
		u = &model.User{ID: s.userSeq, Username: username}
		s.usersByName[username] = u
	}
	backfill(u, email, firstName, lastName)

	seen := make(map[string]struct{}, len(roles))
	assigned := make([]string, 0, len(roles))
	for _, name := range roles {
		if _, dup := seen[name]; !dup {
			seen[name] = struct{}{}
			assigned = append(assigned, name)
		}
	}
	s.rolesByUser[username] = assigned
	return model.UserWithRoles{User: *u, Roles: append([]string(nil), assigned...)}, nil
}

func (s *Store) UpdateProfile(ctx context.Context, username string, email, firstName, lastName *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.usersByName[username]
	if !ok {
		return repository.ErrNotFound
	}
	backfill(u, email, firstName, lastName)
	return nil
}

func (s *Store) ListWithRoles(ctx context.Context) ([]model.UserWithRoles, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.UserWithRoles, 0, len(s.usersByName))
	for name, u := range s.usersByName {
		roles := append([]string(nil), s.rolesByUser[name]...)
		if roles == nil {
			roles = []string{}
		}
		sort.Strings(roles)
		out = append(out, model.UserWithRoles{User: *u, Roles: roles})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func backfill(u *model.User, email, firstName, lastName *string) {
	if isEmpty(u.Email) && !isEmpty(email) {
		u.Email = copyPtr(email)
	}
	if isEmpty(u.FirstName) && !isEmpty(firstName) {
		u.FirstName = copyPtr(firstName)
	}
	if isEmpty(u.LastName) && !isEmpty(lastName) {
		u.LastName = copyPtr(lastName)
	}
}

// ---- device store ----

// AddDevice seeds a device and returns it with an assigned ID and the
// available status unless another status name was supplied.
func (s *Store) AddDevice(d model.Device) model.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deviceSeq++
	d.ID = s.deviceSeq
	if d.StatusName == "" {
		d.StatusName = model.StatusAvailable
	}
	if d.SecurityLevel == "" {
		d.SecurityLevel = model.SecurityStandard
	}
	stored := d
	s.devicesByID[d.ID] = &stored
	return d
}

// SetDeviceStatus force-sets a device's status name (test helper for the
// maintenance state, which no ledger transition produces).
func (s *Store) SetDeviceStatus(id uint64, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.devicesByID[id]; ok {
		d.StatusName = status
	}
}

func (s *Store) GetByID(ctx context.Context, id uint64) (model.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devicesByID[id]
	if !ok {
		return model.Device{}, repository.ErrNotFound
	}
	return *d, nil
}

func (s *Store) GetByInventory(ctx context.Context, inventoryNumber string) (model.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.devicesByID {
		if d.InventoryNumber == inventoryNumber {
			return *d, nil
		}
	}
	return model.Device{}, repository.ErrNotFound
}

func (s *Store) List(ctx context.Context, f model.DeviceFilter) (int64, []model.DeviceWithLoan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]model.DeviceWithLoan, 0, len(s.devicesByID))
	for _, d := range s.devicesByID {
		if !matches(*d, f) {
			continue
		}
		item := model.DeviceWithLoan{Device: *d}
		if l := s.openLoanLocked(d.ID); l != nil {
			loan := *l
			item.CurrentLoan = &loan
		}
		matched = append(matched, item)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	total := int64(len(matched))
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	skip := f.Skip
	if skip < 0 {
		skip = 0
	}
	if skip >= len(matched) {
		return total, []model.DeviceWithLoan{}, nil
	}
	end := skip + limit
	if end > len(matched) {
		end = len(matched)
	}
	return total, matched[skip:end], nil
}

func matches(d model.Device, f model.DeviceFilter) bool {
	if f.StatusID != 0 && d.StatusID != f.StatusID {
		return false
	}
	if f.TypeID != 0 && d.TypeID != f.TypeID {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		desc := ""
		if d.Description != nil {
			desc = *d.Description
		}
		hay := strings.ToLower(d.Name + " " + d.InventoryNumber + " " + desc + " " + d.TypeName)
		if !strings.Contains(hay, needle) {
			return false
		}
	}
	return true
}

// ---- loan ledger ----

func (s *Store) Open(ctx context.Context, req model.LoanRequest) (model.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devicesByID[req.DeviceID]
	if !ok {
		return model.Loan{}, repository.ErrNotFound
	}
	switch d.StatusName {
	case model.StatusMaintenance:
		return model.Loan{}, fmt.Errorf("device in maintenance: %w", repository.ErrConflict)
	case model.StatusLoaned:
		return model.Loan{}, fmt.Errorf("device already loaned: %w", repository.ErrConflict)
	}
	if s.openLoanLocked(req.DeviceID) != nil {
		return model.Loan{}, fmt.Errorf("device already loaned: %w", repository.ErrConflict)
	}

	s.loanSeq++
	loan := model.Loan{
		ID:            s.loanSeq,
		DeviceID:      req.DeviceID,
		BorrowerID:    req.BorrowerID,
		UsageLocation: copyPtr(req.UsageLocation),
		LoanedAt:      time.Now().UTC(),
		DueDate:       copyTime(req.DueDate),
		Notes:         copyPtr(req.Notes),
	}
	stored := loan
	s.loansByID[loan.ID] = &stored
	d.StatusName = model.StatusLoaned
	return loan, nil
}

func (s *Store) Close(ctx context.Context, deviceID uint64, notes *string) (model.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devicesByID[deviceID]
	if !ok {
		return model.Loan{}, repository.ErrNotFound
	}
	if d.StatusName == model.StatusMaintenance {
		return model.Loan{}, fmt.Errorf("device in maintenance: %w", repository.ErrConflict)
	}
	loan := s.openLoanLocked(deviceID)
	if loan == nil {
		return model.Loan{}, fmt.Errorf("no open loan for device: %w", repository.ErrConflict)
	}

	now := time.Now().UTC()
	loan.ReturnedAt = &now
	if notes != nil && *notes != "" {
		if loan.Notes != nil && *loan.Notes != "" {
			merged := *loan.Notes + "\n" + *notes
			loan.Notes = &merged
		} else {
			loan.Notes = copyPtr(notes)
		}
	}
	d.StatusName = model.StatusAvailable
	return *loan, nil
}

func (s *Store) OpenByDevice(ctx context.Context, deviceID uint64) (model.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l := s.openLoanLocked(deviceID); l != nil {
		return *l, nil
	}
	return model.Loan{}, repository.ErrNotFound
}

func (s *Store) ListAll(ctx context.Context) ([]model.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Loan, 0, len(s.loansByID))
	for _, l := range s.loansByID {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LoanedAt.Equal(out[j].LoanedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].LoanedAt.After(out[j].LoanedAt)
	})
	return out, nil
}

// OpenLoanCount reports the number of open loans for a device (test helper
// for asserting the single-open-loan invariant).
func (s *Store) OpenLoanCount(deviceID uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.loansByID {
		if l.DeviceID == deviceID && l.ReturnedAt == nil {
			n++
		}
	}
	return n
}

func (s *Store) openLoanLocked(deviceID uint64) *model.Loan {
	var newest *model.Loan
	for _, l := range s.loansByID {
		if l.DeviceID != deviceID || l.ReturnedAt != nil {
			continue
		}
		if newest == nil || l.LoanedAt.After(newest.LoanedAt) || (l.LoanedAt.Equal(newest.LoanedAt) && l.ID > newest.ID) {
			newest = l
		}
	}
	return newest
}

func isEmpty(s *string) bool { return s == nil || *s == "" }

func copyPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
