package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/lab-inventory/internal/auth"
	"github.com/iliyamo/lab-inventory/internal/config"
	"github.com/iliyamo/lab-inventory/internal/model"
	"github.com/iliyamo/lab-inventory/internal/repository/memory"
	"github.com/iliyamo/lab-inventory/internal/utils"
)

// fakeDirectory accepts any username present in its map with the mapped
// password and returns a canned profile.
type fakeDirectory struct {
	passwords map[string]string
	profiles  map[string]auth.Profile
	calls     int
}

func (d *fakeDirectory) Authenticate(_ context.Context, username, password string) (auth.Profile, error) {
	d.calls++
	want, ok := d.passwords[username]
	if !ok || want != password {
		return auth.Profile{}, auth.ErrInvalidCredentials
	}
	if p, ok := d.profiles[username]; ok {
		return p, nil
	}
	return auth.Profile{Username: username}, nil
}

func testConfig() config.Config {
	return config.Config{
		Env:           "test",
		JWTSecret:     "test-secret",
		TokenTTL:      time.Hour,
		AutoProvision: true,
	}
}

func newTestInventory(t *testing.T, cfg config.Config, dir Directory) (*Inventory, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return NewInventory(cfg, dir, store, store, store), store
}

func seedDevice(store *memory.Store, inventory, level, status string) model.Device {
	d := store.AddDevice(model.Device{
		InventoryNumber: inventory,
		Name:            "device " + inventory,
		SecurityLevel:   level,
	})
	if status != "" && status != model.StatusAvailable {
		store.SetDeviceStatus(d.ID, status)
		d.StatusName = status
	}
	return d
}

func actor(username string, roles ...string) Actor {
	return Actor{Username: username, Roles: roles}
}

// ---- login and provisioning ----

func TestLoginFirstUserBecomesAdmin(t *testing.T) {
	dir := &fakeDirectory{passwords: map[string]string{"alice": "pw", "bob": "pw"}}
	svc, _ := newTestInventory(t, testConfig(), dir)
	ctx := context.Background()

	tok, err := svc.Login(ctx, "alice", "pw")
	require.NoError(t, err)
	claims, err := utils.ParseSessionToken("test-secret", tok.Token)
	require.NoError(t, err)
	require.Equal(t, "alice", claims.Subject)
	require.Equal(t, []string{model.RoleAdmin}, claims.Roles)

	tok, err = svc.Login(ctx, "bob", "pw")
	require.NoError(t, err)
	claims, err = utils.ParseSessionToken("test-secret", tok.Token)
	require.NoError(t, err)
	require.Equal(t, []string{model.RoleEmployee}, claims.Roles)
}

func TestLoginIsIdempotent(t *testing.T) {
	dir := &fakeDirectory{passwords: map[string]string{"alice": "pw"}}
	svc, store := newTestInventory(t, testConfig(), dir)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tok, err := svc.Login(ctx, "alice", "pw")
		require.NoError(t, err)
		claims, err := utils.ParseSessionToken("test-secret", tok.Token)
		require.NoError(t, err)
		require.Equal(t, []string{model.RoleAdmin}, claims.Roles,
			"repeat logins must not demote the first user")
	}
	n, err := store.CountUsers(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestLoginBadPassword(t *testing.T) {
	dir := &fakeDirectory{passwords: map[string]string{"alice": "pw"}}
	svc, store := newTestInventory(t, testConfig(), dir)

	_, err := svc.Login(context.Background(), "alice", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	n, _ := store.CountUsers(context.Background())
	require.Zero(t, n, "a failed login must not provision anything")
}

func TestLoginWithoutAutoProvision(t *testing.T) {
	cfg := testConfig()
	cfg.AutoProvision = false
	dir := &fakeDirectory{passwords: map[string]string{"alice": "pw"}}
	svc, store := newTestInventory(t, cfg, dir)
	ctx := context.Background()

	_, err := svc.Login(ctx, "alice", "pw")
	require.ErrorIs(t, err, ErrNotProvisioned)

	// Pre-assigned users still get in.
	_, err = store.UpsertWithRoles(ctx, "alice", []string{model.RoleExpert}, nil, nil, nil)
	require.NoError(t, err)
	tok, err := svc.Login(ctx, "alice", "pw")
	require.NoError(t, err)
	claims, err := utils.ParseSessionToken("test-secret", tok.Token)
	require.NoError(t, err)
	require.Equal(t, []string{model.RoleExpert}, claims.Roles)
}

func TestLoginBackfillsProfile(t *testing.T) {
	email := "alice@example.org"
	dir := &fakeDirectory{
		passwords: map[string]string{"alice": "pw"},
		profiles: map[string]auth.Profile{
			"alice": {Username: "alice", Email: email, FirstName: "Alice", LastName: "Martin"},
		},
	}
	svc, store := newTestInventory(t, testConfig(), dir)
	ctx := context.Background()

	_, err := svc.Login(ctx, "alice", "pw")
	require.NoError(t, err)

	u, err := store.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, u.Email)
	require.Equal(t, email, *u.Email)
	require.Equal(t, "Alice Martin", u.DisplayName())
}

func TestLoginDevBypassNeverTouchesDirectoryOrStore(t *testing.T) {
	cfg := testConfig()
	cfg.AuthDisabled = true
	cfg.DevUser = "dev-user"
	cfg.DevRoles = []string{model.RoleAdmin}
	dir := &fakeDirectory{} // would reject everything
	svc, store := newTestInventory(t, cfg, dir)

	tok, err := svc.Login(context.Background(), "whatever", "")
	require.NoError(t, err)
	claims, err := utils.ParseSessionToken("test-secret", tok.Token)
	require.NoError(t, err)
	require.Equal(t, "dev-user", claims.Subject)
	require.Equal(t, []string{model.RoleAdmin}, claims.Roles)

	require.Zero(t, dir.calls, "bypass must not consult the directory")
	n, _ := store.CountUsers(context.Background())
	require.Zero(t, n, "bypass must not provision a record")
}

// ---- identity ----

func TestCurrentUserPrefersStoreRoles(t *testing.T) {
	svc, store := newTestInventory(t, testConfig(), &fakeDirectory{})
	ctx := context.Background()

	_, err := store.UpsertWithRoles(ctx, "alice", []string{model.RoleExpert}, nil, nil, nil)
	require.NoError(t, err)

	// Stale token minted while alice was still an employee.
	me, err := svc.CurrentUser(ctx, utils.SessionClaims{Subject: "alice", Roles: []string{model.RoleEmployee}})
	require.NoError(t, err)
	require.Equal(t, []string{model.RoleExpert}, me.Roles)
}

func TestCurrentUserFallsBackToClaims(t *testing.T) {
	svc, _ := newTestInventory(t, testConfig(), &fakeDirectory{})

	me, err := svc.CurrentUser(context.Background(),
		utils.SessionClaims{Subject: "ghost", Roles: []string{model.RoleAdmin}})
	require.NoError(t, err)
	require.Equal(t, "ghost", me.Username)
	require.Equal(t, []string{model.RoleAdmin}, me.Roles)
}

// ---- loan state machine ----

func TestCheckoutAndReturn(t *testing.T) {
	svc, store := newTestInventory(t, testConfig(), &fakeDirectory{})
	ctx := context.Background()
	d := seedDevice(store, "INV-0001", model.SecurityStandard, "")

	loan, dev, err := svc.Checkout(ctx, actor("alice", model.RoleEmployee),
		model.LoanRequest{DeviceID: d.ID})
	require.NoError(t, err)
	require.Equal(t, d.ID, dev.ID)
	require.Nil(t, loan.ReturnedAt)
	require.Equal(t, 1, store.OpenLoanCount(d.ID))

	got, err := store.GetByID(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusLoaned, got.StatusName)

	notes := "returned intact"
	closed, _, err := svc.Return(ctx, actor("alice", model.RoleEmployee), d.ID, &notes)
	require.NoError(t, err)
	require.NotNil(t, closed.ReturnedAt)
	require.NotNil(t, closed.Notes)
	require.Equal(t, notes, *closed.Notes)
	require.Zero(t, store.OpenLoanCount(d.ID))

	got, err = store.GetByID(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusAvailable, got.StatusName)
}

func TestCheckoutOnBehalfOfBorrower(t *testing.T) {
	svc, store := newTestInventory(t, testConfig(), &fakeDirectory{})
	ctx := context.Background()

	borrower, err := store.UpsertWithRoles(ctx, "borrower42", []string{model.RoleEmployee}, nil, nil, nil)
	require.NoError(t, err)
	d := seedDevice(store, "INV-0042", model.SecurityStandard, "")

	// A manager books the loan for someone else; the loan must record the
	// named borrower, not the acting manager.
	loan, _, err := svc.Checkout(ctx, actor("mgr", model.RoleGestionnaire),
		model.LoanRequest{DeviceID: d.ID, BorrowerID: borrower.ID})
	require.NoError(t, err)
	require.Equal(t, borrower.ID, loan.BorrowerID)
}

func TestCheckoutRejectsUnknownBorrower(t *testing.T) {
	svc, store := newTestInventory(t, testConfig(), &fakeDirectory{})
	ctx := context.Background()
	d := seedDevice(store, "INV-0043", model.SecurityStandard, "")

	_, _, err := svc.Checkout(ctx, actor("mgr", model.RoleGestionnaire),
		model.LoanRequest{DeviceID: d.ID, BorrowerID: 9999})
	require.ErrorIs(t, err, ErrNotFound)

	got, err := store.GetByID(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusAvailable, got.StatusName, "a rejected borrower must not loan the device")
}

func TestCheckoutConflicts(t *testing.T) {
	svc, store := newTestInventory(t, testConfig(), &fakeDirectory{})
	ctx := context.Background()
	a := actor("alice", model.RoleEmployee)

	loaned := seedDevice(store, "INV-0002", model.SecurityStandard, "")
	_, _, err := svc.Checkout(ctx, a, model.LoanRequest{DeviceID: loaned.ID})
	require.NoError(t, err)
	_, _, err = svc.Checkout(ctx, a, model.LoanRequest{DeviceID: loaned.ID})
	require.ErrorIs(t, err, ErrConflict)

	maint := seedDevice(store, "INV-0003", model.SecurityStandard, model.StatusMaintenance)
	_, _, err = svc.Checkout(ctx, a, model.LoanRequest{DeviceID: maint.ID})
	require.ErrorIs(t, err, ErrConflict)

	_, _, err = svc.Checkout(ctx, a, model.LoanRequest{DeviceID: 9999})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReturnConflicts(t *testing.T) {
	svc, store := newTestInventory(t, testConfig(), &fakeDirectory{})
	ctx := context.Background()
	a := actor("alice", model.RoleEmployee)

	idle := seedDevice(store, "INV-0004", model.SecurityStandard, "")
	_, _, err := svc.Return(ctx, a, idle.ID, nil)
	require.ErrorIs(t, err, ErrConflict, "no open loan to close")

	maint := seedDevice(store, "INV-0005", model.SecurityStandard, model.StatusMaintenance)
	_, _, err = svc.Return(ctx, a, maint.ID, nil)
	require.ErrorIs(t, err, ErrConflict)
}

func TestSecurityLevelGate(t *testing.T) {
	svc, store := newTestInventory(t, testConfig(), &fakeDirectory{})
	ctx := context.Background()

	avance := seedDevice(store, "INV-0006", model.SecurityAvance, "")
	_, _, err := svc.Checkout(ctx, actor("emp", model.RoleEmployee),
		model.LoanRequest{DeviceID: avance.ID})
	require.ErrorIs(t, err, ErrForbidden)
	_, _, err = svc.Checkout(ctx, actor("mgr", model.RoleGestionnaire),
		model.LoanRequest{DeviceID: avance.ID})
	require.NoError(t, err)

	critique := seedDevice(store, "INV-0007", model.SecurityCritique, "")
	_, _, err = svc.Checkout(ctx, actor("mgr", model.RoleGestionnaire),
		model.LoanRequest{DeviceID: critique.ID})
	require.ErrorIs(t, err, ErrForbidden)
	_, _, err = svc.Checkout(ctx, actor("xp", model.RoleExpert),
		model.LoanRequest{DeviceID: critique.ID})
	require.NoError(t, err)

	// The gate applies to returns as well; the expert's loan cannot be
	// closed by an employee.
	_, _, err = svc.Return(ctx, actor("emp", model.RoleEmployee), critique.ID, nil)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestConcurrentCheckoutSingleWinner(t *testing.T) {
	svc, store := newTestInventory(t, testConfig(), &fakeDirectory{})
	ctx := context.Background()
	d := seedDevice(store, "INV-0008", model.SecurityStandard, "")

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = svc.Checkout(ctx, actor("alice", model.RoleEmployee),
				model.LoanRequest{DeviceID: d.ID})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, ErrConflict)
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, 1, store.OpenLoanCount(d.ID))
}

// ---- scan ----

func TestScanActions(t *testing.T) {
	svc, store := newTestInventory(t, testConfig(), &fakeDirectory{})
	ctx := context.Background()
	a := actor("alice", model.RoleEmployee)

	available := seedDevice(store, "INV-0009", model.SecurityStandard, "")
	dec, err := svc.Scan(ctx, a, "INV-0009")
	require.NoError(t, err)
	require.Equal(t, "loan", dec.Action)
	require.Equal(t, available.ID, dec.DeviceID)

	_, _, err = svc.Checkout(ctx, a, model.LoanRequest{DeviceID: available.ID})
	require.NoError(t, err)
	dec, err = svc.Scan(ctx, a, "INV-0009")
	require.NoError(t, err)
	require.Equal(t, "return", dec.Action)

	// Maintenance scans as "return" even though the return itself will be
	// refused; clients rely on the status field to tell the difference.
	seedDevice(store, "INV-0010", model.SecurityStandard, model.StatusMaintenance)
	dec, err = svc.Scan(ctx, a, "INV-0010")
	require.NoError(t, err)
	require.Equal(t, "return", dec.Action)
	require.Equal(t, model.StatusMaintenance, dec.Status)

	_, err = svc.Scan(ctx, a, "INV-404")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestScanRespectsSecurityLevel(t *testing.T) {
	svc, store := newTestInventory(t, testConfig(), &fakeDirectory{})
	seedDevice(store, "INV-0011", model.SecurityCritique, "")

	_, err := svc.Scan(context.Background(), actor("emp", model.RoleEmployee), "INV-0011")
	require.ErrorIs(t, err, ErrForbidden)
}

// Full lifecycle of one device through the scan-driven flow.
func TestScanLoanReturnLifecycle(t *testing.T) {
	svc, store := newTestInventory(t, testConfig(), &fakeDirectory{})
	ctx := context.Background()
	a := actor("alice", model.RoleEmployee)
	d := seedDevice(store, "INV-1001", model.SecurityStandard, "")

	dec, err := svc.Scan(ctx, a, "INV-1001")
	require.NoError(t, err)
	require.Equal(t, "loan", dec.Action)

	loc := "lab B"
	loan, _, err := svc.Checkout(ctx, a, model.LoanRequest{DeviceID: d.ID, UsageLocation: &loc})
	require.NoError(t, err)
	require.Equal(t, "lab B", *loan.UsageLocation)

	dec, err = svc.Scan(ctx, a, "INV-1001")
	require.NoError(t, err)
	require.Equal(t, "return", dec.Action)

	_, _, err = svc.Return(ctx, a, d.ID, nil)
	require.NoError(t, err)

	dec, err = svc.Scan(ctx, a, "INV-1001")
	require.NoError(t, err)
	require.Equal(t, "loan", dec.Action, "the cycle is repeatable")
}

// ---- user management ----

func TestSetUserRolesTotalOverwrite(t *testing.T) {
	svc, store := newTestInventory(t, testConfig(), &fakeDirectory{})
	ctx := context.Background()

	u, err := svc.SetUserRoles(ctx, "alice", []string{model.RoleEmployee, model.RoleGestionnaire}, nil, nil, nil)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{model.RoleEmployee, model.RoleGestionnaire}, u.Roles)

	u, err = svc.SetUserRoles(ctx, "alice", []string{model.RoleExpert}, nil, nil, nil)
	require.NoError(t, err)
	require.Equal(t, []string{model.RoleExpert}, u.Roles, "assignment replaces, never accumulates")

	roles, err := store.ResolveRoles(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, []string{model.RoleExpert}, roles)
}

func TestSetUserRolesRejectsUnknownRole(t *testing.T) {
	svc, _ := newTestInventory(t, testConfig(), &fakeDirectory{})

	_, err := svc.SetUserRoles(context.Background(), "alice", []string{"superuser"}, nil, nil, nil)
	require.ErrorIs(t, err, ErrUnknownRole)
}

func TestListUsers(t *testing.T) {
	svc, _ := newTestInventory(t, testConfig(), &fakeDirectory{})
	ctx := context.Background()

	_, err := svc.SetUserRoles(ctx, "bob", []string{model.RoleEmployee}, nil, nil, nil)
	require.NoError(t, err)
	_, err = svc.SetUserRoles(ctx, "alice", []string{model.RoleAdmin}, nil, nil, nil)
	require.NoError(t, err)

	users, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	require.Equal(t, "alice", users[0].Username, "sorted by username")
	require.Equal(t, "bob", users[1].Username)
}

// ---- listing ----

func TestListDevicesPagination(t *testing.T) {
	svc, store := newTestInventory(t, testConfig(), &fakeDirectory{})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		seedDevice(store, fmt.Sprintf("INV-20%02d", i), model.SecurityStandard, "")
	}

	total, items, err := svc.ListDevices(ctx, model.DeviceFilter{Limit: 2})
	require.NoError(t, err)
	require.EqualValues(t, 5, total)
	require.Len(t, items, 2)

	total, items, err = svc.ListDevices(ctx, model.DeviceFilter{Skip: 4, Limit: 2})
	require.NoError(t, err)
	require.EqualValues(t, 5, total)
	require.Len(t, items, 1)
}

func TestGetDeviceAttachesOpenLoan(t *testing.T) {
	svc, store := newTestInventory(t, testConfig(), &fakeDirectory{})
	ctx := context.Background()
	d := seedDevice(store, "INV-0031", model.SecurityStandard, "")

	got, err := svc.GetDevice(ctx, d.ID)
	require.NoError(t, err)
	require.Nil(t, got.CurrentLoan)

	loan, _, err := svc.Checkout(ctx, actor("alice", model.RoleEmployee), model.LoanRequest{DeviceID: d.ID})
	require.NoError(t, err)

	got, err = svc.GetDevice(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CurrentLoan)
	require.Equal(t, loan.ID, got.CurrentLoan.ID)

	_, err = svc.GetDevice(ctx, 9999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListDevicesAttachesOpenLoan(t *testing.T) {
	svc, store := newTestInventory(t, testConfig(), &fakeDirectory{})
	ctx := context.Background()
	d := seedDevice(store, "INV-0030", model.SecurityStandard, "")

	_, _, err := svc.Checkout(ctx, actor("alice", model.RoleEmployee), model.LoanRequest{DeviceID: d.ID})
	require.NoError(t, err)

	_, items, err := svc.ListDevices(ctx, model.DeviceFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].CurrentLoan)
	require.Equal(t, d.ID, items[0].CurrentLoan.DeviceID)
}
