package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/lab-inventory/internal/model"
	"github.com/iliyamo/lab-inventory/internal/repository"
)

func TestCloseAppendsNotes(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	d := s.AddDevice(model.Device{InventoryNumber: "X-1", Name: "oscilloscope"})

	opening := "handle with care"
	_, err := s.Open(ctx, model.LoanRequest{DeviceID: d.ID, BorrowerID: 1, Notes: &opening})
	require.NoError(t, err)

	closing := "scratch on lid"
	loan, err := s.Close(ctx, d.ID, &closing)
	require.NoError(t, err)
	require.Equal(t, "handle with care\nscratch on lid", *loan.Notes)
}

func TestListAllNewestFirst(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	a := s.AddDevice(model.Device{InventoryNumber: "X-1", Name: "a"})
	b := s.AddDevice(model.Device{InventoryNumber: "X-2", Name: "b"})

	first, err := s.Open(ctx, model.LoanRequest{DeviceID: a.ID, BorrowerID: 1})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := s.Open(ctx, model.LoanRequest{DeviceID: b.ID, BorrowerID: 1})
	require.NoError(t, err)

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, second.ID, all[0].ID)
	require.Equal(t, first.ID, all[1].ID)
}

func TestUpsertWithRolesDedupesAndValidates(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	u, err := s.UpsertWithRoles(ctx, "alice",
		[]string{model.RoleAdmin, model.RoleAdmin, model.RoleExpert}, nil, nil, nil)
	require.NoError(t, err)
	require.Equal(t, []string{model.RoleAdmin, model.RoleExpert}, u.Roles)

	_, err = s.UpsertWithRoles(ctx, "alice", []string{"root"}, nil, nil, nil)
	require.ErrorIs(t, err, repository.ErrUnknownRole)
}

func TestProfileBackfillNeverOverwrites(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	old := "old@example.org"
	_, err := s.UpsertWithRoles(ctx, "alice", []string{model.RoleEmployee}, &old, nil, nil)
	require.NoError(t, err)

	fresh := "new@example.org"
	first := "Alice"
	require.NoError(t, s.UpdateProfile(ctx, "alice", &fresh, &first, nil))

	u, err := s.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, old, *u.Email, "populated fields are never overwritten")
	require.Equal(t, first, *u.FirstName, "empty fields are filled")
}

func TestUserByID(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	u, err := s.UpsertWithRoles(ctx, "alice", []string{model.RoleEmployee}, nil, nil, nil)
	require.NoError(t, err)

	got, err := s.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", got.Username)

	_, err = s.UserByID(ctx, 9999)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestOpenByDevice(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	d := s.AddDevice(model.Device{InventoryNumber: "X-1", Name: "a"})

	_, err := s.OpenByDevice(ctx, d.ID)
	require.ErrorIs(t, err, repository.ErrNotFound)

	opened, err := s.Open(ctx, model.LoanRequest{DeviceID: d.ID, BorrowerID: 1})
	require.NoError(t, err)

	got, err := s.OpenByDevice(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, opened.ID, got.ID)
}
