package repository

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/lab-inventory/internal/model"
)

func TestBuildDeviceWhereEmpty(t *testing.T) {
	where, args := buildDeviceWhere(model.DeviceFilter{})
	require.Empty(t, where)
	require.Empty(t, args)
}

func TestBuildDeviceWhereSearch(t *testing.T) {
	where, args := buildDeviceWhere(model.DeviceFilter{Search: "Oscillo"})
	require.Contains(t, where, "LOWER(d.name) LIKE ?")
	require.Contains(t, where, "LOWER(d.inventory_number) LIKE ?")
	require.Contains(t, where, "LOWER(COALESCE(d.description, '')) LIKE ?")
	require.Contains(t, where, "LOWER(t.name) LIKE ?")
	require.Equal(t, []interface{}{"%oscillo%", "%oscillo%", "%oscillo%", "%oscillo%"}, args,
		"search term is lowercased and wrapped once per column")
}

func TestBuildDeviceWhereCombined(t *testing.T) {
	where, args := buildDeviceWhere(model.DeviceFilter{Search: "x", StatusID: 2, TypeID: 7})
	require.Contains(t, where, " WHERE ")
	require.Contains(t, where, "d.status_id = ?")
	require.Contains(t, where, "d.type_id = ?")
	require.Len(t, args, 6)
	require.Equal(t, uint64(2), args[4])
	require.Equal(t, uint64(7), args[5])
}

func TestBuildDeviceWhereIDFiltersOnly(t *testing.T) {
	where, args := buildDeviceWhere(model.DeviceFilter{StatusID: 3})
	require.Equal(t, " WHERE d.status_id = ?", where)
	require.Equal(t, []interface{}{uint64(3)}, args)
}
