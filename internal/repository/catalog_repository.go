package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/lab-inventory/internal/model"
)

// CatalogRepo owns the device_types and device_statuses reference tables.
type CatalogRepo struct{ DB *sql.DB }

func NewCatalogRepo(db *sql.DB) *CatalogRepo { return &CatalogRepo{DB: db} }

// EnsureStatuses idempotently seeds the three canonical status rows. The
// ledger resolves statuses by name, so these must exist before any loan
// operation.
func (r *CatalogRepo) EnsureStatuses(ctx context.Context) error {
	const q = `INSERT IGNORE INTO device_statuses (name) VALUES (?), (?), (?)`
	_, err := r.DB.ExecContext(ctx, q,
		model.StatusAvailable, model.StatusLoaned, model.StatusMaintenance)
	return err
}

// ListTypes returns all device types ordered by name.
func (r *CatalogRepo) ListTypes(ctx context.Context) ([]model.DeviceType, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, name, description FROM device_types ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.DeviceType, 0)
	for rows.Next() {
		var t model.DeviceType
		if err := rows.Scan(&t.ID, &t.Name, &t.Description); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CreateType inserts a device type; duplicate names yield ErrConflict.
func (r *CatalogRepo) CreateType(ctx context.Context, name string, description *string) (model.DeviceType, error) {
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO device_types (name, description) VALUES (?, ?)`, name, description)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return model.DeviceType{}, ErrConflict
		}
		return model.DeviceType{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.DeviceType{}, err
	}
	return model.DeviceType{ID: uint64(id), Name: name, Description: description}, nil
}

// ListStatuses returns all status rows ordered by id (seed order).
func (r *CatalogRepo) ListStatuses(ctx context.Context) ([]model.DeviceStatus, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, name FROM device_statuses ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.DeviceStatus, 0)
	for rows.Next() {
		var s model.DeviceStatus
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CreateStatus inserts a status row; duplicate names yield ErrConflict.
func (r *CatalogRepo) CreateStatus(ctx context.Context, name string) (model.DeviceStatus, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO device_statuses (name) VALUES (?)`, name)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return model.DeviceStatus{}, ErrConflict
		}
		return model.DeviceStatus{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.DeviceStatus{}, err
	}
	return model.DeviceStatus{ID: uint64(id), Name: name}, nil
}
