package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/lab-inventory/internal/model"
)

// DeviceRepo provides CRUD and listing for devices. Status transitions are
// deliberately absent here; only the loan ledger mutates a device's status.
type DeviceRepo struct{ DB *sql.DB }

func NewDeviceRepo(db *sql.DB) *DeviceRepo { return &DeviceRepo{DB: db} }

const deviceColumns = `d.id, d.inventory_number, d.name, d.description, d.location,
	d.type_id, t.name, d.status_id, s.name, d.security_level`

const deviceJoins = ` FROM devices d
	JOIN device_types t ON t.id = d.type_id
	JOIN device_statuses s ON s.id = d.status_id`

func scanDevice(row interface{ Scan(...interface{}) error }) (model.Device, error) {
	var d model.Device
	err := row.Scan(&d.ID, &d.InventoryNumber, &d.Name, &d.Description, &d.Location,
		&d.TypeID, &d.TypeName, &d.StatusID, &d.StatusName, &d.SecurityLevel)
	return d, err
}

// GetByID fetches a device with its joined type and status names.
func (r *DeviceRepo) GetByID(ctx context.Context, id uint64) (model.Device, error) {
	d, err := scanDevice(r.DB.QueryRowContext(ctx,
		`SELECT `+deviceColumns+deviceJoins+` WHERE d.id = ?`, id))
	if err == sql.ErrNoRows {
		return model.Device{}, ErrNotFound
	}
	return d, err
}

// GetByInventory fetches a device by its unique inventory number.
func (r *DeviceRepo) GetByInventory(ctx context.Context, inventoryNumber string) (model.Device, error) {
	d, err := scanDevice(r.DB.QueryRowContext(ctx,
		`SELECT `+deviceColumns+deviceJoins+` WHERE d.inventory_number = ?`, inventoryNumber))
	if err == sql.ErrNoRows {
		return model.Device{}, ErrNotFound
	}
	return d, err
}

// buildDeviceWhere renders the WHERE clause and arguments for a filter.
// Extracted so the query shape can be unit tested without a database.
func buildDeviceWhere(f model.DeviceFilter) (string, []interface{}) {
	clauses := make([]string, 0, 3)
	args := make([]interface{}, 0, 6)
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		clauses = append(clauses,
			`(LOWER(d.name) LIKE ? OR LOWER(d.inventory_number) LIKE ? OR LOWER(COALESCE(d.description, '')) LIKE ? OR LOWER(t.name) LIKE ?)`)
		args = append(args, like, like, like, like)
	}
	if f.StatusID != 0 {
		clauses = append(clauses, `d.status_id = ?`)
		args = append(args, f.StatusID)
	}
	if f.TypeID != 0 {
		clauses = append(clauses, `d.type_id = ?`)
		args = append(args, f.TypeID)
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// List returns the total number of matching devices plus one page of them,
// each augmented with its current open loan when one exists. When multiple
// open loans exist for a device (forbidden by the unique key, but tolerated
// here), the most recently opened wins.
func (r *DeviceRepo) List(ctx context.Context, f model.DeviceFilter) (int64, []model.DeviceWithLoan, error) {
	where, args := buildDeviceWhere(f)

	var total int64
	if err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*)`+deviceJoins+where, args...).Scan(&total); err != nil {
		return 0, nil, err
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Skip < 0 {
		f.Skip = 0
	}
	pageArgs := append(append([]interface{}{}, args...), f.Limit, f.Skip)
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+deviceColumns+deviceJoins+where+` ORDER BY d.id LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()

	items := make([]model.DeviceWithLoan, 0)
	index := make(map[uint64]int)
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return 0, nil, err
		}
		index[d.ID] = len(items)
		items = append(items, model.DeviceWithLoan{Device: d})
	}
	if err := rows.Err(); err != nil {
		return 0, nil, err
	}
	if len(items) == 0 {
		return total, items, nil
	}

	// Attach open loans for the whole page in one query.
	ids := make([]interface{}, 0, len(items))
	placeholders := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
		placeholders = append(placeholders, "?")
	}
	loanQ := `SELECT id, device_id, borrower_id, usage_location, loaned_at, due_date, returned_at, notes
	          FROM loans
	          WHERE device_id IN (` + strings.Join(placeholders, ",") + `) AND returned_at IS NULL
	          ORDER BY loaned_at DESC`
	lrows, err := r.DB.QueryContext(ctx, loanQ, ids...)
	if err != nil {
		return 0, nil, err
	}
	defer lrows.Close()
	for lrows.Next() {
		var l model.Loan
		if err := lrows.Scan(&l.ID, &l.DeviceID, &l.BorrowerID, &l.UsageLocation,
			&l.LoanedAt, &l.DueDate, &l.ReturnedAt, &l.Notes); err != nil {
			return 0, nil, err
		}
		i, ok := index[l.DeviceID]
		if !ok || items[i].CurrentLoan != nil {
			continue // first row per device wins (newest loaned_at)
		}
		loan := l
		items[i].CurrentLoan = &loan
	}
	if err := lrows.Err(); err != nil {
		return 0, nil, err
	}
	return total, items, nil
}

// DeviceCreate carries the caller-supplied fields of a device creation.
// StatusID zero means "available".
type DeviceCreate struct {
	InventoryNumber string
	Name            string
	Description     *string
	Location        *string
	TypeID          uint64
	StatusID        uint64
	SecurityLevel   string
}

// Create inserts a device. Duplicate inventory numbers yield ErrConflict; a
// zero StatusID defaults to the available status.
func (r *DeviceRepo) Create(ctx context.Context, in DeviceCreate) (model.Device, error) {
	if in.SecurityLevel == "" {
		in.SecurityLevel = model.SecurityStandard
	}
	statusID := in.StatusID
	if statusID == 0 {
		if err := r.DB.QueryRowContext(ctx,
			`SELECT id FROM device_statuses WHERE name = ?`, model.StatusAvailable).Scan(&statusID); err != nil {
			return model.Device{}, err
		}
	}
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO devices (inventory_number, name, description, location, type_id, status_id, security_level)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		in.InventoryNumber, in.Name, in.Description, in.Location, in.TypeID, statusID, in.SecurityLevel)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return model.Device{}, ErrConflict
		}
		return model.Device{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Device{}, err
	}
	return r.GetByID(ctx, uint64(id))
}

// DeviceUpdate carries the optional fields of a partial device update. Nil
// means "leave unchanged". The device status is absent on purpose: it is
// owned by the loan ledger.
type DeviceUpdate struct {
	InventoryNumber *string
	Name            *string
	Description     *string
	Location        *string
	TypeID          *uint64
	SecurityLevel   *string
}

// Update applies the non-nil fields of the patch and returns the fresh row.
func (r *DeviceRepo) Update(ctx context.Context, id uint64, patch DeviceUpdate) (model.Device, error) {
	sets := make([]string, 0, 6)
	args := make([]interface{}, 0, 7)
	if patch.InventoryNumber != nil {
		sets = append(sets, "inventory_number = ?")
		args = append(args, *patch.InventoryNumber)
	}
	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *patch.Name)
	}
	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.Location != nil {
		sets = append(sets, "location = ?")
		args = append(args, *patch.Location)
	}
	if patch.TypeID != nil {
		sets = append(sets, "type_id = ?")
		args = append(args, *patch.TypeID)
	}
	if patch.SecurityLevel != nil {
		sets = append(sets, "security_level = ?")
		args = append(args, *patch.SecurityLevel)
	}
	if len(sets) > 0 {
		args = append(args, id)
		res, err := r.DB.ExecContext(ctx,
			`UPDATE devices SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
		if err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "1062") {
				return model.Device{}, ErrConflict
			}
			return model.Device{}, err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			// Distinguish "row missing" from "row unchanged".
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return model.Device{}, getErr
			}
		}
	}
	return r.GetByID(ctx, id)
}

// Delete removes a device. Loans cascade at the schema level.
func (r *DeviceRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
