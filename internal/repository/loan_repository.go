package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/lab-inventory/internal/model"
)

// LoanRepo is the loan ledger: it owns the loans table and is the only
// component allowed to flip a device's status. Open and Close each run in a
// single transaction that locks the device row, re-checks its status and
// commits the loan mutation together with the status change; a concurrent
// checkout that loses the race observes the committed status and fails with
// ErrConflict. The generated-column unique key on (device_id, open_marker)
// backstops the invariant below the application.
type LoanRepo struct{ DB *sql.DB }

func NewLoanRepo(db *sql.DB) *LoanRepo { return &LoanRepo{DB: db} }

const loanColumns = `id, device_id, borrower_id, usage_location, loaned_at, due_date, returned_at, notes`

func scanLoan(row interface{ Scan(...interface{}) error }) (model.Loan, error) {
	var l model.Loan
	err := row.Scan(&l.ID, &l.DeviceID, &l.BorrowerID, &l.UsageLocation,
		&l.LoanedAt, &l.DueDate, &l.ReturnedAt, &l.Notes)
	return l, err
}

// lockDeviceStatusTx reads and locks the device row, returning its current
// status name. Returns ErrNotFound for a missing device.
func lockDeviceStatusTx(ctx context.Context, tx *sql.Tx, deviceID uint64) (string, error) {
	const q = `SELECT s.name
	           FROM devices d
	           JOIN device_statuses s ON s.id = d.status_id
	           WHERE d.id = ?
	           FOR UPDATE`
	var status string
	err := tx.QueryRowContext(ctx, q, deviceID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return status, err
}

func statusIDTx(ctx context.Context, tx *sql.Tx, name string) (uint64, error) {
	var id uint64
	err := tx.QueryRowContext(ctx, `SELECT id FROM device_statuses WHERE name = ?`, name).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("status %q missing (seed device_statuses): %w", name, ErrNotFound)
	}
	return id, err
}

// Open checks a device out: inserts the open loan row and moves the device
// to "loaned" atomically. It fails with ErrNotFound when the device does
// not exist and ErrConflict when the device is in maintenance or already
// loaned.
func (r *LoanRepo) Open(ctx context.Context, req model.LoanRequest) (model.Loan, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.Loan{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	status, err := lockDeviceStatusTx(ctx, tx, req.DeviceID)
	if err != nil {
		return model.Loan{}, err
	}
	switch status {
	case model.StatusMaintenance:
		return model.Loan{}, fmt.Errorf("device in maintenance: %w", ErrConflict)
	case model.StatusLoaned:
		return model.Loan{}, fmt.Errorf("device already loaned: %w", ErrConflict)
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO loans (device_id, borrower_id, usage_location, loaned_at, due_date, notes)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		req.DeviceID, req.BorrowerID, req.UsageLocation, now, req.DueDate, req.Notes)
	if err != nil {
		// Unique open-loan key: a racing transaction inserted first.
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return model.Loan{}, fmt.Errorf("device already loaned: %w", ErrConflict)
		}
		return model.Loan{}, err
	}
	loanID, err := res.LastInsertId()
	if err != nil {
		return model.Loan{}, err
	}

	loanedID, err := statusIDTx(ctx, tx, model.StatusLoaned)
	if err != nil {
		return model.Loan{}, err
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE devices SET status_id = ? WHERE id = ?`, loanedID, req.DeviceID); err != nil {
		return model.Loan{}, err
	}

	loan, err := scanLoan(tx.QueryRowContext(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE id = ?`, loanID))
	if err != nil {
		return model.Loan{}, err
	}
	if err = tx.Commit(); err != nil {
		return model.Loan{}, err
	}
	committed = true
	return loan, nil
}

// Close returns a device: stamps returned_at on the single open loan,
// appends the supplied notes and moves the device back to "available", all
// in one transaction. Fails with ErrNotFound when the device is missing and
// ErrConflict when the device is in maintenance or has no open loan.
func (r *LoanRepo) Close(ctx context.Context, deviceID uint64, notes *string) (model.Loan, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.Loan{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	status, err := lockDeviceStatusTx(ctx, tx, deviceID)
	if err != nil {
		return model.Loan{}, err
	}
	if status == model.StatusMaintenance {
		return model.Loan{}, fmt.Errorf("device in maintenance: %w", ErrConflict)
	}

	// Most recently opened wins should the invariant ever be violated.
	loan, err := scanLoan(tx.QueryRowContext(ctx,
		`SELECT `+loanColumns+` FROM loans
		 WHERE device_id = ? AND returned_at IS NULL
		 ORDER BY loaned_at DESC, id DESC
		 LIMIT 1
		 FOR UPDATE`, deviceID))
	if err == sql.ErrNoRows {
		return model.Loan{}, fmt.Errorf("no open loan for device: %w", ErrConflict)
	}
	if err != nil {
		return model.Loan{}, err
	}

	now := time.Now().UTC()
	loan.ReturnedAt = &now
	if notes != nil && *notes != "" {
		if loan.Notes != nil && *loan.Notes != "" {
			merged := *loan.Notes + "\n" + *notes
			loan.Notes = &merged
		} else {
			loan.Notes = notes
		}
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE loans SET returned_at = ?, notes = ? WHERE id = ?`,
		loan.ReturnedAt, loan.Notes, loan.ID); err != nil {
		return model.Loan{}, err
	}

	availableID, err := statusIDTx(ctx, tx, model.StatusAvailable)
	if err != nil {
		return model.Loan{}, err
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE devices SET status_id = ? WHERE id = ?`, availableID, deviceID); err != nil {
		return model.Loan{}, err
	}

	if err = tx.Commit(); err != nil {
		return model.Loan{}, err
	}
	committed = true
	return loan, nil
}

// OpenByDevice returns the device's current open loan, or ErrNotFound.
func (r *LoanRepo) OpenByDevice(ctx context.Context, deviceID uint64) (model.Loan, error) {
	loan, err := scanLoan(r.DB.QueryRowContext(ctx,
		`SELECT `+loanColumns+` FROM loans
		 WHERE device_id = ? AND returned_at IS NULL
		 ORDER BY loaned_at DESC, id DESC
		 LIMIT 1`, deviceID))
	if err == sql.ErrNoRows {
		return model.Loan{}, ErrNotFound
	}
	return loan, err
}

// ListAll returns every loan, newest first.
func (r *LoanRepo) ListAll(ctx context.Context) ([]model.Loan, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+loanColumns+` FROM loans ORDER BY loaned_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Loan, 0)
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
