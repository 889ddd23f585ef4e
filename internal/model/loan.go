package model

import "time"

// Loan models an entry in the `loans` table.  A loan is open while
// ReturnedAt is nil; the database enforces at most one open loan per device
// through a generated-column unique key, so the ledger can rely on the row
// being exclusive.
//
// Fields:
//  ID            – primary key identifier.
//  DeviceID      – device being borrowed.
//  BorrowerID    – user who holds the device.
//  UsageLocation – optional free-text location where the device will be used.
//  LoanedAt      – UTC timestamp set at checkout.
//  DueDate       – optional expected return date.
//  ReturnedAt    – UTC timestamp of the return; nil while the loan is open.
//  Notes         – optional free-text notes, appended to on return.
type Loan struct {
	ID            uint64     `json:"id"`
	DeviceID      uint64     `json:"device_id"`
	BorrowerID    uint64     `json:"borrower_id"`
	UsageLocation *string    `json:"usage_location,omitempty"`
	LoanedAt      time.Time  `json:"loaned_at"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	ReturnedAt    *time.Time `json:"returned_at,omitempty"`
	Notes         *string    `json:"notes,omitempty"`
}

// Open reports whether the loan has not been returned yet.
func (l Loan) Open() bool { return l.ReturnedAt == nil }

// LoanRequest carries the caller-supplied fields of a checkout.
type LoanRequest struct {
	DeviceID      uint64
	BorrowerID    uint64
	UsageLocation *string
	DueDate       *time.Time
	Notes         *string
}
