// Package queue defines message payloads exchanged over the message broker.
package queue

// LoanEvent is published on every successful loan or return. It carries
// enough information for downstream consumers to log or notify without
// querying the primary database. BorrowerID and ActedBy differ when a
// manager books a loan on another user's behalf.
type LoanEvent struct {
	LoanID          uint64 `json:"loan_id"`
	DeviceID        uint64 `json:"device_id"`
	InventoryNumber string `json:"inventory_number"`
	DeviceName      string `json:"device_name"`
	BorrowerID      uint64 `json:"borrower_id"`
	ActedBy         string `json:"acted_by"` // username that performed the operation
	Action          string `json:"action"`   // "loan" or "return"
	OccurredAt      string `json:"occurred_at"`
}
