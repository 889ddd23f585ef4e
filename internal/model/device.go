package model

// Security levels a device can be declared with.  The level gates which
// roles may check the device out or return it; "standard" is unrestricted.
const (
	SecurityStandard = "standard"
	SecurityAvance   = "avance"
	SecurityCritique = "critique"
)

// IsSecurityLevel reports whether level is one of the known security levels.
func IsSecurityLevel(level string) bool {
	return level == SecurityStandard || level == SecurityAvance || level == SecurityCritique
}

// Canonical device status names.  The current status of a device is the sole
// lifecycle marker: "loaned" if and only if the device has exactly one open
// loan, and only the loan ledger ever flips it.
const (
	StatusAvailable   = "available"
	StatusLoaned      = "loaned"
	StatusMaintenance = "maintenance"
)

// DeviceType is seed/reference data describing a category of equipment
// (oscilloscope, laptop, ...).
type DeviceType struct {
	ID          uint64  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// DeviceStatus is reference data; one row per canonical status name.
type DeviceStatus struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

// Device mirrors the `devices` table plus the joined type and status names.
// SecurityLevel and TypeID never change automatically; StatusID is mutated
// only through loan/return transitions.
type Device struct {
	ID              uint64  `json:"id"`
	InventoryNumber string  `json:"inventory_number"`
	Name            string  `json:"name"`
	Description     *string `json:"description,omitempty"`
	Location        *string `json:"location,omitempty"`
	TypeID          uint64  `json:"type_id"`
	TypeName        string  `json:"type_name,omitempty"`
	StatusID        uint64  `json:"status_id"`
	StatusName      string  `json:"status_name,omitempty"`
	SecurityLevel   string  `json:"security_level"`
}

// DeviceWithLoan augments a device with its current open loan, when one
// exists.  Listing endpoints return this shape.
type DeviceWithLoan struct {
	Device
	CurrentLoan *Loan `json:"current_loan,omitempty"`
}

// DeviceFilter captures the supported listing filters.  Search is a
// case-insensitive substring match over name, inventory number, description
// and type name.  Zero values mean "no filter".
type DeviceFilter struct {
	Search   string
	StatusID uint64
	TypeID   uint64
	Skip     int
	Limit    int
}
