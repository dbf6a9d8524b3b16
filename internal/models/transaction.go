package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionStatus is the lifecycle state of a purchase.
type TransactionStatus string

const (
	StatusPending      TransactionStatus = "pending"
	StatusApproved     TransactionStatus = "approved"
	StatusDeclined     TransactionStatus = "declined"
	StatusAutoApproved TransactionStatus = "auto_approved"
)

// Terminal reports whether no further transition is allowed.
func (s TransactionStatus) Terminal() bool {
	return s == StatusApproved || s == StatusDeclined || s == StatusAutoApproved
}

// Transaction is the durable record of a purchase attempt.
type Transaction struct {
	ID              uuid.UUID         `json:"id" db:"id"`
	FamilyID        uuid.UUID         `json:"family_id" db:"family_id"`
	VendorID        string            `json:"vendor_id" db:"vendor_id"`
	VendorName      string            `json:"vendor_name" db:"vendor_name"`
	Amount          decimal.Decimal   `json:"amount" db:"amount"`
	Description     string            `json:"description" db:"description"`
	ChildName       string            `json:"child_name,omitempty" db:"child_name"`
	Status          TransactionStatus `json:"status" db:"status"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
	ApprovedAt      *time.Time        `json:"approved_at,omitempty" db:"approved_at"`
	DeclinedAt      *time.Time        `json:"declined_at,omitempty" db:"declined_at"`
	ResponderID     *uuid.UUID        `json:"responder_id,omitempty" db:"responder_id"`
	DeclineReason   string            `json:"decline_reason,omitempty" db:"decline_reason"`
	TimeoutOccurred bool              `json:"timeout_occurred" db:"timeout_occurred"`
}

// Resolution describes the terminal transition applied to a pending transaction.
type Resolution struct {
	Status      TransactionStatus
	ResponderID *uuid.UUID
	Reason      string
	At          time.Time
}

// PendingApproval is the short-lived lookup record kept while a parent
// decision is outstanding.
type PendingApproval struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	FamilyID      uuid.UUID       `json:"family_id"`
	VendorID      string          `json:"vendor_id"`
	VendorName    string          `json:"vendor_name"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	ChildName     string          `json:"child_name,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
