package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Family is the unit that owns a spending policy. Vendors identify it by the
// public (Number, Surname) pair.
type Family struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	Number       string          `json:"family_number" db:"number"`
	Surname      string          `json:"surname" db:"surname"`
	DefaultLimit decimal.Decimal `json:"default_limit" db:"default_limit"`
	OwnerUserID  uuid.UUID       `json:"owner_user_id" db:"owner_user_id"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// VendorLimit is a per-(family, vendor) override of the family default.
// A nil LimitAmount means the override only carries the approval flag.
type VendorLimit struct {
	FamilyID        uuid.UUID        `json:"family_id" db:"family_id"`
	VendorID        string           `json:"vendor_id" db:"vendor_id"`
	LimitAmount     *decimal.Decimal `json:"limit_amount,omitempty" db:"limit_amount"`
	RequireApproval bool             `json:"require_approval" db:"require_approval"`
	UpdatedAt       time.Time        `json:"updated_at" db:"updated_at"`
}
