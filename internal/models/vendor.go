package models

import (
	"time"

	"github.com/google/uuid"
)

// VendorCategory values accepted for a vendor profile.
var VendorCategories = []string{
	"grocery", "pharmacy", "bakery", "toys", "books", "clothing", "electronics", "other",
}

// Vendor is a shop that can submit purchase requests.
type Vendor struct {
	ID               string     `json:"id" db:"id"`
	UserID           *uuid.UUID `json:"user_id,omitempty" db:"user_id"`
	Name             string     `json:"name" db:"name"`
	Category         string     `json:"category" db:"category"`
	RequiresApproval bool       `json:"requires_approval" db:"requires_approval"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// SurnameCacheEntry remembers the surname a vendor last used with a family number.
type SurnameCacheEntry struct {
	VendorID     string    `json:"vendor_id" db:"vendor_id"`
	FamilyNumber string    `json:"family_number" db:"family_number"`
	Surname      string    `json:"surname" db:"surname"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
