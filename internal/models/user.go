package models

import (
	"time"

	"github.com/google/uuid"
)

// Role distinguishes family members from shop accounts.
type Role string

const (
	RoleParent Role = "parent"
	RoleVendor Role = "vendor"
)

// User is an authenticated account. CurrentChallenge holds the serialized
// state of the single outstanding WebAuthn ceremony, if any.
type User struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	Username         string     `json:"username" db:"username"`
	Role             Role       `json:"role" db:"role"`
	FamilyID         *uuid.UUID `json:"family_id,omitempty" db:"family_id"`
	CurrentChallenge *string    `json:"-" db:"current_challenge"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// Authenticator is a registered WebAuthn credential.
type Authenticator struct {
	ID              int64     `json:"id" db:"id"`
	UserID          uuid.UUID `json:"user_id" db:"user_id"`
	CredentialID    []byte    `json:"credential_id" db:"credential_id"`
	PublicKey       []byte    `json:"-" db:"public_key"`
	AttestationType string    `json:"attestation_type" db:"attestation_type"`
	Transports      []string  `json:"transports" db:"transports"`
	SignCount       uint32    `json:"sign_count" db:"sign_count"`
	AAGUID          []byte    `json:"aaguid" db:"aaguid"`
	UserVerified    bool      `json:"user_verified" db:"user_verified"`
	BackupEligible  bool      `json:"backup_eligible" db:"backup_eligible"`
	BackupState     bool      `json:"backup_state" db:"backup_state"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// InviteLink lets an existing parent bring another parent into the family.
type InviteLink struct {
	ID        int64      `json:"id" db:"id"`
	UserID    uuid.UUID  `json:"user_id" db:"user_id"`
	Token     string     `json:"token" db:"token"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	Used      bool       `json:"used" db:"used"`
	NewUserID *uuid.UUID `json:"new_user_id,omitempty" db:"new_user_id"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// Usable reports whether the link can still be redeemed at now.
func (l *InviteLink) Usable(now time.Time) bool {
	return !l.Used && now.Before(l.ExpiresAt)
}
