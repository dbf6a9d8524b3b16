// Package limits decides whether a purchase may proceed without a parent.
package limits

import (
	"github.com/Kerhoff/vpcs/internal/models"
	"github.com/shopspring/decimal"
)

// DefaultFallback applies when neither an override nor a family default exists.
var DefaultFallback = decimal.NewFromInt(50)

// Reason explains which rule produced a decision.
type Reason string

const (
	ReasonVendorAlwaysRequires   Reason = "vendor_requires_approval"
	ReasonOverrideAlwaysRequires Reason = "override_requires_approval"
	ReasonOverLimit              Reason = "over_limit"
	ReasonWithinLimit            Reason = "within_limit"
)

// Input is everything the evaluator looks at. Nil pointers mean "not set".
type Input struct {
	Amount               decimal.Decimal
	VendorAlwaysRequires bool
	Override             *models.VendorLimit
	FamilyDefault        *decimal.Decimal
	Fallback             decimal.Decimal
}

// Decision is the evaluator's verdict and the limit it was measured against.
type Decision struct {
	RequiresApproval bool
	Limit            decimal.Decimal
	Reason           Reason
}

// Evaluate applies the approval rules in priority order. An always-approval
// flag on the vendor or on the override wins over any numeric limit. The
// amount is compared on its own, without any accumulated spend.
func Evaluate(in Input) Decision {
	limit := ApplicableLimit(in.Override, in.FamilyDefault, in.Fallback)

	switch {
	case in.VendorAlwaysRequires:
		return Decision{RequiresApproval: true, Limit: limit, Reason: ReasonVendorAlwaysRequires}
	case in.Override != nil && in.Override.RequireApproval:
		return Decision{RequiresApproval: true, Limit: limit, Reason: ReasonOverrideAlwaysRequires}
	case in.Amount.GreaterThan(limit):
		return Decision{RequiresApproval: true, Limit: limit, Reason: ReasonOverLimit}
	default:
		return Decision{RequiresApproval: false, Limit: limit, Reason: ReasonWithinLimit}
	}
}

// ApplicableLimit resolves override, then family default, then fallback.
// A zero fallback is replaced by DefaultFallback.
func ApplicableLimit(override *models.VendorLimit, familyDefault *decimal.Decimal, fallback decimal.Decimal) decimal.Decimal {
	if override != nil && override.LimitAmount != nil {
		return *override.LimitAmount
	}
	if familyDefault != nil {
		return *familyDefault
	}
	if fallback.IsZero() {
		return DefaultFallback
	}
	return fallback
}
