package service

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Kerhoff/vpcs/internal/apperr"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	familyNumberPattern = regexp.MustCompile(`^[0-9]{1,20}$`)
	namePattern         = regexp.MustCompile(`^[a-zA-Z\s\-']+$`)
	vendorIDPattern     = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
)

const (
	maxNameLength        = 50
	maxDescriptionLength = 200
	maxReasonLength      = 500
)

// Approval actions accepted from parents.
const (
	ActionApprove = "approve"
	ActionDecline = "decline"
)

func validateFamilyNumber(field, number string) error {
	if number == "" {
		return apperr.Validation(field, "Family number is required")
	}
	if !familyNumberPattern.MatchString(number) {
		return apperr.Validation(field, "Family number must contain only digits")
	}
	return nil
}

func validateName(field, label, value string, required bool) error {
	if value == "" {
		if required {
			return apperr.Validation(field, label+" is required")
		}
		return nil
	}
	if utf8.RuneCountInString(value) > maxNameLength {
		return apperr.Validation(field, label+" is too long")
	}
	if !namePattern.MatchString(value) {
		return apperr.Validation(field, label+" contains invalid characters")
	}
	return nil
}

func validateVendorID(field, id string) error {
	if id == "" {
		return apperr.Validation(field, "Vendor ID is required")
	}
	if !vendorIDPattern.MatchString(id) {
		return apperr.Validation(field, "Vendor ID contains invalid characters")
	}
	return nil
}

func validateAmount(field string, amount, max decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.Validation(field, "Amount must be greater than zero")
	}
	if amount.GreaterThan(max) {
		return apperr.Validation(field, "Amount must not exceed "+max.StringFixed(2))
	}
	if !amount.Equal(amount.Truncate(2)) {
		return apperr.Validation(field, "Amount must have at most two decimal places")
	}
	return nil
}

func validateLimit(field string, limit decimal.Decimal) error {
	if limit.IsNegative() {
		return apperr.Validation(field, "Limit must not be negative")
	}
	if !limit.Equal(limit.Truncate(2)) {
		return apperr.Validation(field, "Limit must have at most two decimal places")
	}
	return nil
}

func validateText(field, label, value string, max int) error {
	if utf8.RuneCountInString(value) > max {
		return apperr.Validation(field, label+" is too long")
	}
	return nil
}

func parseTransactionID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, apperr.Validation(field, "Invalid transaction ID")
	}
	return id, nil
}
