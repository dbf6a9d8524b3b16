package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Kerhoff/vpcs/internal/apperr"
	"github.com/Kerhoff/vpcs/internal/models"
	"github.com/Kerhoff/vpcs/internal/repository"
	"github.com/shopspring/decimal"
)

const defaultHistoryLimit = 50

// FamilySettings is what a parent sees on the settings page.
type FamilySettings struct {
	FamilyNumber string          `json:"family_number"`
	Surname      string          `json:"surname"`
	DefaultLimit decimal.Decimal `json:"default_limit"`
	Configured   bool            `json:"configured"`
}

func (s *Service) requireParent(user *models.User) error {
	if user == nil || user.Role != models.RoleParent {
		return apperr.Forbidden("Parent account required")
	}
	return nil
}

func (s *Service) requireFamily(ctx context.Context, user *models.User) (*models.Family, error) {
	if err := s.requireParent(user); err != nil {
		return nil, err
	}
	family, err := s.Families.GetByMember(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup family for user %s: %w", user.ID, err)
	}
	if family == nil {
		return nil, apperr.Validation("family", "Please configure family settings first")
	}
	return family, nil
}

// GetFamilySettings returns the caller's family, or defaults when none exists yet.
func (s *Service) GetFamilySettings(ctx context.Context, user *models.User) (*FamilySettings, error) {
	if err := s.requireParent(user); err != nil {
		return nil, err
	}
	family, err := s.Families.GetByMember(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup family for user %s: %w", user.ID, err)
	}
	if family == nil {
		return &FamilySettings{DefaultLimit: s.opts.DefaultLimit}, nil
	}
	return &FamilySettings{
		FamilyNumber: family.Number,
		Surname:      family.Surname,
		DefaultLimit: family.DefaultLimit,
		Configured:   true,
	}, nil
}

// SaveFamilySettings creates the caller's family or renames it. Family
// numbers are unique across all families.
func (s *Service) SaveFamilySettings(ctx context.Context, user *models.User, number, surname string) (*models.Family, error) {
	if err := s.requireParent(user); err != nil {
		return nil, err
	}
	number = strings.TrimSpace(number)
	surname = strings.TrimSpace(surname)
	if err := validateFamilyNumber("family_number", number); err != nil {
		return nil, err
	}
	if err := validateName("surname", "Surname", surname, true); err != nil {
		return nil, err
	}

	family, err := s.Families.GetByMember(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup family for user %s: %w", user.ID, err)
	}
	taken, err := s.Families.GetByNumber(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup family number: %w", err)
	}
	if taken != nil && (family == nil || taken.ID != family.ID) {
		return nil, apperr.Conflict("Family number already in use")
	}

	now := s.now()
	if family == nil {
		family, err = s.Families.Create(ctx, &models.Family{
			Number:       number,
			Surname:      surname,
			DefaultLimit: s.opts.DefaultLimit,
			OwnerUserID:  user.ID,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Conflict("Family number already in use")
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create family: %w", err)
		}
		if err := s.Users.SetFamily(ctx, user.ID, family.ID); err != nil {
			return nil, fmt.Errorf("failed to join family: %w", err)
		}
		s.logger.WithField("family_id", family.ID).Info("Created family")
		return family, nil
	}

	family.Number = number
	family.Surname = surname
	family.UpdatedAt = now
	family, err = s.Families.Update(ctx, family)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, apperr.Conflict("Family number already in use")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update family: %w", err)
	}
	return family, nil
}

// SetDefaultLimit changes the family-wide auto-approval limit.
func (s *Service) SetDefaultLimit(ctx context.Context, user *models.User, limit decimal.Decimal) error {
	if err := validateLimit("default_limit", limit); err != nil {
		return err
	}
	family, err := s.requireFamily(ctx, user)
	if err != nil {
		return err
	}
	if err := s.Families.UpdateDefaultLimit(ctx, family.ID, limit); err != nil {
		return fmt.Errorf("failed to update default limit: %w", err)
	}
	return nil
}

// VendorLimitInput configures a per-vendor override.
type VendorLimitInput struct {
	Limit           *decimal.Decimal `json:"limit"`
	RequireApproval bool             `json:"require_approval"`
}

// SetVendorLimit creates or replaces the caller family's override for a vendor.
func (s *Service) SetVendorLimit(ctx context.Context, user *models.User, vendorID string, in VendorLimitInput) (*models.VendorLimit, error) {
	if err := validateVendorID("vendorId", vendorID); err != nil {
		return nil, err
	}
	if in.Limit != nil {
		if err := validateLimit("limit", *in.Limit); err != nil {
			return nil, err
		}
	}
	family, err := s.requireFamily(ctx, user)
	if err != nil {
		return nil, err
	}
	vendor, err := s.Vendors.GetByID(ctx, vendorID)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup vendor %s: %w", vendorID, err)
	}
	if vendor == nil {
		return nil, apperr.NotFound("Vendor not found")
	}

	limit := &models.VendorLimit{
		FamilyID:        family.ID,
		VendorID:        vendor.ID,
		LimitAmount:     in.Limit,
		RequireApproval: in.RequireApproval,
		UpdatedAt:       s.now(),
	}
	if err := s.Vendors.SetLimit(ctx, limit); err != nil {
		return nil, fmt.Errorf("failed to save vendor limit: %w", err)
	}
	return limit, nil
}

// DeleteVendorLimit removes an override so the family default applies again.
func (s *Service) DeleteVendorLimit(ctx context.Context, user *models.User, vendorID string) error {
	if err := validateVendorID("vendorId", vendorID); err != nil {
		return err
	}
	family, err := s.requireFamily(ctx, user)
	if err != nil {
		return err
	}
	if err := s.Vendors.DeleteLimit(ctx, family.ID, vendorID); err != nil {
		return fmt.Errorf("failed to delete vendor limit: %w", err)
	}
	return nil
}

// ListVendorLimits returns every override of the caller's family.
func (s *Service) ListVendorLimits(ctx context.Context, user *models.User) ([]*models.VendorLimit, error) {
	family, err := s.requireFamily(ctx, user)
	if err != nil {
		return nil, err
	}
	limits, err := s.Vendors.ListLimits(ctx, family.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list vendor limits: %w", err)
	}
	return limits, nil
}

// FamilyTransactions returns the most recent purchases of the caller's family.
func (s *Service) FamilyTransactions(ctx context.Context, user *models.User, limit int) ([]*models.Transaction, error) {
	if limit <= 0 || limit > defaultHistoryLimit {
		limit = defaultHistoryLimit
	}
	family, err := s.requireFamily(ctx, user)
	if err != nil {
		return nil, err
	}
	txs, err := s.Transactions.ListRecentByFamily(ctx, family.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list family transactions: %w", err)
	}
	return txs, nil
}

