package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Kerhoff/vpcs/internal/apperr"
	"github.com/Kerhoff/vpcs/internal/limits"
	"github.com/Kerhoff/vpcs/internal/models"
	"github.com/shopspring/decimal"
)

const vendorHistoryWindow = time.Hour

// VendorProfile is the editable part of a vendor.
type VendorProfile struct {
	Name             string `json:"name"`
	Category         string `json:"category"`
	RequiresApproval bool   `json:"requires_approval"`
}

func requireVendor(user *models.User) error {
	if user == nil || user.Role != models.RoleVendor {
		return apperr.Forbidden("Vendor account required")
	}
	return nil
}

// GetVendorProfile returns the vendor attached to the caller's account.
func (s *Service) GetVendorProfile(ctx context.Context, user *models.User) (*models.Vendor, error) {
	if err := requireVendor(user); err != nil {
		return nil, err
	}
	vendor, err := s.Vendors.GetByID(ctx, user.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup vendor %s: %w", user.Username, err)
	}
	if vendor == nil {
		return nil, apperr.NotFound("Vendor profile not configured")
	}
	return vendor, nil
}

// SaveVendorProfile creates or updates the caller's vendor record. The vendor
// id is the account's username.
func (s *Service) SaveVendorProfile(ctx context.Context, user *models.User, p VendorProfile) (*models.Vendor, error) {
	if err := requireVendor(user); err != nil {
		return nil, err
	}
	p.Name = strings.TrimSpace(p.Name)
	p.Category = strings.ToLower(strings.TrimSpace(p.Category))
	if p.Name == "" {
		return nil, apperr.Validation("name", "Vendor name is required")
	}
	if err := validateText("name", "Vendor name", p.Name, 100); err != nil {
		return nil, err
	}
	if p.Category == "" {
		p.Category = "other"
	}
	if !slices.Contains(models.VendorCategories, p.Category) {
		return nil, apperr.Validation("category", "Unknown vendor category")
	}

	now := s.now()
	vendor, err := s.Vendors.Upsert(ctx, &models.Vendor{
		ID:               user.Username,
		UserID:           &user.ID,
		Name:             p.Name,
		Category:         p.Category,
		RequiresApproval: p.RequiresApproval,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save vendor profile: %w", err)
	}
	return vendor, nil
}

// SubmitVendorPayment is SubmitPurchase on behalf of an authenticated vendor.
func (s *Service) SubmitVendorPayment(ctx context.Context, user *models.User, req PurchaseRequest) (*PurchaseResult, error) {
	if err := requireVendor(user); err != nil {
		return nil, err
	}
	if req.VendorID != "" && req.VendorID != user.Username {
		return nil, apperr.Forbidden("Cannot submit payments for another vendor")
	}
	req.VendorID = user.Username
	return s.SubmitPurchase(ctx, req)
}

// VendorHistory returns the vendor's transactions from the last hour. A
// vendor may only read its own history.
func (s *Service) VendorHistory(ctx context.Context, user *models.User, vendorID string) ([]*models.Transaction, error) {
	if err := requireVendor(user); err != nil {
		return nil, err
	}
	if vendorID == "" {
		vendorID = user.Username
	}
	if vendorID != user.Username {
		return nil, apperr.Forbidden("Cannot read another vendor's history")
	}
	txs, err := s.Transactions.ListRecentByVendor(ctx, vendorID, s.now().Add(-vendorHistoryWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to list vendor history: %w", err)
	}
	return txs, nil
}

// FamilyInfo is what a vendor learns about a family number before charging.
type FamilyInfo struct {
	FamilyNumber string          `json:"family_number"`
	Surname      string          `json:"surname,omitempty"`
	Limit        decimal.Decimal `json:"limit"`
	// RequiresApproval is set when every purchase needs a parent.
	RequiresApproval bool `json:"requires_approval"`
}

// FamilyInfo reports the limit that applies to the caller for a family. The
// surname is only what this vendor entered before, never the stored one.
func (s *Service) FamilyInfo(ctx context.Context, user *models.User, number string) (*FamilyInfo, error) {
	if err := requireVendor(user); err != nil {
		return nil, err
	}
	number = strings.TrimSpace(number)
	if err := validateFamilyNumber("family_number", number); err != nil {
		return nil, err
	}
	family, err := s.Families.GetByNumber(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup family: %w", err)
	}
	if family == nil {
		return nil, apperr.NotFound("Family not found")
	}
	vendor, err := s.Vendors.GetByID(ctx, user.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup vendor %s: %w", user.Username, err)
	}
	override, err := s.Vendors.GetLimit(ctx, family.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to load vendor limit: %w", err)
	}
	cached, err := s.Vendors.GetCachedSurname(ctx, user.Username, number)
	if err != nil {
		return nil, fmt.Errorf("failed to load cached surname: %w", err)
	}

	familyDefault := family.DefaultLimit
	info := &FamilyInfo{
		FamilyNumber: number,
		Limit:        limits.ApplicableLimit(override, &familyDefault, s.opts.DefaultLimit),
	}
	info.RequiresApproval = (vendor != nil && vendor.RequiresApproval) || (override != nil && override.RequireApproval)
	if cached != nil {
		info.Surname = cached.Surname
	}
	return info, nil
}

// CachedSurname returns the surname the caller last used with a family number.
func (s *Service) CachedSurname(ctx context.Context, user *models.User, number string) (*models.SurnameCacheEntry, error) {
	if err := requireVendor(user); err != nil {
		return nil, err
	}
	number = strings.TrimSpace(number)
	if err := validateFamilyNumber("family_number", number); err != nil {
		return nil, err
	}
	entry, err := s.Vendors.GetCachedSurname(ctx, user.Username, number)
	if err != nil {
		return nil, fmt.Errorf("failed to load cached surname: %w", err)
	}
	if entry == nil {
		return nil, apperr.NotFound("No surname cached for this family number")
	}
	return entry, nil
}
