package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Kerhoff/vpcs/internal/apperr"
	"github.com/Kerhoff/vpcs/internal/limits"
	"github.com/Kerhoff/vpcs/internal/models"
	"github.com/Kerhoff/vpcs/internal/notify"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// PurchaseRequest is a vendor's attempt to charge a family.
type PurchaseRequest struct {
	FamilyNumber string          `json:"number"`
	Surname      string          `json:"surname"`
	VendorID     string          `json:"vendorId"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description,omitempty"`
	ChildName    string          `json:"childName,omitempty"`
}

func (r *PurchaseRequest) normalize() {
	r.FamilyNumber = strings.TrimSpace(r.FamilyNumber)
	r.Surname = strings.TrimSpace(r.Surname)
	r.VendorID = strings.TrimSpace(r.VendorID)
	r.Description = strings.TrimSpace(r.Description)
	r.ChildName = strings.TrimSpace(r.ChildName)
}

func (r *PurchaseRequest) validate(max decimal.Decimal) error {
	if err := validateFamilyNumber("number", r.FamilyNumber); err != nil {
		return err
	}
	if err := validateName("surname", "Surname", r.Surname, true); err != nil {
		return err
	}
	if err := validateVendorID("vendorId", r.VendorID); err != nil {
		return err
	}
	if err := validateAmount("amount", r.Amount, max); err != nil {
		return err
	}
	if err := validateName("childName", "Child name", r.ChildName, false); err != nil {
		return err
	}
	return validateText("description", "Description", r.Description, maxDescriptionLength)
}

// PurchaseResult is returned to the vendor.
type PurchaseResult struct {
	Status           models.TransactionStatus `json:"status"`
	TransactionID    string                   `json:"transaction_id"`
	Message          string                   `json:"message"`
	RequiresApproval bool                     `json:"requires_approval"`
	// ApprovalTimeout is the auto-approval delay in seconds.
	ApprovalTimeout int `json:"approval_timeout,omitempty"`
}

// SubmitPurchase evaluates a purchase against the family's limits. Purchases
// within the limit are approved synchronously. Anything else is recorded as
// pending, parents are notified and an auto-approval is armed.
func (s *Service) SubmitPurchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error) {
	req.normalize()
	if err := req.validate(s.opts.MaxAmount); err != nil {
		s.metrics.PurchaseOutcome("rejected")
		return nil, err
	}

	family, err := s.Families.GetByNumberAndSurname(ctx, req.FamilyNumber, req.Surname)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup family: %w", err)
	}
	if family == nil {
		s.metrics.PurchaseOutcome("rejected")
		return nil, apperr.NotFound("Family not registered. Please ask a parent to register first.")
	}

	vendor, err := s.Vendors.GetByID(ctx, req.VendorID)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup vendor %s: %w", req.VendorID, err)
	}
	if vendor == nil {
		s.metrics.PurchaseOutcome("rejected")
		return nil, apperr.NotFound("Vendor not found")
	}

	override, err := s.Vendors.GetLimit(ctx, family.ID, vendor.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load vendor limit: %w", err)
	}

	familyDefault := family.DefaultLimit
	decision := limits.Evaluate(limits.Input{
		Amount:               req.Amount,
		VendorAlwaysRequires: vendor.RequiresApproval,
		Override:             override,
		FamilyDefault:        &familyDefault,
		Fallback:             s.opts.DefaultLimit,
	})

	if err := s.Vendors.CacheSurname(ctx, vendor.ID, family.Number, req.Surname); err != nil {
		s.logger.WithError(err).Warn("Failed to cache vendor surname")
	}

	log := s.logger.WithFields(logrus.Fields{
		"family_id": family.ID,
		"vendor_id": vendor.ID,
		"amount":    req.Amount.StringFixed(2),
		"limit":     decision.Limit.StringFixed(2),
		"reason":    decision.Reason,
	})

	tx := &models.Transaction{
		FamilyID:    family.ID,
		VendorID:    vendor.ID,
		VendorName:  vendor.Name,
		Amount:      req.Amount,
		Description: req.Description,
		ChildName:   req.ChildName,
		CreatedAt:   s.now(),
	}

	if !decision.RequiresApproval {
		tx, err = s.Transactions.CreateApproved(ctx, tx)
		if err != nil {
			return nil, fmt.Errorf("failed to record approved purchase: %w", err)
		}
		s.metrics.PurchaseOutcome("approved")
		s.publish(tx)
		log.WithField("transaction_id", tx.ID).Info("Purchase approved within limit")
		return &PurchaseResult{
			Status:        models.StatusApproved,
			TransactionID: tx.ID.String(),
			Message:       "Purchase approved automatically",
		}, nil
	}

	tx, err = s.Transactions.CreatePending(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("failed to record pending purchase: %w", err)
	}
	log = log.WithField("transaction_id", tx.ID)

	rec := &models.PendingApproval{
		TransactionID: tx.ID,
		FamilyID:      tx.FamilyID,
		VendorID:      tx.VendorID,
		VendorName:    tx.VendorName,
		Amount:        tx.Amount,
		Description:   tx.Description,
		ChildName:     tx.ChildName,
		CreatedAt:     tx.CreatedAt,
	}
	if err := s.pending.Put(ctx, rec, s.opts.PendingTTL); err != nil {
		log.WithError(err).Error("Failed to store pending approval")
	}
	if err := s.scheduler.Enqueue(ctx, models.JobKindAutoApprove, tx.ID.String(), s.opts.ApprovalWindow); err != nil {
		// The stale-pending sweep still resolves the row after PendingTTL.
		log.WithError(err).Error("Failed to schedule auto-approval")
	}

	notifyCtx, cancel := s.detach(ctx)
	defer cancel()
	delivered, err := s.notifier.SendApprovalRequest(notifyCtx, family.ID, notify.ApprovalRequest{
		TransactionID: tx.ID,
		VendorName:    tx.VendorName,
		Amount:        tx.Amount,
		Description:   tx.Description,
		ChildName:     tx.ChildName,
	})
	switch {
	case err != nil:
		log.WithError(err).Error("Failed to send approval request")
	case !delivered:
		log.Warn("No parent device accepted the approval request")
	}

	s.metrics.PurchaseOutcome("pending")
	log.Info("Purchase awaiting parent approval")

	minutes := int(s.opts.ApprovalWindow.Minutes())
	return &PurchaseResult{
		Status:           models.StatusPending,
		TransactionID:    tx.ID.String(),
		Message:          fmt.Sprintf("Approval request sent to parent. Will auto-approve in %d minutes if no response.", minutes),
		RequiresApproval: true,
		ApprovalTimeout:  int(s.opts.ApprovalWindow.Seconds()),
	}, nil
}
