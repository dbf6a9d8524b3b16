package service

import (
	"context"
	"fmt"

	"github.com/Kerhoff/vpcs/internal/apperr"
	"github.com/Kerhoff/vpcs/internal/models"
	"github.com/Kerhoff/vpcs/internal/notify"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Resolution channels, used as a metrics label.
const (
	ChannelParent  = "parent"
	ChannelTimeout = "timeout"
	ChannelSweep   = "sweep"
)

const staleSweepBatch = 100

// Decision is a request to move a pending transaction to a terminal status.
type Decision struct {
	Status models.TransactionStatus
	// ActorID is the parent who decided. nil for system resolutions.
	ActorID *uuid.UUID
	Reason  string
	Channel string
}

// Resolve applies d to the transaction exactly once. Of any number of
// concurrent callers only one observes resolved=true; the others get
// (nil, false, nil) and trigger no side effects.
func (s *Service) Resolve(ctx context.Context, id uuid.UUID, d Decision) (*models.Transaction, bool, error) {
	tx, won, err := s.Transactions.Resolve(ctx, id, models.Resolution{
		Status:      d.Status,
		ResponderID: d.ActorID,
		Reason:      d.Reason,
		At:          s.now(),
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to resolve transaction %s: %w", id, err)
	}

	// Attempted whether or not this call won.
	if err := s.pending.Delete(ctx, id); err != nil {
		s.logger.WithError(err).WithField("transaction_id", id).
			Warn("Failed to delete pending approval")
	}

	log := s.logger.WithFields(logrus.Fields{
		"transaction_id": id,
		"status":         d.Status,
		"channel":        d.Channel,
	})

	if !won {
		s.metrics.Conflict()
		log.Debug("Transaction already resolved")
		return nil, false, nil
	}

	s.metrics.Resolved(string(tx.Status), d.Channel)
	log.Info("Transaction resolved")

	if d.ActorID != nil {
		action := ActionApprove
		if tx.Status == models.StatusDeclined {
			action = ActionDecline
		}
		if err := s.Logs.MarkResponded(ctx, tx.ID, *d.ActorID, action, s.now()); err != nil {
			log.WithError(err).Warn("Failed to record notification response")
		}
	}

	s.publish(tx)
	s.notifyResult(ctx, tx, log)

	return tx, true, nil
}

func (s *Service) notifyResult(ctx context.Context, tx *models.Transaction, log *logrus.Entry) {
	family, err := s.Families.GetByID(ctx, tx.FamilyID)
	if err != nil {
		log.WithError(err).Error("Failed to load family for result notification")
		return
	}
	if family == nil {
		log.Info("Family no longer exists, skipping result notification")
		return
	}
	vendor, err := s.Vendors.GetByID(ctx, tx.VendorID)
	if err != nil {
		log.WithError(err).Error("Failed to load vendor for result notification")
		return
	}
	if vendor == nil {
		log.Info("Vendor no longer exists, skipping result notification")
		return
	}

	notifyCtx, cancel := s.detach(ctx)
	defer cancel()
	if _, err := s.notifier.SendResult(notifyCtx, family.ID, notify.ResultNotice{
		TransactionID: tx.ID,
		Status:        tx.Status,
		VendorName:    tx.VendorName,
		Amount:        tx.Amount,
		Reason:        tx.DeclineReason,
	}); err != nil {
		log.WithError(err).Error("Failed to send result notification")
	}
}

// ApprovalResponse is a parent's answer to an approval request.
type ApprovalResponse struct {
	TransactionID string `json:"transactionId"`
	Action        string `json:"action"`
	Reason        string `json:"reason,omitempty"`
}

// ResponseResult is returned to the responding parent.
type ResponseResult struct {
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id,omitempty"`
	Message       string `json:"message"`
}

// StatusAlreadyProcessed is reported to a parent who lost the resolution race.
const StatusAlreadyProcessed = "already_processed"

// RespondToApproval resolves a pending purchase with a parent's decision.
// actor is nil on the public endpoint; when set, the actor must belong to the
// transaction's family.
func (s *Service) RespondToApproval(ctx context.Context, resp ApprovalResponse, actor *models.User) (*ResponseResult, error) {
	id, err := parseTransactionID("transactionId", resp.TransactionID)
	if err != nil {
		return nil, err
	}
	var status models.TransactionStatus
	switch resp.Action {
	case ActionApprove:
		status = models.StatusApproved
	case ActionDecline:
		status = models.StatusDeclined
	default:
		return nil, apperr.Validation("action", "Action must be approve or decline")
	}
	if err := validateText("reason", "Reason", resp.Reason, maxReasonLength); err != nil {
		return nil, err
	}

	rec, err := s.pending.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending approval: %w", err)
	}
	if rec == nil {
		return nil, apperr.NotFound("Transaction not found or already processed")
	}

	d := Decision{Status: status, Channel: ChannelParent}
	if status == models.StatusDeclined {
		d.Reason = resp.Reason
	}
	if actor != nil {
		if actor.Role != models.RoleParent || actor.FamilyID == nil || *actor.FamilyID != rec.FamilyID {
			return nil, apperr.Forbidden("Not allowed to respond to this transaction")
		}
		d.ActorID = &actor.ID
	}

	tx, won, err := s.Resolve(ctx, id, d)
	if err != nil {
		return nil, err
	}
	if !won {
		return &ResponseResult{
			Status:        StatusAlreadyProcessed,
			TransactionID: id.String(),
			Message:       "Transaction was already processed",
		}, nil
	}
	return &ResponseResult{
		Status:        string(tx.Status),
		TransactionID: tx.ID.String(),
		Message:       "Transaction " + string(tx.Status),
	}, nil
}

// HandleAutoApprove is the scheduler handler for models.JobKindAutoApprove.
// Transactions that are missing or already terminal are left alone.
func (s *Service) HandleAutoApprove(ctx context.Context, job *models.ScheduledJob) error {
	id, err := uuid.Parse(job.Payload)
	if err != nil {
		s.logger.WithField("job_id", job.ID).Error("Dropping auto-approve job with malformed payload")
		return nil
	}
	return s.autoApprove(ctx, id, ChannelTimeout)
}

func (s *Service) autoApprove(ctx context.Context, id uuid.UUID, channel string) error {
	tx, err := s.Transactions.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load transaction %s: %w", id, err)
	}
	if tx == nil || tx.Status != models.StatusPending {
		return nil
	}
	_, _, err = s.Resolve(ctx, id, Decision{Status: models.StatusAutoApproved, Channel: channel})
	return err
}

// SweepStalePending auto-approves ledger rows left pending past PendingTTL.
// It covers auto-approval jobs that were never enqueued.
func (s *Service) SweepStalePending(ctx context.Context) {
	cutoff := s.now().Add(-s.opts.PendingTTL)
	stale, err := s.Transactions.ListStalePending(ctx, cutoff, staleSweepBatch)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list stale pending transactions")
		return
	}
	for _, tx := range stale {
		if err := s.autoApprove(ctx, tx.ID, ChannelSweep); err != nil {
			s.logger.WithError(err).WithField("transaction_id", tx.ID).
				Error("Failed to auto-approve stale transaction")
		}
	}
	if len(stale) > 0 {
		s.logger.WithField("count", len(stale)).Info("Swept stale pending transactions")
	}
}

