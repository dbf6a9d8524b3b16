// Package notify fans notifications out to every registered device of a
// family and keeps the subscription list healthy.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Kerhoff/vpcs/internal/metrics"
	"github.com/Kerhoff/vpcs/internal/models"
	"github.com/Kerhoff/vpcs/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ApprovalTTL bounds how long a push service holds an approval request.
const ApprovalTTL = 300

const resultTTL = 3600

// ApprovalRequest describes a purchase waiting for a parent.
type ApprovalRequest struct {
	TransactionID uuid.UUID
	VendorName    string
	Amount        decimal.Decimal
	Description   string
	ChildName     string
}

// ResultNotice describes a resolved purchase.
type ResultNotice struct {
	TransactionID uuid.UUID
	Status        models.TransactionStatus
	VendorName    string
	Amount        decimal.Decimal
	Reason        string
}

// Dispatcher delivers notifications to family devices.
type Dispatcher struct {
	subs      repository.PushSubscriptionRepository
	logs      repository.NotificationLogRepository
	settings  repository.NotificationSettingsRepository
	sender    Sender
	templates *Templates
	metrics   *metrics.Metrics
	logger    *logrus.Logger
	location  *time.Location
	now       func() time.Time
}

// Config wires a Dispatcher.
type Config struct {
	Subscriptions repository.PushSubscriptionRepository
	Logs          repository.NotificationLogRepository
	Settings      repository.NotificationSettingsRepository
	Templates     repository.TemplateRepository
	Sender        Sender
	Metrics       *metrics.Metrics
	Logger        *logrus.Logger
	// Location is used to evaluate quiet hours. Defaults to UTC.
	Location *time.Location
	Clock    func() time.Time
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg Config) *Dispatcher {
	d := &Dispatcher{
		subs:      cfg.Subscriptions,
		logs:      cfg.Logs,
		settings:  cfg.Settings,
		sender:    cfg.Sender,
		templates: NewTemplates(cfg.Templates),
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		location:  cfg.Location,
		now:       cfg.Clock,
	}
	if d.location == nil {
		d.location = time.UTC
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// message is one rendered notification ready for fan-out.
type message struct {
	kind          string
	transactionID *uuid.UUID
	payload       []byte
	opts          SendOptions
	urgent        bool
}

// SendApprovalRequest notifies every active device of the family. It
// reports whether at least one device accepted the message. Quiet hours do
// not apply.
func (d *Dispatcher) SendApprovalRequest(ctx context.Context, familyID uuid.UUID, req ApprovalRequest) (bool, error) {
	rendered, err := d.templates.Render(ctx, TemplateApproval, map[string]string{
		"vendor_name": req.VendorName,
		"amount":      FormatAmount(req.Amount),
		"description": req.Description,
		"child_name":  req.ChildName,
	})
	if err != nil {
		return false, fmt.Errorf("failed to render approval template: %w", err)
	}

	id := req.TransactionID
	amount := req.Amount
	payload := Payload{
		Title:              rendered.Title,
		Body:               rendered.Body,
		Icon:               rendered.Icon,
		Badge:              rendered.Badge,
		Tag:                "transaction-" + id.String(),
		RequireInteraction: true,
		Actions:            approvalActions,
		Data: PayloadData{
			Type:          "transaction_approval",
			TransactionID: &id,
			Amount:        &amount,
			VendorName:    req.VendorName,
			Description:   req.Description,
		},
	}

	subs, err := d.subs.ListActiveByFamily(ctx, familyID)
	if err != nil {
		return false, fmt.Errorf("failed to list family subscriptions: %w", err)
	}

	n, err := d.fanOut(ctx, subs, payload, message{
		kind:          models.NotificationApprovalRequest,
		transactionID: &id,
		opts:          SendOptions{TTL: ApprovalTTL, Urgent: true},
		urgent:        true,
	})
	return n > 0, err
}

// SendResult tells the family how a purchase was resolved. Users in their
// quiet hours, or who turned results off, are skipped.
func (d *Dispatcher) SendResult(ctx context.Context, familyID uuid.UUID, notice ResultNotice) (bool, error) {
	key := TemplateApproved
	switch notice.Status {
	case models.StatusDeclined:
		key = TemplateDeclined
	case models.StatusAutoApproved:
		key = TemplateAutoApproved
	}

	rendered, err := d.templates.Render(ctx, key, map[string]string{
		"vendor_name": notice.VendorName,
		"amount":      FormatAmount(notice.Amount),
		"reason":      notice.Reason,
	})
	if err != nil {
		return false, fmt.Errorf("failed to render result template: %w", err)
	}

	id := notice.TransactionID
	amount := notice.Amount
	payload := Payload{
		Title: rendered.Title,
		Body:  rendered.Body,
		Icon:  rendered.Icon,
		Badge: rendered.Badge,
		Tag:   "transaction-result-" + id.String(),
		Data: PayloadData{
			Type:          "transaction_result",
			TransactionID: &id,
			Amount:        &amount,
			VendorName:    notice.VendorName,
			Action:        string(notice.Status),
			Reason:        notice.Reason,
		},
	}

	subs, err := d.subs.ListActiveByFamily(ctx, familyID)
	if err != nil {
		return false, fmt.Errorf("failed to list family subscriptions: %w", err)
	}

	n, err := d.fanOut(ctx, subs, payload, message{
		kind:          models.NotificationResult,
		transactionID: &id,
		opts:          SendOptions{TTL: resultTTL},
	})
	return n > 0, err
}

// SendTest pushes a test message to every active device of one user.
func (d *Dispatcher) SendTest(ctx context.Context, userID uuid.UUID) (sent int, total int, err error) {
	rendered, err := d.templates.Render(ctx, TemplateTest, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to render test template: %w", err)
	}

	subs, err := d.subs.ListActiveByUser(ctx, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	payload := Payload{
		Title: rendered.Title,
		Body:  rendered.Body,
		Icon:  rendered.Icon,
		Badge: rendered.Badge,
		Tag:   "test",
		Data:  PayloadData{Type: "test"},
	}

	sent, err = d.fanOut(ctx, subs, payload, message{
		kind:   models.NotificationTest,
		opts:   SendOptions{TTL: 60},
		urgent: true,
	})
	return sent, len(subs), err
}

// fanOut delivers to every subscription concurrently and returns how many
// accepted the message.
func (d *Dispatcher) fanOut(ctx context.Context, subs []*models.PushSubscription, payload Payload, msg message) (int, error) {
	if len(subs) == 0 {
		return 0, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to encode payload: %w", err)
	}
	msg.payload = data

	recipients := subs
	if !msg.urgent {
		recipients = d.filterByPreferences(ctx, subs, msg.kind)
	}

	var delivered atomic.Int64
	var wg sync.WaitGroup
	for _, sub := range recipients {
		wg.Add(1)
		go func(sub *models.PushSubscription) {
			defer wg.Done()
			if d.deliver(ctx, sub, msg) {
				delivered.Add(1)
			}
		}(sub)
	}
	wg.Wait()

	return int(delivered.Load()), nil
}

// filterByPreferences drops subscriptions whose owner does not want kind
// right now. Settings are loaded once per user.
func (d *Dispatcher) filterByPreferences(ctx context.Context, subs []*models.PushSubscription, kind string) []*models.PushSubscription {
	now := d.now().In(d.location)
	prefsByUser := make(map[uuid.UUID]Preferences)

	var out []*models.PushSubscription
	for _, sub := range subs {
		prefs, ok := prefsByUser[sub.UserID]
		if !ok {
			settings, err := d.settings.Get(ctx, sub.UserID)
			if err != nil {
				d.logger.WithError(err).WithField("user_id", sub.UserID).Warn("Failed to load notification settings, using defaults")
			}
			prefs = ParsePreferences(settings)
			prefsByUser[sub.UserID] = prefs
		}

		if kind == models.NotificationResult && !prefs.ResultsEnabled {
			continue
		}
		if prefs.Quiet != nil && prefs.Quiet.Contains(now) {
			d.metrics.Delivery(kind, "quiet_hours")
			continue
		}
		out = append(out, sub)
	}
	return out
}

// deliver sends to one subscription and records the attempt. Failures stay
// local to the subscription.
func (d *Dispatcher) deliver(ctx context.Context, sub *models.PushSubscription, msg message) bool {
	status, err := d.sender.Send(ctx, sub, msg.payload, msg.opts)
	outcome := Classify(status, err)

	entry := &models.NotificationLog{
		TransactionID:  msg.transactionID,
		SubscriptionID: sub.ID,
		Endpoint:       sub.Endpoint,
		Kind:           msg.kind,
		Success:        outcome == OutcomeDelivered,
		StatusCode:     status,
		SentAt:         d.now(),
	}
	if err != nil {
		entry.ErrorMessage = err.Error()
	}
	if logErr := d.logs.Create(ctx, entry); logErr != nil {
		d.logger.WithError(logErr).Warn("Failed to record notification delivery")
	}

	fields := logrus.Fields{"subscription_id": sub.ID, "kind": msg.kind, "status": status}

	switch outcome {
	case OutcomeDelivered:
		d.metrics.Delivery(msg.kind, "success")
		if err := d.subs.TouchLastUsed(ctx, sub.ID, d.now()); err != nil {
			d.logger.WithError(err).WithFields(fields).Warn("Failed to update subscription last used")
		}
		return true
	case OutcomeGone:
		d.metrics.Delivery(msg.kind, "gone")
		if err := d.subs.Deactivate(ctx, sub.ID); err != nil {
			d.logger.WithError(err).WithFields(fields).Error("Failed to deactivate push subscription")
		} else {
			d.metrics.SubscriptionDeactivated()
			d.logger.WithFields(fields).Info("Deactivated expired push subscription")
		}
	default:
		d.metrics.Delivery(msg.kind, "failed")
		d.logger.WithError(err).WithFields(fields).Warn("Push delivery failed")
	}
	return false
}
