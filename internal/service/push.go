package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/Kerhoff/vpcs/internal/apperr"
	"github.com/Kerhoff/vpcs/internal/models"
	"github.com/Kerhoff/vpcs/internal/notify"
	"github.com/google/uuid"
)

const statusLogLimit = 10

// SubscribeRequest mirrors the browser's PushSubscription JSON.
type SubscribeRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
	DeviceName string `json:"device_name,omitempty"`
	UserAgent  string `json:"-"`
}

func (r *SubscribeRequest) validate() error {
	u, err := url.Parse(r.Endpoint)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return apperr.Validation("endpoint", "Endpoint must be an https URL")
	}
	if r.Keys.P256dh == "" || r.Keys.Auth == "" {
		return apperr.Validation("keys", "Subscription keys are required")
	}
	return validateText("device_name", "Device name", r.DeviceName, 100)
}

// Subscribe registers a device for the caller, reactivating a known endpoint.
func (s *Service) Subscribe(ctx context.Context, user *models.User, req SubscribeRequest) (*models.PushSubscription, error) {
	if err := s.requireParent(user); err != nil {
		return nil, err
	}
	req.Endpoint = strings.TrimSpace(req.Endpoint)
	if err := req.validate(); err != nil {
		return nil, err
	}
	sub, err := s.Subscriptions.Upsert(ctx, &models.PushSubscription{
		UserID:     user.ID,
		Endpoint:   req.Endpoint,
		P256dhKey:  req.Keys.P256dh,
		AuthKey:    req.Keys.Auth,
		UserAgent:  req.UserAgent,
		DeviceName: req.DeviceName,
		IsActive:   true,
		CreatedAt:  s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save push subscription: %w", err)
	}
	return sub, nil
}

// Unsubscribe deactivates one of the caller's subscriptions.
func (s *Service) Unsubscribe(ctx context.Context, user *models.User, subscriptionID int64) error {
	ok, err := s.Subscriptions.DeactivateForUser(ctx, subscriptionID, user.ID)
	if err != nil {
		return fmt.Errorf("failed to deactivate push subscription: %w", err)
	}
	if !ok {
		return apperr.NotFound("Subscription not found")
	}
	return nil
}

// ListSubscriptions returns all of the caller's devices, active or not.
func (s *Service) ListSubscriptions(ctx context.Context, user *models.User) ([]*models.PushSubscription, error) {
	subs, err := s.Subscriptions.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list push subscriptions: %w", err)
	}
	return subs, nil
}

// SubscriptionStatus is one device with its recent delivery attempts.
type SubscriptionStatus struct {
	Subscription *models.PushSubscription `json:"subscription"`
	Recent       []*models.NotificationLog `json:"recent_notifications"`
}

// GetSubscriptionStatus returns a device of the caller with its recent log.
func (s *Service) GetSubscriptionStatus(ctx context.Context, user *models.User, subscriptionID int64) (*SubscriptionStatus, error) {
	sub, err := s.Subscriptions.GetByID(ctx, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup push subscription: %w", err)
	}
	if sub == nil || sub.UserID != user.ID {
		return nil, apperr.NotFound("Subscription not found")
	}
	logs, err := s.Logs.ListBySubscription(ctx, sub.ID, statusLogLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notification log: %w", err)
	}
	return &SubscriptionStatus{Subscription: sub, Recent: logs}, nil
}

// NotificationSettings returns the caller's stored preferences.
func (s *Service) NotificationSettings(ctx context.Context, userID uuid.UUID) (map[string]string, error) {
	settings, err := s.Settings.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load notification settings: %w", err)
	}
	if settings == nil {
		settings = map[string]string{}
	}
	return settings, nil
}

// UpdateNotificationSettings validates and stores each key. Nothing is
// written when any key is invalid.
func (s *Service) UpdateNotificationSettings(ctx context.Context, userID uuid.UUID, values map[string]string) (map[string]string, error) {
	for key, value := range values {
		if err := notify.ValidateSetting(key, value); err != nil {
			return nil, err
		}
	}
	for key, value := range values {
		if err := s.Settings.Set(ctx, userID, key, value); err != nil {
			return nil, fmt.Errorf("failed to save notification setting %s: %w", key, err)
		}
	}
	return s.NotificationSettings(ctx, userID)
}

// SendTestNotification pushes a test message to the caller's devices.
func (s *Service) SendTestNotification(ctx context.Context, userID uuid.UUID) (sent, total int, err error) {
	sent, total, err = s.notifier.SendTest(ctx, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to send test notification: %w", err)
	}
	return sent, total, nil
}
