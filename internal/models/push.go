package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification kinds recorded in the delivery log.
const (
	NotificationApprovalRequest = "approval_request"
	NotificationResult          = "result"
	NotificationTest            = "test"
)

// PushSubscription is one browser endpoint registered by a user.
type PushSubscription struct {
	ID         int64      `json:"id" db:"id"`
	UserID     uuid.UUID  `json:"user_id" db:"user_id"`
	Endpoint   string     `json:"endpoint" db:"endpoint"`
	P256dhKey  string     `json:"-" db:"p256dh_key"`
	AuthKey    string     `json:"-" db:"auth_key"`
	UserAgent  string     `json:"user_agent,omitempty" db:"user_agent"`
	DeviceName string     `json:"device_name,omitempty" db:"device_name"`
	IsActive   bool       `json:"is_active" db:"is_active"`
	LastUsed   *time.Time `json:"last_used,omitempty" db:"last_used"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// NotificationLog is one delivery attempt to one subscription.
type NotificationLog struct {
	ID             int64      `json:"id" db:"id"`
	TransactionID  *uuid.UUID `json:"transaction_id,omitempty" db:"transaction_id"`
	SubscriptionID int64      `json:"subscription_id" db:"subscription_id"`
	Endpoint       string     `json:"endpoint" db:"endpoint"`
	Kind           string     `json:"kind" db:"kind"`
	Success        bool       `json:"success" db:"success"`
	StatusCode     int        `json:"status_code" db:"status_code"`
	ErrorMessage   string     `json:"error_message,omitempty" db:"error_message"`
	SentAt         time.Time  `json:"sent_at" db:"sent_at"`
	RespondedAt    *time.Time `json:"responded_at,omitempty" db:"responded_at"`
	ResponseAction string     `json:"response_action,omitempty" db:"response_action"`
}

// NotificationTemplate holds title/body text with {{var}} placeholders.
type NotificationTemplate struct {
	Key           string `json:"template_key" db:"template_key"`
	TitleTemplate string `json:"title_template" db:"title_template"`
	BodyTemplate  string `json:"body_template" db:"body_template"`
	IconURL       string `json:"icon_url" db:"icon_url"`
	BadgeURL      string `json:"badge_url" db:"badge_url"`
}

// NotificationSetting is one per-user key/value preference.
type NotificationSetting struct {
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Key       string    `json:"setting_key" db:"setting_key"`
	Value     string    `json:"setting_value" db:"setting_value"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
