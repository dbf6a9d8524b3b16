package repository

import (
	"context"
	"time"

	"github.com/Kerhoff/vpcs/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UserRepository defines the interface for user data operations
type UserRepository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	// SetChallenge replaces the outstanding ceremony state. nil clears it.
	SetChallenge(ctx context.Context, id uuid.UUID, challenge *string) error
	SetFamily(ctx context.Context, id uuid.UUID, familyID uuid.UUID) error
}

// AuthenticatorRepository stores WebAuthn credentials
type AuthenticatorRepository interface {
	Create(ctx context.Context, a *models.Authenticator) (*models.Authenticator, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Authenticator, error)
	UpdateSignCount(ctx context.Context, credentialID []byte, signCount uint32) error
}

// FamilyRepository defines the interface for family data operations
type FamilyRepository interface {
	Create(ctx context.Context, family *models.Family) (*models.Family, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Family, error)
	// GetByNumberAndSurname matches the surname case-insensitively.
	GetByNumberAndSurname(ctx context.Context, number, surname string) (*models.Family, error)
	GetByNumber(ctx context.Context, number string) (*models.Family, error)
	GetByMember(ctx context.Context, userID uuid.UUID) (*models.Family, error)
	Update(ctx context.Context, family *models.Family) (*models.Family, error)
	UpdateDefaultLimit(ctx context.Context, id uuid.UUID, limit decimal.Decimal) error
}

// VendorRepository defines the interface for vendor data operations
type VendorRepository interface {
	GetByID(ctx context.Context, id string) (*models.Vendor, error)
	Upsert(ctx context.Context, vendor *models.Vendor) (*models.Vendor, error)
	GetLimit(ctx context.Context, familyID uuid.UUID, vendorID string) (*models.VendorLimit, error)
	ListLimits(ctx context.Context, familyID uuid.UUID) ([]*models.VendorLimit, error)
	SetLimit(ctx context.Context, limit *models.VendorLimit) error
	DeleteLimit(ctx context.Context, familyID uuid.UUID, vendorID string) error
	CacheSurname(ctx context.Context, vendorID, familyNumber, surname string) error
	GetCachedSurname(ctx context.Context, vendorID, familyNumber string) (*models.SurnameCacheEntry, error)
}

// TransactionRepository is the durable ledger of purchases
type TransactionRepository interface {
	CreatePending(ctx context.Context, tx *models.Transaction) (*models.Transaction, error)
	CreateApproved(ctx context.Context, tx *models.Transaction) (*models.Transaction, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	// Resolve moves a pending transaction to a terminal status. It returns
	// false with a nil error when the transaction is missing or no longer
	// pending.
	Resolve(ctx context.Context, id uuid.UUID, res models.Resolution) (*models.Transaction, bool, error)
	ListRecentByVendor(ctx context.Context, vendorID string, since time.Time) ([]*models.Transaction, error)
	ListRecentByFamily(ctx context.Context, familyID uuid.UUID, limit int) ([]*models.Transaction, error)
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*models.Transaction, error)
}

// PushSubscriptionRepository defines the interface for push subscription operations
type PushSubscriptionRepository interface {
	// Upsert registers an endpoint, reactivating it if it was disabled.
	Upsert(ctx context.Context, sub *models.PushSubscription) (*models.PushSubscription, error)
	GetByID(ctx context.Context, id int64) (*models.PushSubscription, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.PushSubscription, error)
	ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]*models.PushSubscription, error)
	// ListActiveByFamily returns active subscriptions of every family member.
	ListActiveByFamily(ctx context.Context, familyID uuid.UUID) ([]*models.PushSubscription, error)
	Deactivate(ctx context.Context, id int64) error
	DeactivateForUser(ctx context.Context, id int64, userID uuid.UUID) (bool, error)
	TouchLastUsed(ctx context.Context, id int64, at time.Time) error
}

// NotificationLogRepository records delivery attempts
type NotificationLogRepository interface {
	Create(ctx context.Context, entry *models.NotificationLog) error
	ListBySubscription(ctx context.Context, subscriptionID int64, limit int) ([]*models.NotificationLog, error)
	// MarkResponded stamps the user's undelivered-response rows for a transaction.
	MarkResponded(ctx context.Context, transactionID uuid.UUID, userID uuid.UUID, action string, at time.Time) error
}

// NotificationSettingsRepository stores per-user key/value preferences
type NotificationSettingsRepository interface {
	Get(ctx context.Context, userID uuid.UUID) (map[string]string, error)
	Set(ctx context.Context, userID uuid.UUID, key, value string) error
}

// TemplateRepository loads notification templates
type TemplateRepository interface {
	Get(ctx context.Context, key string) (*models.NotificationTemplate, error)
}

// InviteRepository defines the interface for one-time invite link operations
type InviteRepository interface {
	Create(ctx context.Context, link *models.InviteLink) (*models.InviteLink, error)
	GetByToken(ctx context.Context, token string) (*models.InviteLink, error)
	// Reserve binds a still-usable link to the user being registered.
	Reserve(ctx context.Context, token string, newUserID uuid.UUID, now time.Time) (bool, error)
	// Consume marks a usable link reserved for newUserID as used. It returns
	// false when the link is missing, expired, used, or reserved for someone else.
	Consume(ctx context.Context, token string, newUserID uuid.UUID, now time.Time) (bool, error)
}

// JobRepository is the durable delayed-message queue
type JobRepository interface {
	Enqueue(ctx context.Context, job *models.ScheduledJob) (*models.ScheduledJob, error)
	// ClaimDue leases up to limit due jobs for the given duration.
	ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]*models.ScheduledJob, error)
	Complete(ctx context.Context, id int64) error
	Retry(ctx context.Context, id int64, runAt time.Time, lastErr string) error
	Bury(ctx context.Context, id int64, lastErr string) error
}
