package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Kerhoff/vpcs/internal/models"
	"github.com/Kerhoff/vpcs/internal/repository"
	"github.com/google/uuid"
)

type pushSubscriptionRepository struct {
	db *sql.DB
}

// NewPushSubscriptionRepository creates a new push subscription repository
func NewPushSubscriptionRepository(db *sql.DB) repository.PushSubscriptionRepository {
	return &pushSubscriptionRepository{db: db}
}

const subscriptionColumns = `s.id, s.user_id, s.endpoint, s.p256dh_key, s.auth_key, s.user_agent, s.device_name,
	s.is_active, s.last_used, s.created_at`

func scanSubscription(row scanner) (*models.PushSubscription, error) {
	sub := &models.PushSubscription{}
	var lastUsed sql.NullTime
	if err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.Endpoint,
		&sub.P256dhKey,
		&sub.AuthKey,
		&sub.UserAgent,
		&sub.DeviceName,
		&sub.IsActive,
		&lastUsed,
		&sub.CreatedAt,
	); err != nil {
		return nil, err
	}
	if lastUsed.Valid {
		sub.LastUsed = &lastUsed.Time
	}
	return sub, nil
}

func (r *pushSubscriptionRepository) list(ctx context.Context, query string, args ...any) ([]*models.PushSubscription, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query push subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*models.PushSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan push subscription: %w", err)
		}
		subs = append(subs, sub)
	}

	return subs, rows.Err()
}

func (r *pushSubscriptionRepository) Upsert(ctx context.Context, sub *models.PushSubscription) (*models.PushSubscription, error) {
	query := `
		INSERT INTO push_subscriptions (user_id, endpoint, p256dh_key, auth_key, user_agent, device_name, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)
		ON CONFLICT (endpoint) DO UPDATE
		SET user_id = EXCLUDED.user_id,
			p256dh_key = EXCLUDED.p256dh_key,
			auth_key = EXCLUDED.auth_key,
			user_agent = EXCLUDED.user_agent,
			device_name = EXCLUDED.device_name,
			is_active = TRUE
		RETURNING id, created_at`

	sub.IsActive = true
	err := r.db.QueryRowContext(ctx, query,
		sub.UserID,
		sub.Endpoint,
		sub.P256dhKey,
		sub.AuthKey,
		sub.UserAgent,
		sub.DeviceName,
		time.Now(),
	).Scan(&sub.ID, &sub.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to upsert push subscription: %w", err)
	}

	return sub, nil
}

func (r *pushSubscriptionRepository) GetByID(ctx context.Context, id int64) (*models.PushSubscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM push_subscriptions s WHERE s.id = $1`

	sub, err := scanSubscription(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get push subscription: %w", err)
	}
	return sub, nil
}

func (r *pushSubscriptionRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.PushSubscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM push_subscriptions s
		WHERE s.user_id = $1
		ORDER BY s.created_at DESC`

	return r.list(ctx, query, userID)
}

func (r *pushSubscriptionRepository) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]*models.PushSubscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM push_subscriptions s
		WHERE s.user_id = $1 AND s.is_active = TRUE`

	return r.list(ctx, query, userID)
}

func (r *pushSubscriptionRepository) ListActiveByFamily(ctx context.Context, familyID uuid.UUID) ([]*models.PushSubscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM push_subscriptions s
		JOIN users u ON u.id = s.user_id
		WHERE u.family_id = $1 AND u.role = 'parent' AND s.is_active = TRUE`

	return r.list(ctx, query, familyID)
}

func (r *pushSubscriptionRepository) Deactivate(ctx context.Context, id int64) error {
	query := `UPDATE push_subscriptions SET is_active = FALSE WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to deactivate push subscription: %w", err)
	}
	return nil
}

func (r *pushSubscriptionRepository) DeactivateForUser(ctx context.Context, id int64, userID uuid.UUID) (bool, error) {
	query := `UPDATE push_subscriptions SET is_active = FALSE WHERE id = $1 AND user_id = $2`

	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate push subscription: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

func (r *pushSubscriptionRepository) TouchLastUsed(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE push_subscriptions SET last_used = $2 WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("failed to update last used: %w", err)
	}
	return nil
}

type notificationLogRepository struct {
	db *sql.DB
}

// NewNotificationLogRepository creates a new delivery log repository
func NewNotificationLogRepository(db *sql.DB) repository.NotificationLogRepository {
	return &notificationLogRepository{db: db}
}

func (r *notificationLogRepository) Create(ctx context.Context, entry *models.NotificationLog) error {
	query := `
		INSERT INTO notification_log (transaction_id, subscription_id, endpoint, kind, success,
			status_code, error_message, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	if entry.SentAt.IsZero() {
		entry.SentAt = time.Now()
	}

	err := r.db.QueryRowContext(ctx, query,
		nullUUID(entry.TransactionID),
		entry.SubscriptionID,
		entry.Endpoint,
		entry.Kind,
		entry.Success,
		entry.StatusCode,
		entry.ErrorMessage,
		entry.SentAt,
	).Scan(&entry.ID)

	if err != nil {
		return fmt.Errorf("failed to create notification log: %w", err)
	}
	return nil
}

func (r *notificationLogRepository) ListBySubscription(ctx context.Context, subscriptionID int64, limit int) ([]*models.NotificationLog, error) {
	query := `
		SELECT id, transaction_id, subscription_id, endpoint, kind, success, status_code,
			error_message, sent_at, responded_at, response_action
		FROM notification_log
		WHERE subscription_id = $1
		ORDER BY sent_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, subscriptionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notification log: %w", err)
	}
	defer rows.Close()

	var entries []*models.NotificationLog
	for rows.Next() {
		entry := &models.NotificationLog{}
		var txID uuid.NullUUID
		var respondedAt sql.NullTime
		var action sql.NullString
		if err := rows.Scan(
			&entry.ID,
			&txID,
			&entry.SubscriptionID,
			&entry.Endpoint,
			&entry.Kind,
			&entry.Success,
			&entry.StatusCode,
			&entry.ErrorMessage,
			&entry.SentAt,
			&respondedAt,
			&action,
		); err != nil {
			return nil, fmt.Errorf("failed to scan notification log: %w", err)
		}
		entry.TransactionID = uuidPtr(txID)
		if respondedAt.Valid {
			entry.RespondedAt = &respondedAt.Time
		}
		entry.ResponseAction = action.String
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func (r *notificationLogRepository) MarkResponded(ctx context.Context, transactionID uuid.UUID, userID uuid.UUID, action string, at time.Time) error {
	query := `
		UPDATE notification_log
		SET responded_at = $3, response_action = $4
		WHERE transaction_id = $1
			AND kind = 'approval_request'
			AND responded_at IS NULL
			AND subscription_id IN (SELECT id FROM push_subscriptions WHERE user_id = $2)`

	if _, err := r.db.ExecContext(ctx, query, transactionID, userID, at, action); err != nil {
		return fmt.Errorf("failed to mark notification responded: %w", err)
	}
	return nil
}

type notificationSettingsRepository struct {
	db *sql.DB
}

// NewNotificationSettingsRepository creates a new settings repository
func NewNotificationSettingsRepository(db *sql.DB) repository.NotificationSettingsRepository {
	return &notificationSettingsRepository{db: db}
}

func (r *notificationSettingsRepository) Get(ctx context.Context, userID uuid.UUID) (map[string]string, error) {
	query := `SELECT setting_key, setting_value FROM push_notification_settings WHERE user_id = $1`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notification settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan notification setting: %w", err)
		}
		settings[key] = value
	}

	return settings, rows.Err()
}

func (r *notificationSettingsRepository) Set(ctx context.Context, userID uuid.UUID, key, value string) error {
	query := `
		INSERT INTO push_notification_settings (user_id, setting_key, setting_value, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, setting_key) DO UPDATE
		SET setting_value = EXCLUDED.setting_value, updated_at = EXCLUDED.updated_at`

	if _, err := r.db.ExecContext(ctx, query, userID, key, value, time.Now()); err != nil {
		return fmt.Errorf("failed to save notification setting: %w", err)
	}
	return nil
}

type templateRepository struct {
	db *sql.DB
}

// NewTemplateRepository creates a new notification template repository
func NewTemplateRepository(db *sql.DB) repository.TemplateRepository {
	return &templateRepository{db: db}
}

func (r *templateRepository) Get(ctx context.Context, key string) (*models.NotificationTemplate, error) {
	query := `
		SELECT template_key, title_template, body_template, icon_url, badge_url
		FROM notification_templates
		WHERE template_key = $1`

	tmpl := &models.NotificationTemplate{}
	err := r.db.QueryRowContext(ctx, query, key).Scan(
		&tmpl.Key,
		&tmpl.TitleTemplate,
		&tmpl.BodyTemplate,
		&tmpl.IconURL,
		&tmpl.BadgeURL,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get notification template: %w", err)
	}
	return tmpl, nil
}
