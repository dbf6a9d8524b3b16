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

type inviteRepository struct {
	db *sql.DB
}

// NewInviteRepository creates a new invite link repository
func NewInviteRepository(db *sql.DB) repository.InviteRepository {
	return &inviteRepository{db: db}
}

func (r *inviteRepository) Create(ctx context.Context, link *models.InviteLink) (*models.InviteLink, error) {
	query := `
		INSERT INTO one_time_links (user_id, token, expires_at, used, created_at)
		VALUES ($1, $2, $3, FALSE, $4)
		RETURNING id`

	link.CreatedAt = time.Now()
	err := r.db.QueryRowContext(ctx, query,
		link.UserID,
		link.Token,
		link.ExpiresAt,
		link.CreatedAt,
	).Scan(&link.ID)

	if err != nil {
		return nil, fmt.Errorf("failed to create invite link: %w", err)
	}
	return link, nil
}

func (r *inviteRepository) GetByToken(ctx context.Context, token string) (*models.InviteLink, error) {
	query := `
		SELECT id, user_id, token, expires_at, used, new_user_id, created_at
		FROM one_time_links
		WHERE token = $1`

	link := &models.InviteLink{}
	var newUserID uuid.NullUUID
	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&link.ID,
		&link.UserID,
		&link.Token,
		&link.ExpiresAt,
		&link.Used,
		&newUserID,
		&link.CreatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get invite link: %w", err)
	}

	link.NewUserID = uuidPtr(newUserID)
	return link, nil
}

func (r *inviteRepository) Reserve(ctx context.Context, token string, newUserID uuid.UUID, now time.Time) (bool, error) {
	query := `
		UPDATE one_time_links
		SET new_user_id = $2
		WHERE token = $1 AND used = FALSE AND expires_at > $3`

	return r.update(ctx, "reserve", query, token, newUserID, now)
}

func (r *inviteRepository) Consume(ctx context.Context, token string, newUserID uuid.UUID, now time.Time) (bool, error) {
	query := `
		UPDATE one_time_links
		SET used = TRUE
		WHERE token = $1 AND new_user_id = $2 AND used = FALSE AND expires_at > $3`

	return r.update(ctx, "consume", query, token, newUserID, now)
}

func (r *inviteRepository) update(ctx context.Context, op, query string, args ...any) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to %s invite link: %w", op, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}
