package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Kerhoff/vpcs/internal/models"
	"github.com/Kerhoff/vpcs/internal/repository"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

type userRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB) repository.UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, username, role, family_id, current_challenge, created_at, updated_at`

func scanUser(row scanner) (*models.User, error) {
	user := &models.User{}
	var familyID uuid.NullUUID
	var challenge sql.NullString
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Role,
		&familyID,
		&challenge,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	user.FamilyID = uuidPtr(familyID)
	if challenge.Valid {
		user.CurrentChallenge = &challenge.String
	}
	return user, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (id, username, role, family_id, current_challenge, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Role == "" {
		user.Role = models.RoleParent
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	err := r.db.QueryRowContext(ctx, query,
		user.ID,
		user.Username,
		user.Role,
		nullUUID(user.FamilyID),
		user.CurrentChallenge,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return nil, repository.ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}
	return user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, username))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}
	return user, nil
}

func (r *userRepository) SetChallenge(ctx context.Context, id uuid.UUID, challenge *string) error {
	query := `UPDATE users SET current_challenge = $2, updated_at = $3 WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, challenge, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set user challenge: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user with ID %s not found", id)
	}
	return nil
}

func (r *userRepository) SetFamily(ctx context.Context, id uuid.UUID, familyID uuid.UUID) error {
	query := `UPDATE users SET family_id = $2, updated_at = $3 WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, familyID, time.Now()); err != nil {
		return fmt.Errorf("failed to set user family: %w", err)
	}
	return nil
}

type authenticatorRepository struct {
	db *sql.DB
}

// NewAuthenticatorRepository creates a new WebAuthn credential repository
func NewAuthenticatorRepository(db *sql.DB) repository.AuthenticatorRepository {
	return &authenticatorRepository{db: db}
}

func (r *authenticatorRepository) Create(ctx context.Context, a *models.Authenticator) (*models.Authenticator, error) {
	query := `
		INSERT INTO authenticators (user_id, credential_id, public_key, attestation_type, transports,
			sign_count, aaguid, user_verified, backup_eligible, backup_state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	a.CreatedAt = time.Now()
	err := r.db.QueryRowContext(ctx, query,
		a.UserID,
		a.CredentialID,
		a.PublicKey,
		a.AttestationType,
		pq.Array(a.Transports),
		int64(a.SignCount),
		a.AAGUID,
		a.UserVerified,
		a.BackupEligible,
		a.BackupState,
		a.CreatedAt,
	).Scan(&a.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, repository.ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create authenticator: %w", err)
	}
	return a, nil
}

func (r *authenticatorRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Authenticator, error) {
	query := `
		SELECT id, user_id, credential_id, public_key, attestation_type, transports,
			sign_count, aaguid, user_verified, backup_eligible, backup_state, created_at
		FROM authenticators
		WHERE user_id = $1
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query authenticators: %w", err)
	}
	defer rows.Close()

	var result []*models.Authenticator
	for rows.Next() {
		a := &models.Authenticator{}
		var signCount int64
		if err := rows.Scan(
			&a.ID,
			&a.UserID,
			&a.CredentialID,
			&a.PublicKey,
			&a.AttestationType,
			pq.Array(&a.Transports),
			&signCount,
			&a.AAGUID,
			&a.UserVerified,
			&a.BackupEligible,
			&a.BackupState,
			&a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan authenticator: %w", err)
		}
		a.SignCount = uint32(signCount)
		result = append(result, a)
	}
	return result, rows.Err()
}

func (r *authenticatorRepository) UpdateSignCount(ctx context.Context, credentialID []byte, signCount uint32) error {
	query := `UPDATE authenticators SET sign_count = $2 WHERE credential_id = $1`

	if _, err := r.db.ExecContext(ctx, query, credentialID, int64(signCount)); err != nil {
		return fmt.Errorf("failed to update sign count: %w", err)
	}
	return nil
}
