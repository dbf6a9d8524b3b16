package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Kerhoff/vpcs/internal/models"
	"github.com/Kerhoff/vpcs/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type familyRepository struct {
	db *sql.DB
}

// NewFamilyRepository creates a new family repository
func NewFamilyRepository(db *sql.DB) repository.FamilyRepository {
	return &familyRepository{db: db}
}

const familyColumns = `id, number, surname, default_limit, owner_user_id, created_at, updated_at`

func scanFamily(row scanner) (*models.Family, error) {
	family := &models.Family{}
	err := row.Scan(
		&family.ID,
		&family.Number,
		&family.Surname,
		&family.DefaultLimit,
		&family.OwnerUserID,
		&family.CreatedAt,
		&family.UpdatedAt,
	)
	return family, err
}

func (r *familyRepository) Create(ctx context.Context, family *models.Family) (*models.Family, error) {
	query := `
		INSERT INTO families (id, number, surname, default_limit, owner_user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	if family.ID == uuid.Nil {
		family.ID = uuid.New()
	}
	now := time.Now()
	family.CreatedAt = now
	family.UpdatedAt = now

	err := r.db.QueryRowContext(ctx, query,
		family.ID,
		family.Number,
		family.Surname,
		family.DefaultLimit,
		family.OwnerUserID,
		family.CreatedAt,
		family.UpdatedAt,
	).Scan(&family.CreatedAt, &family.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return nil, repository.ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create family: %w", err)
	}

	return family, nil
}

func (r *familyRepository) get(ctx context.Context, where string, args ...any) (*models.Family, error) {
	query := `SELECT ` + familyColumns + ` FROM families WHERE ` + where

	family, err := scanFamily(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get family: %w", err)
	}
	return family, nil
}

func (r *familyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Family, error) {
	return r.get(ctx, `id = $1`, id)
}

func (r *familyRepository) GetByNumberAndSurname(ctx context.Context, number, surname string) (*models.Family, error) {
	return r.get(ctx, `number = $1 AND lower(surname) = lower($2)`, number, surname)
}

func (r *familyRepository) GetByNumber(ctx context.Context, number string) (*models.Family, error) {
	return r.get(ctx, `number = $1`, number)
}

func (r *familyRepository) GetByMember(ctx context.Context, userID uuid.UUID) (*models.Family, error) {
	return r.get(ctx, `id = (SELECT family_id FROM users WHERE id = $1)`, userID)
}

func (r *familyRepository) Update(ctx context.Context, family *models.Family) (*models.Family, error) {
	query := `
		UPDATE families
		SET number = $2, surname = $3, default_limit = $4, updated_at = $5
		WHERE id = $1
		RETURNING updated_at`

	family.UpdatedAt = time.Now()

	err := r.db.QueryRowContext(ctx, query,
		family.ID,
		family.Number,
		family.Surname,
		family.DefaultLimit,
		family.UpdatedAt,
	).Scan(&family.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return nil, repository.ErrDuplicate
		}
		return nil, fmt.Errorf("failed to update family: %w", err)
	}

	return family, nil
}

func (r *familyRepository) UpdateDefaultLimit(ctx context.Context, id uuid.UUID, limit decimal.Decimal) error {
	query := `UPDATE families SET default_limit = $2, updated_at = $3 WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, limit, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update default limit: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("family with ID %s not found", id)
	}

	return nil
}
