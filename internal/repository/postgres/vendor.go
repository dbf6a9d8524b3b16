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

type vendorRepository struct {
	db *sql.DB
}

// NewVendorRepository creates a new vendor repository
func NewVendorRepository(db *sql.DB) repository.VendorRepository {
	return &vendorRepository{db: db}
}

func (r *vendorRepository) GetByID(ctx context.Context, id string) (*models.Vendor, error) {
	query := `
		SELECT id, user_id, name, category, requires_approval, created_at, updated_at
		FROM vendors
		WHERE id = $1`

	vendor := &models.Vendor{}
	var userID uuid.NullUUID
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&vendor.ID,
		&userID,
		&vendor.Name,
		&vendor.Category,
		&vendor.RequiresApproval,
		&vendor.CreatedAt,
		&vendor.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get vendor: %w", err)
	}

	vendor.UserID = uuidPtr(userID)
	return vendor, nil
}

func (r *vendorRepository) Upsert(ctx context.Context, vendor *models.Vendor) (*models.Vendor, error) {
	query := `
		INSERT INTO vendors (id, user_id, name, category, requires_approval, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
			category = EXCLUDED.category,
			requires_approval = EXCLUDED.requires_approval,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		vendor.ID,
		nullUUID(vendor.UserID),
		vendor.Name,
		vendor.Category,
		vendor.RequiresApproval,
		time.Now(),
	).Scan(&vendor.CreatedAt, &vendor.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to upsert vendor: %w", err)
	}

	return vendor, nil
}

func scanVendorLimit(row scanner) (*models.VendorLimit, error) {
	limit := &models.VendorLimit{}
	var amount decimal.NullDecimal
	if err := row.Scan(
		&limit.FamilyID,
		&limit.VendorID,
		&amount,
		&limit.RequireApproval,
		&limit.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if amount.Valid {
		limit.LimitAmount = &amount.Decimal
	}
	return limit, nil
}

func (r *vendorRepository) GetLimit(ctx context.Context, familyID uuid.UUID, vendorID string) (*models.VendorLimit, error) {
	query := `
		SELECT family_id, vendor_id, limit_amount, require_approval, updated_at
		FROM vendor_limits
		WHERE family_id = $1 AND vendor_id = $2`

	limit, err := scanVendorLimit(r.db.QueryRowContext(ctx, query, familyID, vendorID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get vendor limit: %w", err)
	}
	return limit, nil
}

func (r *vendorRepository) ListLimits(ctx context.Context, familyID uuid.UUID) ([]*models.VendorLimit, error) {
	query := `
		SELECT family_id, vendor_id, limit_amount, require_approval, updated_at
		FROM vendor_limits
		WHERE family_id = $1
		ORDER BY vendor_id ASC`

	rows, err := r.db.QueryContext(ctx, query, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query vendor limits: %w", err)
	}
	defer rows.Close()

	var limits []*models.VendorLimit
	for rows.Next() {
		limit, err := scanVendorLimit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vendor limit: %w", err)
		}
		limits = append(limits, limit)
	}

	return limits, rows.Err()
}

func (r *vendorRepository) SetLimit(ctx context.Context, limit *models.VendorLimit) error {
	query := `
		INSERT INTO vendor_limits (family_id, vendor_id, limit_amount, require_approval, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (family_id, vendor_id) DO UPDATE
		SET limit_amount = EXCLUDED.limit_amount,
			require_approval = EXCLUDED.require_approval,
			updated_at = EXCLUDED.updated_at`

	var amount decimal.NullDecimal
	if limit.LimitAmount != nil {
		amount = decimal.NewNullDecimal(*limit.LimitAmount)
	}
	limit.UpdatedAt = time.Now()

	if _, err := r.db.ExecContext(ctx, query,
		limit.FamilyID,
		limit.VendorID,
		amount,
		limit.RequireApproval,
		limit.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to set vendor limit: %w", err)
	}
	return nil
}

func (r *vendorRepository) DeleteLimit(ctx context.Context, familyID uuid.UUID, vendorID string) error {
	query := `DELETE FROM vendor_limits WHERE family_id = $1 AND vendor_id = $2`

	if _, err := r.db.ExecContext(ctx, query, familyID, vendorID); err != nil {
		return fmt.Errorf("failed to delete vendor limit: %w", err)
	}
	return nil
}

func (r *vendorRepository) CacheSurname(ctx context.Context, vendorID, familyNumber, surname string) error {
	query := `
		INSERT INTO vendor_surname_cache (vendor_id, family_number, surname, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (vendor_id, family_number) DO UPDATE
		SET surname = EXCLUDED.surname, updated_at = EXCLUDED.updated_at`

	if _, err := r.db.ExecContext(ctx, query, vendorID, familyNumber, surname, time.Now()); err != nil {
		return fmt.Errorf("failed to cache surname: %w", err)
	}
	return nil
}

func (r *vendorRepository) GetCachedSurname(ctx context.Context, vendorID, familyNumber string) (*models.SurnameCacheEntry, error) {
	query := `
		SELECT vendor_id, family_number, surname, updated_at
		FROM vendor_surname_cache
		WHERE vendor_id = $1 AND family_number = $2`

	entry := &models.SurnameCacheEntry{}
	err := r.db.QueryRowContext(ctx, query, vendorID, familyNumber).Scan(
		&entry.VendorID,
		&entry.FamilyNumber,
		&entry.Surname,
		&entry.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cached surname: %w", err)
	}
	return entry, nil
}
