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

type transactionRepository struct {
	db *sql.DB
}

// NewTransactionRepository creates a new transaction ledger
func NewTransactionRepository(db *sql.DB) repository.TransactionRepository {
	return &transactionRepository{db: db}
}

const transactionColumns = `id, family_id, vendor_id, vendor_name, amount, description, child_name, status,
	created_at, approved_at, declined_at, responder_id, decline_reason, timeout_occurred`

func scanTransaction(row scanner) (*models.Transaction, error) {
	tx := &models.Transaction{}
	var approvedAt, declinedAt sql.NullTime
	var responderID uuid.NullUUID
	if err := row.Scan(
		&tx.ID,
		&tx.FamilyID,
		&tx.VendorID,
		&tx.VendorName,
		&tx.Amount,
		&tx.Description,
		&tx.ChildName,
		&tx.Status,
		&tx.CreatedAt,
		&approvedAt,
		&declinedAt,
		&responderID,
		&tx.DeclineReason,
		&tx.TimeoutOccurred,
	); err != nil {
		return nil, err
	}
	if approvedAt.Valid {
		tx.ApprovedAt = &approvedAt.Time
	}
	if declinedAt.Valid {
		tx.DeclinedAt = &declinedAt.Time
	}
	tx.ResponderID = uuidPtr(responderID)
	return tx, nil
}

func (r *transactionRepository) insert(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	query := `
		INSERT INTO transactions (id, family_id, vendor_id, vendor_name, amount, description, child_name,
			status, created_at, approved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`

	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}

	err := r.db.QueryRowContext(ctx, query,
		tx.ID,
		tx.FamilyID,
		tx.VendorID,
		tx.VendorName,
		tx.Amount,
		tx.Description,
		tx.ChildName,
		tx.Status,
		tx.CreatedAt,
		tx.ApprovedAt,
	).Scan(&tx.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	return tx, nil
}

func (r *transactionRepository) CreatePending(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	tx.Status = models.StatusPending
	tx.ApprovedAt = nil
	return r.insert(ctx, tx)
}

func (r *transactionRepository) CreateApproved(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	approvedAt := tx.CreatedAt
	tx.Status = models.StatusApproved
	tx.ApprovedAt = &approvedAt
	return r.insert(ctx, tx)
}

func (r *transactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

// Resolve relies on the status guard in the WHERE clause so that exactly
// one concurrent caller sees a returned row.
func (r *transactionRepository) Resolve(ctx context.Context, id uuid.UUID, res models.Resolution) (*models.Transaction, bool, error) {
	if !res.Status.Terminal() {
		return nil, false, fmt.Errorf("cannot resolve transaction to %q", res.Status)
	}

	query := `
		UPDATE transactions
		SET status = $2, approved_at = $3, declined_at = $4, responder_id = $5,
			decline_reason = $6, timeout_occurred = $7
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + transactionColumns

	at := res.At
	if at.IsZero() {
		at = time.Now()
	}

	var approvedAt, declinedAt *time.Time
	var reason string
	if res.Status == models.StatusDeclined {
		declinedAt = &at
		reason = res.Reason
	} else {
		approvedAt = &at
	}

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, query,
		id,
		res.Status,
		approvedAt,
		declinedAt,
		nullUUID(res.ResponderID),
		reason,
		res.Status == models.StatusAutoApproved,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to resolve transaction: %w", err)
	}
	return tx, true, nil
}

func (r *transactionRepository) list(ctx context.Context, query string, args ...any) ([]*models.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []*models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}

	return txs, rows.Err()
}

func (r *transactionRepository) ListRecentByVendor(ctx context.Context, vendorID string, since time.Time) ([]*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE vendor_id = $1 AND created_at >= $2
		ORDER BY created_at DESC`

	return r.list(ctx, query, vendorID, since)
}

func (r *transactionRepository) ListRecentByFamily(ctx context.Context, familyID uuid.UUID, limit int) ([]*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE family_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	return r.list(ctx, query, familyID, limit)
}

func (r *transactionRepository) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2`

	return r.list(ctx, query, createdBefore, limit)
}
