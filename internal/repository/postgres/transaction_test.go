package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Kerhoff/vpcs/internal/models"
	"github.com/Kerhoff/vpcs/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var txCols = []string{
	"id", "family_id", "vendor_id", "vendor_name", "amount", "description", "child_name", "status",
	"created_at", "approved_at", "declined_at", "responder_id", "decline_reason", "timeout_occurred",
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestTransactionResolveWinner(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTransactionRepository(db)

	id := uuid.New()
	familyID := uuid.New()
	parent := uuid.New()
	at := time.Date(2024, 3, 1, 12, 3, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND status = 'pending'")).
		WithArgs(id, models.StatusDeclined, nil, &at, uuid.NullUUID{UUID: parent, Valid: true}, "too much candy", false).
		WillReturnRows(sqlmock.NewRows(txCols).AddRow(
			id.String(), familyID.String(), "corner-shop", "Corner Shop", "75.00", "snacks", "", "declined",
			at.Add(-3*time.Minute), nil, at, parent.String(), "too much candy", false,
		))

	tx, ok, err := repo.Resolve(context.Background(), id, models.Resolution{
		Status:      models.StatusDeclined,
		ResponderID: &parent,
		Reason:      "too much candy",
		At:          at,
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !ok {
		t.Fatal("Resolve() ok = false, want true")
	}
	if tx.Status != models.StatusDeclined || tx.DeclineReason != "too much candy" {
		t.Errorf("Resolve() tx = %+v", tx)
	}
	if !tx.Amount.Equal(decimal.RequireFromString("75")) {
		t.Errorf("Amount = %s, want 75", tx.Amount)
	}
	if tx.ResponderID == nil || *tx.ResponderID != parent {
		t.Errorf("ResponderID = %v, want %s", tx.ResponderID, parent)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestTransactionResolveAlreadyTerminal(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTransactionRepository(db)

	id := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND status = 'pending'")).
		WillReturnError(sql.ErrNoRows)

	tx, ok, err := repo.Resolve(context.Background(), id, models.Resolution{Status: models.StatusAutoApproved})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if ok || tx != nil {
		t.Errorf("Resolve() = %v, %v; want nil, false", tx, ok)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestTransactionResolveRejectsPendingTarget(t *testing.T) {
	db, _ := newMock(t)
	repo := NewTransactionRepository(db)

	_, _, err := repo.Resolve(context.Background(), uuid.New(), models.Resolution{Status: models.StatusPending})
	if err == nil {
		t.Fatal("Resolve() to pending should fail")
	}
}

func TestTransactionCreateApprovedStampsApproval(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTransactionRepository(db)

	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO transactions")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "corner-shop", "Corner Shop", sqlmock.AnyArg(),
			"gum", "", models.StatusApproved, created, &created).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	tx, err := repo.CreateApproved(context.Background(), &models.Transaction{
		FamilyID:    uuid.New(),
		VendorID:    "corner-shop",
		VendorName:  "Corner Shop",
		Amount:      decimal.RequireFromString("20.00"),
		Description: "gum",
		CreatedAt:   created,
	})
	if err != nil {
		t.Fatalf("CreateApproved() error = %v", err)
	}
	if tx.Status != models.StatusApproved || tx.ApprovedAt == nil {
		t.Errorf("CreateApproved() = %+v", tx)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestJobClaimDue(t *testing.T) {
	db, mock := newMock(t)
	repo := NewJobRepository(db)

	runAt := time.Now().Add(-time.Second)
	lockedUntil := time.Now().Add(time.Minute)
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
		WithArgs(10, float64(60)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "payload", "run_at", "attempts", "locked_until", "created_at"}).
			AddRow(int64(7), models.JobKindAutoApprove, "tx-id", runAt, 1, lockedUntil, runAt))

	jobs, err := repo.ClaimDue(context.Background(), 10, time.Minute)
	if err != nil {
		t.Fatalf("ClaimDue() error = %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != 7 || jobs[0].Attempts != 1 || jobs[0].LockedUntil == nil {
		t.Errorf("ClaimDue() = %+v", jobs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestInviteUpdates(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		call     func(repository.InviteRepository, context.Context, string, uuid.UUID, time.Time) (bool, error)
		affected int64
		want     bool
	}{
		{"reserve open link", "SET new_user_id = $2", repository.InviteRepository.Reserve, 1, true},
		{"reserve spent link", "SET new_user_id = $2", repository.InviteRepository.Reserve, 0, false},
		{"first use", "SET used = TRUE", repository.InviteRepository.Consume, 1, true},
		{"already used or expired", "SET used = TRUE", repository.InviteRepository.Consume, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			repo := NewInviteRepository(db)
			id := uuid.New()
			now := time.Now()

			mock.ExpectExec(regexp.QuoteMeta(tt.pattern)).
				WithArgs("token", id, now).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			got, err := tt.call(repo, context.Background(), "token", id, now)
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Error(err)
			}
		})
	}
}
