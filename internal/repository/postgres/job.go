package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Kerhoff/vpcs/internal/models"
	"github.com/Kerhoff/vpcs/internal/repository"
)

type jobRepository struct {
	db *sql.DB
}

// NewJobRepository creates a new scheduled job repository
func NewJobRepository(db *sql.DB) repository.JobRepository {
	return &jobRepository{db: db}
}

func (r *jobRepository) Enqueue(ctx context.Context, job *models.ScheduledJob) (*models.ScheduledJob, error) {
	query := `
		INSERT INTO scheduled_jobs (kind, payload, run_at, attempts, dead, created_at)
		VALUES ($1, $2, $3, 0, FALSE, $4)
		RETURNING id, created_at`

	job.CreatedAt = time.Now()
	if job.RunAt.IsZero() {
		job.RunAt = job.CreatedAt
	}

	err := r.db.QueryRowContext(ctx, query,
		job.Kind,
		job.Payload,
		job.RunAt,
		job.CreatedAt,
	).Scan(&job.ID, &job.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	return job, nil
}

// ClaimDue leases due jobs so that other workers skip them until the lease
// runs out. A worker that dies mid-job leaves the row to be claimed again.
func (r *jobRepository) ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]*models.ScheduledJob, error) {
	query := `
		UPDATE scheduled_jobs
		SET locked_until = NOW() + make_interval(secs => $2), attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM scheduled_jobs
			WHERE dead = FALSE AND run_at <= NOW()
				AND (locked_until IS NULL OR locked_until < NOW())
			ORDER BY run_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, kind, payload, run_at, attempts, locked_until, created_at`

	rows, err := r.db.QueryContext(ctx, query, limit, lease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to claim due jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.ScheduledJob
	for rows.Next() {
		job := &models.ScheduledJob{}
		var lockedUntil sql.NullTime
		if err := rows.Scan(
			&job.ID,
			&job.Kind,
			&job.Payload,
			&job.RunAt,
			&job.Attempts,
			&lockedUntil,
			&job.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan due job: %w", err)
		}
		if lockedUntil.Valid {
			job.LockedUntil = &lockedUntil.Time
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

func (r *jobRepository) Complete(ctx context.Context, id int64) error {
	query := `DELETE FROM scheduled_jobs WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

func (r *jobRepository) Retry(ctx context.Context, id int64, runAt time.Time, lastErr string) error {
	query := `
		UPDATE scheduled_jobs
		SET run_at = $2, last_error = $3, locked_until = NULL
		WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, runAt, lastErr); err != nil {
		return fmt.Errorf("failed to reschedule job: %w", err)
	}
	return nil
}

func (r *jobRepository) Bury(ctx context.Context, id int64, lastErr string) error {
	query := `
		UPDATE scheduled_jobs
		SET dead = TRUE, last_error = $2, locked_until = NULL
		WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, lastErr); err != nil {
		return fmt.Errorf("failed to bury job: %w", err)
	}
	return nil
}
