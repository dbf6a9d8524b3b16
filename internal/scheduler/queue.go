// Package scheduler is a durable delayed-message queue with a polling
// worker. Delivery is at-least-once; handlers must be idempotent.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/Kerhoff/vpcs/internal/models"
	"github.com/Kerhoff/vpcs/internal/repository"
)

// Queue schedules jobs for later execution.
type Queue struct {
	jobs repository.JobRepository
	now  func() time.Time
}

// NewQueue creates a Queue. A nil clock uses time.Now.
func NewQueue(jobs repository.JobRepository, clock func() time.Time) *Queue {
	if clock == nil {
		clock = time.Now
	}
	return &Queue{jobs: jobs, now: clock}
}

// Enqueue schedules kind to run with payload after delay.
func (q *Queue) Enqueue(ctx context.Context, kind, payload string, delay time.Duration) error {
	_, err := q.jobs.Enqueue(ctx, &models.ScheduledJob{
		Kind:    kind,
		Payload: payload,
		RunAt:   q.now().Add(delay),
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %s job: %w", kind, err)
	}
	return nil
}
