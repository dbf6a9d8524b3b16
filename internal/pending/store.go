// Package pending keeps short-lived lookup records for purchases awaiting a
// parent decision. Records expire on their own; absence is never an error.
package pending

import (
	"context"
	"time"

	"github.com/Kerhoff/vpcs/internal/models"
	"github.com/google/uuid"
)

// Store holds pending-approval records keyed by transaction id.
type Store interface {
	// Put writes rec with the given lifetime, replacing any previous record.
	Put(ctx context.Context, rec *models.PendingApproval, ttl time.Duration) error
	// Get returns nil, nil when the record is absent or expired.
	Get(ctx context.Context, id uuid.UUID) (*models.PendingApproval, error)
	// Delete is idempotent.
	Delete(ctx context.Context, id uuid.UUID) error
}
