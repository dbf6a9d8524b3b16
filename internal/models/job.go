package models

import "time"

// JobKindAutoApprove resolves a still-pending transaction once the approval
// window has elapsed.
const JobKindAutoApprove = "auto_approve"

// ScheduledJob is a durable delayed message.
type ScheduledJob struct {
	ID          int64      `json:"id" db:"id"`
	Kind        string     `json:"kind" db:"kind"`
	Payload     string     `json:"payload" db:"payload"`
	RunAt       time.Time  `json:"run_at" db:"run_at"`
	Attempts    int        `json:"attempts" db:"attempts"`
	LockedUntil *time.Time `json:"locked_until,omitempty" db:"locked_until"`
	LastError   string     `json:"last_error,omitempty" db:"last_error"`
	Dead        bool       `json:"dead" db:"dead"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}
