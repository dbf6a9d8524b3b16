package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/Kerhoff/vpcs/internal/models"
	"github.com/google/uuid"
)

// Invites implements repository.InviteRepository.
type Invites struct {
	mu      sync.Mutex
	byToken map[string]*models.InviteLink
}

func NewInvites() *Invites {
	return &Invites{byToken: make(map[string]*models.InviteLink)}
}

func (r *Invites) Create(_ context.Context, link *models.InviteLink) (*models.InviteLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	link.ID = int64(len(r.byToken) + 1)
	link.CreatedAt = time.Now()
	cp := *link
	r.byToken[link.Token] = &cp
	return link, nil
}

func (r *Invites) GetByToken(_ context.Context, token string) (*models.InviteLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.byToken[token]; ok {
		cp := *l
		return &cp, nil
	}
	return nil, nil
}

func (r *Invites) Reserve(_ context.Context, token string, newUserID uuid.UUID, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.byToken[token]
	if !ok || !l.Usable(now) {
		return false, nil
	}
	l.NewUserID = &newUserID
	return true, nil
}

func (r *Invites) Consume(_ context.Context, token string, newUserID uuid.UUID, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.byToken[token]
	if !ok || !l.Usable(now) || l.NewUserID == nil || *l.NewUserID != newUserID {
		return false, nil
	}
	l.Used = true
	return true, nil
}

// Jobs implements repository.JobRepository. Due-ness is judged against Now.
type Jobs struct {
	mu     sync.Mutex
	items  map[int64]*models.ScheduledJob
	nextID int64
	Now    func() time.Time

	FailEnqueue bool
}

func NewJobs(now func() time.Time) *Jobs {
	if now == nil {
		now = time.Now
	}
	return &Jobs{items: make(map[int64]*models.ScheduledJob), Now: now}
}

func (r *Jobs) Enqueue(_ context.Context, job *models.ScheduledJob) (*models.ScheduledJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailEnqueue {
		return nil, ErrInjected
	}
	r.nextID++
	job.ID = r.nextID
	job.CreatedAt = r.Now()
	if job.RunAt.IsZero() {
		job.RunAt = job.CreatedAt
	}
	cp := *job
	r.items[job.ID] = &cp
	return job, nil
}

func (r *Jobs) ClaimDue(_ context.Context, limit int, lease time.Duration) ([]*models.ScheduledJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.Now()
	var out []*models.ScheduledJob
	for _, j := range r.items {
		if limit > 0 && len(out) >= limit {
			break
		}
		if j.Dead || j.RunAt.After(now) || (j.LockedUntil != nil && j.LockedUntil.After(now)) {
			continue
		}
		until := now.Add(lease)
		j.LockedUntil = &until
		j.Attempts++
		cp := *j
		out = append(out, &cp)
	}
	return out, nil
}

func (r *Jobs) Complete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

func (r *Jobs) Retry(_ context.Context, id int64, runAt time.Time, lastErr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.items[id]; ok {
		j.RunAt = runAt
		j.LastError = lastErr
		j.LockedUntil = nil
	}
	return nil
}

func (r *Jobs) Bury(_ context.Context, id int64, lastErr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.items[id]; ok {
		j.Dead = true
		j.LastError = lastErr
		j.LockedUntil = nil
	}
	return nil
}

// Pending returns a snapshot of every job still in the queue.
func (r *Jobs) Pending() []models.ScheduledJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ScheduledJob
	for _, j := range r.items {
		out = append(out, *j)
	}
	return out
}
