package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/Kerhoff/vpcs/internal/models"
	"github.com/google/uuid"
)

// Subscriptions implements repository.PushSubscriptionRepository. Family
// membership is resolved through Users.
type Subscriptions struct {
	mu     sync.Mutex
	items  []*models.PushSubscription
	users  *Users
	nextID int64
}

func NewSubscriptions(users *Users) *Subscriptions {
	return &Subscriptions{users: users}
}

func (r *Subscriptions) Upsert(_ context.Context, sub *models.PushSubscription) (*models.PushSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.items {
		if existing.Endpoint == sub.Endpoint {
			existing.UserID = sub.UserID
			existing.P256dhKey = sub.P256dhKey
			existing.AuthKey = sub.AuthKey
			existing.IsActive = true
			sub.ID = existing.ID
			sub.IsActive = true
			return sub, nil
		}
	}
	r.nextID++
	sub.ID = r.nextID
	sub.IsActive = true
	sub.CreatedAt = time.Now()
	cp := *sub
	r.items = append(r.items, &cp)
	return sub, nil
}

func (r *Subscriptions) find(id int64) *models.PushSubscription {
	for _, s := range r.items {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// Get returns a copy of the stored subscription for assertions.
func (r *Subscriptions) Get(id int64) *models.PushSubscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.find(id); s != nil {
		cp := *s
		return &cp
	}
	return nil
}

func (r *Subscriptions) GetByID(_ context.Context, id int64) (*models.PushSubscription, error) {
	return r.Get(id), nil
}

func (r *Subscriptions) collect(keep func(*models.PushSubscription) bool) []*models.PushSubscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.PushSubscription
	for _, s := range r.items {
		if keep(s) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out
}

func (r *Subscriptions) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.PushSubscription, error) {
	return r.collect(func(s *models.PushSubscription) bool { return s.UserID == userID }), nil
}

func (r *Subscriptions) ListActiveByUser(_ context.Context, userID uuid.UUID) ([]*models.PushSubscription, error) {
	return r.collect(func(s *models.PushSubscription) bool { return s.UserID == userID && s.IsActive }), nil
}

func (r *Subscriptions) ListActiveByFamily(ctx context.Context, familyID uuid.UUID) ([]*models.PushSubscription, error) {
	members := make(map[uuid.UUID]bool)
	r.users.mu.Lock()
	for id, u := range r.users.byID {
		if u.FamilyID != nil && *u.FamilyID == familyID && u.Role == models.RoleParent {
			members[id] = true
		}
	}
	r.users.mu.Unlock()

	return r.collect(func(s *models.PushSubscription) bool { return s.IsActive && members[s.UserID] }), nil
}

func (r *Subscriptions) Deactivate(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.find(id); s != nil {
		s.IsActive = false
	}
	return nil
}

func (r *Subscriptions) DeactivateForUser(_ context.Context, id int64, userID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.find(id)
	if s == nil || s.UserID != userID {
		return false, nil
	}
	s.IsActive = false
	return true, nil
}

func (r *Subscriptions) TouchLastUsed(_ context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.find(id); s != nil {
		s.LastUsed = &at
	}
	return nil
}

// NotificationLogs implements repository.NotificationLogRepository.
type NotificationLogs struct {
	mu      sync.Mutex
	Entries []*models.NotificationLog
	subs    *Subscriptions
}

func NewNotificationLogs(subs *Subscriptions) *NotificationLogs {
	return &NotificationLogs{subs: subs}
}

func (r *NotificationLogs) Create(_ context.Context, entry *models.NotificationLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = int64(len(r.Entries) + 1)
	cp := *entry
	r.Entries = append(r.Entries, &cp)
	return nil
}

// All returns a snapshot of every recorded entry.
func (r *NotificationLogs) All() []models.NotificationLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.NotificationLog, len(r.Entries))
	for i, e := range r.Entries {
		out[i] = *e
	}
	return out
}

func (r *NotificationLogs) ListBySubscription(_ context.Context, subscriptionID int64, limit int) ([]*models.NotificationLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.NotificationLog
	for i := len(r.Entries) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if r.Entries[i].SubscriptionID == subscriptionID {
			cp := *r.Entries[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *NotificationLogs) MarkResponded(_ context.Context, transactionID uuid.UUID, userID uuid.UUID, action string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.Entries {
		if e.TransactionID == nil || *e.TransactionID != transactionID || e.RespondedAt != nil {
			continue
		}
		if e.Kind != models.NotificationApprovalRequest {
			continue
		}
		if r.subs != nil {
			if s := r.subs.Get(e.SubscriptionID); s == nil || s.UserID != userID {
				continue
			}
		}
		t := at
		e.RespondedAt = &t
		e.ResponseAction = action
	}
	return nil
}

// Settings implements repository.NotificationSettingsRepository.
type Settings struct {
	mu     sync.Mutex
	byUser map[uuid.UUID]map[string]string
}

func NewSettings() *Settings {
	return &Settings{byUser: make(map[uuid.UUID]map[string]string)}
}

func (r *Settings) Get(_ context.Context, userID uuid.UUID) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string)
	for k, v := range r.byUser[userID] {
		out[k] = v
	}
	return out, nil
}

func (r *Settings) Set(_ context.Context, userID uuid.UUID, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byUser[userID] == nil {
		r.byUser[userID] = make(map[string]string)
	}
	r.byUser[userID][key] = value
	return nil
}

// Templates implements repository.TemplateRepository.
type Templates struct {
	ByKey map[string]*models.NotificationTemplate
}

func (r *Templates) Get(_ context.Context, key string) (*models.NotificationTemplate, error) {
	if t, ok := r.ByKey[key]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}
