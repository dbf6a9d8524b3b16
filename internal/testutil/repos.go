// Package testutil provides in-memory repository fakes shared by package tests.
package testutil

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Kerhoff/vpcs/internal/models"
	"github.com/Kerhoff/vpcs/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInjected is returned by fakes configured to fail.
var ErrInjected = errors.New("injected failure")

// Users implements repository.UserRepository.
type Users struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*models.User
}

func NewUsers() *Users {
	return &Users{byID: make(map[uuid.UUID]*models.User)}
}

func (r *Users) Create(_ context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Username == user.Username {
			return nil, repository.ErrDuplicate
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Role == "" {
		user.Role = models.RoleParent
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	cp := *user
	r.byID[user.ID] = &cp
	return user, nil
}

func (r *Users) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (r *Users) GetByUsername(_ context.Context, username string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *Users) SetChallenge(_ context.Context, id uuid.UUID, challenge *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return errors.New("user not found")
	}
	u.CurrentChallenge = challenge
	return nil
}

func (r *Users) SetFamily(_ context.Context, id uuid.UUID, familyID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return errors.New("user not found")
	}
	u.FamilyID = &familyID
	return nil
}

// Authenticators implements repository.AuthenticatorRepository.
type Authenticators struct {
	mu    sync.Mutex
	items []*models.Authenticator
}

func NewAuthenticators() *Authenticators { return &Authenticators{} }

func (r *Authenticators) Create(_ context.Context, a *models.Authenticator) (*models.Authenticator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.items {
		if bytes.Equal(existing.CredentialID, a.CredentialID) {
			return nil, repository.ErrDuplicate
		}
	}
	a.ID = int64(len(r.items) + 1)
	r.items = append(r.items, a)
	return a, nil
}

func (r *Authenticators) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.Authenticator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Authenticator
	for _, a := range r.items {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *Authenticators) UpdateSignCount(_ context.Context, credentialID []byte, signCount uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.items {
		if bytes.Equal(a.CredentialID, credentialID) {
			a.SignCount = signCount
		}
	}
	return nil
}

// Families implements repository.FamilyRepository.
type Families struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]*models.Family
	users *Users
}

// NewFamilies creates a fake. users resolves GetByMember and may be nil.
func NewFamilies(users *Users) *Families {
	return &Families{byID: make(map[uuid.UUID]*models.Family), users: users}
}

func (r *Families) Create(_ context.Context, family *models.Family) (*models.Family, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.byID {
		if f.Number == family.Number {
			return nil, repository.ErrDuplicate
		}
	}
	if family.ID == uuid.Nil {
		family.ID = uuid.New()
	}
	cp := *family
	r.byID[family.ID] = &cp
	return family, nil
}

// Remove deletes a family, simulating data that disappears mid-flight.
func (r *Families) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

func (r *Families) GetByID(_ context.Context, id uuid.UUID) (*models.Family, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.byID[id]; ok {
		cp := *f
		return &cp, nil
	}
	return nil, nil
}

func (r *Families) GetByNumberAndSurname(_ context.Context, number, surname string) (*models.Family, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.byID {
		if f.Number == number && strings.EqualFold(f.Surname, surname) {
			cp := *f
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *Families) GetByNumber(_ context.Context, number string) (*models.Family, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.byID {
		if f.Number == number {
			cp := *f
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *Families) GetByMember(ctx context.Context, userID uuid.UUID) (*models.Family, error) {
	if r.users == nil {
		return nil, nil
	}
	u, _ := r.users.GetByID(ctx, userID)
	if u == nil || u.FamilyID == nil {
		return nil, nil
	}
	return r.GetByID(ctx, *u.FamilyID)
}

func (r *Families) Update(_ context.Context, family *models.Family) (*models.Family, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, f := range r.byID {
		if id != family.ID && f.Number == family.Number {
			return nil, repository.ErrDuplicate
		}
	}
	cp := *family
	r.byID[family.ID] = &cp
	return family, nil
}

func (r *Families) UpdateDefaultLimit(_ context.Context, id uuid.UUID, limit decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.byID[id]
	if !ok {
		return errors.New("family not found")
	}
	f.DefaultLimit = limit
	return nil
}

// Vendors implements repository.VendorRepository.
type Vendors struct {
	mu       sync.Mutex
	byID     map[string]*models.Vendor
	limits   map[string]*models.VendorLimit
	surnames map[string]*models.SurnameCacheEntry
}

func NewVendors() *Vendors {
	return &Vendors{
		byID:     make(map[string]*models.Vendor),
		limits:   make(map[string]*models.VendorLimit),
		surnames: make(map[string]*models.SurnameCacheEntry),
	}
}

func limitKey(familyID uuid.UUID, vendorID string) string {
	return familyID.String() + "/" + vendorID
}

func (r *Vendors) GetByID(_ context.Context, id string) (*models.Vendor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.byID[id]; ok {
		cp := *v
		return &cp, nil
	}
	return nil, nil
}

func (r *Vendors) Upsert(_ context.Context, vendor *models.Vendor) (*models.Vendor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *vendor
	r.byID[vendor.ID] = &cp
	return vendor, nil
}

func (r *Vendors) GetLimit(_ context.Context, familyID uuid.UUID, vendorID string) (*models.VendorLimit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.limits[limitKey(familyID, vendorID)]; ok {
		cp := *l
		return &cp, nil
	}
	return nil, nil
}

func (r *Vendors) ListLimits(_ context.Context, familyID uuid.UUID) ([]*models.VendorLimit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.VendorLimit
	for _, l := range r.limits {
		if l.FamilyID == familyID {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VendorID < out[j].VendorID })
	return out, nil
}

func (r *Vendors) SetLimit(_ context.Context, limit *models.VendorLimit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *limit
	r.limits[limitKey(limit.FamilyID, limit.VendorID)] = &cp
	return nil
}

func (r *Vendors) DeleteLimit(_ context.Context, familyID uuid.UUID, vendorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.limits, limitKey(familyID, vendorID))
	return nil
}

func (r *Vendors) CacheSurname(_ context.Context, vendorID, familyNumber, surname string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.surnames[vendorID+"/"+familyNumber] = &models.SurnameCacheEntry{
		VendorID: vendorID, FamilyNumber: familyNumber, Surname: surname, UpdatedAt: time.Now(),
	}
	return nil
}

func (r *Vendors) GetCachedSurname(_ context.Context, vendorID, familyNumber string) (*models.SurnameCacheEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.surnames[vendorID+"/"+familyNumber]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

// Transactions implements repository.TransactionRepository with the same
// compare-and-set semantics as the SQL ledger.
type Transactions struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*models.Transaction

	// FailCreate makes CreatePending and CreateApproved fail.
	FailCreate bool
	// ResolveCalls counts every Resolve attempt, winning or not.
	ResolveCalls int
}

func NewTransactions() *Transactions {
	return &Transactions{byID: make(map[uuid.UUID]*models.Transaction)}
}

func (r *Transactions) insert(tx *models.Transaction) (*models.Transaction, error) {
	if r.FailCreate {
		return nil, ErrInjected
	}
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	cp := *tx
	r.byID[tx.ID] = &cp
	return tx, nil
}

func (r *Transactions) CreatePending(_ context.Context, tx *models.Transaction) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx.Status = models.StatusPending
	return r.insert(tx)
}

func (r *Transactions) CreateApproved(_ context.Context, tx *models.Transaction) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	at := tx.CreatedAt
	tx.Status = models.StatusApproved
	tx.ApprovedAt = &at
	return r.insert(tx)
}

// Put stores tx as-is, for seeding tests.
func (r *Transactions) Put(tx *models.Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *tx
	r.byID[tx.ID] = &cp
}

func (r *Transactions) GetByID(_ context.Context, id uuid.UUID) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tx, ok := r.byID[id]; ok {
		cp := *tx
		return &cp, nil
	}
	return nil, nil
}

func (r *Transactions) Resolve(_ context.Context, id uuid.UUID, res models.Resolution) (*models.Transaction, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ResolveCalls++

	tx, ok := r.byID[id]
	if !ok || tx.Status != models.StatusPending {
		return nil, false, nil
	}

	at := res.At
	if at.IsZero() {
		at = time.Now()
	}
	tx.Status = res.Status
	tx.ResponderID = res.ResponderID
	if res.Status == models.StatusDeclined {
		tx.DeclinedAt = &at
		tx.DeclineReason = res.Reason
	} else {
		tx.ApprovedAt = &at
	}
	tx.TimeoutOccurred = res.Status == models.StatusAutoApproved

	cp := *tx
	return &cp, true, nil
}

func (r *Transactions) filter(keep func(*models.Transaction) bool) []*models.Transaction {
	var out []*models.Transaction
	for _, tx := range r.byID {
		if keep(tx) {
			cp := *tx
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *Transactions) ListRecentByVendor(_ context.Context, vendorID string, since time.Time) ([]*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filter(func(tx *models.Transaction) bool {
		return tx.VendorID == vendorID && !tx.CreatedAt.Before(since)
	}), nil
}

func (r *Transactions) ListRecentByFamily(_ context.Context, familyID uuid.UUID, limit int) ([]*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.filter(func(tx *models.Transaction) bool { return tx.FamilyID == familyID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Transactions) ListStalePending(_ context.Context, createdBefore time.Time, limit int) ([]*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.filter(func(tx *models.Transaction) bool {
		return tx.Status == models.StatusPending && tx.CreatedAt.Before(createdBefore)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
