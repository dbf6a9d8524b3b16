package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Kerhoff/vpcs/internal/auth"
	"github.com/Kerhoff/vpcs/internal/metrics"
	"github.com/Kerhoff/vpcs/internal/models"
	"github.com/Kerhoff/vpcs/internal/notify"
	"github.com/Kerhoff/vpcs/internal/pending"
	"github.com/Kerhoff/vpcs/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Notifier delivers push notifications to family devices.
type Notifier interface {
	SendApprovalRequest(ctx context.Context, familyID uuid.UUID, req notify.ApprovalRequest) (bool, error)
	SendResult(ctx context.Context, familyID uuid.UUID, notice notify.ResultNotice) (bool, error)
	SendTest(ctx context.Context, userID uuid.UUID) (sent int, total int, err error)
}

// Scheduler arms a delayed callback.
type Scheduler interface {
	Enqueue(ctx context.Context, kind, payload string, delay time.Duration) error
}

// Authenticator runs WebAuthn registration on behalf of the invite flow.
type Authenticator interface {
	StartRegistration(ctx context.Context, username string, role models.Role, resumeToken string) (*auth.Registration, error)
	FinishRegistration(ctx context.Context, username string, response []byte) (*models.User, error)
}

// ResolutionListener is told about every transaction that reaches a
// terminal status, including purchases approved at submission.
type ResolutionListener interface {
	TransactionResolved(tx *models.Transaction)
}

// Options tunes the purchase and approval flow.
type Options struct {
	// ApprovalWindow is how long a parent has before the purchase auto-approves.
	ApprovalWindow time.Duration
	// PendingTTL bounds the pending record and must exceed ApprovalWindow.
	PendingTTL   time.Duration
	DefaultLimit decimal.Decimal
	MaxAmount    decimal.Decimal
	InviteTTL    time.Duration
	// NotifyTimeout caps push fan-out started from a request.
	NotifyTimeout time.Duration
}

func (o *Options) defaults() {
	if o.ApprovalWindow <= 0 {
		o.ApprovalWindow = 5 * time.Minute
	}
	if o.PendingTTL <= o.ApprovalWindow {
		o.PendingTTL = 2 * o.ApprovalWindow
	}
	if o.DefaultLimit.IsZero() {
		o.DefaultLimit = decimal.NewFromInt(50)
	}
	if o.MaxAmount.IsZero() {
		o.MaxAmount = decimal.NewFromInt(1000)
	}
	if o.InviteTTL <= 0 {
		o.InviteTTL = 24 * time.Hour
	}
	if o.NotifyTimeout <= 0 {
		o.NotifyTimeout = 15 * time.Second
	}
}

// Deps groups the collaborators of a Service.
type Deps struct {
	Users         repository.UserRepository
	Families      repository.FamilyRepository
	Vendors       repository.VendorRepository
	Transactions  repository.TransactionRepository
	Subscriptions repository.PushSubscriptionRepository
	Logs          repository.NotificationLogRepository
	Settings      repository.NotificationSettingsRepository
	Invites       repository.InviteRepository
	Pending       pending.Store
	Notifier      Notifier
	Scheduler     Scheduler
	Auth          Authenticator
	Metrics       *metrics.Metrics
	Logger        *logrus.Logger
	Clock         func() time.Time
}

// Service is the central business logic layer that holds all repositories
// and provides high-level methods for the application.
type Service struct {
	Users         repository.UserRepository
	Families      repository.FamilyRepository
	Vendors       repository.VendorRepository
	Transactions  repository.TransactionRepository
	Subscriptions repository.PushSubscriptionRepository
	Logs          repository.NotificationLogRepository
	Settings      repository.NotificationSettingsRepository
	Invites       repository.InviteRepository

	pending   pending.Store
	notifier  Notifier
	scheduler Scheduler
	auth      Authenticator
	metrics   *metrics.Metrics
	logger    *logrus.Logger
	now       func() time.Time
	opts      Options

	mu        sync.RWMutex
	listeners []ResolutionListener
}

// New creates a new Service with all required dependencies.
func New(deps Deps, opts Options) *Service {
	opts.defaults()
	s := &Service{
		Users:         deps.Users,
		Families:      deps.Families,
		Vendors:       deps.Vendors,
		Transactions:  deps.Transactions,
		Subscriptions: deps.Subscriptions,
		Logs:          deps.Logs,
		Settings:      deps.Settings,
		Invites:       deps.Invites,
		pending:       deps.Pending,
		notifier:      deps.Notifier,
		scheduler:     deps.Scheduler,
		auth:          deps.Auth,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		now:           deps.Clock,
		opts:          opts,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = logrus.StandardLogger()
	}
	return s
}

// Options returns the effective options after defaults were applied.
func (s *Service) Options() Options {
	return s.opts
}

// AddListener registers l for resolution events.
func (s *Service) AddListener(l ResolutionListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Service) publish(tx *models.Transaction) {
	s.mu.RLock()
	listeners := s.listeners
	s.mu.RUnlock()
	for _, l := range listeners {
		l.TransactionResolved(tx)
	}
}

// detach keeps request-scoped values but survives client disconnects, so a
// dropped HTTP connection does not abort notification fan-out.
func (s *Service) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.opts.NotifyTimeout)
}

// Me returns the user and the family they belong to, if any.
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*models.User, *models.Family, error) {
	user, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lookup user %s: %w", userID, err)
	}
	if user == nil {
		return nil, nil, nil
	}
	family, err := s.Families.GetByMember(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lookup family for user %s: %w", userID, err)
	}
	return user, family, nil
}
