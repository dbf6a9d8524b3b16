package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Kerhoff/vpcs/internal/metrics"
	"github.com/Kerhoff/vpcs/internal/models"
	"github.com/Kerhoff/vpcs/internal/notify"
	"github.com/Kerhoff/vpcs/internal/pending"
	"github.com/Kerhoff/vpcs/internal/scheduler"
	"github.com/Kerhoff/vpcs/internal/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// recordingNotifier captures dispatch calls instead of pushing.
type recordingNotifier struct {
	mu        sync.Mutex
	approvals []notify.ApprovalRequest
	results   []notify.ResultNotice
	tests     int
	err       error
}

func (n *recordingNotifier) SendApprovalRequest(_ context.Context, _ uuid.UUID, req notify.ApprovalRequest) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.approvals = append(n.approvals, req)
	return n.err == nil, n.err
}

func (n *recordingNotifier) SendResult(_ context.Context, _ uuid.UUID, notice notify.ResultNotice) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results = append(n.results, notice)
	return n.err == nil, n.err
}

func (n *recordingNotifier) SendTest(context.Context, uuid.UUID) (int, int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tests++
	return 1, 1, n.err
}

func (n *recordingNotifier) resultCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.results)
}

// recordingListener captures resolution events.
type recordingListener struct {
	mu  sync.Mutex
	txs []*models.Transaction
}

func (l *recordingListener) TransactionResolved(tx *models.Transaction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.txs = append(l.txs, tx)
}

func (l *recordingListener) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.txs)
}

type fixture struct {
	svc      *Service
	clock    *testutil.Clock
	users    *testutil.Users
	families *testutil.Families
	vendors  *testutil.Vendors
	txs      *testutil.Transactions
	subs     *testutil.Subscriptions
	logs     *testutil.NotificationLogs
	settings *testutil.Settings
	invites  *testutil.Invites
	jobs     *testutil.Jobs
	pending  *pending.MemoryStore
	notifier *recordingNotifier
	listener *recordingListener
	auth     *fakeAuth
	runner   *scheduler.Runner
	metrics  *metrics.Metrics

	parent *models.User
	family *models.Family
	vendor *models.Vendor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		clock:    testutil.NewClock(time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)),
		notifier: &recordingNotifier{},
		listener: &recordingListener{},
		metrics:  metrics.New(),
	}
	f.users = testutil.NewUsers()
	f.families = testutil.NewFamilies(f.users)
	f.vendors = testutil.NewVendors()
	f.txs = testutil.NewTransactions()
	f.subs = testutil.NewSubscriptions(f.users)
	f.logs = testutil.NewNotificationLogs(f.subs)
	f.settings = testutil.NewSettings()
	f.invites = testutil.NewInvites()
	f.jobs = testutil.NewJobs(f.clock.Now)
	f.pending = pending.NewMemoryStore(f.clock.Now)
	f.auth = newFakeAuth(f.users)

	f.svc = New(Deps{
		Users:         f.users,
		Families:      f.families,
		Vendors:       f.vendors,
		Transactions:  f.txs,
		Subscriptions: f.subs,
		Logs:          f.logs,
		Settings:      f.settings,
		Invites:       f.invites,
		Pending:       f.pending,
		Notifier:      f.notifier,
		Scheduler:     scheduler.NewQueue(f.jobs, f.clock.Now),
		Auth:          f.auth,
		Metrics:       f.metrics,
		Logger:        testutil.Logger(),
		Clock:         f.clock.Now,
	}, Options{
		ApprovalWindow: 5 * time.Minute,
		PendingTTL:     10 * time.Minute,
	})
	f.svc.AddListener(f.listener)

	f.runner = scheduler.NewRunner(f.jobs, scheduler.Options{}, f.metrics, testutil.Logger())
	f.runner.Handle(models.JobKindAutoApprove, f.svc.HandleAutoApprove)
	f.runner.OnTick(f.svc.SweepStalePending)

	ctx := context.Background()
	var err error
	f.parent, err = f.users.Create(ctx, &models.User{Username: "parent-one", Role: models.RoleParent})
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	f.family, err = f.svc.SaveFamilySettings(ctx, f.parent, "1234", "Smith")
	if err != nil {
		t.Fatalf("SaveFamilySettings() error = %v", err)
	}
	f.parent.FamilyID = &f.family.ID

	f.vendor, err = f.vendors.Upsert(ctx, &models.Vendor{ID: "corner-shop", Name: "Corner Shop", Category: "grocery"})
	if err != nil {
		t.Fatalf("create vendor: %v", err)
	}
	return f
}

func (f *fixture) purchase(amount string) PurchaseRequest {
	return PurchaseRequest{
		FamilyNumber: "1234",
		Surname:      "Smith",
		VendorID:     "corner-shop",
		Amount:       decimal.RequireFromString(amount),
		Description:  "Snacks",
		ChildName:    "Tom",
	}
}

func (f *fixture) submitPending(t *testing.T, amount string) uuid.UUID {
	t.Helper()
	res, err := f.svc.SubmitPurchase(context.Background(), f.purchase(amount))
	if err != nil {
		t.Fatalf("SubmitPurchase() error = %v", err)
	}
	if res.Status != models.StatusPending {
		t.Fatalf("status = %s, want pending", res.Status)
	}
	return uuid.MustParse(res.TransactionID)
}

func (f *fixture) ledger(t *testing.T, id uuid.UUID) *models.Transaction {
	t.Helper()
	tx, err := f.txs.GetByID(context.Background(), id)
	if err != nil || tx == nil {
		t.Fatalf("GetByID(%s) = %v, %v", id, tx, err)
	}
	return tx
}
