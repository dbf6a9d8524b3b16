package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Kerhoff/vpcs/internal/metrics"
	"github.com/Kerhoff/vpcs/internal/models"
	"github.com/Kerhoff/vpcs/internal/testutil"
	"github.com/google/uuid"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
)

// fakeSender answers with a fixed status per endpoint.
type fakeSender struct {
	mu       sync.Mutex
	statuses map[string]int
	sent     map[string][]byte
	opts     map[string]SendOptions
}

func newFakeSender() *fakeSender {
	return &fakeSender{statuses: map[string]int{}, sent: map[string][]byte{}, opts: map[string]SendOptions{}}
}

func (s *fakeSender) Send(_ context.Context, sub *models.PushSubscription, payload []byte, opts SendOptions) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[sub.Endpoint] = payload
	s.opts[sub.Endpoint] = opts
	status, ok := s.statuses[sub.Endpoint]
	if !ok {
		status = http.StatusCreated
	}
	if status == 0 {
		return 0, errors.New("connection refused")
	}
	if status >= 300 {
		return status, errors.New("push service error")
	}
	return status, nil
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type dispatcherFixture struct {
	users    *testutil.Users
	subs     *testutil.Subscriptions
	logs     *testutil.NotificationLogs
	settings *testutil.Settings
	sender   *fakeSender
	metrics  *metrics.Metrics
	clock    *testutil.Clock
	d        *Dispatcher
	familyID uuid.UUID
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()
	f := &dispatcherFixture{
		users:    testutil.NewUsers(),
		settings: testutil.NewSettings(),
		sender:   newFakeSender(),
		metrics:  metrics.New(),
		clock:    testutil.NewClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)),
		familyID: uuid.New(),
	}
	f.subs = testutil.NewSubscriptions(f.users)
	f.logs = testutil.NewNotificationLogs(f.subs)
	f.d = NewDispatcher(Config{
		Subscriptions: f.subs,
		Logs:          f.logs,
		Settings:      f.settings,
		Sender:        f.sender,
		Metrics:       f.metrics,
		Logger:        testutil.Logger(),
		Clock:         f.clock.Now,
	})
	return f
}

func (f *dispatcherFixture) addParent(t *testing.T, endpoints ...string) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	familyID := f.familyID
	u, err := f.users.Create(ctx, &models.User{Username: uuid.NewString(), FamilyID: &familyID})
	if err != nil {
		t.Fatal(err)
	}
	for _, ep := range endpoints {
		if _, err := f.subs.Upsert(ctx, &models.PushSubscription{UserID: u.ID, Endpoint: ep, P256dhKey: "p", AuthKey: "a"}); err != nil {
			t.Fatal(err)
		}
	}
	return u.ID
}

func approval() ApprovalRequest {
	return ApprovalRequest{
		TransactionID: uuid.New(),
		VendorName:    "Corner Shop",
		Amount:        decimal.RequireFromString("75.00"),
		Description:   "snacks",
	}
}

func TestSendApprovalRequestPayload(t *testing.T) {
	f := newDispatcherFixture(t)
	f.addParent(t, "https://push.example/a")
	req := approval()

	ok, err := f.d.SendApprovalRequest(context.Background(), f.familyID, req)
	if err != nil || !ok {
		t.Fatalf("SendApprovalRequest() = %v, %v", ok, err)
	}

	var p Payload
	if err := json.Unmarshal(f.sender.sent["https://push.example/a"], &p); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if p.Tag != "transaction-"+req.TransactionID.String() || !p.RequireInteraction {
		t.Errorf("payload tag/interaction = %q/%v", p.Tag, p.RequireInteraction)
	}
	if len(p.Actions) != 2 || p.Actions[0].Action != "approve" || p.Actions[1].Action != "decline" {
		t.Errorf("payload actions = %+v", p.Actions)
	}
	if p.Data.Type != "transaction_approval" || p.Data.TransactionID == nil || *p.Data.TransactionID != req.TransactionID {
		t.Errorf("payload data = %+v", p.Data)
	}
	if p.Body != "Corner Shop is requesting $75.00" {
		t.Errorf("payload body = %q", p.Body)
	}
	if opts := f.sender.opts["https://push.example/a"]; !opts.Urgent || opts.TTL != ApprovalTTL {
		t.Errorf("send options = %+v", opts)
	}
}

func TestDeliveryFailuresAreIndependent(t *testing.T) {
	f := newDispatcherFixture(t)
	f.addParent(t, "https://push.example/ok", "https://push.example/gone")
	f.addParent(t, "https://push.example/flaky", "https://push.example/down")

	f.sender.statuses["https://push.example/gone"] = http.StatusGone
	f.sender.statuses["https://push.example/flaky"] = http.StatusInternalServerError
	f.sender.statuses["https://push.example/down"] = 0

	ok, err := f.d.SendApprovalRequest(context.Background(), f.familyID, approval())
	if err != nil {
		t.Fatalf("SendApprovalRequest() error = %v", err)
	}
	if !ok {
		t.Error("expected success when one device accepted")
	}
	if f.sender.count() != 4 {
		t.Errorf("attempted %d devices, want 4", f.sender.count())
	}

	for _, s := range mustList(t, f) {
		switch s.Endpoint {
		case "https://push.example/gone":
			if s.IsActive {
				t.Error("410 subscription should be deactivated")
			}
		case "https://push.example/ok":
			if !s.IsActive || s.LastUsed == nil {
				t.Errorf("successful subscription = %+v, want active with last_used", s)
			}
		default:
			if !s.IsActive {
				t.Errorf("%s deactivated after a transient error", s.Endpoint)
			}
		}
	}

	if n := len(f.logs.All()); n != 4 {
		t.Errorf("logged %d attempts, want 4", n)
	}
	if got := promtest.ToFloat64(f.metrics.SubscriptionsPruned); got != 1 {
		t.Errorf("pruned = %v, want 1", got)
	}
}

func mustList(t *testing.T, f *dispatcherFixture) []*models.PushSubscription {
	t.Helper()
	var all []*models.PushSubscription
	for id := int64(1); ; id++ {
		s := f.subs.Get(id)
		if s == nil {
			return all
		}
		all = append(all, s)
	}
}

func TestNoSubscriptionsReportsFalse(t *testing.T) {
	f := newDispatcherFixture(t)

	ok, err := f.d.SendApprovalRequest(context.Background(), f.familyID, approval())
	if err != nil || ok {
		t.Errorf("SendApprovalRequest() = %v, %v; want false, nil", ok, err)
	}
}

func TestAllDevicesFailingReportsFalse(t *testing.T) {
	f := newDispatcherFixture(t)
	f.addParent(t, "https://push.example/a")
	f.sender.statuses["https://push.example/a"] = http.StatusNotFound

	ok, err := f.d.SendApprovalRequest(context.Background(), f.familyID, approval())
	if err != nil || ok {
		t.Errorf("SendApprovalRequest() = %v, %v; want false, nil", ok, err)
	}
}

func TestQuietHoursSuppressResultsOnly(t *testing.T) {
	f := newDispatcherFixture(t)
	parent := f.addParent(t, "https://push.example/a")
	ctx := context.Background()

	f.settings.Set(ctx, parent, SettingQuietHoursStart, "11:00")
	f.settings.Set(ctx, parent, SettingQuietHoursEnd, "13:00")

	ok, err := f.d.SendResult(ctx, f.familyID, ResultNotice{
		TransactionID: uuid.New(),
		Status:        models.StatusApproved,
		VendorName:    "Corner Shop",
		Amount:        decimal.RequireFromString("75"),
	})
	if err != nil {
		t.Fatalf("SendResult() error = %v", err)
	}
	if ok || f.sender.count() != 0 {
		t.Errorf("result delivered during quiet hours (ok=%v, sent=%d)", ok, f.sender.count())
	}

	ok, err = f.d.SendApprovalRequest(ctx, f.familyID, approval())
	if err != nil || !ok {
		t.Errorf("approval request during quiet hours = %v, %v; want delivered", ok, err)
	}
}

func TestResultsCanBeDisabled(t *testing.T) {
	f := newDispatcherFixture(t)
	muted := f.addParent(t, "https://push.example/muted")
	f.addParent(t, "https://push.example/loud")
	f.settings.Set(context.Background(), muted, SettingTransactionResults, "false")

	ok, err := f.d.SendResult(context.Background(), f.familyID, ResultNotice{
		TransactionID: uuid.New(),
		Status:        models.StatusDeclined,
		VendorName:    "Toy Store",
		Amount:        decimal.RequireFromString("20"),
		Reason:        "not today",
	})
	if err != nil || !ok {
		t.Fatalf("SendResult() = %v, %v", ok, err)
	}
	if _, sent := f.sender.sent["https://push.example/muted"]; sent {
		t.Error("muted parent received a result")
	}

	var p Payload
	json.Unmarshal(f.sender.sent["https://push.example/loud"], &p)
	if p.Data.Type != "transaction_result" || p.Data.Action != "declined" || p.Data.Reason != "not today" {
		t.Errorf("result payload data = %+v", p.Data)
	}
}

func TestSendTest(t *testing.T) {
	f := newDispatcherFixture(t)
	parent := f.addParent(t, "https://push.example/a", "https://push.example/b")
	f.sender.statuses["https://push.example/b"] = http.StatusServiceUnavailable

	sent, total, err := f.d.SendTest(context.Background(), parent)
	if err != nil {
		t.Fatalf("SendTest() error = %v", err)
	}
	if sent != 1 || total != 2 {
		t.Errorf("SendTest() = %d/%d, want 1/2", sent, total)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		status int
		err    error
		want   Outcome
	}{
		{http.StatusCreated, nil, OutcomeDelivered},
		{http.StatusUnauthorized, errors.New("x"), OutcomeGone},
		{http.StatusForbidden, errors.New("x"), OutcomeGone},
		{http.StatusNotFound, errors.New("x"), OutcomeGone},
		{http.StatusGone, errors.New("x"), OutcomeGone},
		{http.StatusTooManyRequests, errors.New("x"), OutcomeTransient},
		{0, errors.New("dial tcp"), OutcomeTransient},
	}
	for _, tt := range tests {
		if got := Classify(tt.status, tt.err); got != tt.want {
			t.Errorf("Classify(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
