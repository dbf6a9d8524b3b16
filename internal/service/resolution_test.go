package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Kerhoff/vpcs/internal/apperr"
	"github.com/Kerhoff/vpcs/internal/models"
	"github.com/google/uuid"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
)

func TestDeclineWithinWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.submitPending(t, "75.00")

	f.clock.Advance(2 * time.Minute)
	res, err := f.svc.RespondToApproval(ctx, ApprovalResponse{
		TransactionID: id.String(),
		Action:        ActionDecline,
		Reason:        "too expensive",
	}, nil)
	if err != nil {
		t.Fatalf("RespondToApproval() error = %v", err)
	}
	if res.Status != string(models.StatusDeclined) {
		t.Errorf("status = %s, want declined", res.Status)
	}

	tx := f.ledger(t, id)
	if tx.Status != models.StatusDeclined || tx.DeclineReason != "too expensive" || tx.DeclinedAt == nil {
		t.Errorf("ledger row = %+v", tx)
	}
	if rec, _ := f.pending.Get(ctx, id); rec != nil {
		t.Error("pending record not removed")
	}
	if f.notifier.resultCount() != 1 {
		t.Fatalf("result notices = %d, want 1", f.notifier.resultCount())
	}
	if f.notifier.results[0].Reason != "too expensive" {
		t.Errorf("result reason = %q", f.notifier.results[0].Reason)
	}

	// The armed auto-approval fires later and must not change anything.
	f.clock.Advance(3 * time.Minute)
	if n := f.runner.RunOnce(ctx); n != 1 {
		t.Fatalf("RunOnce() claimed %d jobs, want 1", n)
	}
	if tx := f.ledger(t, id); tx.Status != models.StatusDeclined {
		t.Errorf("status after timeout = %s, want declined", tx.Status)
	}
	if f.notifier.resultCount() != 1 {
		t.Errorf("result notices after timeout = %d, want 1", f.notifier.resultCount())
	}
	if len(f.jobs.Pending()) != 0 {
		t.Error("no-op auto-approval job was not completed")
	}
}

func TestAutoApproveAfterWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.submitPending(t, "75.00")

	f.clock.Advance(4 * time.Minute)
	f.runner.RunOnce(ctx)
	if tx := f.ledger(t, id); tx.Status != models.StatusPending {
		t.Fatalf("status before window = %s, want pending", tx.Status)
	}

	f.clock.Advance(time.Minute)
	f.runner.RunOnce(ctx)

	tx := f.ledger(t, id)
	if tx.Status != models.StatusAutoApproved || !tx.TimeoutOccurred {
		t.Errorf("ledger row = %+v, want auto_approved with timeout", tx)
	}
	if tx.ResponderID != nil {
		t.Errorf("responder = %v, want none", tx.ResponderID)
	}
	if f.notifier.resultCount() != 1 || f.notifier.results[0].Status != models.StatusAutoApproved {
		t.Errorf("result notices = %+v", f.notifier.results)
	}
	if got := promtest.ToFloat64(f.metrics.Resolutions.WithLabelValues("auto_approved", ChannelTimeout)); got != 1 {
		t.Errorf("timeout resolutions = %v, want 1", got)
	}

	_, err := f.svc.RespondToApproval(ctx, ApprovalResponse{TransactionID: id.String(), Action: ActionApprove}, nil)
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("late response error = %v, want not found", err)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.submitPending(t, "75.00")

	tx, won, err := f.svc.Resolve(ctx, id, Decision{Status: models.StatusApproved, Channel: ChannelParent})
	if err != nil || !won || tx == nil {
		t.Fatalf("first Resolve() = %v, %v, %v", tx, won, err)
	}
	tx, won, err = f.svc.Resolve(ctx, id, Decision{Status: models.StatusDeclined, Reason: "no", Channel: ChannelParent})
	if err != nil || won || tx != nil {
		t.Fatalf("second Resolve() = %v, %v, %v; want no-op", tx, won, err)
	}

	if got := f.ledger(t, id); got.Status != models.StatusApproved || got.DeclineReason != "" {
		t.Errorf("ledger row = %+v, want first outcome", got)
	}
	if f.notifier.resultCount() != 1 {
		t.Errorf("result notices = %d, want 1", f.notifier.resultCount())
	}
	if f.listener.count() != 1 {
		t.Errorf("listener events = %d, want 1", f.listener.count())
	}
	if got := promtest.ToFloat64(f.metrics.ResolutionConflicts); got != 1 {
		t.Errorf("conflicts = %v, want 1", got)
	}
}

func TestConcurrentParentAndTimeout(t *testing.T) {
	for i := 0; i < 50; i++ {
		f := newFixture(t)
		ctx := context.Background()
		id := f.submitPending(t, "75.00")
		f.clock.Advance(5 * time.Minute)

		var wg sync.WaitGroup
		var parentRes *ResponseResult
		var parentErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			parentRes, parentErr = f.svc.RespondToApproval(ctx, ApprovalResponse{
				TransactionID: id.String(),
				Action:        ActionApprove,
			}, nil)
		}()
		go func() {
			defer wg.Done()
			f.runner.RunOnce(ctx)
		}()
		wg.Wait()

		tx := f.ledger(t, id)
		if !tx.Status.Terminal() {
			t.Fatalf("iteration %d: status = %s, want terminal", i, tx.Status)
		}
		if f.notifier.resultCount() != 1 {
			t.Fatalf("iteration %d: result notices = %d, want exactly 1", i, f.notifier.resultCount())
		}

		// The parent either won, lost the race, or arrived after the pending
		// record was removed.
		switch {
		case parentErr != nil:
			if apperr.KindOf(parentErr) != apperr.KindNotFound || tx.Status != models.StatusAutoApproved {
				t.Fatalf("iteration %d: parent error = %v with status %s", i, parentErr, tx.Status)
			}
		case parentRes.Status == StatusAlreadyProcessed:
			if tx.Status != models.StatusAutoApproved {
				t.Fatalf("iteration %d: parent lost but status = %s", i, tx.Status)
			}
		default:
			if tx.Status != models.StatusApproved {
				t.Fatalf("iteration %d: parent won but status = %s", i, tx.Status)
			}
		}
	}
}

func TestConcurrentResolversSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.submitPending(t, "75.00")

	statuses := []models.TransactionStatus{
		models.StatusApproved, models.StatusDeclined, models.StatusAutoApproved,
	}
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(status models.TransactionStatus) {
			defer wg.Done()
			_, won, err := f.svc.Resolve(ctx, id, Decision{Status: status, Channel: ChannelParent})
			if err != nil {
				t.Errorf("Resolve() error = %v", err)
			}
			if won {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(statuses[i%len(statuses)])
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("winners = %d, want 1", wins)
	}
	if f.notifier.resultCount() != 1 {
		t.Errorf("result notices = %d, want 1", f.notifier.resultCount())
	}
}

func TestPendingRecordExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.submitPending(t, "75.00")

	// Lose the scheduled job so only the TTL matters.
	f.jobs.Complete(ctx, f.jobs.Pending()[0].ID)

	f.clock.Advance(10*time.Minute + time.Second)
	_, err := f.svc.RespondToApproval(ctx, ApprovalResponse{TransactionID: id.String(), Action: ActionApprove}, nil)
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("error = %v, want not found", err)
	}
}

func TestSweepResolvesStalePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.jobs.FailEnqueue = true
	id := f.submitPending(t, "75.00")

	f.clock.Advance(9 * time.Minute)
	f.runner.RunOnce(ctx)
	if tx := f.ledger(t, id); tx.Status != models.StatusPending {
		t.Fatalf("status = %s, want pending before the TTL", tx.Status)
	}

	f.clock.Advance(2 * time.Minute)
	f.runner.RunOnce(ctx)
	if tx := f.ledger(t, id); tx.Status != models.StatusAutoApproved {
		t.Errorf("status = %s, want auto_approved", tx.Status)
	}
	if got := promtest.ToFloat64(f.metrics.Resolutions.WithLabelValues("auto_approved", ChannelSweep)); got != 1 {
		t.Errorf("sweep resolutions = %v, want 1", got)
	}
}

func TestResolveSkipsDispatchWhenFamilyIsGone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.submitPending(t, "75.00")
	f.families.Remove(f.family.ID)

	_, won, err := f.svc.Resolve(ctx, id, Decision{Status: models.StatusApproved, Channel: ChannelParent})
	if err != nil || !won {
		t.Fatalf("Resolve() = %v, %v", won, err)
	}
	if f.notifier.resultCount() != 0 {
		t.Errorf("result notices = %d, want 0", f.notifier.resultCount())
	}
}

func TestAuthenticatedResponse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.submitPending(t, "75.00")

	stranger := &models.User{ID: uuid.New(), Role: models.RoleParent}
	otherFamily := uuid.New()
	stranger.FamilyID = &otherFamily
	_, err := f.svc.RespondToApproval(ctx, ApprovalResponse{TransactionID: id.String(), Action: ActionApprove}, stranger)
	if apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("stranger error = %v, want forbidden", err)
	}

	res, err := f.svc.RespondToApproval(ctx, ApprovalResponse{TransactionID: id.String(), Action: ActionApprove}, f.parent)
	if err != nil {
		t.Fatalf("RespondToApproval() error = %v", err)
	}
	if res.Status != string(models.StatusApproved) {
		t.Errorf("status = %s", res.Status)
	}
	tx := f.ledger(t, id)
	if tx.ResponderID == nil || *tx.ResponderID != f.parent.ID {
		t.Errorf("responder = %v, want %v", tx.ResponderID, f.parent.ID)
	}
}

func TestApprovalResponseValidation(t *testing.T) {
	f := newFixture(t)
	id := f.submitPending(t, "75.00").String()

	tests := []struct {
		name  string
		resp  ApprovalResponse
		field string
	}{
		{"bad id", ApprovalResponse{TransactionID: "abc", Action: ActionApprove}, "transactionId"},
		{"bad action", ApprovalResponse{TransactionID: id, Action: "maybe"}, "action"},
		{"long reason", ApprovalResponse{TransactionID: id, Action: ActionDecline, Reason: string(make([]byte, 501))}, "reason"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.RespondToApproval(context.Background(), tt.resp, nil)
			appErr, ok := apperr.As(err)
			if !ok || appErr.Kind != apperr.KindValidation || appErr.Field != tt.field {
				t.Errorf("error = %v, want validation on %s", err, tt.field)
			}
		})
	}
}

func TestMalformedJobPayloadIsDropped(t *testing.T) {
	f := newFixture(t)
	if err := f.svc.HandleAutoApprove(context.Background(), &models.ScheduledJob{ID: 7, Payload: "garbage"}); err != nil {
		t.Errorf("HandleAutoApprove() error = %v, want nil", err)
	}
}
