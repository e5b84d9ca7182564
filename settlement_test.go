package subpay_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/subpay"
	"github.com/xraph/subpay/charge"
	"github.com/xraph/subpay/payment"
	"github.com/xraph/subpay/plan"
	"github.com/xraph/subpay/store/memory"
	"github.com/xraph/subpay/subscription"
)

var errDiskFull = errors.New("disk full")

// flakyStore fails the next n writes of a kind.
type flakyStore struct {
	*memory.Store

	mu            sync.Mutex
	paymentWrites int
	subWrites     int
}

func (s *flakyStore) failNext(counter *int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if *counter == 0 {
		return false
	}
	*counter--
	return true
}

func (s *flakyStore) CreatePayment(ctx context.Context, p *payment.Payment) error {
	if s.failNext(&s.paymentWrites) {
		return errDiskFull
	}
	return s.Store.CreatePayment(ctx, p)
}

func (s *flakyStore) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	if s.failNext(&s.subWrites) {
		return errDiskFull
	}
	return s.Store.UpdateSubscription(ctx, sub)
}

func (h *harness) pendingAt(t *testing.T, subID subpay.SubscriptionID, want time.Time) {
	t.Helper()
	p, ok := h.eng.Scheduler().Pending(subID)
	if !ok || !p.At.Equal(want) {
		t.Errorf("pending charge: ok=%v at=%v, want %v", ok, p.At, want)
	}
}

func (h *harness) payments(t *testing.T, subID subpay.SubscriptionID) []*payment.Payment {
	t.Helper()
	pays, err := h.eng.ListPayments(context.Background(), subID)
	if err != nil {
		t.Fatalf("ListPayments: %v", err)
	}
	return pays
}

func TestUnrecordedPaymentIsReversed(t *testing.T) {
	ctx := context.Background()
	fs := &flakyStore{Store: memory.New(), paymentWrites: 1}
	h := newHarnessWithStore(t, fs)

	planID := h.plan(t, 1000, 0)
	if _, err := h.eng.Deposit(ctx, "alice", 1000); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	subID := h.subscribe(t, "alice", planID)

	h.d.AdvanceTo(ctx, t0)

	if got := h.escrow(t, "alice"); got != 1000 {
		t.Errorf("alice escrow: got %d, want refund to 1000", got)
	}
	if got := h.escrow(t, "shop"); got != 0 {
		t.Errorf("shop escrow: got %d, want 0", got)
	}
	s := h.sub(t, subID)
	if !s.Active || !s.NextPaymentAt.Equal(t0) {
		t.Errorf("subscription: active=%v next=%v", s.Active, s.NextPaymentAt)
	}
	retryAt := t0.Add(subpay.DefaultStoreRetryDelay)
	h.pendingAt(t, subID, retryAt)
	if n := len(h.payments(t, subID)); n != 0 {
		t.Errorf("expected no payments, got %d", n)
	}

	// The store recovers and the retried charge settles normally.
	h.d.AdvanceTo(ctx, retryAt)

	if got := h.escrow(t, "alice"); got != 0 {
		t.Errorf("alice escrow after retry: got %d, want 0", got)
	}
	if got := h.escrow(t, "shop"); got != 1000 {
		t.Errorf("shop escrow after retry: got %d, want 1000", got)
	}
	if next := h.sub(t, subID).NextPaymentAt; !next.Equal(t0.Add(plan.DefaultPeriod)) {
		t.Errorf("NextPaymentAt: got %v", next)
	}
	h.pendingAt(t, subID, t0.Add(plan.DefaultPeriod))
	if pays := h.payments(t, subID); len(pays) != 1 || !pays[0].DueAt.Equal(t0) {
		t.Errorf("expected one payment due at %v, got %d", t0, len(pays))
	}
}

func TestUnadvancedSubscriptionNotChargedTwice(t *testing.T) {
	ctx := context.Background()
	fs := &flakyStore{Store: memory.New(), subWrites: 1}
	h := newHarnessWithStore(t, fs)

	planID := h.plan(t, 1000, 0)
	if _, err := h.eng.Deposit(ctx, "alice", 2000); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	subID := h.subscribe(t, "alice", planID)

	h.d.AdvanceTo(ctx, t0)

	if got := h.escrow(t, "alice"); got != 1000 {
		t.Errorf("alice escrow: got %d, want 1000", got)
	}
	if next := h.sub(t, subID).NextPaymentAt; !next.Equal(t0) {
		t.Errorf("unsaved advance must leave NextPaymentAt at %v, got %v", t0, next)
	}
	retryAt := t0.Add(subpay.DefaultStoreRetryDelay)
	h.pendingAt(t, subID, retryAt)

	h.d.AdvanceTo(ctx, retryAt)

	if got := h.escrow(t, "alice"); got != 1000 {
		t.Errorf("recorded cycle charged again: alice escrow %d, want 1000", got)
	}
	if got := h.escrow(t, "shop"); got != 1000 {
		t.Errorf("shop escrow: got %d, want 1000", got)
	}
	if n := len(h.payments(t, subID)); n != 1 {
		t.Errorf("expected 1 payment, got %d", n)
	}
	if next := h.sub(t, subID).NextPaymentAt; !next.Equal(t0.Add(plan.DefaultPeriod)) {
		t.Errorf("NextPaymentAt: got %v", next)
	}
	h.pendingAt(t, subID, t0.Add(plan.DefaultPeriod))
	if len(h.rec.succeeded) != 1 {
		t.Errorf("expected 1 success signal, got %d", len(h.rec.succeeded))
	}
}

func TestIrreversibleChargeStillAdvances(t *testing.T) {
	ctx := context.Background()
	transfers := 0
	transfer := charge.TransferFunc(func(context.Context, string, string, string, int64) (bool, error) {
		transfers++
		return true, nil
	})
	fs := &flakyStore{Store: memory.New(), paymentWrites: 1}
	h := newHarnessWithStore(t, fs, subpay.WithTransferer(transfer))

	planID := h.plan(t, 200, 0)
	if _, err := h.eng.ApproveAllowance(ctx, "alice", 1000); err != nil {
		t.Fatalf("ApproveAllowance: %v", err)
	}
	subID := h.subscribe(t, "alice", planID)

	h.d.AdvanceTo(ctx, t0.Add(plan.DefaultPeriod-time.Second))

	if transfers != 1 {
		t.Errorf("expected 1 transfer, got %d", transfers)
	}
	if next := h.sub(t, subID).NextPaymentAt; !next.Equal(t0.Add(plan.DefaultPeriod)) {
		t.Errorf("NextPaymentAt: got %v", next)
	}
	h.pendingAt(t, subID, t0.Add(plan.DefaultPeriod))
}

func TestFailedChargeStoreErrorKeepsRetry(t *testing.T) {
	ctx := context.Background()
	fs := &flakyStore{Store: memory.New(), paymentWrites: 1, subWrites: 1}
	h := newHarnessWithStore(t, fs)

	planID := h.plan(t, 1000, 0)
	subID := h.subscribe(t, "alice", planID)

	h.d.AdvanceTo(ctx, t0)

	if len(h.rec.retries) != 1 {
		t.Fatalf("expected 1 retry signal, got %d", len(h.rec.retries))
	}
	h.pendingAt(t, subID, h.rec.retries[0])
	if !h.sub(t, subID).Active {
		t.Error("subscription must stay active while retrying")
	}
}
