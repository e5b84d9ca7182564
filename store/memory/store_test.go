package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/subpay"
	"github.com/xraph/subpay/id"
	"github.com/xraph/subpay/payment"
	"github.com/xraph/subpay/plan"
	"github.com/xraph/subpay/store/memory"
	"github.com/xraph/subpay/subscription"
	"github.com/xraph/subpay/types"
)

var t0 = time.Unix(1700000000, 0).UTC()

func TestPlans(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	for i, merchant := range []string{"shop", "other", "shop"} {
		p := &plan.Plan{Entity: types.NewEntity(t0), ID: id.PlanID(i + 1), Merchant: merchant, Amount: 10, Period: time.Hour, Active: true}
		if err := s.CreatePlan(ctx, p); err != nil {
			t.Fatalf("CreatePlan: %v", err)
		}
	}
	if err := s.CreatePlan(ctx, &plan.Plan{ID: 1}); !errors.Is(err, subpay.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}

	list, err := s.ListPlans(ctx, plan.ListOpts{Merchant: "shop"})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != 1 || list[1].ID != 3 {
		t.Errorf("unexpected plans %+v", list)
	}

	if err := s.SetPlanActive(ctx, 3, false); err != nil {
		t.Fatal(err)
	}
	active, _ := s.ListPlans(ctx, plan.ListOpts{Merchant: "shop", ActiveOnly: true})
	if len(active) != 1 {
		t.Errorf("expected 1 active plan, got %d", len(active))
	}
	if err := s.SetPlanActive(ctx, 99, true); !errors.Is(err, subpay.ErrPlanNotFound) {
		t.Errorf("expected ErrPlanNotFound, got %v", err)
	}

	// Returned records are copies.
	got, _ := s.GetPlan(ctx, 1)
	got.Amount = 999
	again, _ := s.GetPlan(ctx, 1)
	if again.Amount != 10 {
		t.Error("store leaked internal state")
	}
}

func TestCancelSubscriptionBumpsVersionOnce(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	sub := &subscription.Subscription{ID: 1, Subscriber: "alice", PlanID: 1, Active: true, Version: subscription.InitialVersion}
	if err := s.CreateSubscription(ctx, sub); err != nil {
		t.Fatal(err)
	}

	canceled, err := s.CancelSubscription(ctx, 1, t0)
	if err != nil {
		t.Fatalf("CancelSubscription: %v", err)
	}
	if canceled.Active || canceled.Version != 2 || canceled.CanceledAt == nil {
		t.Errorf("unexpected canceled subscription %+v", canceled)
	}

	if _, err := s.CancelSubscription(ctx, 1, t0); !errors.Is(err, subpay.ErrSubscriptionInactive) {
		t.Errorf("expected ErrSubscriptionInactive, got %v", err)
	}
	got, _ := s.GetSubscription(ctx, 1)
	if got.Version != 2 {
		t.Errorf("second cancel must not bump version, got %d", got.Version)
	}

	if _, err := s.CancelSubscription(ctx, 42, t0); !errors.Is(err, subpay.ErrSubscriptionNotFound) {
		t.Errorf("expected ErrSubscriptionNotFound, got %v", err)
	}
}

func TestUpdateSubscriptionKeepsVersion(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	_ = s.CreateSubscription(ctx, &subscription.Subscription{ID: 1, Active: true, Version: 1})

	sub, _ := s.GetSubscription(ctx, 1)
	sub.Version = 9
	sub.FailedAttempts = 2
	if err := s.UpdateSubscription(ctx, sub); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetSubscription(ctx, 1)
	if got.Version != 1 || got.FailedAttempts != 2 {
		t.Errorf("unexpected subscription %+v", got)
	}
}

func TestListSubscriptionsOrdered(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	for _, i := range []id.SubscriptionID{3, 1, 2} {
		_ = s.CreateSubscription(ctx, &subscription.Subscription{ID: i, Subscriber: "alice", PlanID: 1, Active: true, Version: 1})
	}
	_ = s.CreateSubscription(ctx, &subscription.Subscription{ID: 4, Subscriber: "bob", PlanID: 2, Active: true, Version: 1})

	list, err := s.ListSubscriptions(ctx, subscription.ListOpts{Subscriber: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	for i, sub := range list {
		if sub.ID != id.SubscriptionID(i+1) {
			t.Errorf("position %d: expected id %d, got %d", i, i+1, sub.ID)
		}
	}

	page, _ := s.ListSubscriptions(ctx, subscription.ListOpts{Subscriber: "alice", Offset: 1, Limit: 1})
	if len(page) != 1 || page[0].ID != 2 {
		t.Errorf("unexpected page %+v", page)
	}

	byPlan, _ := s.ListSubscriptions(ctx, subscription.ListOpts{PlanID: 2})
	if len(byPlan) != 1 || byPlan[0].Subscriber != "bob" {
		t.Errorf("unexpected plan filter result %+v", byPlan)
	}
}

func TestAccounts(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	a, err := s.GetAccount(ctx, "alice")
	if err != nil || a.Escrow != 0 || a.Allowance != 0 {
		t.Fatalf("missing account should read as zero, got %+v %v", a, err)
	}

	if _, err := s.CreditEscrow(ctx, "alice", 100); err != nil {
		t.Fatal(err)
	}
	a, err = s.DebitEscrow(ctx, "alice", 40)
	if err != nil || a.Escrow != 60 {
		t.Fatalf("unexpected debit result %+v %v", a, err)
	}
	if _, err := s.DebitEscrow(ctx, "alice", 61); !errors.Is(err, subpay.ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}
	a, _ = s.GetAccount(ctx, "alice")
	if a.Escrow != 60 {
		t.Errorf("failed debit changed balance to %d", a.Escrow)
	}

	_, _ = s.SetAllowance(ctx, "alice", 50)
	a, _ = s.SetAllowance(ctx, "alice", 20)
	if a.Allowance != 20 {
		t.Errorf("allowance should be set, not added: %d", a.Allowance)
	}
	if _, err := s.DebitAllowance(ctx, "alice", 21); !errors.Is(err, subpay.ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}
	a, _ = s.CreditAllowance(ctx, "alice", 5)
	if a.Allowance != 25 {
		t.Errorf("unexpected allowance %d", a.Allowance)
	}
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	_, _ = s.CreditEscrow(ctx, "alice", 50)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.DebitEscrow(ctx, "alice", 10); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	a, _ := s.GetAccount(ctx, "alice")
	if succeeded != 5 || a.Escrow != 0 {
		t.Errorf("expected 5 debits and zero escrow, got %d and %d", succeeded, a.Escrow)
	}
}

func TestPaymentsAndSequences(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	for i := range 3 {
		p := &payment.Payment{
			ID:             id.NewPaymentID(),
			SubscriptionID: 1,
			Payer:          "alice",
			Status:         payment.StatusSucceeded,
			ExecutedAt:     t0.Add(time.Duration(3-i) * time.Hour),
		}
		if i == 2 {
			p.Status = payment.StatusFailed
		}
		if err := s.CreatePayment(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	list, _ := s.ListPayments(ctx, payment.ListOpts{SubscriptionID: 1})
	if len(list) != 3 || !list[0].ExecutedAt.Before(list[2].ExecutedAt) {
		t.Errorf("payments should be ordered by execution time")
	}
	failed, _ := s.ListPayments(ctx, payment.ListOpts{Status: payment.StatusFailed})
	if len(failed) != 1 {
		t.Errorf("expected 1 failed payment, got %d", len(failed))
	}
	if _, err := s.GetPayment(ctx, id.NewPaymentID()); !errors.Is(err, subpay.ErrPaymentNotFound) {
		t.Errorf("expected ErrPaymentNotFound, got %v", err)
	}

	for want := uint64(1); want <= 3; want++ {
		got, _ := s.NextSequence(ctx, "plan")
		if got != want {
			t.Errorf("expected %d, got %d", want, got)
		}
	}
	if got, _ := s.NextSequence(ctx, "sub"); got != 1 {
		t.Errorf("sequences must be independent, got %d", got)
	}
}

func TestClose(t *testing.T) {
	s := memory.New()
	if err := s.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()
	if err := s.Ping(context.Background()); !errors.Is(err, subpay.ErrStoreClosed) {
		t.Errorf("expected ErrStoreClosed, got %v", err)
	}
}
