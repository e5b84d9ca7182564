package plugin_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/subpay/payment"
	"github.com/xraph/subpay/plan"
	"github.com/xraph/subpay/plugin"
)

type planCounter struct {
	name    string
	created atomic.Int32
	err     error
}

func (p *planCounter) Name() string { return p.name }

func (p *planCounter) OnPlanCreated(context.Context, *plan.Plan) error {
	p.created.Add(1)
	return p.err
}

type slowPayments struct{ delay time.Duration }

func (slowPayments) Name() string { return "slow" }

func (s slowPayments) OnPaymentSucceeded(context.Context, *payment.Payment) error {
	time.Sleep(s.delay)
	return nil
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := plugin.NewRegistry()

	if err := r.Register(&planCounter{name: "a"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(&planCounter{name: "a"}); err == nil {
		t.Error("expected duplicate registration error")
	}
	if r.Count() != 1 {
		t.Errorf("Count: got %d, want 1", r.Count())
	}
	if r.Get("a") == nil || r.Get("missing") != nil {
		t.Error("Get returned the wrong plugin")
	}
}

func TestEmitDispatchesByInterface(t *testing.T) {
	ctx := context.Background()
	r := plugin.NewRegistry()

	a := &planCounter{name: "a"}
	b := &planCounter{name: "b", err: errors.New("boom")}
	for _, p := range []plugin.Plugin{a, b, slowPayments{}} {
		if err := r.Register(p); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	r.EmitPlanCreated(ctx, &plan.Plan{ID: 1})
	r.EmitPlanCreated(ctx, &plan.Plan{ID: 2})

	// A failing hook does not stop the others.
	if got := a.created.Load(); got != 2 {
		t.Errorf("a: got %d, want 2", got)
	}
	if got := b.created.Load(); got != 2 {
		t.Errorf("b: got %d, want 2", got)
	}

	// Hooks a plugin does not implement are never called.
	r.EmitPlanPaused(ctx, &plan.Plan{ID: 1})
	r.EmitFundsDeposited(ctx, "alice", 10)
}

func TestEmitTimesOut(t *testing.T) {
	r := plugin.NewRegistry().WithTimeout(10 * time.Millisecond)
	if err := r.Register(slowPayments{delay: time.Second}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	start := time.Now()
	r.EmitPaymentSucceeded(context.Background(), &payment.Payment{})
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("emit blocked for %v", elapsed)
	}
}
