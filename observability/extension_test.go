package observability_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/xraph/subpay/charge"
	"github.com/xraph/subpay/observability"
	"github.com/xraph/subpay/payment"
	"github.com/xraph/subpay/plan"
)

func TestMetricsExtensionCounts(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))

	due := time.Unix(1700000000, 0)
	pay := &payment.Payment{Amount: 100, DueAt: due, ExecutedAt: due.Add(time.Second)}

	_ = m.OnPlanCreated(ctx, &plan.Plan{})
	_ = m.OnPaymentSucceeded(ctx, pay)
	_ = m.OnPaymentSucceeded(ctx, pay)
	_ = m.OnPaymentFailed(ctx, pay)
	_ = m.OnChargeSkipped(ctx, &charge.Result{SkipReason: charge.SkipStale})
	_ = m.OnChargeSkipped(ctx, &charge.Result{SkipReason: charge.SkipInactive})
	_ = m.OnFundsDeposited(ctx, "alice", 250)

	tests := []struct {
		name   string
		metric observability.Counter
		want   float64
	}{
		{"plan created", m.PlanCreated, 1},
		{"payment succeeded", m.PaymentSucceeded, 2},
		{"payment failed", m.PaymentFailed, 1},
		{"charge skipped", m.ChargeSkipped, 2},
		{"charge stale", m.ChargeStaleSkipped, 1},
		{"funds deposited", m.FundsDeposited, 250},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := tt.metric.(prometheus.Counter)
			if !ok {
				t.Fatalf("metric is %T, want prometheus.Counter", tt.metric)
			}
			if got := testutil.ToFloat64(c); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	expected := `
# HELP subpay_payment_succeeded subpay subpay.payment.succeeded
# TYPE subpay_payment_succeeded counter
subpay_payment_succeeded 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "subpay_payment_succeeded"); err != nil {
		t.Error(err)
	}
}

func TestPrometheusFactoryReusesMetrics(t *testing.T) {
	f := observability.NewPrometheusFactory(nil)
	a := f.Counter("subpay.plan.created")
	b := f.Counter("subpay.plan.created")
	if a != b {
		t.Error("expected the same counter for a repeated name")
	}
	if f.Histogram("subpay.payment.amount") != f.Histogram("subpay.payment.amount") {
		t.Error("expected the same histogram for a repeated name")
	}
}
