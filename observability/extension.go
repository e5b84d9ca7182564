// Package observability provides a metrics extension for subpay that
// records lifecycle event counts through a MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/subpay/charge"
	"github.com/xraph/subpay/payment"
	"github.com/xraph/subpay/plan"
	"github.com/xraph/subpay/plugin"
	"github.com/xraph/subpay/subscription"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                    = (*MetricsExtension)(nil)
	_ plugin.OnInit                    = (*MetricsExtension)(nil)
	_ plugin.OnPlanCreated             = (*MetricsExtension)(nil)
	_ plugin.OnPlanPaused              = (*MetricsExtension)(nil)
	_ plugin.OnPlanResumed             = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCreated     = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCanceled    = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionDeactivated = (*MetricsExtension)(nil)
	_ plugin.OnPaymentSucceeded        = (*MetricsExtension)(nil)
	_ plugin.OnPaymentFailed           = (*MetricsExtension)(nil)
	_ plugin.OnRetryScheduled          = (*MetricsExtension)(nil)
	_ plugin.OnChargeSkipped           = (*MetricsExtension)(nil)
	_ plugin.OnFundsDeposited          = (*MetricsExtension)(nil)
	_ plugin.OnFundsWithdrawn          = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a subpay plugin to track billing metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Plan metrics
	PlanCreated Counter
	PlanPaused  Counter
	PlanResumed Counter

	// Subscription metrics
	SubscriptionCreated     Counter
	SubscriptionCanceled    Counter
	SubscriptionDeactivated Counter

	// Charge metrics
	PaymentSucceeded   Counter
	PaymentFailed      Counter
	PaymentAmount      Histogram
	PaymentLatency     Histogram
	RetryScheduled     Counter
	ChargeSkipped      Counter
	ChargeStaleSkipped Counter

	// Funds metrics
	FundsDeposited Counter
	FundsWithdrawn Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions, or NewPrometheusFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Plan metrics
		PlanCreated: factory.Counter("subpay.plan.created"),
		PlanPaused:  factory.Counter("subpay.plan.paused"),
		PlanResumed: factory.Counter("subpay.plan.resumed"),

		// Subscription metrics
		SubscriptionCreated:     factory.Counter("subpay.subscription.created"),
		SubscriptionCanceled:    factory.Counter("subpay.subscription.canceled"),
		SubscriptionDeactivated: factory.Counter("subpay.subscription.deactivated"),

		// Charge metrics
		PaymentSucceeded:   factory.Counter("subpay.payment.succeeded"),
		PaymentFailed:      factory.Counter("subpay.payment.failed"),
		PaymentAmount:      factory.Histogram("subpay.payment.amount"),
		PaymentLatency:     factory.Histogram("subpay.payment.latency_seconds"),
		RetryScheduled:     factory.Counter("subpay.payment.retry_scheduled"),
		ChargeSkipped:      factory.Counter("subpay.charge.skipped"),
		ChargeStaleSkipped: factory.Counter("subpay.charge.stale"),

		// Funds metrics
		FundsDeposited: factory.Counter("subpay.funds.deposited"),
		FundsWithdrawn: factory.Counter("subpay.funds.withdrawn"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// ──────────────────────────────────────────────────
// Plan lifecycle hooks
// ──────────────────────────────────────────────────

// OnPlanCreated implements plugin.OnPlanCreated.
func (m *MetricsExtension) OnPlanCreated(_ context.Context, _ *plan.Plan) error {
	m.PlanCreated.Inc()
	return nil
}

// OnPlanPaused implements plugin.OnPlanPaused.
func (m *MetricsExtension) OnPlanPaused(_ context.Context, _ *plan.Plan) error {
	m.PlanPaused.Inc()
	return nil
}

// OnPlanResumed implements plugin.OnPlanResumed.
func (m *MetricsExtension) OnPlanResumed(_ context.Context, _ *plan.Plan) error {
	m.PlanResumed.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated implements plugin.OnSubscriptionCreated.
func (m *MetricsExtension) OnSubscriptionCreated(_ context.Context, _ *subscription.Subscription) error {
	m.SubscriptionCreated.Inc()
	return nil
}

// OnSubscriptionCanceled implements plugin.OnSubscriptionCanceled.
func (m *MetricsExtension) OnSubscriptionCanceled(_ context.Context, _ *subscription.Subscription) error {
	m.SubscriptionCanceled.Inc()
	return nil
}

// OnSubscriptionDeactivated implements plugin.OnSubscriptionDeactivated.
func (m *MetricsExtension) OnSubscriptionDeactivated(_ context.Context, _ *subscription.Subscription, _ string) error {
	m.SubscriptionDeactivated.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Charge hooks
// ──────────────────────────────────────────────────

// OnPaymentSucceeded implements plugin.OnPaymentSucceeded.
func (m *MetricsExtension) OnPaymentSucceeded(_ context.Context, pay *payment.Payment) error {
	m.PaymentSucceeded.Inc()
	m.PaymentAmount.Observe(float64(pay.Amount))
	m.observeLatency(pay)
	return nil
}

// OnPaymentFailed implements plugin.OnPaymentFailed.
func (m *MetricsExtension) OnPaymentFailed(_ context.Context, pay *payment.Payment) error {
	m.PaymentFailed.Inc()
	m.observeLatency(pay)
	return nil
}

// OnRetryScheduled implements plugin.OnRetryScheduled.
func (m *MetricsExtension) OnRetryScheduled(_ context.Context, _ *subscription.Subscription, _ int, _ time.Time) error {
	m.RetryScheduled.Inc()
	return nil
}

// OnChargeSkipped implements plugin.OnChargeSkipped.
func (m *MetricsExtension) OnChargeSkipped(_ context.Context, res *charge.Result) error {
	m.ChargeSkipped.Inc()
	if res.SkipReason == charge.SkipStale {
		m.ChargeStaleSkipped.Inc()
	}
	return nil
}

// observeLatency records how late a charge ran relative to its due time.
func (m *MetricsExtension) observeLatency(pay *payment.Payment) {
	if pay.DueAt.IsZero() {
		return
	}
	m.PaymentLatency.Observe(max(pay.ExecutedAt.Sub(pay.DueAt), 0).Seconds())
}

// ──────────────────────────────────────────────────
// Funds hooks
// ──────────────────────────────────────────────────

// OnFundsDeposited implements plugin.OnFundsDeposited.
func (m *MetricsExtension) OnFundsDeposited(_ context.Context, _ string, amount int64) error {
	m.FundsDeposited.Add(float64(amount))
	return nil
}

// OnFundsWithdrawn implements plugin.OnFundsWithdrawn.
func (m *MetricsExtension) OnFundsWithdrawn(_ context.Context, _ string, amount int64) error {
	m.FundsWithdrawn.Add(float64(amount))
	return nil
}
