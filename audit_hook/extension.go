// Package audithook bridges subpay lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/subpay/payment"
	"github.com/xraph/subpay/plan"
	"github.com/xraph/subpay/plugin"
	"github.com/xraph/subpay/subscription"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                    = (*Extension)(nil)
	_ plugin.OnPlanCreated             = (*Extension)(nil)
	_ plugin.OnPlanPaused              = (*Extension)(nil)
	_ plugin.OnPlanResumed             = (*Extension)(nil)
	_ plugin.OnSubscriptionCreated     = (*Extension)(nil)
	_ plugin.OnSubscriptionCanceled    = (*Extension)(nil)
	_ plugin.OnSubscriptionDeactivated = (*Extension)(nil)
	_ plugin.OnPaymentSucceeded        = (*Extension)(nil)
	_ plugin.OnPaymentFailed           = (*Extension)(nil)
	_ plugin.OnRetryScheduled          = (*Extension)(nil)
	_ plugin.OnFundsDeposited          = (*Extension)(nil)
	_ plugin.OnFundsWithdrawn          = (*Extension)(nil)
	_ plugin.OnAllowanceApproved       = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges subpay lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Plan lifecycle hooks
// ──────────────────────────────────────────────────

// OnPlanCreated implements plugin.OnPlanCreated.
func (e *Extension) OnPlanCreated(ctx context.Context, p *plan.Plan) error {
	return e.record(ctx, ActionPlanCreated, SeverityInfo, OutcomeSuccess,
		ResourcePlan, p.ID.String(), CategoryBilling, "",
		"merchant", p.Merchant,
		"token", p.Token,
		"amount", p.Amount,
		"period", p.Period.String(),
		"trial", p.Trial.String(),
	)
}

// OnPlanPaused implements plugin.OnPlanPaused.
func (e *Extension) OnPlanPaused(ctx context.Context, p *plan.Plan) error {
	return e.record(ctx, ActionPlanPaused, SeverityWarning, OutcomeSuccess,
		ResourcePlan, p.ID.String(), CategoryBilling, "",
		"merchant", p.Merchant,
	)
}

// OnPlanResumed implements plugin.OnPlanResumed.
func (e *Extension) OnPlanResumed(ctx context.Context, p *plan.Plan) error {
	return e.record(ctx, ActionPlanResumed, SeverityInfo, OutcomeSuccess,
		ResourcePlan, p.ID.String(), CategoryBilling, "",
		"merchant", p.Merchant,
	)
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated implements plugin.OnSubscriptionCreated.
func (e *Extension) OnSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) error {
	return e.record(ctx, ActionSubscriptionCreated, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription, "",
		"subscriber", sub.Subscriber,
		"plan_id", sub.PlanID.String(),
		"next_payment_at", sub.NextPaymentAt.Format(time.RFC3339),
	)
}

// OnSubscriptionCanceled implements plugin.OnSubscriptionCanceled.
func (e *Extension) OnSubscriptionCanceled(ctx context.Context, sub *subscription.Subscription) error {
	return e.record(ctx, ActionSubscriptionCanceled, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription, "",
		"subscriber", sub.Subscriber,
		"version", sub.Version,
	)
}

// OnSubscriptionDeactivated implements plugin.OnSubscriptionDeactivated.
func (e *Extension) OnSubscriptionDeactivated(ctx context.Context, sub *subscription.Subscription, reason string) error {
	return e.record(ctx, ActionSubscriptionDeactivated, SeverityCritical, OutcomeFailure,
		ResourceSubscription, sub.ID.String(), CategorySubscription, reason,
		"subscriber", sub.Subscriber,
		"failed_attempts", sub.FailedAttempts,
	)
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPaymentSucceeded implements plugin.OnPaymentSucceeded.
func (e *Extension) OnPaymentSucceeded(ctx context.Context, pay *payment.Payment) error {
	return e.record(ctx, ActionPaymentSucceeded, SeverityInfo, OutcomeSuccess,
		ResourcePayment, pay.ID.String(), CategoryPayment, "",
		"subscription_id", pay.SubscriptionID.String(),
		"payer", pay.Payer,
		"merchant", pay.Merchant,
		"amount", pay.Amount,
		"source", string(pay.Source),
	)
}

// OnPaymentFailed implements plugin.OnPaymentFailed.
func (e *Extension) OnPaymentFailed(ctx context.Context, pay *payment.Payment) error {
	return e.record(ctx, ActionPaymentFailed, SeverityError, OutcomeFailure,
		ResourcePayment, pay.ID.String(), CategoryPayment, pay.FailureReason,
		"subscription_id", pay.SubscriptionID.String(),
		"payer", pay.Payer,
		"amount", pay.Amount,
		"attempt", pay.Attempt,
	)
}

// OnRetryScheduled implements plugin.OnRetryScheduled.
func (e *Extension) OnRetryScheduled(ctx context.Context, sub *subscription.Subscription, attempt int, retryAt time.Time) error {
	return e.record(ctx, ActionRetryScheduled, SeverityWarning, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategoryPayment, "",
		"attempt", attempt,
		"retry_at", retryAt.Format(time.RFC3339),
	)
}

// ──────────────────────────────────────────────────
// Funds hooks
// ──────────────────────────────────────────────────

// OnFundsDeposited implements plugin.OnFundsDeposited.
func (e *Extension) OnFundsDeposited(ctx context.Context, account string, amount int64) error {
	return e.record(ctx, ActionFundsDeposited, SeverityInfo, OutcomeSuccess,
		ResourceAccount, account, CategoryFunds, "",
		"amount", amount,
	)
}

// OnFundsWithdrawn implements plugin.OnFundsWithdrawn.
func (e *Extension) OnFundsWithdrawn(ctx context.Context, account string, amount int64) error {
	return e.record(ctx, ActionFundsWithdrawn, SeverityInfo, OutcomeSuccess,
		ResourceAccount, account, CategoryFunds, "",
		"amount", amount,
	)
}

// OnAllowanceApproved implements plugin.OnAllowanceApproved.
func (e *Extension) OnAllowanceApproved(ctx context.Context, account string, amount int64) error {
	return e.record(ctx, ActionAllowanceApproved, SeverityInfo, OutcomeSuccess,
		ResourceAccount, account, CategoryFunds, "",
		"amount", amount,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
// Recorder failures are logged and never propagated.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	reason string,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
