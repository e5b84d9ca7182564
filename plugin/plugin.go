// Package plugin provides an extensible plugin system for subpay.
// Plugins can hook into lifecycle events to extend functionality.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/subpay/charge"
	"github.com/xraph/subpay/payment"
	"github.com/xraph/subpay/plan"
	"github.com/xraph/subpay/subscription"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts. e is the *subpay.Engine.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, e interface{}) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Plan hooks
// ──────────────────────────────────────────────────

// OnPlanCreated is called when a new plan is created.
type OnPlanCreated interface {
	Plugin
	OnPlanCreated(ctx context.Context, p *plan.Plan) error
}

// OnPlanPaused is called when a merchant pauses a plan.
type OnPlanPaused interface {
	Plugin
	OnPlanPaused(ctx context.Context, p *plan.Plan) error
}

// OnPlanResumed is called when a merchant resumes a plan.
type OnPlanResumed interface {
	Plugin
	OnPlanResumed(ctx context.Context, p *plan.Plan) error
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated is called when a subscriber enrolls in a plan.
type OnSubscriptionCreated interface {
	Plugin
	OnSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) error
}

// OnSubscriptionCanceled is called when a subscriber unsubscribes.
type OnSubscriptionCanceled interface {
	Plugin
	OnSubscriptionCanceled(ctx context.Context, sub *subscription.Subscription) error
}

// OnSubscriptionDeactivated is called when a failed charge deactivates a
// subscription.
type OnSubscriptionDeactivated interface {
	Plugin
	OnSubscriptionDeactivated(ctx context.Context, sub *subscription.Subscription, reason string) error
}

// ──────────────────────────────────────────────────
// Charge hooks
// ──────────────────────────────────────────────────

// OnPaymentSucceeded is called after a charge is settled.
type OnPaymentSucceeded interface {
	Plugin
	OnPaymentSucceeded(ctx context.Context, pay *payment.Payment) error
}

// OnPaymentFailed is called when no funding source covered a charge.
type OnPaymentFailed interface {
	Plugin
	OnPaymentFailed(ctx context.Context, pay *payment.Payment) error
}

// OnRetryScheduled is called when a failed charge is rescheduled.
type OnRetryScheduled interface {
	Plugin
	OnRetryScheduled(ctx context.Context, sub *subscription.Subscription, attempt int, retryAt time.Time) error
}

// OnChargeSkipped is called when a deferred charge fires but does nothing.
type OnChargeSkipped interface {
	Plugin
	OnChargeSkipped(ctx context.Context, result *charge.Result) error
}

// ──────────────────────────────────────────────────
// Funds hooks
// ──────────────────────────────────────────────────

// OnFundsDeposited is called after a deposit into escrow.
type OnFundsDeposited interface {
	Plugin
	OnFundsDeposited(ctx context.Context, account string, amount int64) error
}

// OnFundsWithdrawn is called after a withdrawal from escrow.
type OnFundsWithdrawn interface {
	Plugin
	OnFundsWithdrawn(ctx context.Context, account string, amount int64) error
}

// OnAllowanceApproved is called when an account sets its pull allowance.
type OnAllowanceApproved interface {
	Plugin
	OnAllowanceApproved(ctx context.Context, account string, amount int64) error
}
