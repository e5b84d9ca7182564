package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/subpay/charge"
	"github.com/xraph/subpay/payment"
	"github.com/xraph/subpay/plan"
	"github.com/xraph/subpay/subscription"
)

// DefaultTimeout bounds each hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                    []OnInit
	onShutdown                []OnShutdown
	onPlanCreated             []OnPlanCreated
	onPlanPaused              []OnPlanPaused
	onPlanResumed             []OnPlanResumed
	onSubscriptionCreated     []OnSubscriptionCreated
	onSubscriptionCanceled    []OnSubscriptionCanceled
	onSubscriptionDeactivated []OnSubscriptionDeactivated
	onPaymentSucceeded        []OnPaymentSucceeded
	onPaymentFailed           []OnPaymentFailed
	onRetryScheduled          []OnRetryScheduled
	onChargeSkipped           []OnChargeSkipped
	onFundsDeposited          []OnFundsDeposited
	onFundsWithdrawn          []OnFundsWithdrawn
	onAllowanceApproved       []OnAllowanceApproved
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnPlanCreated); ok {
		r.onPlanCreated = append(r.onPlanCreated, v)
	}
	if v, ok := p.(OnPlanPaused); ok {
		r.onPlanPaused = append(r.onPlanPaused, v)
	}
	if v, ok := p.(OnPlanResumed); ok {
		r.onPlanResumed = append(r.onPlanResumed, v)
	}
	if v, ok := p.(OnSubscriptionCreated); ok {
		r.onSubscriptionCreated = append(r.onSubscriptionCreated, v)
	}
	if v, ok := p.(OnSubscriptionCanceled); ok {
		r.onSubscriptionCanceled = append(r.onSubscriptionCanceled, v)
	}
	if v, ok := p.(OnSubscriptionDeactivated); ok {
		r.onSubscriptionDeactivated = append(r.onSubscriptionDeactivated, v)
	}
	if v, ok := p.(OnPaymentSucceeded); ok {
		r.onPaymentSucceeded = append(r.onPaymentSucceeded, v)
	}
	if v, ok := p.(OnPaymentFailed); ok {
		r.onPaymentFailed = append(r.onPaymentFailed, v)
	}
	if v, ok := p.(OnRetryScheduled); ok {
		r.onRetryScheduled = append(r.onRetryScheduled, v)
	}
	if v, ok := p.(OnChargeSkipped); ok {
		r.onChargeSkipped = append(r.onChargeSkipped, v)
	}
	if v, ok := p.(OnFundsDeposited); ok {
		r.onFundsDeposited = append(r.onFundsDeposited, v)
	}
	if v, ok := p.(OnFundsWithdrawn); ok {
		r.onFundsWithdrawn = append(r.onFundsWithdrawn, v)
	}
	if v, ok := p.(OnAllowanceApproved); ok {
		r.onAllowanceApproved = append(r.onAllowanceApproved, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnPlanCreated)(nil)).Elem(), "OnPlanCreated")
	checkInterface(reflect.TypeOf((*OnPlanPaused)(nil)).Elem(), "OnPlanPaused")
	checkInterface(reflect.TypeOf((*OnPlanResumed)(nil)).Elem(), "OnPlanResumed")
	checkInterface(reflect.TypeOf((*OnSubscriptionCreated)(nil)).Elem(), "OnSubscriptionCreated")
	checkInterface(reflect.TypeOf((*OnSubscriptionCanceled)(nil)).Elem(), "OnSubscriptionCanceled")
	checkInterface(reflect.TypeOf((*OnSubscriptionDeactivated)(nil)).Elem(), "OnSubscriptionDeactivated")
	checkInterface(reflect.TypeOf((*OnPaymentSucceeded)(nil)).Elem(), "OnPaymentSucceeded")
	checkInterface(reflect.TypeOf((*OnPaymentFailed)(nil)).Elem(), "OnPaymentFailed")
	checkInterface(reflect.TypeOf((*OnRetryScheduled)(nil)).Elem(), "OnRetryScheduled")
	checkInterface(reflect.TypeOf((*OnChargeSkipped)(nil)).Elem(), "OnChargeSkipped")
	checkInterface(reflect.TypeOf((*OnFundsDeposited)(nil)).Elem(), "OnFundsDeposited")
	checkInterface(reflect.TypeOf((*OnFundsWithdrawn)(nil)).Elem(), "OnFundsWithdrawn")
	checkInterface(reflect.TypeOf((*OnAllowanceApproved)(nil)).Elem(), "OnAllowanceApproved")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit calls fn for every hook, logging failures. The hook slice is read
// under the lock by the caller so registration never races dispatch.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, hooks []T, fn func(T) error) {
	for _, p := range hooks {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return fn(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	emit(ctx, r, "OnInit", plugins, func(p OnInit) error {
		return p.OnInit(ctx, engine)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	emit(ctx, r, "OnShutdown", plugins, func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitPlanCreated emits a plan created event.
func (r *Registry) EmitPlanCreated(ctx context.Context, pl *plan.Plan) {
	r.mu.RLock()
	plugins := r.onPlanCreated
	r.mu.RUnlock()

	emit(ctx, r, "OnPlanCreated", plugins, func(p OnPlanCreated) error {
		return p.OnPlanCreated(ctx, pl)
	})
}

// EmitPlanPaused emits a plan paused event.
func (r *Registry) EmitPlanPaused(ctx context.Context, pl *plan.Plan) {
	r.mu.RLock()
	plugins := r.onPlanPaused
	r.mu.RUnlock()

	emit(ctx, r, "OnPlanPaused", plugins, func(p OnPlanPaused) error {
		return p.OnPlanPaused(ctx, pl)
	})
}

// EmitPlanResumed emits a plan resumed event.
func (r *Registry) EmitPlanResumed(ctx context.Context, pl *plan.Plan) {
	r.mu.RLock()
	plugins := r.onPlanResumed
	r.mu.RUnlock()

	emit(ctx, r, "OnPlanResumed", plugins, func(p OnPlanResumed) error {
		return p.OnPlanResumed(ctx, pl)
	})
}

// EmitSubscriptionCreated emits a subscription created event.
func (r *Registry) EmitSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) {
	r.mu.RLock()
	plugins := r.onSubscriptionCreated
	r.mu.RUnlock()

	emit(ctx, r, "OnSubscriptionCreated", plugins, func(p OnSubscriptionCreated) error {
		return p.OnSubscriptionCreated(ctx, sub)
	})
}

// EmitSubscriptionCanceled emits a subscription canceled event.
func (r *Registry) EmitSubscriptionCanceled(ctx context.Context, sub *subscription.Subscription) {
	r.mu.RLock()
	plugins := r.onSubscriptionCanceled
	r.mu.RUnlock()

	emit(ctx, r, "OnSubscriptionCanceled", plugins, func(p OnSubscriptionCanceled) error {
		return p.OnSubscriptionCanceled(ctx, sub)
	})
}

// EmitSubscriptionDeactivated emits a subscription deactivated event.
func (r *Registry) EmitSubscriptionDeactivated(ctx context.Context, sub *subscription.Subscription, reason string) {
	r.mu.RLock()
	plugins := r.onSubscriptionDeactivated
	r.mu.RUnlock()

	emit(ctx, r, "OnSubscriptionDeactivated", plugins, func(p OnSubscriptionDeactivated) error {
		return p.OnSubscriptionDeactivated(ctx, sub, reason)
	})
}

// EmitPaymentSucceeded emits a payment succeeded event.
func (r *Registry) EmitPaymentSucceeded(ctx context.Context, pay *payment.Payment) {
	r.mu.RLock()
	plugins := r.onPaymentSucceeded
	r.mu.RUnlock()

	emit(ctx, r, "OnPaymentSucceeded", plugins, func(p OnPaymentSucceeded) error {
		return p.OnPaymentSucceeded(ctx, pay)
	})
}

// EmitPaymentFailed emits a payment failed event.
func (r *Registry) EmitPaymentFailed(ctx context.Context, pay *payment.Payment) {
	r.mu.RLock()
	plugins := r.onPaymentFailed
	r.mu.RUnlock()

	emit(ctx, r, "OnPaymentFailed", plugins, func(p OnPaymentFailed) error {
		return p.OnPaymentFailed(ctx, pay)
	})
}

// EmitRetryScheduled emits a retry scheduled event.
func (r *Registry) EmitRetryScheduled(ctx context.Context, sub *subscription.Subscription, attempt int, retryAt time.Time) {
	r.mu.RLock()
	plugins := r.onRetryScheduled
	r.mu.RUnlock()

	emit(ctx, r, "OnRetryScheduled", plugins, func(p OnRetryScheduled) error {
		return p.OnRetryScheduled(ctx, sub, attempt, retryAt)
	})
}

// EmitChargeSkipped emits a charge skipped event.
func (r *Registry) EmitChargeSkipped(ctx context.Context, result *charge.Result) {
	r.mu.RLock()
	plugins := r.onChargeSkipped
	r.mu.RUnlock()

	emit(ctx, r, "OnChargeSkipped", plugins, func(p OnChargeSkipped) error {
		return p.OnChargeSkipped(ctx, result)
	})
}

// EmitFundsDeposited emits a deposit event.
func (r *Registry) EmitFundsDeposited(ctx context.Context, account string, amount int64) {
	r.mu.RLock()
	plugins := r.onFundsDeposited
	r.mu.RUnlock()

	emit(ctx, r, "OnFundsDeposited", plugins, func(p OnFundsDeposited) error {
		return p.OnFundsDeposited(ctx, account, amount)
	})
}

// EmitFundsWithdrawn emits a withdrawal event.
func (r *Registry) EmitFundsWithdrawn(ctx context.Context, account string, amount int64) {
	r.mu.RLock()
	plugins := r.onFundsWithdrawn
	r.mu.RUnlock()

	emit(ctx, r, "OnFundsWithdrawn", plugins, func(p OnFundsWithdrawn) error {
		return p.OnFundsWithdrawn(ctx, account, amount)
	})
}

// EmitAllowanceApproved emits an allowance approved event.
func (r *Registry) EmitAllowanceApproved(ctx context.Context, account string, amount int64) {
	r.mu.RLock()
	plugins := r.onAllowanceApproved
	r.mu.RUnlock()

	emit(ctx, r, "OnAllowanceApproved", plugins, func(p OnAllowanceApproved) error {
		return p.OnAllowanceApproved(ctx, account, amount)
	})
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the charge pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
