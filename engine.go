package subpay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/xraph/subpay/charge"
	"github.com/xraph/subpay/id"
	"github.com/xraph/subpay/internal/keylock"
	"github.com/xraph/subpay/plan"
	"github.com/xraph/subpay/plugin"
	"github.com/xraph/subpay/scheduler"
	"github.com/xraph/subpay/scheduler/timer"
	"github.com/xraph/subpay/store"
)

// Clock returns the current time. The engine reads time only through its
// clock.
type Clock func() time.Time

// Engine is the recurring-payment engine. It owns the plan and
// subscription registries (through the store), the payment scheduler and
// the charge executor.
type Engine struct {
	store     store.Store
	plugins   *plugin.Registry
	logger    *slog.Logger
	clock     Clock
	deferrer  scheduler.Deferrer
	scheduler *scheduler.Scheduler

	// Configuration
	funding       charge.FundingModel
	policy        charge.FailurePolicy
	transferer    charge.Transferer
	defaultPeriod time.Duration
	rearmOnStart  bool
	skipMigrate   bool
	storeRetry    time.Duration

	locks keylock.Map[id.SubscriptionID]
}

// New creates a new Engine. Without WithDeferrer, charges are deferred with
// in-process timers.
func New(s store.Store, opts ...Option) (*Engine, error) {
	if s == nil {
		return nil, errors.New("subpay: store is required")
	}

	e := &Engine{
		store:         s,
		plugins:       plugin.NewRegistry(),
		logger:        slog.Default(),
		clock:         func() time.Time { return time.Now().UTC() },
		funding:       charge.EscrowFirst,
		policy:        charge.NewRetryWithBackoff(),
		defaultPeriod: plan.DefaultPeriod,
		storeRetry:    DefaultStoreRetryDelay,
	}

	for _, opt := range opts {
		opt(e)
	}

	if _, err := charge.ParseFundingModel(string(e.funding)); err != nil {
		return nil, err
	}
	if e.policy == nil {
		return nil, errors.New("subpay: failure policy is required")
	}
	if e.defaultPeriod <= 0 {
		return nil, ErrInvalidPeriod
	}
	if e.storeRetry <= 0 {
		return nil, errors.New("subpay: store retry delay must be positive")
	}
	if e.deferrer == nil {
		e.deferrer = timer.New(timer.WithClock(e.clock))
	}

	e.scheduler = scheduler.New(e.deferrer, scheduler.WithLogger(e.logger))
	e.scheduler.SetHandler(e.onDue)

	return e, nil
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithClock sets the engine clock.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithDeferrer sets the deferred-call primitive charges are scheduled on.
func WithDeferrer(d scheduler.Deferrer) Option {
	return func(e *Engine) { e.deferrer = d }
}

// WithFundingModel sets the order funding sources are tried in.
func WithFundingModel(m charge.FundingModel) Option {
	return func(e *Engine) { e.funding = m }
}

// WithFailurePolicy sets what happens after an unfunded charge.
func WithFailurePolicy(p charge.FailurePolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithTransferer sets how allowance-funded charges reach the merchant.
func WithTransferer(t charge.Transferer) Option {
	return func(e *Engine) { e.transferer = t }
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithDefaultPeriod sets the billing period of plans created without
// WithPeriod.
func WithDefaultPeriod(d time.Duration) Option {
	return func(e *Engine) { e.defaultPeriod = d }
}

// WithRearmOnStart makes Start re-arm charges for active subscriptions
// that have none pending.
func WithRearmOnStart() Option {
	return func(e *Engine) { e.rearmOnStart = true }
}

// WithoutMigrate makes Start leave the store schema alone. Plugin init and
// re-arming still run.
func WithoutMigrate() Option {
	return func(e *Engine) { e.skipMigrate = true }
}

// DefaultStoreRetryDelay is how long the engine waits before retrying a
// charge whose settlement could not be persisted.
const DefaultStoreRetryDelay = time.Minute

// WithStoreRetryDelay sets the delay before a charge whose settlement hit a
// store error is attempted again.
func WithStoreRetryDelay(d time.Duration) Option {
	return func(e *Engine) { e.storeRetry = d }
}

// Start migrates the store and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if !e.skipMigrate {
		if err := e.store.Migrate(ctx); err != nil {
			return err
		}
	}

	e.plugins.EmitInit(ctx, e)

	if e.rearmOnStart {
		n, err := e.Rearm(ctx)
		if err != nil {
			return err
		}
		e.logger.Info("subpay re-armed pending charges", "count", n)
	}

	e.logger.Info("subpay started",
		"funding_model", string(e.funding),
		"failure_policy", e.policy.Name(),
		"default_period", e.defaultPeriod,
	)
	return nil
}

// Stop shuts down plugins, stops in-process timers and closes the store.
func (e *Engine) Stop(ctx context.Context) error {
	e.plugins.EmitShutdown(ctx)

	if c, ok := e.deferrer.(interface{ Close() }); ok {
		c.Close()
	}
	return e.store.Close()
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Scheduler returns the payment scheduler.
func (e *Engine) Scheduler() *scheduler.Scheduler { return e.scheduler }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Now returns the engine clock reading.
func (e *Engine) Now() time.Time { return e.clock().UTC() }

// onDue receives fired deferred charges.
func (e *Engine) onDue(ctx context.Context, p scheduler.Payload) {
	if _, err := e.ExecuteDueCharge(ctx, p.SubscriptionID, p.Version); err != nil {
		e.logger.Error("deferred charge failed",
			"subscription_id", p.SubscriptionID.String(),
			"version", p.Version,
			"error", err,
		)
	}
}
