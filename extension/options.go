package extension

import (
	"time"

	"github.com/xraph/subpay"
	"github.com/xraph/subpay/plugin"
	"github.com/xraph/subpay/store"
)

// Option configures the subpay Forge extension.
type Option func(*Extension)

// WithStore sets the store for the subpay engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes a subpay.Option through to the underlying engine.
// Pass-through options are applied after config-derived ones.
func WithEngineOption(opt subpay.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a subpay plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, subpay.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithFundingModel sets the funding order by name.
func WithFundingModel(model string) Option {
	return func(e *Extension) { e.config.FundingModel = model }
}

// WithFailurePolicy sets the failure policy by name and, for "retry", its
// schedule.
func WithFailurePolicy(name string, schedule ...time.Duration) Option {
	return func(e *Extension) {
		e.config.FailurePolicy = name
		e.config.RetrySchedule = schedule
	}
}

// WithRearmOnStart re-arms pending charges when the extension starts.
func WithRearmOnStart() Option {
	return func(e *Extension) { e.config.RearmOnStart = true }
}

// WithRedisDeferrer schedules charges in Redis at addr.
func WithRedisDeferrer(addr string) Option {
	return func(e *Extension) {
		e.config.Deferrer = DeferrerRedis
		e.config.RedisAddr = addr
	}
}
