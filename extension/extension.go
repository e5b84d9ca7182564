// Package extension provides the Forge extension adapter for subpay.
//
// It implements the forge.Extension interface to integrate the subpay
// engine into a Forge application with DI registration and lifecycle
// management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.subpay" or "subpay" keys.
package extension

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/subpay"
	"github.com/xraph/subpay/charge"
	"github.com/xraph/subpay/scheduler/redisq"
	"github.com/xraph/subpay/store"
	"github.com/xraph/subpay/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "subpay"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Recurring-payment engine with escrow and pull allowances"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts subpay as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *subpay.Engine
	store      store.Store
	engineOpts []subpay.Option

	redis     redis.UniversalClient
	redisq    *redisq.Deferrer
	stopPoll  context.CancelFunc
	pollErrCh chan error
}

// New creates a new subpay Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying subpay engine.
// This is nil until Register is called.
func (e *Extension) Engine() *subpay.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	opts, err := e.buildEngineOpts()
	if err != nil {
		return err
	}

	eng, err := subpay.New(e.store, opts...)
	if err != nil {
		return err
	}
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*subpay.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("subpay: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	if e.redisq != nil {
		pollCtx, cancel := context.WithCancel(context.Background())
		e.stopPoll = cancel
		e.pollErrCh = make(chan error, 1)
		go func() { e.pollErrCh <- e.redisq.Run(pollCtx) }()
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(ctx context.Context) error {
	var errs []error

	if e.stopPoll != nil {
		e.stopPoll()
		if err := <-e.pollErrCh; err != nil {
			errs = append(errs, err)
		}
		e.stopPoll = nil
	}
	if e.engine != nil {
		if err := e.engine.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if e.redis != nil {
		if err := e.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	e.MarkStopped()
	return errors.Join(errs...)
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("subpay: store not initialized")
	}
	if err := e.store.Ping(ctx); err != nil {
		return err
	}
	if e.redis != nil {
		return e.redis.Ping(ctx).Err()
	}
	return nil
}

// buildEngineOpts constructs subpay.Option values from the resolved config.
func (e *Extension) buildEngineOpts() ([]subpay.Option, error) {
	opts := make([]subpay.Option, 0, len(e.engineOpts)+6)

	funding, err := charge.ParseFundingModel(e.config.FundingModel)
	if err != nil {
		return nil, err
	}
	opts = append(opts, subpay.WithFundingModel(funding))

	policy, err := charge.ParseFailurePolicy(e.config.FailurePolicy, e.config.RetrySchedule)
	if err != nil {
		return nil, err
	}
	opts = append(opts, subpay.WithFailurePolicy(policy))

	if e.config.DefaultPeriod > 0 {
		opts = append(opts, subpay.WithDefaultPeriod(e.config.DefaultPeriod))
	}
	if e.config.DisableMigrate {
		opts = append(opts, subpay.WithoutMigrate())
	}
	if e.config.RearmOnStart {
		opts = append(opts, subpay.WithRearmOnStart())
	}

	if e.config.Deferrer == DeferrerRedis {
		e.redis = redis.NewClient(&redis.Options{Addr: e.config.RedisAddr})
		e.redisq = redisq.New(e.redis,
			redisq.WithPrefix(e.config.RedisPrefix),
			redisq.WithInterval(e.config.PollInterval),
		)
		opts = append(opts, subpay.WithDeferrer(e.redisq))
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts, nil
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("subpay: configuration is required but not found in config files; " +
				"ensure 'extensions.subpay' or 'subpay' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	if err := e.config.Validate(); err != nil {
		return err
	}

	e.Logger().Debug("subpay: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("funding_model", e.config.FundingModel),
		forge.F("failure_policy", e.config.FailurePolicy),
		forge.F("retry_schedule", e.config.RetrySchedule),
		forge.F("default_period", e.config.DefaultPeriod),
		forge.F("deferrer", e.config.Deferrer),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.subpay" first (namespaced pattern).
	if cm.IsSet("extensions.subpay") {
		if err := cm.Bind("extensions.subpay", &cfg); err == nil {
			e.Logger().Debug("subpay: loaded config from file",
				forge.F("key", "extensions.subpay"),
			)
			return cfg, true
		}
		e.Logger().Warn("subpay: failed to bind extensions.subpay config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "subpay" key.
	if cm.IsSet("subpay") {
		if err := cm.Bind("subpay", &cfg); err == nil {
			e.Logger().Debug("subpay: loaded config from file",
				forge.F("key", "subpay"),
			)
			return cfg, true
		}
		e.Logger().Warn("subpay: failed to bind subpay config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.FundingModel == "" {
		cfg.FundingModel = defaults.FundingModel
	}
	if cfg.FailurePolicy == "" {
		cfg.FailurePolicy = defaults.FailurePolicy
	}
	if len(cfg.RetrySchedule) == 0 && cfg.FailurePolicy == defaults.FailurePolicy {
		cfg.RetrySchedule = defaults.RetrySchedule
	}
	if cfg.DefaultPeriod == 0 {
		cfg.DefaultPeriod = defaults.DefaultPeriod
	}
	if cfg.Deferrer == "" {
		cfg.Deferrer = defaults.Deferrer
	}
	if cfg.RedisPrefix == "" {
		cfg.RedisPrefix = defaults.RedisPrefix
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.RearmOnStart {
		yamlConfig.RearmOnStart = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.FundingModel == "" {
		yamlConfig.FundingModel = programmaticConfig.FundingModel
	}
	if yamlConfig.FailurePolicy == "" {
		yamlConfig.FailurePolicy = programmaticConfig.FailurePolicy
	}
	if yamlConfig.Deferrer == "" {
		yamlConfig.Deferrer = programmaticConfig.Deferrer
	}
	if yamlConfig.RedisAddr == "" {
		yamlConfig.RedisAddr = programmaticConfig.RedisAddr
	}
	if yamlConfig.RedisPrefix == "" {
		yamlConfig.RedisPrefix = programmaticConfig.RedisPrefix
	}

	// Duration fields: YAML takes precedence, programmatic fills gaps.
	if len(yamlConfig.RetrySchedule) == 0 {
		yamlConfig.RetrySchedule = programmaticConfig.RetrySchedule
	}
	if yamlConfig.DefaultPeriod == 0 {
		yamlConfig.DefaultPeriod = programmaticConfig.DefaultPeriod
	}
	if yamlConfig.PollInterval == 0 {
		yamlConfig.PollInterval = programmaticConfig.PollInterval
	}

	// Fill remaining zeros with defaults.
	return mergeWithDefaults(yamlConfig)
}
