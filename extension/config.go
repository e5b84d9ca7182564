package extension

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Deferrer backends selectable from configuration.
const (
	DeferrerTimer = "timer"
	DeferrerRedis = "redis"
)

// Config holds the subpay extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.subpay" or "subpay" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// FundingModel is the order funding sources are tried in:
	// escrow_first (default), allowance_first or escrow_only.
	FundingModel string `json:"funding_model" mapstructure:"funding_model" yaml:"funding_model" validate:"omitempty,oneof=escrow_first allowance_first escrow_only"`

	// FailurePolicy is "retry" (default) or "deactivate".
	FailurePolicy string `json:"failure_policy" mapstructure:"failure_policy" yaml:"failure_policy" validate:"omitempty,oneof=retry deactivate"`

	// RetrySchedule lists the delays before each retry of a failed charge
	// under the retry policy (default: 6h, 24h).
	RetrySchedule []time.Duration `json:"retry_schedule" mapstructure:"retry_schedule" yaml:"retry_schedule" validate:"dive,gt=0"`

	// DefaultPeriod is the billing period for plans created without an
	// explicit one (default: 30 days).
	DefaultPeriod time.Duration `json:"default_period" mapstructure:"default_period" yaml:"default_period" validate:"gte=0"`

	// RearmOnStart re-arms charges for active subscriptions on start.
	// Required with the in-process timer deferrer to survive restarts.
	RearmOnStart bool `json:"rearm_on_start" mapstructure:"rearm_on_start" yaml:"rearm_on_start"`

	// Deferrer selects the deferred-call backend: "timer" (default) or
	// "redis".
	Deferrer string `json:"deferrer" mapstructure:"deferrer" yaml:"deferrer" validate:"omitempty,oneof=timer redis"`

	// RedisAddr is the Redis address used by the redis deferrer.
	RedisAddr string `json:"redis_addr" mapstructure:"redis_addr" yaml:"redis_addr" validate:"required_if=Deferrer redis"`

	// RedisPrefix namespaces the redis deferrer keys.
	RedisPrefix string `json:"redis_prefix" mapstructure:"redis_prefix" yaml:"redis_prefix"`

	// PollInterval is how often the redis deferrer claims due calls
	// (default: 1s).
	PollInterval time.Duration `json:"poll_interval" mapstructure:"poll_interval" yaml:"poll_interval" validate:"gte=0"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		FundingModel:  "escrow_first",
		FailurePolicy: "retry",
		RetrySchedule: []time.Duration{6 * time.Hour, 24 * time.Hour},
		DefaultPeriod: 30 * 24 * time.Hour,
		Deferrer:      DeferrerTimer,
		RedisPrefix:   "subpay:deferred",
		PollInterval:  time.Second,
	}
}

var validate = validator.New()

// Validate checks field constraints and reports every violation.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("subpay: invalid config: %s", strings.Join(msgs, "; "))
}
