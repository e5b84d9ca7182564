package extension

import (
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"unknown funding model", func(c *Config) { c.FundingModel = "split" }, true},
		{"unknown policy", func(c *Config) { c.FailurePolicy = "ignore" }, true},
		{"non-positive retry delay", func(c *Config) { c.RetrySchedule = []time.Duration{time.Hour, 0} }, true},
		{"negative period", func(c *Config) { c.DefaultPeriod = -time.Hour }, true},
		{"redis without addr", func(c *Config) { c.Deferrer = DeferrerRedis }, true},
		{"redis with addr", func(c *Config) {
			c.Deferrer = DeferrerRedis
			c.RedisAddr = "localhost:6379"
		}, false},
		{"unknown deferrer", func(c *Config) { c.Deferrer = "cron" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{FailurePolicy: "deactivate"})

	if cfg.FundingModel != "escrow_first" {
		t.Errorf("FundingModel: got %q", cfg.FundingModel)
	}
	if len(cfg.RetrySchedule) != 0 {
		t.Errorf("deactivate policy got a retry schedule: %v", cfg.RetrySchedule)
	}
	if cfg.DefaultPeriod != 30*24*time.Hour {
		t.Errorf("DefaultPeriod: got %v", cfg.DefaultPeriod)
	}
	if cfg.Deferrer != DeferrerTimer || cfg.PollInterval != time.Second {
		t.Errorf("deferrer defaults: %q %v", cfg.Deferrer, cfg.PollInterval)
	}
}

func TestMergeConfigurations(t *testing.T) {
	yaml := Config{FundingModel: "allowance_first", DefaultPeriod: time.Hour}
	prog := Config{
		FundingModel:   "escrow_only",
		DisableMigrate: true,
		Deferrer:       DeferrerRedis,
		RedisAddr:      "redis:6379",
	}

	cfg := mergeConfigurations(yaml, prog)

	if cfg.FundingModel != "allowance_first" {
		t.Errorf("YAML should win: got %q", cfg.FundingModel)
	}
	if !cfg.DisableMigrate {
		t.Error("programmatic bool flag lost")
	}
	if cfg.Deferrer != DeferrerRedis || cfg.RedisAddr != "redis:6379" {
		t.Errorf("programmatic gaps not filled: %q %q", cfg.Deferrer, cfg.RedisAddr)
	}
	if cfg.DefaultPeriod != time.Hour {
		t.Errorf("DefaultPeriod: got %v", cfg.DefaultPeriod)
	}
	if len(cfg.RetrySchedule) != 2 {
		t.Errorf("RetrySchedule: got %v", cfg.RetrySchedule)
	}
}
