package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the subpay store.
var Migrations = migrate.NewGroup("subpay")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_subpay_plans",
			Version: "20260101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS subpay_plans (
    id         BIGINT PRIMARY KEY,
    merchant   TEXT NOT NULL,
    token      TEXT NOT NULL DEFAULT '',
    amount     BIGINT NOT NULL CHECK (amount > 0),
    period_ns  BIGINT NOT NULL CHECK (period_ns > 0),
    trial_ns   BIGINT NOT NULL DEFAULT 0,
    active     BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_subpay_plans_merchant ON subpay_plans (merchant, id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS subpay_plans`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_subpay_subscriptions",
			Version: "20260101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS subpay_subscriptions (
    id                  BIGINT PRIMARY KEY,
    subscriber          TEXT NOT NULL,
    plan_id             BIGINT NOT NULL REFERENCES subpay_plans (id),
    next_payment_at     TIMESTAMPTZ NOT NULL,
    active              BOOLEAN NOT NULL DEFAULT TRUE,
    version             BIGINT NOT NULL DEFAULT 1,
    failed_attempts     INT NOT NULL DEFAULT 0,
    canceled_at         TIMESTAMPTZ,
    deactivated_at      TIMESTAMPTZ,
    deactivation_reason TEXT NOT NULL DEFAULT '',
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_subpay_subs_subscriber ON subpay_subscriptions (subscriber, id);
CREATE INDEX IF NOT EXISTS idx_subpay_subs_plan ON subpay_subscriptions (plan_id, active);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS subpay_subscriptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_subpay_accounts",
			Version: "20260101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS subpay_accounts (
    account    TEXT PRIMARY KEY,
    escrow     BIGINT NOT NULL DEFAULT 0 CHECK (escrow >= 0),
    allowance  BIGINT NOT NULL DEFAULT 0 CHECK (allowance >= 0),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS subpay_accounts`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_subpay_payments",
			Version: "20260101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS subpay_payments (
    id              TEXT PRIMARY KEY,
    subscription_id BIGINT NOT NULL,
    plan_id         BIGINT NOT NULL,
    payer           TEXT NOT NULL,
    merchant        TEXT NOT NULL,
    token           TEXT NOT NULL DEFAULT '',
    amount          BIGINT NOT NULL,
    source          TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL,
    attempt         INT NOT NULL DEFAULT 1,
    due_at          TIMESTAMPTZ NOT NULL,
    executed_at     TIMESTAMPTZ NOT NULL,
    failure_reason  TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_subpay_payments_sub ON subpay_payments (subscription_id, executed_at);
CREATE INDEX IF NOT EXISTS idx_subpay_payments_payer ON subpay_payments (payer, executed_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS subpay_payments`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_subpay_sequences",
			Version: "20260101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS subpay_sequences (
    name  TEXT PRIMARY KEY,
    value BIGINT NOT NULL DEFAULT 0
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS subpay_sequences`)
				return err
			},
		},
	)
}
