// Package sqlite implements store.Store on SQLite via Grove ORM.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/subpay"
	"github.com/xraph/subpay/account"
	"github.com/xraph/subpay/id"
	"github.com/xraph/subpay/payment"
	"github.com/xraph/subpay/plan"
	subpaystore "github.com/xraph/subpay/store"
	"github.com/xraph/subpay/subscription"
)

// compile-time interface check
var _ subpaystore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("subpay/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("subpay/sqlite: %w: %w", subpay.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// NextSequence increments and returns a named counter in one statement.
func (s *Store) NextSequence(ctx context.Context, name string) (uint64, error) {
	var v int64
	err := s.sdb.NewRaw(`
		INSERT INTO subpay_sequences (name, value) VALUES (?, 1)
		ON CONFLICT (name) DO UPDATE SET value = subpay_sequences.value + 1
		RETURNING value
	`, name).Scan(ctx, &v)
	if err != nil {
		return 0, fmt.Errorf("subpay/sqlite: next sequence: %w", err)
	}
	return uint64(v), nil
}

// ==================== Plan Store ====================

func (s *Store) CreatePlan(ctx context.Context, p *plan.Plan) error {
	m := toPlanModel(p)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("subpay/sqlite: create plan: %w", err)
	}
	return nil
}

func (s *Store) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	m := new(planModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", int64(planID)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, subpay.ErrPlanNotFound
		}
		return nil, fmt.Errorf("subpay/sqlite: get plan: %w", err)
	}
	return fromPlanModel(m), nil
}

func (s *Store) ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	var models []planModel
	q := s.sdb.NewSelect(&models)

	if opts.Merchant != "" {
		q = q.Where("merchant = ?", opts.Merchant)
	}
	if opts.ActiveOnly {
		q = q.Where("active = ?", true)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("subpay/sqlite: list plans: %w", err)
	}

	result := make([]*plan.Plan, len(models))
	for i := range models {
		result[i] = fromPlanModel(&models[i])
	}
	return result, nil
}

func (s *Store) SetPlanActive(ctx context.Context, planID id.PlanID, active bool) error {
	res, err := s.sdb.NewUpdate((*planModel)(nil)).
		Set("active = ?", active).
		Set("updated_at = ?", now()).
		Where("id = ?", int64(planID)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("subpay/sqlite: set plan active: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return subpay.ErrPlanNotFound
	}
	return nil
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("subpay/sqlite: create subscription: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", int64(subID)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, subpay.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("subpay/sqlite: get subscription: %w", err)
	}
	return fromSubscriptionModel(m), nil
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	q := s.sdb.NewSelect(&models)

	if opts.Subscriber != "" {
		q = q.Where("subscriber = ?", opts.Subscriber)
	}
	if !opts.PlanID.IsZero() {
		q = q.Where("plan_id = ?", int64(opts.PlanID))
	}
	if opts.ActiveOnly {
		q = q.Where("active = ?", true)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("subpay/sqlite: list subscriptions: %w", err)
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		result[i] = fromSubscriptionModel(&models[i])
	}
	return result, nil
}

// UpdateSubscription writes every mutable column except version.
func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	res, err := s.sdb.NewUpdate((*subscriptionModel)(nil)).
		Set("next_payment_at = ?", sub.NextPaymentAt).
		Set("active = ?", sub.Active).
		Set("failed_attempts = ?", sub.FailedAttempts).
		Set("deactivated_at = ?", sub.DeactivatedAt).
		Set("deactivation_reason = ?", sub.DeactivationReason).
		Set("updated_at = ?", now()).
		Where("id = ?", int64(sub.ID)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("subpay/sqlite: update subscription: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return subpay.ErrSubscriptionNotFound
	}
	return nil
}

func (s *Store) CancelSubscription(ctx context.Context, subID id.SubscriptionID, canceledAt time.Time) (*subscription.Subscription, error) {
	at := canceledAt.UTC()
	res, err := s.sdb.NewUpdate((*subscriptionModel)(nil)).
		Set("active = ?", false).
		Set("version = version + 1").
		Set("canceled_at = ?", at).
		Set("deactivation_reason = ?", subscription.ReasonCanceled).
		Set("updated_at = ?", at).
		Where("id = ?", int64(subID)).
		Where("active = ?", true).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("subpay/sqlite: cancel subscription: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	sub, err := s.GetSubscription(ctx, subID)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, subpay.ErrSubscriptionInactive
	}
	return sub, nil
}

// ==================== Account Store ====================

func (s *Store) GetAccount(ctx context.Context, key string) (*account.Account, error) {
	m := new(accountModel)
	err := s.sdb.NewSelect(m).
		Where("account = ?", key).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return account.Zero(key), nil
		}
		return nil, fmt.Errorf("subpay/sqlite: get account: %w", err)
	}
	return fromAccountModel(m), nil
}

func (s *Store) CreditEscrow(ctx context.Context, key string, amount int64) (*account.Account, error) {
	return s.upsertAccount(ctx, key, amount, 0, "escrow = subpay_accounts.escrow + EXCLUDED.escrow")
}

func (s *Store) CreditAllowance(ctx context.Context, key string, amount int64) (*account.Account, error) {
	return s.upsertAccount(ctx, key, 0, amount, "allowance = subpay_accounts.allowance + EXCLUDED.allowance")
}

func (s *Store) SetAllowance(ctx context.Context, key string, amount int64) (*account.Account, error) {
	return s.upsertAccount(ctx, key, 0, amount, "allowance = EXCLUDED.allowance")
}

func (s *Store) DebitEscrow(ctx context.Context, key string, amount int64) (*account.Account, error) {
	return s.debit(ctx, key, "escrow", amount)
}

func (s *Store) DebitAllowance(ctx context.Context, key string, amount int64) (*account.Account, error) {
	return s.debit(ctx, key, "allowance", amount)
}

func (s *Store) upsertAccount(ctx context.Context, key string, escrow, allowance int64, set string) (*account.Account, error) {
	t := now()
	m := &accountModel{
		Account:   key,
		Escrow:    escrow,
		Allowance: allowance,
		CreatedAt: t,
		UpdatedAt: t,
	}
	_, err := s.sdb.NewInsert(m).
		OnConflict("(account) DO UPDATE").
		Set(set).
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("subpay/sqlite: upsert account: %w", err)
	}
	return s.GetAccount(ctx, key)
}

// debit is a single conditional UPDATE: the balance filter and the
// decrement are evaluated together, so concurrent debits cannot overdraw.
func (s *Store) debit(ctx context.Context, key, column string, amount int64) (*account.Account, error) {
	res, err := s.sdb.NewUpdate((*accountModel)(nil)).
		Set(column+" = "+column+" - ?", amount).
		Set("updated_at = ?", now()).
		Where("account = ?", key).
		Where(column+" >= ?", amount).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("subpay/sqlite: debit %s: %w", column, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, subpay.ErrInsufficientFunds
	}
	return s.GetAccount(ctx, key)
}

// ==================== Payment Store ====================

func (s *Store) CreatePayment(ctx context.Context, p *payment.Payment) error {
	m := toPaymentModel(p)
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("subpay/sqlite: create payment: %w", err)
	}
	return nil
}

func (s *Store) GetPayment(ctx context.Context, payID id.PaymentID) (*payment.Payment, error) {
	m := new(paymentModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", payID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, subpay.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("subpay/sqlite: get payment: %w", err)
	}
	return fromPaymentModel(m)
}

func (s *Store) ListPayments(ctx context.Context, opts payment.ListOpts) ([]*payment.Payment, error) {
	var models []paymentModel
	q := s.sdb.NewSelect(&models)

	if !opts.SubscriptionID.IsZero() {
		q = q.Where("subscription_id = ?", int64(opts.SubscriptionID))
	}
	if opts.Payer != "" {
		q = q.Where("payer = ?", opts.Payer)
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("executed_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("subpay/sqlite: list payments: %w", err)
	}

	result := make([]*payment.Payment, 0, len(models))
	for i := range models {
		p, err := fromPaymentModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, nil
}

// ==================== Helpers ====================

func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
