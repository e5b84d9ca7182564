// Package mongo implements store.Store on MongoDB via Grove ORM. Balance
// changes go through the driver's conditional update operators so that
// each debit is a single atomic document update.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/subpay"
	"github.com/xraph/subpay/account"
	"github.com/xraph/subpay/id"
	"github.com/xraph/subpay/payment"
	"github.com/xraph/subpay/plan"
	subpaystore "github.com/xraph/subpay/store"
	"github.com/xraph/subpay/subscription"
)

// Collection name constants.
const (
	colPlans         = "subpay_plans"
	colSubscriptions = "subpay_subscriptions"
	colAccounts      = "subpay_accounts"
	colPayments      = "subpay_payments"
	colSequences     = "subpay_sequences"
)

// compile-time interface check
var _ subpaystore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all subpay collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("subpay/mongo: migrate %s indexes: %w", col, err)
		}
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

type sequenceModel struct {
	Name  string `bson:"_id"`
	Value int64  `bson:"value"`
}

// NextSequence increments and returns a named counter, creating it on
// first use.
func (s *Store) NextSequence(ctx context.Context, name string) (uint64, error) {
	var seq sequenceModel
	err := s.mdb.Collection(colSequences).FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"value": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&seq)
	if err != nil {
		return 0, fmt.Errorf("subpay/mongo: next sequence: %w", err)
	}
	return uint64(seq.Value), nil
}

// ==================== Plan Store ====================

func (s *Store) CreatePlan(ctx context.Context, p *plan.Plan) error {
	m := toPlanModel(p)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("subpay/mongo: create plan: %w", err)
	}
	return nil
}

func (s *Store) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	var m planModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": int64(planID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, subpay.ErrPlanNotFound
		}
		return nil, fmt.Errorf("subpay/mongo: get plan: %w", err)
	}
	return fromPlanModel(&m), nil
}

func (s *Store) ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	var models []planModel

	filter := bson.M{}
	if opts.Merchant != "" {
		filter["merchant"] = opts.Merchant
	}
	if opts.ActiveOnly {
		filter["active"] = true
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("subpay/mongo: list plans: %w", err)
	}

	result := make([]*plan.Plan, len(models))
	for i := range models {
		result[i] = fromPlanModel(&models[i])
	}
	return result, nil
}

func (s *Store) SetPlanActive(ctx context.Context, planID id.PlanID, active bool) error {
	res, err := s.mdb.NewUpdate((*planModel)(nil)).
		Filter(bson.M{"_id": int64(planID)}).
		Set("active", active).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("subpay/mongo: set plan active: %w", err)
	}
	if res.MatchedCount() == 0 {
		return subpay.ErrPlanNotFound
	}
	return nil
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("subpay/mongo: create subscription: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": int64(subID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, subpay.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("subpay/mongo: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m), nil
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel

	filter := bson.M{}
	if opts.Subscriber != "" {
		filter["subscriber"] = opts.Subscriber
	}
	if !opts.PlanID.IsZero() {
		filter["plan_id"] = int64(opts.PlanID)
	}
	if opts.ActiveOnly {
		filter["active"] = true
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("subpay/mongo: list subscriptions: %w", err)
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		result[i] = fromSubscriptionModel(&models[i])
	}
	return result, nil
}

// UpdateSubscription writes every mutable field except version.
func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	res, err := s.mdb.NewUpdate((*subscriptionModel)(nil)).
		Filter(bson.M{"_id": int64(sub.ID)}).
		Set("next_payment_at", sub.NextPaymentAt).
		Set("active", sub.Active).
		Set("failed_attempts", sub.FailedAttempts).
		Set("deactivated_at", sub.DeactivatedAt).
		Set("deactivation_reason", sub.DeactivationReason).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("subpay/mongo: update subscription: %w", err)
	}
	if res.MatchedCount() == 0 {
		return subpay.ErrSubscriptionNotFound
	}
	return nil
}

func (s *Store) CancelSubscription(ctx context.Context, subID id.SubscriptionID, canceledAt time.Time) (*subscription.Subscription, error) {
	at := canceledAt.UTC()
	res, err := s.mdb.Collection(colSubscriptions).UpdateOne(ctx,
		bson.M{"_id": int64(subID), "active": true},
		bson.M{
			"$set": bson.M{
				"active":              false,
				"canceled_at":         at,
				"deactivation_reason": subscription.ReasonCanceled,
				"updated_at":          at,
			},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("subpay/mongo: cancel subscription: %w", err)
	}

	sub, err := s.GetSubscription(ctx, subID)
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		return nil, subpay.ErrSubscriptionInactive
	}
	return sub, nil
}

// ==================== Account Store ====================

func (s *Store) GetAccount(ctx context.Context, key string) (*account.Account, error) {
	var m accountModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": key}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return account.Zero(key), nil
		}
		return nil, fmt.Errorf("subpay/mongo: get account: %w", err)
	}
	return fromAccountModel(&m), nil
}

func (s *Store) CreditEscrow(ctx context.Context, key string, amount int64) (*account.Account, error) {
	return s.upsertAccount(ctx, key, bson.M{"$inc": bson.M{"escrow": amount, "allowance": int64(0)}})
}

func (s *Store) CreditAllowance(ctx context.Context, key string, amount int64) (*account.Account, error) {
	return s.upsertAccount(ctx, key, bson.M{"$inc": bson.M{"escrow": int64(0), "allowance": amount}})
}

func (s *Store) SetAllowance(ctx context.Context, key string, amount int64) (*account.Account, error) {
	return s.upsertAccount(ctx, key, bson.M{
		"$inc": bson.M{"escrow": int64(0)},
		"$set": bson.M{"allowance": amount},
	})
}

func (s *Store) DebitEscrow(ctx context.Context, key string, amount int64) (*account.Account, error) {
	return s.debit(ctx, key, "escrow", amount)
}

func (s *Store) DebitAllowance(ctx context.Context, key string, amount int64) (*account.Account, error) {
	return s.debit(ctx, key, "allowance", amount)
}

func (s *Store) upsertAccount(ctx context.Context, key string, update bson.M) (*account.Account, error) {
	t := now()
	set, _ := update["$set"].(bson.M)
	if set == nil {
		set = bson.M{}
	}
	set["updated_at"] = t
	update["$set"] = set
	update["$setOnInsert"] = bson.M{"created_at": t}

	var m accountModel
	err := s.mdb.Collection(colAccounts).FindOneAndUpdate(ctx,
		bson.M{"_id": key},
		update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&m)
	if err != nil {
		return nil, fmt.Errorf("subpay/mongo: upsert account: %w", err)
	}
	return fromAccountModel(&m), nil
}

// debit matches only when the field covers amount, so the check and the
// decrement are one document update.
func (s *Store) debit(ctx context.Context, key, field string, amount int64) (*account.Account, error) {
	var m accountModel
	err := s.mdb.Collection(colAccounts).FindOneAndUpdate(ctx,
		bson.M{"_id": key, field: bson.M{"$gte": amount}},
		bson.M{
			"$inc": bson.M{field: -amount},
			"$set": bson.M{"updated_at": now()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, subpay.ErrInsufficientFunds
		}
		return nil, fmt.Errorf("subpay/mongo: debit %s: %w", field, err)
	}
	return fromAccountModel(&m), nil
}

// ==================== Payment Store ====================

func (s *Store) CreatePayment(ctx context.Context, p *payment.Payment) error {
	m := toPaymentModel(p)
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("subpay/mongo: create payment: %w", err)
	}
	return nil
}

func (s *Store) GetPayment(ctx context.Context, payID id.PaymentID) (*payment.Payment, error) {
	var m paymentModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": payID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, subpay.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("subpay/mongo: get payment: %w", err)
	}
	return fromPaymentModel(&m)
}

func (s *Store) ListPayments(ctx context.Context, opts payment.ListOpts) ([]*payment.Payment, error) {
	var models []paymentModel

	filter := bson.M{}
	if !opts.SubscriptionID.IsZero() {
		filter["subscription_id"] = int64(opts.SubscriptionID)
	}
	if opts.Payer != "" {
		filter["payer"] = opts.Payer
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "executed_at", Value: 1}, {Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("subpay/mongo: list payments: %w", err)
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

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all subpay collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colPlans: {
			{Keys: bson.D{{Key: "merchant", Value: 1}, {Key: "_id", Value: 1}}},
		},
		colSubscriptions: {
			{Keys: bson.D{{Key: "subscriber", Value: 1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "plan_id", Value: 1}, {Key: "active", Value: 1}}},
		},
		colPayments: {
			{Keys: bson.D{{Key: "subscription_id", Value: 1}, {Key: "executed_at", Value: 1}}},
			{Keys: bson.D{{Key: "payer", Value: 1}, {Key: "executed_at", Value: 1}}},
		},
	}
}
