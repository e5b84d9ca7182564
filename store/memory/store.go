// Package memory provides an in-process store. Records are copied on the
// way in and out so callers never share state with the store.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/xraph/subpay"
	"github.com/xraph/subpay/account"
	"github.com/xraph/subpay/id"
	"github.com/xraph/subpay/payment"
	"github.com/xraph/subpay/plan"
	"github.com/xraph/subpay/store"
	"github.com/xraph/subpay/subscription"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	plans         map[id.PlanID]*plan.Plan
	subscriptions map[id.SubscriptionID]*subscription.Subscription
	accounts      map[string]*account.Account
	payments      map[string]*payment.Payment
	sequences     map[string]uint64
	closed        bool
}

func New() *Store {
	return &Store{
		plans:         make(map[id.PlanID]*plan.Plan),
		subscriptions: make(map[id.SubscriptionID]*subscription.Subscription),
		accounts:      make(map[string]*account.Account),
		payments:      make(map[string]*payment.Payment),
		sequences:     make(map[string]uint64),
	}
}

// ──────────────────────────────────────────────────
// Plan Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreatePlan(_ context.Context, p *plan.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.plans[p.ID]; exists {
		return subpay.ErrAlreadyExists
	}
	cp := *p
	s.plans[p.ID] = &cp
	return nil
}

func (s *Store) GetPlan(_ context.Context, planID id.PlanID) (*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.plans[planID]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, subpay.ErrPlanNotFound
}

func (s *Store) ListPlans(_ context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*plan.Plan, 0)
	for _, p := range s.plans {
		if opts.Merchant != "" && p.Merchant != opts.Merchant {
			continue
		}
		if opts.ActiveOnly && !p.Active {
			continue
		}
		cp := *p
		result = append(result, &cp)
	}
	slices.SortFunc(result, func(a, b *plan.Plan) int { return cmp.Compare(a.ID, b.ID) })

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) SetPlanActive(_ context.Context, planID id.PlanID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.plans[planID]
	if !ok {
		return subpay.ErrPlanNotFound
	}
	p.Active = active
	p.Touch(now())
	return nil
}

// ──────────────────────────────────────────────────
// Subscription Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.ID]; exists {
		return subpay.ErrAlreadyExists
	}
	s.subscriptions[sub.ID] = copySubscription(sub)
	return nil
}

func (s *Store) GetSubscription(_ context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub, ok := s.subscriptions[subID]; ok {
		return copySubscription(sub), nil
	}
	return nil, subpay.ErrSubscriptionNotFound
}

func (s *Store) ListSubscriptions(_ context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*subscription.Subscription, 0)
	for _, sub := range s.subscriptions {
		if opts.Subscriber != "" && sub.Subscriber != opts.Subscriber {
			continue
		}
		if !opts.PlanID.IsZero() && sub.PlanID != opts.PlanID {
			continue
		}
		if opts.ActiveOnly && !sub.Active {
			continue
		}
		result = append(result, copySubscription(sub))
	}
	slices.SortFunc(result, func(a, b *subscription.Subscription) int { return cmp.Compare(a.ID, b.ID) })

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.subscriptions[sub.ID]
	if !ok {
		return subpay.ErrSubscriptionNotFound
	}
	next := copySubscription(sub)
	next.Version = cur.Version
	s.subscriptions[sub.ID] = next
	return nil
}

func (s *Store) CancelSubscription(_ context.Context, subID id.SubscriptionID, canceledAt time.Time) (*subscription.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[subID]
	if !ok {
		return nil, subpay.ErrSubscriptionNotFound
	}
	if !sub.Active {
		return nil, subpay.ErrSubscriptionInactive
	}
	at := canceledAt.UTC()
	sub.Active = false
	sub.Version++
	sub.CanceledAt = &at
	sub.DeactivationReason = subscription.ReasonCanceled
	sub.Touch(at)
	return copySubscription(sub), nil
}

// ──────────────────────────────────────────────────
// Account Store implementation
// ──────────────────────────────────────────────────

func (s *Store) GetAccount(_ context.Context, key string) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.accounts[key]; ok {
		cp := *a
		return &cp, nil
	}
	return account.Zero(key), nil
}

func (s *Store) CreditEscrow(_ context.Context, key string, amount int64) (*account.Account, error) {
	return s.mutate(key, func(a *account.Account) error {
		a.Escrow += amount
		return nil
	})
}

func (s *Store) DebitEscrow(_ context.Context, key string, amount int64) (*account.Account, error) {
	return s.mutate(key, func(a *account.Account) error {
		if a.Escrow < amount {
			return subpay.ErrInsufficientFunds
		}
		a.Escrow -= amount
		return nil
	})
}

func (s *Store) SetAllowance(_ context.Context, key string, amount int64) (*account.Account, error) {
	return s.mutate(key, func(a *account.Account) error {
		a.Allowance = amount
		return nil
	})
}

func (s *Store) CreditAllowance(_ context.Context, key string, amount int64) (*account.Account, error) {
	return s.mutate(key, func(a *account.Account) error {
		a.Allowance += amount
		return nil
	})
}

func (s *Store) DebitAllowance(_ context.Context, key string, amount int64) (*account.Account, error) {
	return s.mutate(key, func(a *account.Account) error {
		if a.Allowance < amount {
			return subpay.ErrInsufficientFunds
		}
		a.Allowance -= amount
		return nil
	})
}

// mutate applies fn to a scratch copy and commits it only on success.
func (s *Store) mutate(key string, fn func(*account.Account) error) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := now()
	cur, ok := s.accounts[key]
	if !ok {
		cur = account.Zero(key)
		cur.Entity.CreatedAt = t
	}
	next := *cur
	if err := fn(&next); err != nil {
		return nil, err
	}
	next.Touch(t)
	s.accounts[key] = &next

	out := next
	return &out, nil
}

// ──────────────────────────────────────────────────
// Payment Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreatePayment(_ context.Context, p *payment.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.payments[p.ID.String()]; exists {
		return subpay.ErrAlreadyExists
	}
	cp := *p
	s.payments[p.ID.String()] = &cp
	return nil
}

func (s *Store) GetPayment(_ context.Context, payID id.PaymentID) (*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.payments[payID.String()]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, subpay.ErrPaymentNotFound
}

func (s *Store) ListPayments(_ context.Context, opts payment.ListOpts) ([]*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*payment.Payment, 0)
	for _, p := range s.payments {
		if !opts.SubscriptionID.IsZero() && p.SubscriptionID != opts.SubscriptionID {
			continue
		}
		if opts.Payer != "" && p.Payer != opts.Payer {
			continue
		}
		if opts.Status != "" && p.Status != opts.Status {
			continue
		}
		cp := *p
		result = append(result, &cp)
	}
	slices.SortFunc(result, func(a, b *payment.Payment) int {
		if c := a.ExecutedAt.Compare(b.ExecutedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// Store management
// ──────────────────────────────────────────────────

func (s *Store) NextSequence(_ context.Context, name string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sequences[name]++
	return s.sequences[name], nil
}

func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return subpay.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func now() time.Time { return time.Now().UTC() }

func copySubscription(sub *subscription.Subscription) *subscription.Subscription {
	cp := *sub
	if sub.CanceledAt != nil {
		t := *sub.CanceledAt
		cp.CanceledAt = &t
	}
	if sub.DeactivatedAt != nil {
		t := *sub.DeactivatedAt
		cp.DeactivatedAt = &t
	}
	return &cp
}

func paginate[T any](items []T, offset, limit int) []T {
	start := min(offset, len(items))
	end := len(items)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return items[start:end]
}
