package subscription

import (
	"context"
	"time"

	"github.com/xraph/subpay/id"
)

// Store persists subscriptions and owns their version counter.
type Store interface {
	CreateSubscription(ctx context.Context, s *Subscription) error
	GetSubscription(ctx context.Context, subID id.SubscriptionID) (*Subscription, error)
	ListSubscriptions(ctx context.Context, opts ListOpts) ([]*Subscription, error)
	// UpdateSubscription writes charge bookkeeping. It never changes
	// Version.
	UpdateSubscription(ctx context.Context, s *Subscription) error
	// CancelSubscription clears Active and increments Version in one step.
	// It fails with ErrSubscriptionInactive when the subscription is
	// already inactive.
	CancelSubscription(ctx context.Context, subID id.SubscriptionID, canceledAt time.Time) (*Subscription, error)
}

// ListOpts filters subscriptions. Results are ordered by ID ascending.
type ListOpts struct {
	Subscriber string
	PlanID     id.PlanID
	ActiveOnly bool
	Limit      int
	Offset     int
}
