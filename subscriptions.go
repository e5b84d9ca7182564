package subpay

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/subpay/id"
	"github.com/xraph/subpay/plan"
	"github.com/xraph/subpay/subscription"
	"github.com/xraph/subpay/types"
)

// Subscribe enrolls caller in the plan and arms the first charge at the
// end of the plan's trial.
func (e *Engine) Subscribe(ctx context.Context, caller string, planID PlanID) (SubscriptionID, error) {
	if caller == "" {
		return 0, ValidationError{Field: "caller", Message: "must not be empty", Err: ErrInvalidInput}
	}

	p, err := e.store.GetPlan(ctx, planID)
	if err != nil {
		return 0, err
	}
	if !p.Active {
		return 0, ErrPlanInactive
	}

	seq, err := e.store.NextSequence(ctx, id.SeqSubscription)
	if err != nil {
		return 0, err
	}

	now := e.Now()
	sub := &subscription.Subscription{
		Entity:        types.NewEntity(now),
		ID:            id.SubscriptionID(seq),
		Subscriber:    caller,
		PlanID:        p.ID,
		NextPaymentAt: p.FirstChargeAt(now),
		Active:        true,
		Version:       subscription.InitialVersion,
	}
	if err := e.store.CreateSubscription(ctx, sub); err != nil {
		return 0, err
	}

	if _, err := e.scheduler.ScheduleNext(ctx, sub.ID, sub.Version, sub.NextPaymentAt); err != nil {
		return sub.ID, fmt.Errorf("%w: %w", ErrScheduleFailed, err)
	}

	e.logger.Info("subscription created",
		"subscription_id", sub.ID.String(),
		"plan_id", p.ID.String(),
		"subscriber", caller,
		"next_payment_at", sub.NextPaymentAt,
	)
	e.plugins.EmitSubscriptionCreated(ctx, sub)
	return sub.ID, nil
}

// Unsubscribe cancels the subscription. The version bump makes any
// in-flight charge for it a no-op.
func (e *Engine) Unsubscribe(ctx context.Context, caller string, subID SubscriptionID) error {
	unlock := e.locks.Lock(subID)
	defer unlock()

	sub, err := e.store.GetSubscription(ctx, subID)
	if err != nil {
		return err
	}
	if !sub.OwnedBy(caller) {
		return ErrUnauthorized
	}

	canceled, err := e.store.CancelSubscription(ctx, subID, e.Now())
	if err != nil {
		return err
	}
	e.scheduler.Cancel(ctx, subID)

	e.logger.Info("subscription canceled",
		"subscription_id", subID.String(),
		"version", canceled.Version,
	)
	e.plugins.EmitSubscriptionCanceled(ctx, canceled)
	return nil
}

// GetSubscription retrieves a subscription by ID.
func (e *Engine) GetSubscription(ctx context.Context, subID SubscriptionID) (*subscription.Subscription, error) {
	return e.store.GetSubscription(ctx, subID)
}

// GetSubscriptionsForUser returns every subscription the user ever created,
// ordered by ID.
func (e *Engine) GetSubscriptionsForUser(ctx context.Context, user string) ([]*subscription.Subscription, error) {
	return e.store.ListSubscriptions(ctx, subscription.ListOpts{Subscriber: user})
}

// Rearm arms a charge for every active subscription on an active plan that
// has none pending. It returns the number of charges armed.
func (e *Engine) Rearm(ctx context.Context) (int, error) {
	plans, err := e.store.ListPlans(ctx, plan.ListOpts{ActiveOnly: true})
	if err != nil {
		return 0, err
	}
	total := 0
	for _, p := range plans {
		n, err := e.rearmPlan(ctx, p)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (e *Engine) rearmPlan(ctx context.Context, p *plan.Plan) (int, error) {
	subs, err := e.store.ListSubscriptions(ctx, subscription.ListOpts{PlanID: p.ID, ActiveOnly: true})
	if err != nil {
		return 0, err
	}
	armed := 0
	for _, sub := range subs {
		ok, err := e.rearmOne(ctx, sub.ID)
		if err != nil {
			return armed, err
		}
		if ok {
			armed++
		}
	}
	return armed, nil
}

// rearmOne arms a charge for subID unless it is inactive or already has one
// pending. It holds the subscription lock so a charge in flight settles and
// schedules its own follow-up first.
func (e *Engine) rearmOne(ctx context.Context, subID SubscriptionID) (bool, error) {
	unlock := e.locks.Lock(subID)
	defer unlock()

	sub, err := e.store.GetSubscription(ctx, subID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !sub.Active {
		return false, nil
	}
	if _, pending := e.scheduler.Pending(sub.ID); pending {
		return false, nil
	}

	at := sub.NextPaymentAt
	if now := e.Now(); at.Before(now) {
		at = now
	}
	if _, err := e.scheduler.ScheduleNext(ctx, sub.ID, sub.Version, at); err != nil {
		return false, fmt.Errorf("%w: %w", ErrScheduleFailed, err)
	}
	return true, nil
}
