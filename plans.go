package subpay

import (
	"context"
	"time"

	"github.com/xraph/subpay/id"
	"github.com/xraph/subpay/plan"
	"github.com/xraph/subpay/types"
)

// PlanOption customizes CreatePlan.
type PlanOption func(*planConfig)

type planConfig struct {
	period    time.Duration
	periodSet bool
}

// WithPeriod overrides the billing period of a new plan.
func WithPeriod(d time.Duration) PlanOption {
	return func(c *planConfig) {
		c.period = d
		c.periodSet = true
	}
}

// CreatePlan registers a merchant plan billed amount of token every period,
// first charged trial after subscribing. The plan starts active.
func (e *Engine) CreatePlan(ctx context.Context, merchant, token string, amount int64, trial time.Duration, opts ...PlanOption) (PlanID, error) {
	cfg := planConfig{period: e.defaultPeriod}
	for _, opt := range opts {
		opt(&cfg)
	}

	switch {
	case merchant == "":
		return 0, ValidationError{Field: "merchant", Message: "must not be empty", Err: ErrInvalidInput}
	case amount <= 0:
		return 0, ErrInvalidAmount
	case cfg.periodSet && cfg.period <= 0:
		return 0, ErrInvalidPeriod
	case trial < 0:
		return 0, ValidationError{Field: "trial", Message: "must not be negative", Err: ErrInvalidInput}
	}

	seq, err := e.store.NextSequence(ctx, id.SeqPlan)
	if err != nil {
		return 0, err
	}

	p := &plan.Plan{
		Entity:   types.NewEntity(e.Now()),
		ID:       id.PlanID(seq),
		Merchant: merchant,
		Token:    token,
		Amount:   amount,
		Period:   cfg.period,
		Trial:    trial,
		Active:   true,
	}
	if err := e.store.CreatePlan(ctx, p); err != nil {
		return 0, err
	}

	e.logger.Info("plan created",
		"plan_id", p.ID.String(),
		"merchant", merchant,
		"amount", amount,
		"period", p.Period,
	)
	e.plugins.EmitPlanCreated(ctx, p)
	return p.ID, nil
}

// GetPlan retrieves a plan by ID.
func (e *Engine) GetPlan(ctx context.Context, planID PlanID) (*plan.Plan, error) {
	return e.store.GetPlan(ctx, planID)
}

// ListPlans returns the merchant's plans ordered by ID.
func (e *Engine) ListPlans(ctx context.Context, merchant string) ([]*plan.Plan, error) {
	return e.store.ListPlans(ctx, plan.ListOpts{Merchant: merchant})
}

// PausePlan stops charges on the plan. Subscriptions stay active; charges
// that fall due while it is paused are skipped.
func (e *Engine) PausePlan(ctx context.Context, caller string, planID PlanID) error {
	p, err := e.ownedPlan(ctx, caller, planID)
	if err != nil {
		return err
	}
	if err := e.store.SetPlanActive(ctx, planID, false); err != nil {
		return err
	}
	p.Active = false

	e.logger.Info("plan paused", "plan_id", planID.String())
	e.plugins.EmitPlanPaused(ctx, p)
	return nil
}

// ResumePlan reactivates the plan and re-arms a charge for each of its
// active subscriptions that has none pending.
func (e *Engine) ResumePlan(ctx context.Context, caller string, planID PlanID) error {
	p, err := e.ownedPlan(ctx, caller, planID)
	if err != nil {
		return err
	}
	if err := e.store.SetPlanActive(ctx, planID, true); err != nil {
		return err
	}
	p.Active = true

	n, err := e.rearmPlan(ctx, p)
	if err != nil {
		return err
	}

	e.logger.Info("plan resumed", "plan_id", planID.String(), "rearmed", n)
	e.plugins.EmitPlanResumed(ctx, p)
	return nil
}

func (e *Engine) ownedPlan(ctx context.Context, caller string, planID PlanID) (*plan.Plan, error) {
	p, err := e.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !p.OwnedBy(caller) {
		return nil, ErrUnauthorized
	}
	return p, nil
}
