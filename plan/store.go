package plan

import (
	"context"

	"github.com/xraph/subpay/id"
)

// Store persists plans. Get fails with ErrPlanNotFound for unknown IDs.
type Store interface {
	CreatePlan(ctx context.Context, p *Plan) error
	GetPlan(ctx context.Context, planID id.PlanID) (*Plan, error)
	ListPlans(ctx context.Context, opts ListOpts) ([]*Plan, error)
	SetPlanActive(ctx context.Context, planID id.PlanID, active bool) error
}

// ListOpts filters plans. Results are ordered by ID ascending.
type ListOpts struct {
	Merchant   string
	ActiveOnly bool
	Limit      int
	Offset     int
}
