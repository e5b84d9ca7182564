// Package plan defines merchant billing plans.
package plan

import (
	"time"

	"github.com/xraph/subpay/id"
	"github.com/xraph/subpay/types"
)

// DefaultPeriod is the fixed billing interval applied when none is given:
// one 30-day month.
const DefaultPeriod = 30 * 24 * time.Hour

// Plan is a merchant-defined recurring charge template. Identity and terms
// are immutable; only Active changes, through pause and resume.
type Plan struct {
	types.Entity
	ID       id.PlanID     `json:"id"`
	Merchant string        `json:"merchant"`
	Token    string        `json:"token"`
	Amount   int64         `json:"amount"`
	Period   time.Duration `json:"period"`
	Trial    time.Duration `json:"trial"`
	Active   bool          `json:"active"`
}

// FirstChargeAt returns when a subscription started at t is first billed.
func (p *Plan) FirstChargeAt(t time.Time) time.Time {
	if p.Trial <= 0 {
		return t
	}
	return t.Add(p.Trial)
}

// OwnedBy reports whether account is the plan's merchant.
func (p *Plan) OwnedBy(account string) bool {
	return p.Merchant == account
}
