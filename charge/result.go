package charge

import (
	"time"

	"github.com/xraph/subpay/id"
	"github.com/xraph/subpay/payment"
)

// Outcome is what a deferred charge invocation ended up doing.
type Outcome string

const (
	OutcomeSucceeded      Outcome = "succeeded"
	OutcomeRetryScheduled Outcome = "retry_scheduled"
	OutcomeDeactivated    Outcome = "deactivated"
	OutcomeSkipped        Outcome = "skipped"
)

// SkipReason explains a no-op invocation.
type SkipReason string

const (
	SkipNotFound     SkipReason = "not_found"
	SkipInactive     SkipReason = "inactive"
	SkipStale        SkipReason = "stale"
	SkipPlanInactive SkipReason = "plan_inactive"
)

// Result describes one invocation of the charge executor.
type Result struct {
	SubscriptionID id.SubscriptionID `json:"subscription_id"`
	Version        uint64            `json:"version"`
	Outcome        Outcome           `json:"outcome"`
	SkipReason     SkipReason        `json:"skip_reason,omitempty"`
	Payment        *payment.Payment  `json:"payment,omitempty"`
	// NextAttemptAt is the next scheduled due or retry time. Zero when
	// nothing was scheduled.
	NextAttemptAt time.Time `json:"next_attempt_at,omitzero"`
}

// Failed reports whether a charge was attempted and could not be funded.
func (r *Result) Failed() bool {
	return r.Outcome == OutcomeRetryScheduled || r.Outcome == OutcomeDeactivated
}

// Skipped reports whether the invocation was a no-op.
func (r *Result) Skipped() bool { return r.Outcome == OutcomeSkipped }
