// Package subscription defines a subscriber's enrollment in a plan.
package subscription

import (
	"time"

	"github.com/xraph/subpay/id"
	"github.com/xraph/subpay/types"
)

// InitialVersion is the version every subscription starts at.
const InitialVersion uint64 = 1

// Deactivation reasons recorded on the subscription.
const (
	ReasonCanceled       = "canceled"
	ReasonPaymentFailed  = "payment_failed"
	ReasonRetryExhausted = "retry_exhausted"
)

// Subscription is retained forever; cancellation only clears Active.
//
// Version is bumped exactly once per cancellation and never decremented.
// Deferred charges capture the version at scheduling time and abort when it
// no longer matches.
type Subscription struct {
	types.Entity
	ID                 id.SubscriptionID `json:"id"`
	Subscriber         string            `json:"subscriber"`
	PlanID             id.PlanID         `json:"plan_id"`
	NextPaymentAt      time.Time         `json:"next_payment_at"`
	Active             bool              `json:"active"`
	Version            uint64            `json:"version"`
	FailedAttempts     int               `json:"failed_attempts"`
	CanceledAt         *time.Time        `json:"canceled_at,omitempty"`
	DeactivatedAt      *time.Time        `json:"deactivated_at,omitempty"`
	DeactivationReason string            `json:"deactivation_reason,omitempty"`
}

// OwnedBy reports whether account is the subscriber.
func (s *Subscription) OwnedBy(account string) bool {
	return s.Subscriber == account
}

// Deactivate clears Active without touching the version. It is used for
// autonomous outcomes such as a failed charge, which are not user-initiated
// cancellations.
func (s *Subscription) Deactivate(at time.Time, reason string) {
	s.Active = false
	t := at.UTC()
	s.DeactivatedAt = &t
	s.DeactivationReason = reason
}
