package subpay

import (
	"github.com/xraph/subpay/account"
	"github.com/xraph/subpay/charge"
	"github.com/xraph/subpay/payment"
	"github.com/xraph/subpay/plan"
	"github.com/xraph/subpay/subscription"
	"github.com/xraph/subpay/types"
)

// Re-export common types for convenience so users don't have to import
// every subpackage.

type (
	Plan         = plan.Plan
	Subscription = subscription.Subscription
	Account      = account.Account
	Payment      = payment.Payment
	Entity       = types.Entity

	FundingModel  = charge.FundingModel
	FailurePolicy = charge.FailurePolicy
	Transferer    = charge.Transferer
	ChargeResult  = charge.Result
)

// Re-export funding models.
const (
	EscrowFirst    = charge.EscrowFirst
	AllowanceFirst = charge.AllowanceFirst
	EscrowOnly     = charge.EscrowOnly
)

// Re-export policy constructors.
var (
	NewRetryWithBackoff  = charge.NewRetryWithBackoff
	DefaultRetrySchedule = charge.DefaultRetrySchedule
	NewEntity            = types.NewEntity
)

// DeactivateOnFailure returns the policy that deactivates on the first
// failed charge.
func DeactivateOnFailure() FailurePolicy { return charge.DeactivateOnFailure{} }
