package subpay

import "github.com/xraph/subpay/id"

// PlanID identifies a plan. Plan IDs are issued sequentially from 1.
type PlanID = id.PlanID

// SubscriptionID identifies a subscription. Subscription IDs are issued
// sequentially from 1.
type SubscriptionID = id.SubscriptionID

// PaymentID is the TypeID of a recorded charge attempt.
type PaymentID = id.PaymentID
