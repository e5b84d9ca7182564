package audithook

// Action constants for audit events.
const (
	// Plan actions
	ActionPlanCreated = "plan.created"
	ActionPlanPaused  = "plan.paused"
	ActionPlanResumed = "plan.resumed"

	// Subscription actions
	ActionSubscriptionCreated     = "subscription.created"
	ActionSubscriptionCanceled    = "subscription.canceled"
	ActionSubscriptionDeactivated = "subscription.deactivated"

	// Payment actions
	ActionPaymentSucceeded = "payment.succeeded"
	ActionPaymentFailed    = "payment.failed"
	ActionRetryScheduled   = "payment.retry_scheduled"

	// Funds actions
	ActionFundsDeposited    = "funds.deposited"
	ActionFundsWithdrawn    = "funds.withdrawn"
	ActionAllowanceApproved = "allowance.approved"
)

// Resource constants for audit events.
const (
	ResourcePlan         = "plan"
	ResourceSubscription = "subscription"
	ResourcePayment      = "payment"
	ResourceAccount      = "account"
)

// Category constants for audit events.
const (
	CategoryBilling      = "billing"
	CategorySubscription = "subscription"
	CategoryPayment      = "payment"
	CategoryFunds        = "funds"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
