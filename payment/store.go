package payment

import (
	"context"

	"github.com/xraph/subpay/id"
)

// Store records charge attempts. Records are append-only.
type Store interface {
	CreatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, payID id.PaymentID) (*Payment, error)
	ListPayments(ctx context.Context, opts ListOpts) ([]*Payment, error)
}

// ListOpts filters payments. Results are ordered by execution time.
type ListOpts struct {
	SubscriptionID id.SubscriptionID
	Payer          string
	Status         Status
	Limit          int
	Offset         int
}
