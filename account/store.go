package account

import "context"

// Store owns balance state. Every debit is a single atomic
// check-and-decrement per account: it either removes the full amount or
// fails with ErrInsufficientFunds and leaves the balance untouched.
type Store interface {
	GetAccount(ctx context.Context, key string) (*Account, error)
	CreditEscrow(ctx context.Context, key string, amount int64) (*Account, error)
	DebitEscrow(ctx context.Context, key string, amount int64) (*Account, error)
	SetAllowance(ctx context.Context, key string, amount int64) (*Account, error)
	CreditAllowance(ctx context.Context, key string, amount int64) (*Account, error)
	DebitAllowance(ctx context.Context, key string, amount int64) (*Account, error)
}
