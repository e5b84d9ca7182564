package subpay

import (
	"context"

	"github.com/xraph/subpay/account"
	"github.com/xraph/subpay/payment"
)

// Deposit credits amount to the account's escrow balance.
func (e *Engine) Deposit(ctx context.Context, acct string, amount int64) (*account.Account, error) {
	if err := validAccount(acct); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	a, err := e.store.CreditEscrow(ctx, acct, amount)
	if err != nil {
		return nil, err
	}

	e.logger.Info("funds deposited", "account", acct, "amount", amount, "escrow", a.Escrow)
	e.plugins.EmitFundsDeposited(ctx, acct, amount)
	return a, nil
}

// Withdraw removes amount from the account's escrow balance. It fails with
// ErrInsufficientFunds and leaves the balance untouched when the escrow
// cannot cover amount.
func (e *Engine) Withdraw(ctx context.Context, acct string, amount int64) (*account.Account, error) {
	if err := validAccount(acct); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	a, err := e.store.DebitEscrow(ctx, acct, amount)
	if err != nil {
		return nil, err
	}

	e.logger.Info("funds withdrawn", "account", acct, "amount", amount, "escrow", a.Escrow)
	e.plugins.EmitFundsWithdrawn(ctx, acct, amount)
	return a, nil
}

// ApproveAllowance sets the amount the engine may pull from the account.
// It replaces any previous approval; zero revokes it.
func (e *Engine) ApproveAllowance(ctx context.Context, acct string, amount int64) (*account.Account, error) {
	if err := validAccount(acct); err != nil {
		return nil, err
	}
	if amount < 0 {
		return nil, ErrInvalidAmount
	}

	a, err := e.store.SetAllowance(ctx, acct, amount)
	if err != nil {
		return nil, err
	}

	e.logger.Info("allowance approved", "account", acct, "amount", amount)
	e.plugins.EmitAllowanceApproved(ctx, acct, amount)
	return a, nil
}

// GetAccount returns the account's balances. Unknown accounts read as zero.
func (e *Engine) GetAccount(ctx context.Context, acct string) (*account.Account, error) {
	return e.store.GetAccount(ctx, acct)
}

// ListPayments returns every charge attempt recorded for the subscription,
// oldest first.
func (e *Engine) ListPayments(ctx context.Context, subID SubscriptionID) ([]*payment.Payment, error) {
	return e.store.ListPayments(ctx, payment.ListOpts{SubscriptionID: subID})
}

func validAccount(acct string) error {
	if acct == "" {
		return ValidationError{Field: "account", Message: "must not be empty", Err: ErrInvalidInput}
	}
	return nil
}
