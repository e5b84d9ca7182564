// Package charge holds the strategies the charge executor is configured
// with: which funding sources to try, what to do after a failed charge, and
// how allowance-funded amounts are settled.
package charge

import (
	"context"
	"fmt"

	"github.com/xraph/subpay/account"
)

// FundingModel selects the order in which funding sources are tried. A
// charge is always paid in full from a single source; sources are never
// combined.
type FundingModel string

const (
	// EscrowFirst tries the escrow balance, then the pull allowance.
	EscrowFirst FundingModel = "escrow_first"
	// AllowanceFirst tries the pull allowance, then the escrow balance.
	AllowanceFirst FundingModel = "allowance_first"
	// EscrowOnly is the deposit-only model: any escrow shortfall fails.
	EscrowOnly FundingModel = "escrow_only"
)

// Sources returns the sources to try, in order.
func (m FundingModel) Sources() []account.Source {
	switch m {
	case AllowanceFirst:
		return []account.Source{account.SourceAllowance, account.SourceEscrow}
	case EscrowOnly:
		return []account.Source{account.SourceEscrow}
	default:
		return []account.Source{account.SourceEscrow, account.SourceAllowance}
	}
}

// ParseFundingModel maps a configuration string to a FundingModel. The
// empty string selects EscrowFirst.
func ParseFundingModel(s string) (FundingModel, error) {
	switch FundingModel(s) {
	case "", EscrowFirst:
		return EscrowFirst, nil
	case AllowanceFirst:
		return AllowanceFirst, nil
	case EscrowOnly:
		return EscrowOnly, nil
	default:
		return "", fmt.Errorf("charge: unknown funding model %q", s)
	}
}

// Transferer moves tokens between external accounts. It backs the pull
// model: an allowance-funded charge is drawn from the subscriber's token
// balance straight to the merchant. A false result without error means the
// token side refused the transfer.
type Transferer interface {
	Transfer(ctx context.Context, from, to, token string, amount int64) (bool, error)
}

// TransferFunc adapts a plain function to Transferer.
type TransferFunc func(ctx context.Context, from, to, token string, amount int64) (bool, error)

// Transfer implements Transferer.
func (f TransferFunc) Transfer(ctx context.Context, from, to, token string, amount int64) (bool, error) {
	return f(ctx, from, to, token, amount)
}
