// Package account defines the per-account balances the engine draws
// charges from.
package account

import "github.com/xraph/subpay/types"

// Account holds the two independent funding sources of one account. A
// missing account reads as the zero value.
type Account struct {
	types.Entity
	Account   string `json:"account"`
	Escrow    int64  `json:"escrow"`
	Allowance int64  `json:"allowance"`
}

// Zero returns the empty account for key.
func Zero(key string) *Account {
	return &Account{Account: key}
}

// Covers reports whether the source can pay amount in full.
func (a *Account) Covers(source Source, amount int64) bool {
	switch source {
	case SourceEscrow:
		return a.Escrow >= amount
	case SourceAllowance:
		return a.Allowance >= amount
	default:
		return false
	}
}

// Source names a funding source.
type Source string

const (
	SourceEscrow    Source = "escrow"
	SourceAllowance Source = "allowance"
)
