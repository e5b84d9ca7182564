// Package store defines the unified persistence interface behind the
// engine.
package store

import (
	"context"

	"github.com/xraph/subpay/account"
	"github.com/xraph/subpay/payment"
	"github.com/xraph/subpay/plan"
	"github.com/xraph/subpay/subscription"
)

// Store is the unified storage interface for all subpay entities. Each
// domain store uses prefixed method names so the interfaces embed without
// conflict.
type Store interface {
	plan.Store
	subscription.Store
	account.Store
	payment.Store

	// NextSequence returns the next value of a named counter, starting at
	// 1. The engine uses id.SeqPlan and id.SeqSubscription.
	NextSequence(ctx context.Context, name string) (uint64, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
