// Package subpay provides a recurring-payment engine for Go applications.
//
// Merchants publish plans, subscribers enroll in them, and the engine
// collects each recurring charge from the subscriber's prepaid escrow
// balance or pull allowance through deferred callbacks. It provides:
//
//   - Per-account escrow balances and pull allowances with atomic debits
//   - Plans with a fixed billing period, optional trial, and pause/resume
//   - Subscriptions with a version counter that invalidates in-flight charges
//   - A scheduler holding at most one pending charge per subscription
//   - Configurable funding order and retry-with-backoff failure handling
//   - Pluggable stores (memory, PostgreSQL, SQLite, MongoDB) and deferrers
//     (virtual time, in-process timers, Redis)
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/subpay"
//	    "github.com/xraph/subpay/scheduler/timer"
//	    "github.com/xraph/subpay/store/memory"
//	)
//
//	eng, err := subpay.New(memory.New(), subpay.WithDeferrer(timer.New()))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := eng.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Stop(ctx)
//
// # Core Concepts
//
// A merchant creates a plan with a 7-day trial. The period defaults to
// 30 days:
//
//	planID, err := eng.CreatePlan(ctx, "shop", "USDC", 1000, 7*24*time.Hour)
//
// A subscriber funds their account and subscribes. The first charge is armed
// at the end of the trial:
//
//	_, _ = eng.Deposit(ctx, "alice", 1000)
//	subID, err := eng.Subscribe(ctx, "alice", planID)
//
// When the deferred charge fires the engine debits one source in full, pays
// the merchant, and arms the next charge one period later. If no source
// covers the amount the failure policy either schedules a retry or
// deactivates the subscription.
//
// Unsubscribing bumps the subscription version. Any charge already queued
// for the old version becomes a no-op when it fires.
//
// # Time
//
// The engine takes its notion of "now" from an injected clock (WithClock).
// Paired with the manual deferrer this runs whole billing histories in
// virtual time:
//
//	d := manual.New(start)
//	eng, _ := subpay.New(memory.New(), subpay.WithDeferrer(d), subpay.WithClock(d.Now))
//	d.Advance(ctx, 90*24*time.Hour)
package subpay
