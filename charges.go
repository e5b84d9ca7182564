package subpay

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/subpay/account"
	"github.com/xraph/subpay/charge"
	"github.com/xraph/subpay/id"
	"github.com/xraph/subpay/payment"
	"github.com/xraph/subpay/plan"
	"github.com/xraph/subpay/subscription"
	"github.com/xraph/subpay/types"
)

// Failure reasons recorded on failed payments.
const (
	FailureInsufficientFunds = "insufficient_funds"
	FailureTransferRejected  = "transfer_rejected"
)

// ExecuteDueCharge runs one deferred charge for the subscription at the
// captured version. Missing, inactive or stale subscriptions and paused
// plans are skipped without touching funds. A funding shortfall is resolved
// by the failure policy and is not an error.
func (e *Engine) ExecuteDueCharge(ctx context.Context, subID SubscriptionID, version uint64) (*charge.Result, error) {
	unlock := e.locks.Lock(subID)
	defer unlock()

	res := &charge.Result{SubscriptionID: subID, Version: version}

	sub, err := e.store.GetSubscription(ctx, subID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return e.skip(ctx, res, charge.SkipNotFound), nil
	}
	if err != nil {
		return nil, err
	}
	switch {
	case !sub.Active:
		return e.skip(ctx, res, charge.SkipInactive), nil
	case sub.Version != version:
		return e.skip(ctx, res, charge.SkipStale), nil
	}

	p, err := e.store.GetPlan(ctx, sub.PlanID)
	if errors.Is(err, ErrPlanNotFound) {
		return e.skip(ctx, res, charge.SkipPlanInactive), nil
	}
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return e.skip(ctx, res, charge.SkipPlanInactive), nil
	}

	paid, err := e.settledCycle(ctx, sub)
	if err != nil {
		return nil, err
	}
	if paid != nil {
		res.Payment = paid
		e.logger.Warn("cycle already paid, advancing subscription",
			"subscription_id", sub.ID.String(),
			"payment_id", paid.ID.String(),
			"due_at", sub.NextPaymentAt,
		)
		return e.advance(ctx, res, sub, p, nil)
	}

	attempt := sub.FailedAttempts + 1
	source, reason, err := e.collect(ctx, sub, p)
	if err != nil {
		return nil, err
	}

	now := e.Now()
	pay := &payment.Payment{
		Entity:         types.NewEntity(now),
		ID:             id.NewPaymentID(),
		SubscriptionID: sub.ID,
		PlanID:         p.ID,
		Payer:          sub.Subscriber,
		Merchant:       p.Merchant,
		Token:          p.Token,
		Amount:         p.Amount,
		Source:         source,
		Attempt:        attempt,
		DueAt:          sub.NextPaymentAt,
		ExecutedAt:     now,
	}
	res.Payment = pay

	if source != "" {
		pay.Status = payment.StatusSucceeded
		return e.settleSuccess(ctx, res, sub, p)
	}

	pay.Status = payment.StatusFailed
	pay.FailureReason = reason
	return e.settleFailure(ctx, res, sub, attempt)
}

// ──────────────────────────────────────────────────
// Funding
// ──────────────────────────────────────────────────

// collect moves the plan amount from the first source that covers it in
// full. It returns the source used, or an empty source and the failure
// reason when none could.
func (e *Engine) collect(ctx context.Context, sub *subscription.Subscription, p *plan.Plan) (account.Source, string, error) {
	reason := FailureInsufficientFunds

	for _, src := range e.funding.Sources() {
		var (
			ok  bool
			err error
		)
		switch src {
		case account.SourceEscrow:
			ok, err = e.collectEscrow(ctx, sub.Subscriber, p)
		case account.SourceAllowance:
			ok, err = e.collectAllowance(ctx, sub.Subscriber, p, &reason)
		}
		if err != nil {
			return "", "", err
		}
		if ok {
			return src, "", nil
		}
	}
	return "", reason, nil
}

func (e *Engine) collectEscrow(ctx context.Context, payer string, p *plan.Plan) (bool, error) {
	if _, err := e.store.DebitEscrow(ctx, payer, p.Amount); err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			return false, nil
		}
		return false, fmt.Errorf("debit escrow: %w", err)
	}
	if _, err := e.store.CreditEscrow(ctx, p.Merchant, p.Amount); err != nil {
		if _, rerr := e.store.CreditEscrow(ctx, payer, p.Amount); rerr != nil {
			e.logger.Error("escrow refund failed",
				"account", payer,
				"amount", p.Amount,
				"error", rerr,
			)
		}
		return false, fmt.Errorf("credit merchant: %w", err)
	}
	return true, nil
}

func (e *Engine) collectAllowance(ctx context.Context, payer string, p *plan.Plan, reason *string) (bool, error) {
	if _, err := e.store.DebitAllowance(ctx, payer, p.Amount); err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			return false, nil
		}
		return false, fmt.Errorf("debit allowance: %w", err)
	}

	if e.transferer == nil {
		if _, err := e.store.CreditEscrow(ctx, p.Merchant, p.Amount); err != nil {
			e.restoreAllowance(ctx, payer, p.Amount)
			return false, fmt.Errorf("credit merchant: %w", err)
		}
		return true, nil
	}

	ok, err := e.transferer.Transfer(ctx, payer, p.Merchant, p.Token, p.Amount)
	if err != nil || !ok {
		e.restoreAllowance(ctx, payer, p.Amount)
		e.logger.Warn("allowance transfer rejected",
			"payer", payer,
			"merchant", p.Merchant,
			"amount", p.Amount,
			"error", err,
		)
		*reason = FailureTransferRejected
		return false, nil
	}
	return true, nil
}

func (e *Engine) restoreAllowance(ctx context.Context, key string, amount int64) {
	if _, err := e.store.CreditAllowance(ctx, key, amount); err != nil {
		e.logger.Error("allowance restore failed",
			"account", key,
			"amount", amount,
			"error", err,
		)
	}
}

// reverse returns collected funds to the payer. It reports false when the
// funds cannot be taken back, in which case the charge stands.
func (e *Engine) reverse(ctx context.Context, payer string, p *plan.Plan, src account.Source) bool {
	if src == account.SourceAllowance && e.transferer != nil {
		return false
	}
	if _, err := e.store.DebitEscrow(ctx, p.Merchant, p.Amount); err != nil {
		e.logger.Error("charge reversal failed",
			"merchant", p.Merchant,
			"amount", p.Amount,
			"error", err,
		)
		return false
	}

	var err error
	if src == account.SourceAllowance {
		_, err = e.store.CreditAllowance(ctx, payer, p.Amount)
	} else {
		_, err = e.store.CreditEscrow(ctx, payer, p.Amount)
	}
	if err == nil {
		return true
	}
	e.logger.Error("charge refund failed",
		"account", payer,
		"amount", p.Amount,
		"error", err,
	)
	if _, rerr := e.store.CreditEscrow(ctx, p.Merchant, p.Amount); rerr != nil {
		e.logger.Error("merchant restore failed",
			"merchant", p.Merchant,
			"amount", p.Amount,
			"error", rerr,
		)
	}
	return false
}

// settledCycle returns the succeeded payment for the subscription's current
// due date, if one was recorded without the subscription being advanced.
func (e *Engine) settledCycle(ctx context.Context, sub *subscription.Subscription) (*payment.Payment, error) {
	paid, err := e.store.ListPayments(ctx, payment.ListOpts{
		SubscriptionID: sub.ID,
		Status:         payment.StatusSucceeded,
	})
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	for _, pay := range paid {
		if pay.DueAt.Equal(sub.NextPaymentAt) {
			return pay, nil
		}
	}
	return nil, nil
}

// ──────────────────────────────────────────────────
// Settlement
// ──────────────────────────────────────────────────

// settleSuccess records the payment before advancing the subscription. A
// payment that cannot be recorded is reversed and retried; one that cannot
// be reversed still advances the subscription so the cycle is not
// collected twice.
func (e *Engine) settleSuccess(ctx context.Context, res *charge.Result, sub *subscription.Subscription, p *plan.Plan) (*charge.Result, error) {
	if err := e.store.CreatePayment(ctx, res.Payment); err != nil {
		err = fmt.Errorf("record payment: %w", err)
		if e.reverse(ctx, sub.Subscriber, p, res.Payment.Source) {
			return nil, e.retryAfterStoreError(ctx, sub, err)
		}
		e.logger.Error("payment settled but not recorded",
			"subscription_id", sub.ID.String(),
			"payment_id", res.Payment.ID.String(),
			"source", string(res.Payment.Source),
			"amount", res.Payment.Amount,
			"error", err,
		)
		return e.advance(ctx, res, sub, p, err)
	}
	return e.advance(ctx, res, sub, p, nil)
}

// advance moves the subscription to its next cycle after a paid charge.
// recordErr is the error from recording the payment, if any.
func (e *Engine) advance(ctx context.Context, res *charge.Result, sub *subscription.Subscription, p *plan.Plan, recordErr error) (*charge.Result, error) {
	now := e.Now()
	sub.NextPaymentAt = sub.NextPaymentAt.Add(p.Period)
	sub.FailedAttempts = 0
	sub.Touch(now)
	if err := e.store.UpdateSubscription(ctx, sub); err != nil {
		err = fmt.Errorf("advance subscription: %w", err)
		if recordErr != nil {
			// Nothing marks the cycle as paid, so another attempt would
			// collect it again.
			e.logger.Error("paid charge not persisted, billing halted",
				"subscription_id", sub.ID.String(),
				"payment_id", res.Payment.ID.String(),
				"error", err,
			)
			return nil, errors.Join(recordErr, err)
		}
		// The recorded payment lets the retry advance without collecting.
		return nil, e.retryAfterStoreError(ctx, sub, err)
	}

	res.Outcome = charge.OutcomeSucceeded
	res.NextAttemptAt = sub.NextPaymentAt

	e.logger.Info("payment succeeded",
		"subscription_id", sub.ID.String(),
		"payment_id", res.Payment.ID.String(),
		"source", string(res.Payment.Source),
		"amount", res.Payment.Amount,
		"next_payment_at", sub.NextPaymentAt,
	)
	e.plugins.EmitPaymentSucceeded(ctx, res.Payment)

	if _, err := e.scheduler.ScheduleNext(ctx, sub.ID, sub.Version, sub.NextPaymentAt); err != nil {
		e.logger.Error("next charge not scheduled",
			"subscription_id", sub.ID.String(),
			"error", err,
		)
		return res, errors.Join(recordErr, fmt.Errorf("%w: %w", ErrScheduleFailed, err))
	}
	return res, recordErr
}

func (e *Engine) settleFailure(ctx context.Context, res *charge.Result, sub *subscription.Subscription, attempt int) (*charge.Result, error) {
	now := e.Now()

	// No funds moved, so a lost failure record does not stop the policy.
	var recordErr error
	if err := e.store.CreatePayment(ctx, res.Payment); err != nil {
		recordErr = fmt.Errorf("record payment: %w", err)
		e.logger.Error("failed payment not recorded",
			"subscription_id", sub.ID.String(),
			"payment_id", res.Payment.ID.String(),
			"error", err,
		)
	}

	e.logger.Warn("payment failed",
		"subscription_id", sub.ID.String(),
		"payment_id", res.Payment.ID.String(),
		"attempt", attempt,
		"reason", res.Payment.FailureReason,
	)
	e.plugins.EmitPaymentFailed(ctx, res.Payment)

	if delay, ok := e.policy.RetryAfter(attempt); ok {
		retryAt := now.Add(delay)
		sub.FailedAttempts = attempt
		sub.Touch(now)

		// A retry is armed either way. If the attempt count is lost the
		// retry only repeats this attempt.
		var storeErr error
		if err := e.store.UpdateSubscription(ctx, sub); err != nil {
			storeErr = fmt.Errorf("record attempt: %w", err)
		}

		res.Outcome = charge.OutcomeRetryScheduled
		res.NextAttemptAt = retryAt
		e.plugins.EmitRetryScheduled(ctx, sub, attempt, retryAt)

		if _, err := e.scheduler.ScheduleNext(ctx, sub.ID, sub.Version, retryAt); err != nil {
			e.logger.Error("retry not scheduled",
				"subscription_id", sub.ID.String(),
				"error", err,
			)
			return res, errors.Join(recordErr, storeErr, fmt.Errorf("%w: %w", ErrScheduleFailed, err))
		}
		return res, errors.Join(recordErr, storeErr)
	}

	reason := subscription.ReasonPaymentFailed
	if attempt > 1 {
		reason = subscription.ReasonRetryExhausted
	}
	sub.FailedAttempts = attempt
	sub.Deactivate(now, reason)
	sub.Touch(now)
	if err := e.store.UpdateSubscription(ctx, sub); err != nil {
		// The stored subscription is still active; evaluate it again later.
		return nil, e.retryAfterStoreError(ctx, sub, errors.Join(recordErr, fmt.Errorf("deactivate subscription: %w", err)))
	}

	res.Outcome = charge.OutcomeDeactivated
	e.logger.Info("subscription deactivated",
		"subscription_id", sub.ID.String(),
		"reason", reason,
	)
	e.plugins.EmitSubscriptionDeactivated(ctx, sub, reason)
	return res, recordErr
}

// retryAfterStoreError arms another attempt for a charge whose settlement
// could not be persisted and returns cause.
func (e *Engine) retryAfterStoreError(ctx context.Context, sub *subscription.Subscription, cause error) error {
	at := e.Now().Add(e.storeRetry)
	if _, err := e.scheduler.ScheduleNext(ctx, sub.ID, sub.Version, at); err != nil {
		e.logger.Error("charge retry not scheduled after store error",
			"subscription_id", sub.ID.String(),
			"error", err,
		)
		return errors.Join(cause, fmt.Errorf("%w: %w", ErrScheduleFailed, err))
	}
	e.logger.Warn("charge settlement not persisted, retrying",
		"subscription_id", sub.ID.String(),
		"retry_at", at,
		"error", cause,
	)
	return cause
}

func (e *Engine) skip(ctx context.Context, res *charge.Result, reason charge.SkipReason) *charge.Result {
	res.Outcome = charge.OutcomeSkipped
	res.SkipReason = reason
	e.logger.Debug("charge skipped",
		"subscription_id", res.SubscriptionID.String(),
		"version", res.Version,
		"reason", string(reason),
	)
	e.plugins.EmitChargeSkipped(ctx, res)
	return res
}
