package audithook_test

import (
	"context"
	"errors"
	"testing"
	"time"

	audithook "github.com/xraph/subpay/audit_hook"
	"github.com/xraph/subpay/payment"
	"github.com/xraph/subpay/plan"
	"github.com/xraph/subpay/subscription"
)

type sink struct{ events []*audithook.AuditEvent }

func (s *sink) Record(_ context.Context, evt *audithook.AuditEvent) error {
	s.events = append(s.events, evt)
	return nil
}

func TestRecordsEvents(t *testing.T) {
	ctx := context.Background()
	s := &sink{}
	ext := audithook.New(s)

	_ = ext.OnPlanCreated(ctx, &plan.Plan{ID: 3, Merchant: "shop", Amount: 100})
	_ = ext.OnSubscriptionDeactivated(ctx, &subscription.Subscription{ID: 7}, subscription.ReasonRetryExhausted)
	_ = ext.OnPaymentFailed(ctx, &payment.Payment{SubscriptionID: 7, FailureReason: "insufficient_funds", Attempt: 2})
	_ = ext.OnRetryScheduled(ctx, &subscription.Subscription{ID: 7}, 1, time.Unix(0, 0))

	tests := []struct {
		action, resourceID, outcome, reason string
	}{
		{audithook.ActionPlanCreated, "plan_3", audithook.OutcomeSuccess, ""},
		{audithook.ActionSubscriptionDeactivated, "sub_7", audithook.OutcomeFailure, subscription.ReasonRetryExhausted},
		{audithook.ActionPaymentFailed, "", audithook.OutcomeFailure, "insufficient_funds"},
		{audithook.ActionRetryScheduled, "sub_7", audithook.OutcomeSuccess, ""},
	}
	if len(s.events) != len(tests) {
		t.Fatalf("events: got %d, want %d", len(s.events), len(tests))
	}
	for i, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			evt := s.events[i]
			if evt.Action != tt.action {
				t.Errorf("Action: got %s, want %s", evt.Action, tt.action)
			}
			if tt.resourceID != "" && evt.ResourceID != tt.resourceID {
				t.Errorf("ResourceID: got %s, want %s", evt.ResourceID, tt.resourceID)
			}
			if evt.Outcome != tt.outcome {
				t.Errorf("Outcome: got %s, want %s", evt.Outcome, tt.outcome)
			}
			if evt.Reason != tt.reason {
				t.Errorf("Reason: got %q, want %q", evt.Reason, tt.reason)
			}
		})
	}
	if got := s.events[2].Metadata["attempt"]; got != 2 {
		t.Errorf("attempt metadata: got %v", got)
	}
}

func TestActionFilters(t *testing.T) {
	ctx := context.Background()

	s := &sink{}
	ext := audithook.New(s, audithook.WithEnabledActions(audithook.ActionFundsDeposited))
	_ = ext.OnFundsDeposited(ctx, "alice", 10)
	_ = ext.OnFundsWithdrawn(ctx, "alice", 5)
	if len(s.events) != 1 || s.events[0].Action != audithook.ActionFundsDeposited {
		t.Errorf("enabled filter: got %d events", len(s.events))
	}

	s = &sink{}
	ext = audithook.New(s, audithook.WithDisabledActions(audithook.ActionAllowanceApproved))
	_ = ext.OnAllowanceApproved(ctx, "alice", 5)
	_ = ext.OnFundsWithdrawn(ctx, "alice", 5)
	if len(s.events) != 1 || s.events[0].Action != audithook.ActionFundsWithdrawn {
		t.Errorf("disabled filter: got %d events", len(s.events))
	}
}

func TestRecorderErrorsAreSwallowed(t *testing.T) {
	ext := audithook.New(audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("backend down")
	}))
	if err := ext.OnFundsDeposited(context.Background(), "alice", 1); err != nil {
		t.Errorf("got %v, want nil", err)
	}
}
