package charge_test

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/subpay/account"
	"github.com/xraph/subpay/charge"
)

func TestFundingModelSources(t *testing.T) {
	tests := []struct {
		model charge.FundingModel
		want  []account.Source
	}{
		{charge.EscrowFirst, []account.Source{account.SourceEscrow, account.SourceAllowance}},
		{charge.AllowanceFirst, []account.Source{account.SourceAllowance, account.SourceEscrow}},
		{charge.EscrowOnly, []account.Source{account.SourceEscrow}},
		{"", []account.Source{account.SourceEscrow, account.SourceAllowance}},
	}

	for _, tt := range tests {
		t.Run(string(tt.model), func(t *testing.T) {
			got := tt.model.Sources()
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d sources, got %d", len(tt.want), len(got))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("source %d: expected %q, got %q", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestParseFundingModel(t *testing.T) {
	m, err := charge.ParseFundingModel("")
	if err != nil || m != charge.EscrowFirst {
		t.Errorf("empty: got %q, %v", m, err)
	}
	m, err = charge.ParseFundingModel("escrow_only")
	if err != nil || m != charge.EscrowOnly {
		t.Errorf("escrow_only: got %q, %v", m, err)
	}
	if _, err := charge.ParseFundingModel("split"); err == nil {
		t.Error("expected error for unknown model")
	}
}

func TestRetryWithBackoff(t *testing.T) {
	p := charge.NewRetryWithBackoff()

	tests := []struct {
		failures int
		delay    time.Duration
		ok       bool
	}{
		{1, 6 * time.Hour, true},
		{2, 24 * time.Hour, true},
		{3, 0, false},
		{0, 0, false},
	}

	for _, tt := range tests {
		delay, ok := p.RetryAfter(tt.failures)
		if ok != tt.ok || delay != tt.delay {
			t.Errorf("failures=%d: expected (%v, %v), got (%v, %v)", tt.failures, tt.delay, tt.ok, delay, ok)
		}
	}
}

func TestDeactivateOnFailure(t *testing.T) {
	var p charge.FailurePolicy = charge.DeactivateOnFailure{}
	if _, ok := p.RetryAfter(1); ok {
		t.Error("deactivate policy should never retry")
	}
	if p.Name() != "deactivate" {
		t.Errorf("unexpected name %q", p.Name())
	}
}

func TestParseFailurePolicy(t *testing.T) {
	p, err := charge.ParseFailurePolicy("retry", []time.Duration{time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	if d, ok := p.RetryAfter(1); !ok || d != time.Hour {
		t.Errorf("expected custom schedule, got (%v, %v)", d, ok)
	}
	if _, ok := p.RetryAfter(2); ok {
		t.Error("single-step schedule should stop after one retry")
	}

	p, err = charge.ParseFailurePolicy("deactivate", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(charge.DeactivateOnFailure); !ok {
		t.Errorf("expected DeactivateOnFailure, got %T", p)
	}

	if _, err := charge.ParseFailurePolicy("forever", nil); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestTransferFunc(t *testing.T) {
	var calls int
	tr := charge.TransferFunc(func(_ context.Context, from, to, token string, amount int64) (bool, error) {
		calls++
		return from == "alice" && to == "shop" && amount == 10, nil
	})
	ok, err := tr.Transfer(context.Background(), "alice", "shop", "USDC", 10)
	if err != nil || !ok || calls != 1 {
		t.Errorf("unexpected transfer result ok=%v err=%v calls=%d", ok, err, calls)
	}
}

func TestResultFlags(t *testing.T) {
	tests := []struct {
		outcome charge.Outcome
		failed  bool
		skipped bool
	}{
		{charge.OutcomeSucceeded, false, false},
		{charge.OutcomeRetryScheduled, true, false},
		{charge.OutcomeDeactivated, true, false},
		{charge.OutcomeSkipped, false, true},
	}
	for _, tt := range tests {
		r := &charge.Result{Outcome: tt.outcome}
		if r.Failed() != tt.failed || r.Skipped() != tt.skipped {
			t.Errorf("%s: failed=%v skipped=%v", tt.outcome, r.Failed(), r.Skipped())
		}
	}
}
