package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/subpay/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"PaymentID", id.NewPaymentID, "pay_"},
		{"CallID", id.NewCallID, "call_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParsePaymentID(t *testing.T) {
	original := id.NewPaymentID()
	parsed, err := id.ParsePaymentID(original.String())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed.String() != original.String() {
		t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
	}

	if _, err := id.ParsePaymentID(id.NewCallID().String()); err == nil {
		t.Error("expected error for call_ prefix")
	}
	if _, err := id.Parse(""); err == nil {
		t.Error("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}

	val, err := i.Value()
	if err != nil {
		t.Fatalf("Value(nil) failed: %v", err)
	}
	if val != nil {
		t.Errorf("expected nil value for nil ID, got %v", val)
	}

	var scanned id.ID
	if err := scanned.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) failed: %v", err)
	}
	if !scanned.IsNil() {
		t.Error("expected nil after scan of nil")
	}
}

func TestValueScan(t *testing.T) {
	original := id.NewPaymentID()
	val, err := original.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}

	var scanned id.ID
	if err := scanned.Scan(val); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if scanned.String() != original.String() {
		t.Errorf("mismatch: %q != %q", scanned.String(), original.String())
	}
}

func TestSequentialIDs(t *testing.T) {
	if got := id.PlanID(7).String(); got != "plan_7" {
		t.Errorf("PlanID(7).String() = %q", got)
	}
	if got := id.SubscriptionID(12).String(); got != "sub_12" {
		t.Errorf("SubscriptionID(12).String() = %q", got)
	}
	if got := id.PlanID(0).String(); got != "" {
		t.Errorf("zero PlanID should render empty, got %q", got)
	}

	tests := []struct {
		in      string
		want    id.PlanID
		wantErr bool
	}{
		{"plan_3", 3, false},
		{"42", 42, false},
		{"plan_0", 0, true},
		{"plan_x", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := id.ParsePlanID(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePlanID(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParsePlanID(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}

	sub, err := id.ParseSubscriptionID("sub_9")
	if err != nil || sub != 9 {
		t.Errorf("ParseSubscriptionID(sub_9) = %d, %v", sub, err)
	}
}

func TestUniqueness(t *testing.T) {
	a := id.NewPaymentID()
	b := id.NewPaymentID()
	if a.String() == b.String() {
		t.Errorf("two consecutive NewPaymentID() calls returned the same ID: %q", a.String())
	}
}
