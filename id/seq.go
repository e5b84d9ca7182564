package id

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
)

// Sequence names used by stores to allocate sequential identifiers.
const (
	SeqPlan         = "plan"
	SeqSubscription = "sub"
)

// PlanID is the sequential identifier of a plan. Zero is never assigned.
type PlanID uint64

// SubscriptionID is the sequential identifier of a subscription. Zero is
// never assigned.
type SubscriptionID uint64

// String renders the plan ID as "plan_<n>".
func (p PlanID) String() string { return formatSeq(SeqPlan, uint64(p)) }

// IsZero reports whether the ID was never assigned.
func (p PlanID) IsZero() bool { return p == 0 }

// String renders the subscription ID as "sub_<n>".
func (s SubscriptionID) String() string { return formatSeq(SeqSubscription, uint64(s)) }

// IsZero reports whether the ID was never assigned.
func (s SubscriptionID) IsZero() bool { return s == 0 }

// ParsePlanID accepts "plan_<n>" or a bare decimal.
func ParsePlanID(s string) (PlanID, error) {
	n, err := parseSeq(SeqPlan, s)
	return PlanID(n), err
}

// ParseSubscriptionID accepts "sub_<n>" or a bare decimal.
func ParseSubscriptionID(s string) (SubscriptionID, error) {
	n, err := parseSeq(SeqSubscription, s)
	return SubscriptionID(n), err
}

// Value implements driver.Valuer.
func (p PlanID) Value() (driver.Value, error) { return int64(p), nil }

// Value implements driver.Valuer.
func (s SubscriptionID) Value() (driver.Value, error) { return int64(s), nil }

func formatSeq(prefix string, n uint64) string {
	if n == 0 {
		return ""
	}
	return prefix + "_" + strconv.FormatUint(n, 10)
}

func parseSeq(prefix, s string) (uint64, error) {
	raw := strings.TrimPrefix(s, prefix+"_")
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("id: parse %q: %w", s, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("id: parse %q: zero is not a valid %s id", s, prefix)
	}
	return n, nil
}
