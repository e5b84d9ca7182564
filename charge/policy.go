package charge

import (
	"fmt"
	"strings"
	"time"
)

// FailurePolicy decides what happens after a charge could not be funded.
type FailurePolicy interface {
	Name() string
	// RetryAfter is called with the number of consecutive failures in the
	// current billing cycle, including the one just observed. It returns
	// the delay before the next attempt, or false to deactivate.
	RetryAfter(failures int) (time.Duration, bool)
}

// DeactivateOnFailure deactivates the subscription on the first failure.
type DeactivateOnFailure struct{}

// Name implements FailurePolicy.
func (DeactivateOnFailure) Name() string { return "deactivate" }

// RetryAfter implements FailurePolicy.
func (DeactivateOnFailure) RetryAfter(int) (time.Duration, bool) { return 0, false }

// RetryWithBackoff reattempts after each delay in Schedule, then deactivates.
type RetryWithBackoff struct {
	Schedule []time.Duration
}

// DefaultRetrySchedule is 6 hours, then 24 hours.
func DefaultRetrySchedule() []time.Duration {
	return []time.Duration{6 * time.Hour, 24 * time.Hour}
}

// NewRetryWithBackoff returns a RetryWithBackoff policy. With no delays it
// uses DefaultRetrySchedule.
func NewRetryWithBackoff(delays ...time.Duration) RetryWithBackoff {
	if len(delays) == 0 {
		delays = DefaultRetrySchedule()
	}
	return RetryWithBackoff{Schedule: delays}
}

// Name implements FailurePolicy.
func (RetryWithBackoff) Name() string { return "retry" }

// RetryAfter implements FailurePolicy.
func (r RetryWithBackoff) RetryAfter(failures int) (time.Duration, bool) {
	if failures < 1 || failures > len(r.Schedule) {
		return 0, false
	}
	return r.Schedule[failures-1], true
}

// ParseFailurePolicy maps a configuration name to a policy. "retry" uses
// the given schedule, or the default one when it is empty.
func ParseFailurePolicy(name string, schedule []time.Duration) (FailurePolicy, error) {
	switch strings.ToLower(name) {
	case "", "retry":
		return NewRetryWithBackoff(schedule...), nil
	case "deactivate":
		return DeactivateOnFailure{}, nil
	default:
		return nil, fmt.Errorf("charge: unknown failure policy %q", name)
	}
}
