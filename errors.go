package subpay

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("subpay: not found")
	ErrAlreadyExists = errors.New("subpay: already exists")
	ErrInvalidInput  = errors.New("subpay: invalid input")
	ErrUnauthorized  = errors.New("subpay: unauthorized")

	// Plan errors
	ErrPlanNotFound  = errors.New("subpay: plan not found")
	ErrPlanInactive  = errors.New("subpay: plan is inactive")
	ErrInvalidPeriod = errors.New("subpay: invalid billing period")

	// Subscription errors
	ErrSubscriptionNotFound = errors.New("subpay: subscription not found")
	ErrSubscriptionInactive = errors.New("subpay: subscription is inactive")

	// Funds errors
	ErrInvalidAmount     = errors.New("subpay: invalid amount")
	ErrInsufficientFunds = errors.New("subpay: insufficient funds")

	// Payment errors
	ErrPaymentNotFound = errors.New("subpay: payment not found")

	// Scheduling errors
	ErrScheduleFailed = errors.New("subpay: schedule failed")

	// Store errors
	ErrStoreNotReady     = errors.New("subpay: store not ready")
	ErrStoreClosed       = errors.New("subpay: store is closed")
	ErrTransactionFailed = errors.New("subpay: transaction failed")
	ErrMigrationFailed   = errors.New("subpay: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
	// Err is the sentinel the failure maps to, if any.
	Err error
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("subpay: validation failed for %s: %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error { return e.Err }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "subpay: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("subpay: %d errors occurred", len(e.Errors))
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// ErrOrNil returns nil when no errors were added.
func (e MultiError) ErrOrNil() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound) ||
		errors.Is(err, ErrPaymentNotFound)
}

// IsValidation returns true if the error rejects caller input.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidPeriod)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrTransactionFailed) ||
		errors.Is(err, ErrScheduleFailed)
}
