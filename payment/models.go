// Package payment records every charge attempt the engine makes.
package payment

import (
	"time"

	"github.com/xraph/subpay/account"
	"github.com/xraph/subpay/id"
	"github.com/xraph/subpay/types"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Payment is an immutable record of one charge attempt.
type Payment struct {
	types.Entity
	ID             id.PaymentID      `json:"id"`
	SubscriptionID id.SubscriptionID `json:"subscription_id"`
	PlanID         id.PlanID         `json:"plan_id"`
	Payer          string            `json:"payer"`
	Merchant       string            `json:"merchant"`
	Token          string            `json:"token"`
	Amount         int64             `json:"amount"`
	Source         account.Source    `json:"source,omitempty"`
	Status         Status            `json:"status"`
	Attempt        int               `json:"attempt"`
	DueAt          time.Time         `json:"due_at"`
	ExecutedAt     time.Time         `json:"executed_at"`
	FailureReason  string            `json:"failure_reason,omitempty"`
}

// Succeeded reports whether the attempt moved funds.
func (p *Payment) Succeeded() bool { return p.Status == StatusSucceeded }
