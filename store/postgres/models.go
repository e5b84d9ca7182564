package postgres

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/subpay/account"
	"github.com/xraph/subpay/id"
	"github.com/xraph/subpay/payment"
	"github.com/xraph/subpay/plan"
	"github.com/xraph/subpay/subscription"
	"github.com/xraph/subpay/types"
)

// ==================== Plan models ====================

type planModel struct {
	grove.BaseModel `grove:"table:subpay_plans"`

	ID        int64     `grove:"id,pk"`
	Merchant  string    `grove:"merchant"`
	Token     string    `grove:"token"`
	Amount    int64     `grove:"amount"`
	PeriodNS  int64     `grove:"period_ns"`
	TrialNS   int64     `grove:"trial_ns"`
	Active    bool      `grove:"active"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func toPlanModel(p *plan.Plan) *planModel {
	return &planModel{
		ID:        int64(p.ID),
		Merchant:  p.Merchant,
		Token:     p.Token,
		Amount:    p.Amount,
		PeriodNS:  int64(p.Period),
		TrialNS:   int64(p.Trial),
		Active:    p.Active,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func fromPlanModel(m *planModel) *plan.Plan {
	return &plan.Plan{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:       id.PlanID(m.ID),
		Merchant: m.Merchant,
		Token:    m.Token,
		Amount:   m.Amount,
		Period:   time.Duration(m.PeriodNS),
		Trial:    time.Duration(m.TrialNS),
		Active:   m.Active,
	}
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:subpay_subscriptions"`

	ID                 int64      `grove:"id,pk"`
	Subscriber         string     `grove:"subscriber"`
	PlanID             int64      `grove:"plan_id"`
	NextPaymentAt      time.Time  `grove:"next_payment_at"`
	Active             bool       `grove:"active"`
	Version            int64      `grove:"version"`
	FailedAttempts     int        `grove:"failed_attempts"`
	CanceledAt         *time.Time `grove:"canceled_at"`
	DeactivatedAt      *time.Time `grove:"deactivated_at"`
	DeactivationReason string     `grove:"deactivation_reason"`
	CreatedAt          time.Time  `grove:"created_at"`
	UpdatedAt          time.Time  `grove:"updated_at"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:                 int64(s.ID),
		Subscriber:         s.Subscriber,
		PlanID:             int64(s.PlanID),
		NextPaymentAt:      s.NextPaymentAt,
		Active:             s.Active,
		Version:            int64(s.Version),
		FailedAttempts:     s.FailedAttempts,
		CanceledAt:         s.CanceledAt,
		DeactivatedAt:      s.DeactivatedAt,
		DeactivationReason: s.DeactivationReason,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) *subscription.Subscription {
	return &subscription.Subscription{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                 id.SubscriptionID(m.ID),
		Subscriber:         m.Subscriber,
		PlanID:             id.PlanID(m.PlanID),
		NextPaymentAt:      m.NextPaymentAt.UTC(),
		Active:             m.Active,
		Version:            uint64(m.Version),
		FailedAttempts:     m.FailedAttempts,
		CanceledAt:         m.CanceledAt,
		DeactivatedAt:      m.DeactivatedAt,
		DeactivationReason: m.DeactivationReason,
	}
}

// ==================== Account models ====================

type accountModel struct {
	grove.BaseModel `grove:"table:subpay_accounts"`

	Account   string    `grove:"account,pk"`
	Escrow    int64     `grove:"escrow"`
	Allowance int64     `grove:"allowance"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func fromAccountModel(m *accountModel) *account.Account {
	return &account.Account{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		Account:   m.Account,
		Escrow:    m.Escrow,
		Allowance: m.Allowance,
	}
}

// ==================== Payment models ====================

type paymentModel struct {
	grove.BaseModel `grove:"table:subpay_payments"`

	ID             string    `grove:"id,pk"`
	SubscriptionID int64     `grove:"subscription_id"`
	PlanID         int64     `grove:"plan_id"`
	Payer          string    `grove:"payer"`
	Merchant       string    `grove:"merchant"`
	Token          string    `grove:"token"`
	Amount         int64     `grove:"amount"`
	Source         string    `grove:"source"`
	Status         string    `grove:"status"`
	Attempt        int       `grove:"attempt"`
	DueAt          time.Time `grove:"due_at"`
	ExecutedAt     time.Time `grove:"executed_at"`
	FailureReason  string    `grove:"failure_reason"`
	CreatedAt      time.Time `grove:"created_at"`
	UpdatedAt      time.Time `grove:"updated_at"`
}

func toPaymentModel(p *payment.Payment) *paymentModel {
	return &paymentModel{
		ID:             p.ID.String(),
		SubscriptionID: int64(p.SubscriptionID),
		PlanID:         int64(p.PlanID),
		Payer:          p.Payer,
		Merchant:       p.Merchant,
		Token:          p.Token,
		Amount:         p.Amount,
		Source:         string(p.Source),
		Status:         string(p.Status),
		Attempt:        p.Attempt,
		DueAt:          p.DueAt,
		ExecutedAt:     p.ExecutedAt,
		FailureReason:  p.FailureReason,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func fromPaymentModel(m *paymentModel) (*payment.Payment, error) {
	payID, err := id.ParsePaymentID(m.ID)
	if err != nil {
		return nil, err
	}
	return &payment.Payment{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             payID,
		SubscriptionID: id.SubscriptionID(m.SubscriptionID),
		PlanID:         id.PlanID(m.PlanID),
		Payer:          m.Payer,
		Merchant:       m.Merchant,
		Token:          m.Token,
		Amount:         m.Amount,
		Source:         account.Source(m.Source),
		Status:         payment.Status(m.Status),
		Attempt:        m.Attempt,
		DueAt:          m.DueAt.UTC(),
		ExecutedAt:     m.ExecutedAt.UTC(),
		FailureReason:  m.FailureReason,
	}, nil
}
