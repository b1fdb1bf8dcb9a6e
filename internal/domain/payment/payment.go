package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zplayer-tv/checkout-api/internal/domain/coupon"
)

// Status enumerates the lifecycle of a payment record. Records are created
// pending and transitioned by the provider's asynchronous callback.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Record is the audit row written for every checkout attempt, before the
// shopper is redirected to the payment provider. DiscountPercent and
// FinalPrice are always server-computed.
type Record struct {
	ID              string
	PlanType        coupon.Plan
	CouponCode      string
	DiscountPercent int
	FinalPrice      decimal.Decimal
	Whatsapp        string
	Email           string
	PreferenceID    string
	Status          Status
	CreatedAt       time.Time
}

// PlanInfo describes a purchasable subscription plan. Prices live here, in
// server code, and nowhere else: checkout never reads a price from a client.
type PlanInfo struct {
	Title        string
	Description  string
	Price        decimal.Decimal
	Installments int
}

// Plans is the fixed price table, in BRL.
var Plans = map[coupon.Plan]PlanInfo{
	coupon.PlanMonthly: {
		Title:        "Z Player - Plano Mensal",
		Description:  "Acesso completo por 1 mês",
		Price:        decimal.RequireFromString("29.99"),
		Installments: 1,
	},
	coupon.PlanQuarterly: {
		Title:        "Z Player - Plano Trimestral",
		Description:  "Acesso completo por 3 meses - Economize R$ 20",
		Price:        decimal.RequireFromString("70.00"),
		Installments: 3,
	},
}

// Repository persists payment audit records.
type Repository interface {
	// Create inserts a new record.
	Create(ctx context.Context, r *Record) error

	// List returns records newest-first, optionally filtered by a
	// case-insensitive substring match on email, whatsapp, or coupon code.
	List(ctx context.Context, search string) ([]Record, error)

	// UpdateStatusByPreference sets the status of every record carrying the
	// preference ID. Idempotent: repeated callbacks converge on one status.
	UpdateStatusByPreference(ctx context.Context, preferenceID string, status Status) error
}
