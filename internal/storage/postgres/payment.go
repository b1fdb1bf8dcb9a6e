package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/zplayer-tv/checkout-api/internal/domain/coupon"
	"github.com/zplayer-tv/checkout-api/internal/domain/payment"
)

const (
	createPaymentSQL = `INSERT INTO payments
		(plan_type, coupon_code, discount_percent, final_price, whatsapp, email, preference_id, payment_status, created_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9) RETURNING id`

	listPaymentsSQL = `SELECT id, plan_type, COALESCE(coupon_code, ''), discount_percent,
		final_price, whatsapp, email, preference_id, payment_status, created_at
		FROM payments
		WHERE ($1 = '' OR email ILIKE '%' || $1 || '%'
			OR whatsapp ILIKE '%' || $1 || '%'
			OR COALESCE(coupon_code, '') ILIKE '%' || $1 || '%')
		ORDER BY created_at DESC`

	updatePaymentStatusSQL = `UPDATE payments SET payment_status = $2 WHERE preference_id = $1`
)

var _ payment.Repository = (*PaymentRepository)(nil)

// PaymentRepository implements payment.Repository backed by PostgreSQL.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository returns a PaymentRepository that uses the given pool.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// Create persists a payment audit record and fills in its generated ID.
func (r *PaymentRepository) Create(ctx context.Context, rec *payment.Record) error {
	err := r.pool.QueryRow(ctx, createPaymentSQL,
		rec.PlanType, rec.CouponCode, rec.DiscountPercent, rec.FinalPrice,
		rec.Whatsapp, rec.Email, rec.PreferenceID, rec.Status, rec.CreatedAt,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("creating payment record: %w", err)
	}
	return nil
}

// List returns payment records newest-first with optional text filtering.
func (r *PaymentRepository) List(ctx context.Context, search string) ([]payment.Record, error) {
	rows, err := r.pool.Query(ctx, listPaymentsSQL, search)
	if err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}
	return pgx.CollectRows(rows, scanPayment)
}

// UpdateStatusByPreference updates the status of records tied to the given
// provider preference. Repeated deliveries of the same callback converge.
func (r *PaymentRepository) UpdateStatusByPreference(ctx context.Context, preferenceID string, status payment.Status) error {
	_, err := r.pool.Exec(ctx, updatePaymentStatusSQL, preferenceID, status)
	if err != nil {
		return fmt.Errorf("updating payment status for preference %q: %w", preferenceID, err)
	}
	return nil
}

func scanPayment(row pgx.CollectableRow) (payment.Record, error) {
	var (
		rec    payment.Record
		plan   string
		status string
		price  decimal.Decimal
	)
	err := row.Scan(
		&rec.ID, &plan, &rec.CouponCode, &rec.DiscountPercent,
		&price, &rec.Whatsapp, &rec.Email, &rec.PreferenceID, &status, &rec.CreatedAt,
	)
	rec.PlanType = coupon.Plan(plan)
	rec.Status = payment.Status(status)
	rec.FinalPrice = price
	return rec, err
}
