package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zplayer-tv/checkout-api/internal/domain/coupon"
)

const (
	couponColumns = `id, code, discount_percent, valid_until, valid_for_plan,
		is_redeemed, redeemed_at, created_at`

	findCouponByCodeSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE UPPER(code) = $1 AND is_redeemed = FALSE`

	findOldestUnredeemedSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE is_redeemed = FALSE ORDER BY created_at, id LIMIT 1`

	getCouponByIDSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`

	// The is_redeemed predicate is the compare-and-set: the update only lands
	// when the coupon is still unclaimed at write time.
	claimCouponSQL = `UPDATE coupons SET is_redeemed = TRUE, redeemed_at = $2
		WHERE id = $1 AND is_redeemed = FALSE`

	unclaimCouponSQL = `UPDATE coupons SET is_redeemed = FALSE, redeemed_at = NULL
		WHERE id = $1`

	listCouponsSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE ($1 = '' OR code ILIKE '%' || $1 || '%')
		ORDER BY created_at DESC`

	createCouponSQL = `INSERT INTO coupons (code, discount_percent, valid_until, valid_for_plan)
		VALUES ($1, $2, $3, $4) RETURNING id, created_at`

	deleteCouponSQL = `DELETE FROM coupons WHERE id = $1`
)

var _ coupon.AdminRepository = (*CouponRepository)(nil)

// CouponRepository implements coupon.AdminRepository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up an unredeemed coupon by its normalized code.
// Returns coupon.ErrNotFound when no matching coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, findCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// FindOldestUnredeemed returns the oldest unclaimed coupon, making the
// giveaway selection deterministic across concurrent instances.
func (r *CouponRepository) FindOldestUnredeemed(ctx context.Context) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, findOldestUnredeemedSQL)
	if err != nil {
		return nil, fmt.Errorf("selecting unredeemed coupon: %w", err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("selecting unredeemed coupon: %w", err)
	}
	return &c, nil
}

// GetByID returns a coupon regardless of redeemed state.
func (r *CouponRepository) GetByID(ctx context.Context, id string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting coupon %q: %w", id, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("getting coupon %q: %w", id, err)
	}
	return &c, nil
}

// Claim marks the coupon redeemed iff it is still unredeemed. The affected
// row count tells the caller whether it won the race.
func (r *CouponRepository) Claim(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, claimCouponSQL, id, at)
	if err != nil {
		return false, fmt.Errorf("claiming coupon %q: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Unclaim reverts a claim as compensation for a failed redemption insert.
func (r *CouponRepository) Unclaim(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, unclaimCouponSQL, id)
	if err != nil {
		return fmt.Errorf("unclaiming coupon %q: %w", id, err)
	}
	return nil
}

// List returns coupons newest-first, optionally filtered by code substring.
func (r *CouponRepository) List(ctx context.Context, search string) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, listCouponsSQL, search)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	return pgx.CollectRows(rows, scanCoupon)
}

// Create inserts a coupon and fills in its generated ID and creation time.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	err := r.pool.QueryRow(ctx, createCouponSQL,
		c.Code, c.DiscountPercent, c.ValidUntil, c.ValidForPlan,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

// Delete removes a coupon by ID.
func (r *CouponRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, deleteCouponSQL, id)
	if err != nil {
		return fmt.Errorf("deleting coupon %q: %w", id, err)
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c    coupon.Coupon
		plan string
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.DiscountPercent, &c.ValidUntil, &plan,
		&c.IsRedeemed, &c.RedeemedAt, &c.CreatedAt,
	)
	c.ValidForPlan = coupon.Plan(plan)
	return c, err
}
