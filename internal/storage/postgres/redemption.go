package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zplayer-tv/checkout-api/internal/domain/redemption"
)

const (
	countAttemptsSQL = `SELECT COUNT(*) FROM coupon_redemption_attempts
		WHERE ip_address = $1 AND created_at >= $2`

	recordAttemptSQL = `INSERT INTO coupon_redemption_attempts (ip_address, phone_number, created_at)
		VALUES ($1, $2, $3)`

	existsByOriginSQL = `SELECT EXISTS (SELECT 1 FROM coupon_redemptions WHERE ip_address = $1)`
	existsByDeviceSQL = `SELECT EXISTS (SELECT 1 FROM coupon_redemptions WHERE device_fingerprint = $1)`
	existsByCouponSQL = `SELECT EXISTS (SELECT 1 FROM coupon_redemptions WHERE coupon_id = $1)`

	createRedemptionSQL = `INSERT INTO coupon_redemptions
		(coupon_id, phone_number, ip_address, device_fingerprint, redeemed_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`
)

var (
	_ redemption.AttemptRepository = (*AttemptRepository)(nil)
	_ redemption.Repository        = (*RedemptionRepository)(nil)
)

// AttemptRepository persists the append-only redemption attempt audit.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository returns an AttemptRepository that uses the given pool.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// CountSince counts attempts from the origin at or after the cutoff.
func (r *AttemptRepository) CountSince(ctx context.Context, ipAddress string, since time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, countAttemptsSQL, ipAddress, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting attempts for %q: %w", ipAddress, err)
	}
	return n, nil
}

// Record appends an attempt row. Attempts are never updated or deleted.
func (r *AttemptRepository) Record(ctx context.Context, a *redemption.Attempt) error {
	_, err := r.pool.Exec(ctx, recordAttemptSQL, a.IPAddress, a.PhoneNumber, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("recording attempt: %w", err)
	}
	return nil
}

// RedemptionRepository implements redemption.Repository backed by PostgreSQL.
type RedemptionRepository struct {
	pool *pgxpool.Pool
}

// NewRedemptionRepository returns a RedemptionRepository that uses the given pool.
func NewRedemptionRepository(pool *pgxpool.Pool) *RedemptionRepository {
	return &RedemptionRepository{pool: pool}
}

// ExistsByOrigin reports whether the origin already redeemed a coupon.
func (r *RedemptionRepository) ExistsByOrigin(ctx context.Context, ipAddress string) (bool, error) {
	return r.exists(ctx, existsByOriginSQL, ipAddress)
}

// ExistsByDevice reports whether the device already redeemed a coupon.
func (r *RedemptionRepository) ExistsByDevice(ctx context.Context, fingerprint string) (bool, error) {
	return r.exists(ctx, existsByDeviceSQL, fingerprint)
}

// ExistsByCoupon reports whether the coupon is already tied to a redemption.
func (r *RedemptionRepository) ExistsByCoupon(ctx context.Context, couponID string) (bool, error) {
	return r.exists(ctx, existsByCouponSQL, couponID)
}

func (r *RedemptionRepository) exists(ctx context.Context, query, arg string) (bool, error) {
	var found bool
	err := r.pool.QueryRow(ctx, query, arg).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("checking redemption existence: %w", err)
	}
	return found, nil
}

// Create inserts a redemption record. The unique indexes on coupon_id,
// ip_address, and device_fingerprint make the insert fail rather than let a
// duplicate slip past the service's pre-checks.
func (r *RedemptionRepository) Create(ctx context.Context, red *redemption.Redemption) error {
	err := r.pool.QueryRow(ctx, createRedemptionSQL,
		red.CouponID, red.PhoneNumber, red.IPAddress, red.DeviceFingerprint, red.RedeemedAt,
	).Scan(&red.ID)
	if err != nil {
		return fmt.Errorf("creating redemption for coupon %q: %w", red.CouponID, err)
	}
	return nil
}
