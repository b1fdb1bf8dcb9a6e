package redemption

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrInvalidPhone is returned when the phone number is not a plausible
	// mobile number after normalization.
	ErrInvalidPhone = errors.New("invalid phone number")
	// ErrRateLimited is returned when an origin exceeds the attempt budget
	// within the sliding window.
	ErrRateLimited = errors.New("too many attempts, try again later")
	// ErrSoldOut is returned when no unredeemed coupon remains, including
	// when every claim retry lost the race.
	ErrSoldOut = errors.New("no coupons available")
	// ErrInternal is returned for unexpected failures, including a failed
	// compensation after the redemption insert.
	ErrInternal = errors.New("internal error processing redemption")
)

// RejectReason identifies which identity signal blocked a redemption.
type RejectReason string

const (
	// ReasonOrigin means the caller's network origin already claimed a coupon.
	ReasonOrigin RejectReason = "origin"
	// ReasonDevice means the caller's device fingerprint already claimed one.
	ReasonDevice RejectReason = "device"
)

// AlreadyRedeemedError indicates the caller already claimed a coupon through
// one of the identity signals.
type AlreadyRedeemedError struct {
	Reason RejectReason
}

func (e *AlreadyRedeemedError) Error() string {
	switch e.Reason {
	case ReasonDevice:
		return "this device already redeemed a coupon"
	default:
		return "this address already redeemed a coupon"
	}
}

// Attempt is one row of the append-only fraud signal audit. Attempts are
// recorded for every redemption call that passes phone validation, regardless
// of outcome, so the rate limiter itself cannot be starved.
type Attempt struct {
	ID          string
	IPAddress   string
	PhoneNumber string
	CreatedAt   time.Time
}

// Redemption records one successful claim of a single-use coupon, tied to the
// phone, network origin, and device fingerprint that claimed it.
type Redemption struct {
	ID                string
	CouponID          string
	PhoneNumber       string
	IPAddress         string
	DeviceFingerprint string
	RedeemedAt        time.Time
}

// AttemptRepository persists the append-only attempt audit.
type AttemptRepository interface {
	// CountSince counts attempts from the given origin at or after the cutoff.
	CountSince(ctx context.Context, ipAddress string, since time.Time) (int, error)

	// Record appends an attempt row.
	Record(ctx context.Context, a *Attempt) error
}

// Repository persists successful redemptions and answers duplicate checks.
type Repository interface {
	// ExistsByOrigin reports whether any redemption was made from the origin.
	ExistsByOrigin(ctx context.Context, ipAddress string) (bool, error)

	// ExistsByDevice reports whether any redemption was made by the device.
	ExistsByDevice(ctx context.Context, fingerprint string) (bool, error)

	// ExistsByCoupon reports whether a redemption record already references
	// the coupon. Used to disambiguate a claim whose outcome is unknown.
	ExistsByCoupon(ctx context.Context, couponID string) (bool, error)

	// Create inserts a redemption record. The unique indexes on coupon,
	// origin, and device back the duplicate checks above.
	Create(ctx context.Context, r *Redemption) error
}
