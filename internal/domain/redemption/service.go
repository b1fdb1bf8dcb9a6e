package redemption

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/zplayer-tv/checkout-api/internal/domain/coupon"
)

const (
	// rateWindow is the sliding window for per-origin attempt counting.
	rateWindow = time.Hour
	// rateLimit is the maximum attempts per origin within the window.
	rateLimit = 5
	// claimRetries bounds how many coupons we try to claim before giving up.
	// Losing a claim race means another caller took that coupon, so each
	// retry selects a fresh candidate.
	claimRetries = 3

	minPhoneDigits = 10
	maxPhoneDigits = 11
)

// Service hands out single-use giveaway coupons at most once per phone
// number's origin and device. The coupon store's conditional update is the
// only synchronization: any number of service instances may run concurrently.
type Service struct {
	coupons  coupon.Repository
	attempts AttemptRepository
	claims   Repository
	now      func() time.Time
}

// NewService creates a redemption Service with the required repositories.
func NewService(coupons coupon.Repository, attempts AttemptRepository, claims Repository) *Service {
	return &Service{
		coupons:  coupons,
		attempts: attempts,
		claims:   claims,
		now:      time.Now,
	}
}

// Redeem runs the redemption gates in order and, when all pass, claims one
// coupon and returns its code. The code is revealed exactly once: any later
// call from the same origin or device is rejected before selection.
func (s *Service) Redeem(ctx context.Context, phoneNumber, ipAddress, fingerprint string) (string, error) {
	phone, ok := normalizePhone(phoneNumber)
	if !ok {
		return "", ErrInvalidPhone
	}

	now := s.now()

	count, err := s.attempts.CountSince(ctx, ipAddress, now.Add(-rateWindow))
	if err != nil {
		return "", errors.Wrap(err, "count attempts")
	}

	// The attempt is recorded even when over the limit, so hammering the
	// endpoint keeps extending the window instead of draining it.
	if recErr := s.attempts.Record(ctx, &Attempt{
		IPAddress:   ipAddress,
		PhoneNumber: phone,
		CreatedAt:   now,
	}); recErr != nil {
		return "", errors.Wrap(recErr, "record attempt")
	}

	if count >= rateLimit {
		return "", ErrRateLimited
	}

	if used, err := s.claims.ExistsByOrigin(ctx, ipAddress); err != nil {
		return "", errors.Wrap(err, "check origin redemptions")
	} else if used {
		return "", &AlreadyRedeemedError{Reason: ReasonOrigin}
	}

	if used, err := s.claims.ExistsByDevice(ctx, fingerprint); err != nil {
		return "", errors.Wrap(err, "check device redemptions")
	} else if used {
		return "", &AlreadyRedeemedError{Reason: ReasonDevice}
	}

	claimed, err := s.claimOne(ctx)
	if err != nil {
		return "", err
	}

	if err := s.claims.Create(ctx, &Redemption{
		CouponID:          claimed.ID,
		PhoneNumber:       phone,
		IPAddress:         ipAddress,
		DeviceFingerprint: fingerprint,
		RedeemedAt:        now,
	}); err != nil {
		s.compensate(ctx, claimed.ID, err)
		return "", ErrInternal
	}

	return claimed.Code, nil
}

// claimOne selects the oldest unredeemed coupon and claims it with a
// compare-and-set, retrying with a fresh candidate when the race is lost.
func (s *Service) claimOne(ctx context.Context) (*coupon.Coupon, error) {
	for range claimRetries {
		c, err := s.coupons.FindOldestUnredeemed(ctx)
		if err != nil {
			if errors.Is(err, coupon.ErrNotFound) {
				return nil, ErrSoldOut
			}
			return nil, errors.Wrap(err, "select coupon")
		}

		won, err := s.coupons.Claim(ctx, c.ID, s.now())
		if err != nil {
			// The claim may have committed even though the call failed
			// (e.g. a timeout after the write). Re-read before deciding:
			// treating an ambiguous outcome as failure would retry onto a
			// different coupon and strand this one.
			if resolved, ok := s.resolveAmbiguousClaim(ctx, c.ID); ok {
				return resolved, nil
			}
			return nil, errors.Wrap(err, "claim coupon")
		}
		if won {
			return c, nil
		}
		// Lost the race; another caller holds this coupon. Try the next one.
	}
	return nil, ErrSoldOut
}

// resolveAmbiguousClaim re-reads a coupon after a failed claim call. A
// timeout can fire after the store committed the update, so the coupon state
// is consulted before the failure is believed.
func (s *Service) resolveAmbiguousClaim(ctx context.Context, id string) (*coupon.Coupon, bool) {
	c, err := s.coupons.GetByID(ctx, id)
	if err != nil || !c.IsRedeemed {
		return nil, false
	}
	// Redeemed, but possibly by a concurrent caller whose claim landed just
	// before ours failed. A redemption record referencing the coupon means
	// it was theirs; claiming it here would strand their record.
	taken, err := s.claims.ExistsByCoupon(ctx, id)
	if err != nil || taken {
		return nil, false
	}
	return c, true
}

// compensate reverts a claimed coupon after the redemption insert failed.
// The rollback is best-effort: when it also fails, the coupon stays marked
// redeemed with no redemption record, which is logged as an admin-visible
// inconsistency rather than silently swallowed.
func (s *Service) compensate(ctx context.Context, couponID string, cause error) {
	lg := zctx.From(ctx)
	lg.Error("redemption insert failed, reverting coupon claim",
		zap.String("coupon_id", couponID),
		zap.Error(cause),
	)
	if err := s.coupons.Unclaim(ctx, couponID); err != nil {
		lg.Error("compensation failed: coupon marked redeemed without a redemption record",
			zap.String("coupon_id", couponID),
			zap.Error(err),
		)
	}
}

// normalizePhone strips everything but digits and checks the national mobile
// length policy (10-11 digits).
func normalizePhone(s string) (string, bool) {
	digits := make([]byte, 0, len(s))
	for i := range len(s) {
		if s[i] >= '0' && s[i] <= '9' {
			digits = append(digits, s[i])
		}
	}
	if len(digits) < minPhoneDigits || len(digits) > maxPhoneDigits {
		return "", false
	}
	return string(digits), true
}
