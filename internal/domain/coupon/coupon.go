package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// Plan enumerates the subscription plans a coupon can be restricted to.
type Plan string

const (
	// PlanAll means the coupon applies to any subscription plan.
	PlanAll Plan = "all"
	// PlanMonthly restricts the coupon to the monthly plan.
	PlanMonthly Plan = "monthly"
	// PlanQuarterly restricts the coupon to the quarterly plan.
	PlanQuarterly Plan = "quarterly"
)

// ParsePlan validates a client-supplied plan string. Only the concrete
// purchasable plans are accepted; "all" is a coupon restriction, not a plan.
func ParsePlan(s string) (Plan, bool) {
	switch Plan(s) {
	case PlanMonthly, PlanQuarterly:
		return Plan(s), true
	default:
		return "", false
	}
}

var (
	// ErrNotFound is returned when no unredeemed coupon matches the code.
	// Lookup does not distinguish missing from already-claimed codes, so the
	// user-facing message covers both.
	ErrNotFound = errors.New("coupon not found or already used")
	// ErrExpired is returned when the coupon's validity window has passed.
	ErrExpired = errors.New("coupon expired")
)

// PlanMismatchError is returned when a coupon is restricted to a different
// plan than the one being purchased.
type PlanMismatchError struct {
	Code         string
	RequiredPlan Plan
}

func (e *PlanMismatchError) Error() string {
	return "coupon " + e.Code + " is only valid for the " + string(e.RequiredPlan) + " plan"
}

// Coupon is a discount code. The same row shape serves two policies: reusable
// checkout discount codes (never marked redeemed by checkout) and single-use
// giveaway codes consumed by the redemption service.
type Coupon struct {
	ID              string
	Code            string
	DiscountPercent int
	ValidUntil      *time.Time
	ValidForPlan    Plan
	IsRedeemed      bool
	RedeemedAt      *time.Time
	CreatedAt       time.Time
}

// NormalizeCode folds a client-supplied code to its canonical stored form.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository provides coupon persistence. FindByCode only returns unredeemed
// coupons; Claim performs the compare-and-set redemption transition.
type Repository interface {
	// FindByCode looks up an unredeemed coupon by normalized code.
	// Returns ErrNotFound when no such coupon exists.
	FindByCode(ctx context.Context, code string) (*Coupon, error)

	// FindOldestUnredeemed returns the oldest-created unredeemed coupon,
	// or ErrNotFound when every coupon has been claimed.
	FindOldestUnredeemed(ctx context.Context) (*Coupon, error)

	// Claim atomically transitions the coupon to redeemed, conditioned on it
	// still being unredeemed. Returns false when the condition failed (a
	// concurrent caller won the race).
	Claim(ctx context.Context, id string, at time.Time) (bool, error)

	// Unclaim reverts a claim. Used only as compensation when the follow-up
	// redemption insert fails.
	Unclaim(ctx context.Context, id string) error

	// GetByID returns a coupon regardless of redeemed state.
	GetByID(ctx context.Context, id string) (*Coupon, error)
}

// AdminRepository extends Repository with the back-office operations.
type AdminRepository interface {
	Repository

	// List returns coupons newest-first, optionally filtered by a
	// case-insensitive substring match on the code.
	List(ctx context.Context, search string) ([]Coupon, error)

	// Create inserts a new coupon. The code must already be normalized.
	Create(ctx context.Context, c *Coupon) error

	// Delete removes a coupon by ID.
	Delete(ctx context.Context, id string) error
}
