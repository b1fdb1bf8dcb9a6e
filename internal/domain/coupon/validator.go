package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Result holds the outcome of a successful validation. The discount percent
// is sourced strictly from the stored coupon; callers never supply it.
type Result struct {
	Code            string
	DiscountPercent int
}

// Validator checks whether a coupon code may discount a purchase of the given
// plan. Validation is read-only: it gives the shopper fast feedback, and the
// checkout service runs it again at charge time as the pricing authority.
type Validator interface {
	Validate(ctx context.Context, code string, plan Plan) (*Result, error)
}

// RepoValidator implements Validator against a coupon Repository.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate normalizes the code, looks it up, and applies the eligibility
// gates in order: existence (unredeemed), expiry, plan restriction. It never
// mutates coupon state.
func (v *RepoValidator) Validate(ctx context.Context, code string, plan Plan) (*Result, error) {
	c, err := v.repo.FindByCode(ctx, NormalizeCode(code))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if c.ValidUntil != nil && c.ValidUntil.Before(v.now()) {
		return nil, ErrExpired
	}

	if c.ValidForPlan != PlanAll && c.ValidForPlan != plan {
		return nil, &PlanMismatchError{Code: c.Code, RequiredPlan: c.ValidForPlan}
	}

	return &Result{
		Code:            c.Code,
		DiscountPercent: c.DiscountPercent,
	}, nil
}
