package payment

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/zplayer-tv/checkout-api/internal/domain/coupon"
)

// InvalidInputError is returned for malformed checkout input. It fails fast,
// before any pricing or gateway call.
type InvalidInputError struct {
	Field  string
	Detail string
}

func (e *InvalidInputError) Error() string {
	return "invalid " + e.Field + ": " + e.Detail
}

// Gateway creates checkout sessions at the external payment provider.
type Gateway interface {
	CreatePreference(ctx context.Context, p Preference) (*CreatedPreference, error)
}

// Preference describes the checkout session requested from the gateway.
type Preference struct {
	Title             string
	Description       string
	UnitPrice         decimal.Decimal
	Installments      int
	ExternalReference string
}

// CreatedPreference is the gateway's handle on a created checkout session.
type CreatedPreference struct {
	ID        string
	InitPoint string
}

// CheckoutRequest is the input for creating a checkout. There is deliberately
// no discount field: the discount decision belongs to the server alone.
type CheckoutRequest struct {
	PlanType   string
	CouponCode string
	Whatsapp   string
	Email      string
}

// Checkout is the result handed back to the shopper.
type Checkout struct {
	PreferenceID string
	InitPoint    string
}

// Service computes authoritative checkout prices and opens gateway sessions.
type Service struct {
	coupons coupon.Validator
	gateway Gateway
	records Repository
	now     func() time.Time
}

// NewService creates a checkout Service with the required dependencies.
func NewService(coupons coupon.Validator, gateway Gateway, records Repository) *Service {
	return &Service{
		coupons: coupons,
		gateway: gateway,
		records: records,
		now:     time.Now,
	}
}

// CreateCheckout validates input, computes the final price server-side,
// creates a gateway session, and persists the audit record before returning
// the redirect URL.
//
// When the coupon store is unreachable the checkout proceeds at full price
// and logs the degraded condition. It never substitutes a client-supplied
// discount: a forged discount must not be honored merely because the
// validation dependency was down.
func (s *Service) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	plan, ok := coupon.ParsePlan(req.PlanType)
	if !ok {
		return nil, &InvalidInputError{Field: "planType", Detail: "must be monthly or quarterly"}
	}
	phone, ok := normalizePhone(req.Whatsapp)
	if !ok {
		return nil, &InvalidInputError{Field: "whatsapp", Detail: "must contain 10-11 digits"}
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return nil, &InvalidInputError{Field: "email", Detail: "malformed address"}
	}

	info := Plans[plan]

	discountPercent := 0
	appliedCode := ""
	title := info.Title
	if req.CouponCode != "" {
		res, err := s.coupons.Validate(ctx, req.CouponCode, plan)
		switch {
		case err == nil:
			discountPercent = res.DiscountPercent
			appliedCode = res.Code
			title = fmt.Sprintf("%s - Cupom %s (%d%% OFF)", info.Title, res.Code, res.DiscountPercent)
		case isBusinessRejection(err):
			// Invalid coupon: checkout continues at full price, and the
			// record logs a zero discount.
			zctx.From(ctx).Info("coupon rejected at checkout, charging full price",
				zap.String("code", req.CouponCode),
				zap.Error(err),
			)
		default:
			// Store unreachable. Fail closed to the undiscounted price.
			zctx.From(ctx).Warn("coupon store unavailable, charging full price",
				zap.String("code", req.CouponCode),
				zap.Error(err),
			)
		}
	}

	finalPrice := finalPrice(info.Price, discountPercent)

	created, err := s.gateway.CreatePreference(ctx, Preference{
		Title:             title,
		Description:       info.Description,
		UnitPrice:         finalPrice,
		Installments:      info.Installments,
		ExternalReference: string(plan) + "_" + uuid.New().String(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create gateway preference")
	}

	if err := s.records.Create(ctx, &Record{
		PlanType:        plan,
		CouponCode:      appliedCode,
		DiscountPercent: discountPercent,
		FinalPrice:      finalPrice,
		Whatsapp:        phone,
		Email:           req.Email,
		PreferenceID:    created.ID,
		Status:          StatusPending,
		CreatedAt:       s.now(),
	}); err != nil {
		return nil, errors.Wrap(err, "persist payment record")
	}

	return &Checkout{
		PreferenceID: created.ID,
		InitPoint:    created.InitPoint,
	}, nil
}

// finalPrice applies an integer percentage discount and rounds to cents.
func finalPrice(base decimal.Decimal, discountPercent int) decimal.Decimal {
	if discountPercent <= 0 {
		return base.Round(2)
	}
	factor := decimal.New(int64(100-discountPercent), -2)
	return base.Mul(factor).Round(2)
}

// isBusinessRejection distinguishes "the coupon is not eligible" from "the
// store could not answer".
func isBusinessRejection(err error) bool {
	var pm *coupon.PlanMismatchError
	return errors.Is(err, coupon.ErrNotFound) ||
		errors.Is(err, coupon.ErrExpired) ||
		errors.As(err, &pm)
}

// normalizePhone strips everything but digits and checks the 10-11 digit
// national mobile length policy, mirroring the redemption flow.
func normalizePhone(s string) (string, bool) {
	digits := make([]byte, 0, len(s))
	for i := range len(s) {
		if s[i] >= '0' && s[i] <= '9' {
			digits = append(digits, s[i])
		}
	}
	if len(digits) < 10 || len(digits) > 11 {
		return "", false
	}
	return string(digits), true
}
