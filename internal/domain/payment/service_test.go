package payment

import (
	"context"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zplayer-tv/checkout-api/internal/domain/coupon"
)

// --- Mock implementations ---

type mockValidator struct {
	result *coupon.Result
	err    error
}

func (m *mockValidator) Validate(_ context.Context, _ string, _ coupon.Plan) (*coupon.Result, error) {
	return m.result, m.err
}

type mockGateway struct {
	lastPreference *Preference
	created        *CreatedPreference
	err            error
}

func (m *mockGateway) CreatePreference(_ context.Context, p Preference) (*CreatedPreference, error) {
	m.lastPreference = &p
	if m.err != nil {
		return nil, m.err
	}
	return m.created, nil
}

type mockRecords struct {
	lastRecord *Record
	err        error
}

func (m *mockRecords) Create(_ context.Context, r *Record) error {
	m.lastRecord = r
	return m.err
}

func (m *mockRecords) List(_ context.Context, _ string) ([]Record, error) {
	return nil, nil
}

func (m *mockRecords) UpdateStatusByPreference(_ context.Context, _ string, _ Status) error {
	return nil
}

// --- Helpers ---

func newCheckoutService(v *mockValidator, gw *mockGateway, rec *mockRecords) *Service {
	if gw.created == nil && gw.err == nil {
		gw.created = &CreatedPreference{ID: "pref-1", InitPoint: "https://mp.example/init/pref-1"}
	}
	return NewService(v, gw, rec)
}

func validRequest() CheckoutRequest {
	return CheckoutRequest{
		PlanType: "monthly",
		Whatsapp: "(11) 98765-4321",
		Email:    "cliente@example.com",
	}
}

// --- Tests ---

func TestCreateCheckout_FullPriceWithoutCoupon(t *testing.T) {
	gw := &mockGateway{}
	rec := &mockRecords{}
	svc := newCheckoutService(&mockValidator{}, gw, rec)

	out, err := svc.CreateCheckout(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, "pref-1", out.PreferenceID)
	assert.Equal(t, "https://mp.example/init/pref-1", out.InitPoint)

	require.NotNil(t, gw.lastPreference)
	assert.Equal(t, "29.99", gw.lastPreference.UnitPrice.StringFixed(2))
	assert.Equal(t, 1, gw.lastPreference.Installments)
	assert.True(t, strings.HasPrefix(gw.lastPreference.ExternalReference, "monthly_"))

	require.NotNil(t, rec.lastRecord)
	assert.Equal(t, StatusPending, rec.lastRecord.Status)
	assert.Equal(t, 0, rec.lastRecord.DiscountPercent)
	assert.Equal(t, "11987654321", rec.lastRecord.Whatsapp)
}

func TestCreateCheckout_AppliesStoredDiscount(t *testing.T) {
	v := &mockValidator{result: &coupon.Result{Code: "SAVE30", DiscountPercent: 30}}
	gw := &mockGateway{}
	rec := &mockRecords{}
	svc := newCheckoutService(v, gw, rec)

	req := validRequest()
	req.CouponCode = "SAVE30"

	_, err := svc.CreateCheckout(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "20.99", gw.lastPreference.UnitPrice.StringFixed(2))
	assert.Contains(t, gw.lastPreference.Title, "Cupom SAVE30 (30% OFF)")
	assert.Equal(t, "SAVE30", rec.lastRecord.CouponCode)
	assert.Equal(t, 30, rec.lastRecord.DiscountPercent)
	assert.Equal(t, "20.99", rec.lastRecord.FinalPrice.StringFixed(2))
}

func TestCreateCheckout_QuarterlyPlan(t *testing.T) {
	gw := &mockGateway{}
	svc := newCheckoutService(&mockValidator{}, gw, &mockRecords{})

	req := validRequest()
	req.PlanType = "quarterly"

	_, err := svc.CreateCheckout(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "70.00", gw.lastPreference.UnitPrice.StringFixed(2))
	assert.Equal(t, 3, gw.lastPreference.Installments)
	assert.True(t, strings.HasPrefix(gw.lastPreference.ExternalReference, "quarterly_"))
}

func TestCreateCheckout_RejectedCouponChargesFullPrice(t *testing.T) {
	rejections := map[string]error{
		"not found":     coupon.ErrNotFound,
		"expired":       coupon.ErrExpired,
		"plan mismatch": &coupon.PlanMismatchError{Code: "TRIM20", RequiredPlan: coupon.PlanQuarterly},
	}
	for name, rejection := range rejections {
		t.Run(name, func(t *testing.T) {
			gw := &mockGateway{}
			rec := &mockRecords{}
			svc := newCheckoutService(&mockValidator{err: rejection}, gw, rec)

			req := validRequest()
			req.CouponCode = "TRIM20"

			_, err := svc.CreateCheckout(context.Background(), req)
			require.NoError(t, err)

			assert.Equal(t, "29.99", gw.lastPreference.UnitPrice.StringFixed(2))
			assert.Empty(t, rec.lastRecord.CouponCode)
			assert.Equal(t, 0, rec.lastRecord.DiscountPercent)
		})
	}
}

func TestCreateCheckout_StoreOutageChargesFullPrice(t *testing.T) {
	v := &mockValidator{err: errors.New("connection refused")}
	gw := &mockGateway{}
	rec := &mockRecords{}
	svc := newCheckoutService(v, gw, rec)

	req := validRequest()
	req.CouponCode = "SAVE30"

	out, err := svc.CreateCheckout(context.Background(), req)
	require.NoError(t, err, "an outage of the coupon store must not block the sale")

	assert.Equal(t, "pref-1", out.PreferenceID)
	assert.Equal(t, "29.99", gw.lastPreference.UnitPrice.StringFixed(2))
	assert.Equal(t, 0, rec.lastRecord.DiscountPercent)
}

func TestCreateCheckout_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(*CheckoutRequest)
		field string
	}{
		{"unknown plan", func(r *CheckoutRequest) { r.PlanType = "yearly" }, "planType"},
		{"plan all not purchasable", func(r *CheckoutRequest) { r.PlanType = "all" }, "planType"},
		{"short phone", func(r *CheckoutRequest) { r.Whatsapp = "12345" }, "whatsapp"},
		{"long phone", func(r *CheckoutRequest) { r.Whatsapp = "+55 11 98765-4321" }, "whatsapp"},
		{"bad email", func(r *CheckoutRequest) { r.Email = "not-an-email" }, "email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &mockGateway{}
			rec := &mockRecords{}
			svc := newCheckoutService(&mockValidator{}, gw, rec)

			req := validRequest()
			tt.mut(&req)

			_, err := svc.CreateCheckout(context.Background(), req)

			var inErr *InvalidInputError
			require.ErrorAs(t, err, &inErr)
			assert.Equal(t, tt.field, inErr.Field)

			// fail fast: nothing reaches the gateway or the records
			assert.Nil(t, gw.lastPreference)
			assert.Nil(t, rec.lastRecord)
		})
	}
}

func TestCreateCheckout_GatewayFailure(t *testing.T) {
	gw := &mockGateway{err: errors.New("502 bad gateway")}
	rec := &mockRecords{}
	svc := newCheckoutService(&mockValidator{}, gw, rec)

	_, err := svc.CreateCheckout(context.Background(), validRequest())
	require.Error(t, err)
	assert.Nil(t, rec.lastRecord, "no record without a gateway session")
}

func TestCreateCheckout_RecordFailureSurfaces(t *testing.T) {
	rec := &mockRecords{err: errors.New("insert failed")}
	svc := newCheckoutService(&mockValidator{}, &mockGateway{}, rec)

	_, err := svc.CreateCheckout(context.Background(), validRequest())
	require.Error(t, err)
}

func TestFinalPrice(t *testing.T) {
	tests := []struct {
		base    string
		percent int
		want    string
	}{
		{"29.99", 0, "29.99"},
		{"29.99", 30, "20.99"},
		{"29.99", 100, "0.00"},
		{"70.00", 20, "56.00"},
		{"70.00", 33, "46.90"},
		{"29.99", -5, "29.99"},
	}
	for _, tt := range tests {
		got := finalPrice(decimal.RequireFromString(tt.base), tt.percent)
		assert.Equal(t, tt.want, got.StringFixed(2), "%s at %d%%", tt.base, tt.percent)
	}
}
