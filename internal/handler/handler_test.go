package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zplayer-tv/checkout-api/internal/domain/client"
	"github.com/zplayer-tv/checkout-api/internal/domain/coupon"
	"github.com/zplayer-tv/checkout-api/internal/domain/payment"
	"github.com/zplayer-tv/checkout-api/internal/domain/redemption"
	"github.com/zplayer-tv/checkout-api/internal/fingerprint"
)

// --- Mock implementations ---

type stubValidator struct {
	result *coupon.Result
	err    error
}

func (s *stubValidator) Validate(_ context.Context, _ string, _ coupon.Plan) (*coupon.Result, error) {
	return s.result, s.err
}

// stubCoupons is a one-coupon store backing the redemption flow.
type stubCoupons struct {
	c       *coupon.Coupon
	claimed bool
}

func (s *stubCoupons) FindByCode(_ context.Context, _ string) (*coupon.Coupon, error) {
	return nil, coupon.ErrNotFound
}

func (s *stubCoupons) FindOldestUnredeemed(_ context.Context) (*coupon.Coupon, error) {
	if s.c == nil || s.claimed {
		return nil, coupon.ErrNotFound
	}
	return s.c, nil
}

func (s *stubCoupons) Claim(_ context.Context, _ string, _ time.Time) (bool, error) {
	if s.claimed {
		return false, nil
	}
	s.claimed = true
	return true, nil
}

func (s *stubCoupons) Unclaim(_ context.Context, _ string) error {
	s.claimed = false
	return nil
}

func (s *stubCoupons) GetByID(_ context.Context, _ string) (*coupon.Coupon, error) {
	return s.c, nil
}

type stubAttempts struct {
	count int
}

func (s *stubAttempts) CountSince(_ context.Context, _ string, _ time.Time) (int, error) {
	return s.count, nil
}

func (s *stubAttempts) Record(_ context.Context, _ *redemption.Attempt) error {
	s.count++
	return nil
}

type stubClaims struct {
	byOrigin map[string]bool
	byDevice map[string]bool
	created  []*redemption.Redemption
}

func (s *stubClaims) ExistsByOrigin(_ context.Context, ip string) (bool, error) {
	return s.byOrigin[ip], nil
}

func (s *stubClaims) ExistsByDevice(_ context.Context, fp string) (bool, error) {
	return s.byDevice[fp], nil
}

func (s *stubClaims) ExistsByCoupon(_ context.Context, _ string) (bool, error) {
	return false, nil
}

func (s *stubClaims) Create(_ context.Context, r *redemption.Redemption) error {
	s.created = append(s.created, r)
	return nil
}

type stubGateway struct {
	last *payment.Preference
	err  error
}

func (s *stubGateway) CreatePreference(_ context.Context, p payment.Preference) (*payment.CreatedPreference, error) {
	s.last = &p
	if s.err != nil {
		return nil, s.err
	}
	return &payment.CreatedPreference{ID: "pref-1", InitPoint: "https://mp.example/init"}, nil
}

type stubPayments struct {
	records    []payment.Record
	updated    map[string]payment.Status
	listErr    error
	updateErr  error
	lastSearch string
}

func (s *stubPayments) Create(_ context.Context, r *payment.Record) error {
	s.records = append(s.records, *r)
	return nil
}

func (s *stubPayments) List(_ context.Context, search string) ([]payment.Record, error) {
	s.lastSearch = search
	return s.records, s.listErr
}

func (s *stubPayments) UpdateStatusByPreference(_ context.Context, id string, st payment.Status) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	if s.updated == nil {
		s.updated = map[string]payment.Status{}
	}
	s.updated[id] = st
	return nil
}

type stubCouponAdmin struct {
	stubCoupons
	listed  []coupon.Coupon
	created *coupon.Coupon
	deleted string
}

func (s *stubCouponAdmin) List(_ context.Context, _ string) ([]coupon.Coupon, error) {
	return s.listed, nil
}

func (s *stubCouponAdmin) Create(_ context.Context, c *coupon.Coupon) error {
	c.ID = "new-id"
	c.CreatedAt = time.Now()
	s.created = c
	return nil
}

func (s *stubCouponAdmin) Delete(_ context.Context, id string) error {
	s.deleted = id
	return nil
}

type stubClients struct {
	clients   []client.Client
	createErr error
	created   []*client.Client
}

func (s *stubClients) Create(_ context.Context, c *client.Client) error {
	if s.createErr != nil {
		return s.createErr
	}
	c.ID = "client-1"
	c.CreatedAt = time.Now()
	s.created = append(s.created, c)
	return nil
}

func (s *stubClients) List(_ context.Context, _ string) ([]client.Client, error) {
	return s.clients, nil
}

// --- Helpers ---

type testEnv struct {
	handler  http.Handler
	gateway  *stubGateway
	payments *stubPayments
	coupons  *stubCouponAdmin
	claims   *stubClaims
	clients  *stubClients
}

func noSecurity(next http.Handler) http.Handler { return next }

func newTestEnv(validator coupon.Validator) *testEnv {
	return newTestEnvWithSecurity(validator, noSecurity)
}

func newTestEnvWithSecurity(validator coupon.Validator, security func(http.Handler) http.Handler) *testEnv {
	coupons := &stubCouponAdmin{stubCoupons: stubCoupons{c: &coupon.Coupon{
		ID:              "c1",
		Code:            "ZPLAY30",
		DiscountPercent: 30,
		ValidForPlan:    coupon.PlanAll,
	}}}
	claims := &stubClaims{byOrigin: map[string]bool{}, byDevice: map[string]bool{}}
	gateway := &stubGateway{}
	payments := &stubPayments{}
	clients := &stubClients{}

	redemptions := redemption.NewService(coupons, &stubAttempts{}, claims)
	checkout := payment.NewService(validator, gateway, payments)

	h := NewHandler(validator, redemptions, checkout, payments, coupons, clients)
	return &testEnv{
		handler:  h.Routes(security),
		gateway:  gateway,
		payments: payments,
		coupons:  coupons,
		claims:   claims,
		clients:  clients,
	}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:51234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// --- Tests ---

func TestValidateCoupon_OK(t *testing.T) {
	env := newTestEnv(&stubValidator{result: &coupon.Result{Code: "SAVE30", DiscountPercent: 30}})

	rec := doJSON(t, env.handler, http.MethodPost, "/api/coupons/validate",
		map[string]string{"code": "save30", "planType": "monthly"})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, "SAVE30", body["code"])
	assert.Equal(t, float64(30), body["discountPercent"])
	assert.Equal(t, "Cupom aplicado! 30% de desconto", body["message"])
}

func TestValidateCoupon_InvalidPlan(t *testing.T) {
	env := newTestEnv(&stubValidator{})

	rec := doJSON(t, env.handler, http.MethodPost, "/api/coupons/validate",
		map[string]string{"code": "SAVE30", "planType": "yearly"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Plano inválido", decodeBody(t, rec)["error"])
}

func TestValidateCoupon_DomainErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"not found", coupon.ErrNotFound, http.StatusBadRequest, "Cupom inválido ou já utilizado"},
		{"expired", coupon.ErrExpired, http.StatusBadRequest, "Este cupom expirou"},
		{
			"plan mismatch",
			&coupon.PlanMismatchError{Code: "TRIM20", RequiredPlan: coupon.PlanQuarterly},
			http.StatusBadRequest,
			"Este cupom só pode ser usado no plano trimestral",
		},
		{"store down", errors.New("connection refused"), http.StatusInternalServerError, "Erro ao validar cupom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(&stubValidator{err: tt.err})

			rec := doJSON(t, env.handler, http.MethodPost, "/api/coupons/validate",
				map[string]string{"code": "X", "planType": "monthly"})

			require.Equal(t, tt.status, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, false, body["valid"])
			assert.Equal(t, tt.message, body["error"])
		})
	}
}

func TestRedeemCoupon_OK(t *testing.T) {
	env := newTestEnv(&stubValidator{})

	rec := doJSON(t, env.handler, http.MethodPost, "/api/coupons/redeem", map[string]string{
		"phoneNumber":       "(11) 98765-4321",
		"deviceFingerprint": "abc123",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "ZPLAY30", body["code"])
	assert.Equal(t, "Cupom resgatado com sucesso!", body["message"])

	require.Len(t, env.claims.created, 1)
	assert.Equal(t, "203.0.113.7", env.claims.created[0].IPAddress, "falls back to the connection address")
}

func TestRedeemCoupon_DerivesFingerprintFromAttributes(t *testing.T) {
	env := newTestEnv(&stubValidator{})

	attrs := fingerprint.Attributes{UserAgent: "Mozilla/5.0", Language: "pt-BR", Platform: "Linux"}
	rec := doJSON(t, env.handler, http.MethodPost, "/api/coupons/redeem", map[string]any{
		"phoneNumber": "11987654321",
		"device":      attrs,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, env.claims.created, 1)
	assert.Equal(t, fingerprint.Generate(attrs), env.claims.created[0].DeviceFingerprint)
}

func TestRedeemCoupon_MissingFingerprint(t *testing.T) {
	env := newTestEnv(&stubValidator{})

	rec := doJSON(t, env.handler, http.MethodPost, "/api/coupons/redeem",
		map[string]string{"phoneNumber": "11987654321"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Identificação do dispositivo ausente", decodeBody(t, rec)["error"])
}

func TestRedeemCoupon_InvalidPhone(t *testing.T) {
	env := newTestEnv(&stubValidator{})

	rec := doJSON(t, env.handler, http.MethodPost, "/api/coupons/redeem",
		map[string]string{"phoneNumber": "123", "deviceFingerprint": "abc123"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Número de celular inválido", decodeBody(t, rec)["error"])
}

func TestRedeemCoupon_DuplicateDevice(t *testing.T) {
	env := newTestEnv(&stubValidator{})
	env.claims.byDevice["abc123"] = true

	rec := doJSON(t, env.handler, http.MethodPost, "/api/coupons/redeem",
		map[string]string{"phoneNumber": "11987654321", "deviceFingerprint": "abc123"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Este dispositivo já resgatou um cupom.", decodeBody(t, rec)["error"])
}

func TestRedeemCoupon_RateLimited(t *testing.T) {
	env := newTestEnv(&stubValidator{})

	var rec *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		env.coupons.claimed = false
		env.claims.byOrigin = map[string]bool{}
		env.claims.byDevice = map[string]bool{}
		rec = doJSON(t, env.handler, http.MethodPost, "/api/coupons/redeem",
			map[string]string{"phoneNumber": "11987654321", "deviceFingerprint": "abc123"})
	}

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Muitas tentativas. Tente novamente mais tarde.", decodeBody(t, rec)["error"])
}

func TestRedeemCoupon_SoldOut(t *testing.T) {
	env := newTestEnv(&stubValidator{})
	env.coupons.c = nil

	rec := doJSON(t, env.handler, http.MethodPost, "/api/coupons/redeem",
		map[string]string{"phoneNumber": "11987654321", "deviceFingerprint": "abc123"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Não há cupons disponíveis no momento", decodeBody(t, rec)["error"])
}

func TestCreateCheckout_OK(t *testing.T) {
	env := newTestEnv(&stubValidator{result: &coupon.Result{Code: "SAVE30", DiscountPercent: 30}})

	rec := doJSON(t, env.handler, http.MethodPost, "/api/checkout", map[string]string{
		"planType":   "monthly",
		"couponCode": "SAVE30",
		"whatsapp":   "11987654321",
		"email":      "cliente@example.com",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "pref-1", body["preferenceId"])
	assert.Equal(t, "https://mp.example/init", body["initPoint"])
	assert.Equal(t, "20.99", env.gateway.last.UnitPrice.StringFixed(2))
}

func TestCreateCheckout_IgnoresClientDiscount(t *testing.T) {
	// The request carries a forged discountPercent; the field has no decode
	// target, so pricing only sees the store's answer.
	env := newTestEnv(&stubValidator{err: coupon.ErrNotFound})

	rec := doJSON(t, env.handler, http.MethodPost, "/api/checkout", map[string]any{
		"planType":        "monthly",
		"couponCode":      "FORGED",
		"discountPercent": 90,
		"whatsapp":        "11987654321",
		"email":           "cliente@example.com",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "29.99", env.gateway.last.UnitPrice.StringFixed(2))
}

func TestCreateCheckout_InvalidInput(t *testing.T) {
	env := newTestEnv(&stubValidator{})

	rec := doJSON(t, env.handler, http.MethodPost, "/api/checkout", map[string]string{
		"planType": "yearly",
		"whatsapp": "11987654321",
		"email":    "cliente@example.com",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "planType")
}

func TestCreateCheckout_GatewayDown(t *testing.T) {
	env := newTestEnv(&stubValidator{})
	env.gateway.err = errors.New("502 bad gateway")

	rec := doJSON(t, env.handler, http.MethodPost, "/api/checkout", map[string]string{
		"planType": "monthly",
		"whatsapp": "11987654321",
		"email":    "cliente@example.com",
	})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Erro ao criar pagamento", decodeBody(t, rec)["error"])
}

func TestPaymentWebhook_OK(t *testing.T) {
	env := newTestEnv(&stubValidator{})

	rec := doJSON(t, env.handler, http.MethodPost, "/api/payments/webhook",
		map[string]string{"preferenceId": "pref-1", "status": "approved"})

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, payment.StatusApproved, env.payments.updated["pref-1"])
}

func TestPaymentWebhook_StatusMapping(t *testing.T) {
	for provider, want := range map[string]payment.Status{
		"approved":   payment.StatusApproved,
		"rejected":   payment.StatusRejected,
		"cancelled":  payment.StatusRejected,
		"pending":    payment.StatusPending,
		"in_process": payment.StatusPending,
	} {
		env := newTestEnv(&stubValidator{})
		rec := doJSON(t, env.handler, http.MethodPost, "/api/payments/webhook",
			map[string]string{"preferenceId": "p", "status": provider})
		require.Equal(t, http.StatusNoContent, rec.Code, provider)
		assert.Equal(t, want, env.payments.updated["p"], provider)
	}
}

func TestPaymentWebhook_BadPayload(t *testing.T) {
	env := newTestEnv(&stubValidator{})

	rec := doJSON(t, env.handler, http.MethodPost, "/api/payments/webhook",
		map[string]string{"status": "approved"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, env.handler, http.MethodPost, "/api/payments/webhook",
		map[string]string{"preferenceId": "p", "status": "exploded"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
