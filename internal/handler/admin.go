package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/zplayer-tv/checkout-api/internal/domain/client"
	"github.com/zplayer-tv/checkout-api/internal/domain/coupon"
)

type paymentView struct {
	ID              string `json:"id"`
	PlanType        string `json:"planType"`
	CouponCode      string `json:"couponCode,omitempty"`
	DiscountPercent int    `json:"discountPercent"`
	FinalPrice      string `json:"finalPrice"`
	Whatsapp        string `json:"whatsapp"`
	Email           string `json:"email"`
	PreferenceID    string `json:"preferenceId"`
	Status          string `json:"status"`
	CreatedAt       string `json:"createdAt"`
}

// ListPayments returns payment audit records, filterable by text match.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	records, err := h.payments.List(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		zctx.From(r.Context()).Error("list payments", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "failed to list payments")
		return
	}

	out := make([]paymentView, len(records))
	for i, rec := range records {
		out[i] = paymentView{
			ID:              rec.ID,
			PlanType:        string(rec.PlanType),
			CouponCode:      rec.CouponCode,
			DiscountPercent: rec.DiscountPercent,
			FinalPrice:      rec.FinalPrice.StringFixed(2),
			Whatsapp:        rec.Whatsapp,
			Email:           rec.Email,
			PreferenceID:    rec.PreferenceID,
			Status:          string(rec.Status),
			CreatedAt:       rec.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, r, http.StatusOK, out)
}

type couponView struct {
	ID              string     `json:"id"`
	Code            string     `json:"code"`
	DiscountPercent int        `json:"discountPercent"`
	ValidUntil      *time.Time `json:"validUntil,omitempty"`
	ValidForPlan    string     `json:"validForPlan"`
	IsRedeemed      bool       `json:"isRedeemed"`
	RedeemedAt      *time.Time `json:"redeemedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// ListCoupons returns coupons, filterable by code substring.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.couponAdmin.List(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		zctx.From(r.Context()).Error("list coupons", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "failed to list coupons")
		return
	}

	out := make([]couponView, len(coupons))
	for i, c := range coupons {
		out[i] = toCouponView(c)
	}
	writeJSON(w, r, http.StatusOK, out)
}

type createCouponRequest struct {
	Code            string     `json:"code"`
	DiscountPercent int        `json:"discountPercent"`
	ValidUntil      *time.Time `json:"validUntil,omitempty"`
	ValidForPlan    string     `json:"validForPlan,omitempty"`
}

// CreateCoupon adds a new coupon. The code is normalized before storage.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req createCouponRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed request")
		return
	}

	code := coupon.NormalizeCode(req.Code)
	if code == "" {
		writeError(w, r, http.StatusBadRequest, "code is required")
		return
	}
	if req.DiscountPercent < 1 || req.DiscountPercent > 100 {
		writeError(w, r, http.StatusBadRequest, "discountPercent must be between 1 and 100")
		return
	}

	plan := coupon.Plan(req.ValidForPlan)
	if plan == "" {
		plan = coupon.PlanAll
	}
	if plan != coupon.PlanAll && plan != coupon.PlanMonthly && plan != coupon.PlanQuarterly {
		writeError(w, r, http.StatusBadRequest, "validForPlan must be all, monthly, or quarterly")
		return
	}

	c := &coupon.Coupon{
		Code:            code,
		DiscountPercent: req.DiscountPercent,
		ValidUntil:      req.ValidUntil,
		ValidForPlan:    plan,
	}
	if err := h.couponAdmin.Create(r.Context(), c); err != nil {
		zctx.From(r.Context()).Error("create coupon", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "failed to create coupon")
		return
	}

	writeJSON(w, r, http.StatusCreated, toCouponView(*c))
}

// DeleteCoupon removes a coupon by ID.
func (h *Handler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.couponAdmin.Delete(r.Context(), id); err != nil {
		zctx.From(r.Context()).Error("delete coupon", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "failed to delete coupon")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toCouponView(c coupon.Coupon) couponView {
	return couponView{
		ID:              c.ID,
		Code:            c.Code,
		DiscountPercent: c.DiscountPercent,
		ValidUntil:      c.ValidUntil,
		ValidForPlan:    string(c.ValidForPlan),
		IsRedeemed:      c.IsRedeemed,
		RedeemedAt:      c.RedeemedAt,
		CreatedAt:       c.CreatedAt,
	}
}

type registerClientRequest struct {
	Name             string `json:"name"`
	Phone            string `json:"phone"`
	Email            string `json:"email"`
	SubscriptionType string `json:"subscriptionType"`
	HasLoyalty       bool   `json:"hasLoyalty"`
}

type clientView struct {
	ID               string    `json:"id"`
	ClientCode       string    `json:"clientCode"`
	Name             string    `json:"name"`
	Phone            string    `json:"phone"`
	Email            string    `json:"email"`
	SubscriptionType string    `json:"subscriptionType"`
	HasLoyalty       bool      `json:"hasLoyalty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// RegisterClient creates a subscriber record with a generated client code.
// A rare code collision is retried once before giving up.
func (h *Handler) RegisterClient(w http.ResponseWriter, r *http.Request) {
	var req registerClientRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed request")
		return
	}
	if req.Name == "" || req.Phone == "" || req.Email == "" || req.SubscriptionType == "" {
		writeError(w, r, http.StatusBadRequest, "name, phone, email, and subscriptionType are required")
		return
	}

	c := &client.Client{
		Name:             req.Name,
		Phone:            req.Phone,
		Email:            req.Email,
		SubscriptionType: req.SubscriptionType,
		HasLoyalty:       req.HasLoyalty,
	}

	var err error
	for range 2 {
		c.ClientCode = client.NewCode()
		if err = h.clients.Create(r.Context(), c); !errors.Is(err, client.ErrDuplicateCode) {
			break
		}
	}
	if err != nil {
		zctx.From(r.Context()).Error("register client", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "failed to register client")
		return
	}

	writeJSON(w, r, http.StatusCreated, clientView{
		ID:               c.ID,
		ClientCode:       c.ClientCode,
		Name:             c.Name,
		Phone:            c.Phone,
		Email:            c.Email,
		SubscriptionType: c.SubscriptionType,
		HasLoyalty:       c.HasLoyalty,
		CreatedAt:        c.CreatedAt,
	})
}

// ListClients returns registered clients, filterable by text match.
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.clients.List(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		zctx.From(r.Context()).Error("list clients", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "failed to list clients")
		return
	}

	out := make([]clientView, len(clients))
	for i, c := range clients {
		out[i] = clientView{
			ID:               c.ID,
			ClientCode:       c.ClientCode,
			Name:             c.Name,
			Phone:            c.Phone,
			Email:            c.Email,
			SubscriptionType: c.SubscriptionType,
			HasLoyalty:       c.HasLoyalty,
			CreatedAt:        c.CreatedAt,
		}
	}
	writeJSON(w, r, http.StatusOK, out)
}
