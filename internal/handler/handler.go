// Package handler exposes the checkout API over HTTP.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/zplayer-tv/checkout-api/internal/domain/client"
	"github.com/zplayer-tv/checkout-api/internal/domain/coupon"
	"github.com/zplayer-tv/checkout-api/internal/domain/payment"
	"github.com/zplayer-tv/checkout-api/internal/domain/redemption"
)

// Handler wires the domain services to the HTTP surface.
type Handler struct {
	coupons     coupon.Validator
	redemptions *redemption.Service
	checkout    *payment.Service
	payments    payment.Repository
	couponAdmin coupon.AdminRepository
	clients     client.Repository
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	coupons coupon.Validator,
	redemptions *redemption.Service,
	checkout *payment.Service,
	payments payment.Repository,
	couponAdmin coupon.AdminRepository,
	clients client.Repository,
) *Handler {
	return &Handler{
		coupons:     coupons,
		redemptions: redemptions,
		checkout:    checkout,
		payments:    payments,
		couponAdmin: couponAdmin,
		clients:     clients,
	}
}

// Routes mounts the public and admin API routes. Admin routes sit behind the
// given security middleware.
func (h *Handler) Routes(security func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Post("/coupons/validate", h.ValidateCoupon)
		r.Post("/coupons/redeem", h.RedeemCoupon)
		r.Post("/checkout", h.CreateCheckout)
		r.Post("/payments/webhook", h.PaymentWebhook)

		r.Route("/admin", func(r chi.Router) {
			r.Use(security)
			r.Get("/payments", h.ListPayments)
			r.Get("/coupons", h.ListCoupons)
			r.Post("/coupons", h.CreateCoupon)
			r.Delete("/coupons/{id}", h.DeleteCoupon)
			r.Get("/clients", h.ListClients)
			r.Post("/clients", h.RegisterClient)
		})
	})

	return r
}

// errorResponse is the uniform failure body for public endpoints.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zctx.From(r.Context()).Error("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, r, status, errorResponse{Error: message})
}

// decode parses a JSON request body into dst.
func decode(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}
