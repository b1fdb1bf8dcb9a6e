package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/zplayer-tv/checkout-api/internal/domain/payment"
)

// checkoutRequest deliberately has no discount field. A client-sent
// discountPercent is never decoded: the server's own coupon lookup is the
// only input to pricing.
type checkoutRequest struct {
	PlanType   string `json:"planType"`
	CouponCode string `json:"couponCode,omitempty"`
	Whatsapp   string `json:"whatsapp"`
	Email      string `json:"email"`
}

type checkoutResponse struct {
	PreferenceID string `json:"preferenceId"`
	InitPoint    string `json:"initPoint"`
}

// CreateCheckout computes the authoritative price for the selected plan,
// opens a gateway session, and returns the redirect URL.
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Requisição inválida")
		return
	}

	result, err := h.checkout.CreateCheckout(r.Context(), payment.CheckoutRequest{
		PlanType:   req.PlanType,
		CouponCode: req.CouponCode,
		Whatsapp:   req.Whatsapp,
		Email:      req.Email,
	})
	if err != nil {
		var invalid *payment.InvalidInputError
		if errors.As(err, &invalid) {
			writeError(w, r, http.StatusBadRequest, invalid.Error())
			return
		}
		zctx.From(r.Context()).Error("create checkout", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "Erro ao criar pagamento")
		return
	}

	writeJSON(w, r, http.StatusOK, checkoutResponse{
		PreferenceID: result.PreferenceID,
		InitPoint:    result.InitPoint,
	})
}

type webhookRequest struct {
	PreferenceID string `json:"preferenceId"`
	Status       string `json:"status"`
}

// PaymentWebhook receives the provider's asynchronous status callback and
// updates the matching payment records. Deliveries are at-least-once; the
// update is idempotent.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := decode(r, &req); err != nil || req.PreferenceID == "" {
		writeError(w, r, http.StatusBadRequest, "malformed webhook payload")
		return
	}

	status, ok := mapProviderStatus(req.Status)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "unknown payment status")
		return
	}

	if err := h.payments.UpdateStatusByPreference(r.Context(), req.PreferenceID, status); err != nil {
		zctx.From(r.Context()).Error("update payment status", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "failed to update payment")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// mapProviderStatus folds the provider's status vocabulary into ours.
func mapProviderStatus(s string) (payment.Status, bool) {
	switch s {
	case "approved":
		return payment.StatusApproved, true
	case "rejected", "cancelled":
		return payment.StatusRejected, true
	case "pending", "in_process":
		return payment.StatusPending, true
	default:
		return "", false
	}
}
