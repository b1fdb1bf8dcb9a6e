package handler

import (
	"fmt"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/zplayer-tv/checkout-api/internal/domain/coupon"
)

type validateRequest struct {
	Code     string `json:"code"`
	PlanType string `json:"planType"`
}

type validateResponse struct {
	Valid           bool   `json:"valid"`
	Code            string `json:"code,omitempty"`
	DiscountPercent int    `json:"discountPercent,omitempty"`
	Message         string `json:"message,omitempty"`
	Error           string `json:"error,omitempty"`
}

// ValidateCoupon gives the shopper instant, non-binding feedback on a coupon
// code. The checkout endpoint re-validates independently at charge time.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, validateResponse{Valid: false, Error: "Requisição inválida"})
		return
	}

	plan, ok := coupon.ParsePlan(req.PlanType)
	if !ok {
		writeJSON(w, r, http.StatusBadRequest, validateResponse{Valid: false, Error: "Plano inválido"})
		return
	}

	res, err := h.coupons.Validate(r.Context(), req.Code, plan)
	if err != nil {
		status, msg := mapValidationError(err)
		if status == http.StatusInternalServerError {
			zctx.From(r.Context()).Error("validate coupon", zap.Error(err))
		}
		writeJSON(w, r, status, validateResponse{Valid: false, Error: msg})
		return
	}

	writeJSON(w, r, http.StatusOK, validateResponse{
		Valid:           true,
		Code:            res.Code,
		DiscountPercent: res.DiscountPercent,
		Message:         fmt.Sprintf("Cupom aplicado! %d%% de desconto", res.DiscountPercent),
	})
}

// mapValidationError converts coupon domain errors to an HTTP status and a
// user-facing message. Unknown errors fall through as internal.
func mapValidationError(err error) (int, string) {
	var pm *coupon.PlanMismatchError
	switch {
	case errors.Is(err, coupon.ErrNotFound):
		return http.StatusBadRequest, "Cupom inválido ou já utilizado"
	case errors.Is(err, coupon.ErrExpired):
		return http.StatusBadRequest, "Este cupom expirou"
	case errors.As(err, &pm):
		return http.StatusBadRequest, "Este cupom só pode ser usado no plano " + planLabel(pm.RequiredPlan)
	default:
		return http.StatusInternalServerError, "Erro ao validar cupom"
	}
}

func planLabel(p coupon.Plan) string {
	switch p {
	case coupon.PlanMonthly:
		return "mensal"
	case coupon.PlanQuarterly:
		return "trimestral"
	default:
		return string(p)
	}
}
