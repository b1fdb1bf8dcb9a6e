package handler

import (
	"net"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/zplayer-tv/checkout-api/internal/domain/redemption"
	"github.com/zplayer-tv/checkout-api/internal/fingerprint"
)

type redeemRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	// IPAddress may be supplied by a trusted frontend proxy; when absent the
	// connection's client IP is used.
	IPAddress string `json:"ipAddress,omitempty"`
	// DeviceFingerprint is the pre-hashed identifier computed client-side.
	DeviceFingerprint string `json:"deviceFingerprint,omitempty"`
	// Device carries the raw attributes for server-side fingerprinting when
	// no pre-hashed value is available.
	Device *fingerprint.Attributes `json:"device,omitempty"`
}

type redeemResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RedeemCoupon claims a single-use giveaway coupon for the caller's phone
// number, gated by origin and device identity signals.
func (h *Handler) RedeemCoupon(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, redeemResponse{Error: "Requisição inválida"})
		return
	}

	origin := req.IPAddress
	if origin == "" {
		origin = clientIP(r)
	}

	fp := req.DeviceFingerprint
	if fp == "" && req.Device != nil {
		fp = fingerprint.Generate(*req.Device)
	}
	if fp == "" {
		writeJSON(w, r, http.StatusBadRequest, redeemResponse{Error: "Identificação do dispositivo ausente"})
		return
	}

	code, err := h.redemptions.Redeem(r.Context(), req.PhoneNumber, origin, fp)
	if err != nil {
		status, msg := mapRedemptionError(err)
		if status == http.StatusInternalServerError {
			zctx.From(r.Context()).Error("redeem coupon", zap.Error(err))
		}
		writeJSON(w, r, status, redeemResponse{Error: msg})
		return
	}

	writeJSON(w, r, http.StatusOK, redeemResponse{
		Success: true,
		Code:    code,
		Message: "Cupom resgatado com sucesso!",
	})
}

// mapRedemptionError converts redemption domain errors to an HTTP status and
// a user-facing message.
func mapRedemptionError(err error) (int, string) {
	var ar *redemption.AlreadyRedeemedError
	switch {
	case errors.Is(err, redemption.ErrInvalidPhone):
		return http.StatusBadRequest, "Número de celular inválido"
	case errors.Is(err, redemption.ErrRateLimited):
		return http.StatusTooManyRequests, "Muitas tentativas. Tente novamente mais tarde."
	case errors.As(err, &ar):
		if ar.Reason == redemption.ReasonDevice {
			return http.StatusBadRequest, "Este dispositivo já resgatou um cupom."
		}
		return http.StatusBadRequest, "Este endereço já resgatou um cupom."
	case errors.Is(err, redemption.ErrSoldOut):
		return http.StatusBadRequest, "Não há cupons disponíveis no momento"
	default:
		return http.StatusInternalServerError, "Erro inesperado ao processar solicitação"
	}
}

// clientIP extracts the caller's network origin, preferring proxy headers.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
