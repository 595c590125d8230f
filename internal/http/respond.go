package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/fjod/go_cart/pricing-service/internal/domain"
	"github.com/fjod/go_cart/pricing-service/internal/repository"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

var rejectionStatus = map[domain.RejectionReason]int{
	domain.ReasonCodeRequired:       http.StatusUnprocessableEntity,
	domain.ReasonUnknownCode:        http.StatusBadRequest,
	domain.ReasonCodeInactive:       http.StatusBadRequest,
	domain.ReasonCodeNotYetStarted:  http.StatusBadRequest,
	domain.ReasonCodeExpired:        http.StatusBadRequest,
	domain.ReasonMinimumOrderNotMet: http.StatusBadRequest,
	domain.ReasonGlobalUsageLimit:   http.StatusConflict,
	domain.ReasonCustomerUsageLimit: http.StatusConflict,
}

// handleServiceError converts service errors into HTTP responses.
func handleServiceError(w http.ResponseWriter, log *zap.Logger, err error) {
	var rej *domain.RejectionError
	if errors.As(err, &rej) {
		status, ok := rejectionStatus[rej.Reason]
		if !ok {
			status = http.StatusBadRequest
		}
		resp := ErrorResponse{Error: rej.Unwrap().Error(), Code: string(rej.Reason)}
		if rej.Threshold != nil {
			resp.Details = "minimum order amount is " + rej.Threshold.String()
		}
		respondJSON(w, status, resp)
		return
	}

	switch {
	case errors.Is(err, domain.ErrInvalidQuantity):
		respondError(w, http.StatusBadRequest, "invalid_quantity", err.Error())
	case errors.Is(err, domain.ErrProductNotFound):
		respondError(w, http.StatusNotFound, "product_not_found", err.Error())
	case errors.Is(err, repository.ErrItemNotFound):
		respondError(w, http.StatusNotFound, "item_not_found", err.Error())
	case errors.Is(err, domain.ErrStorageUnavailable):
		log.Error("storage unavailable", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", "service temporarily unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		log.Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// promoOutcome is the metrics label for an apply attempt.
func promoOutcome(err error) string {
	if err == nil {
		return "applied"
	}
	var rej *domain.RejectionError
	if errors.As(err, &rej) {
		return strings.ToLower(string(rej.Reason))
	}
	return "error"
}
