package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/ride-dispatch/internal/coupon"
	"github.com/example/ride-dispatch/internal/lifecycle"
	"github.com/example/ride-dispatch/internal/payment"
	"github.com/example/ride-dispatch/internal/storage"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json;charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// writeError maps domain sentinels onto HTTP statuses. Anything unmapped is
// an internal error and gets logged with its request ID.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrAlreadyExists):
		writeMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrActiveRide):
		writeMessage(w, http.StatusTooManyRequests, "ride already in progress")
	case errors.Is(err, lifecycle.ErrInvalidTransition),
		errors.Is(err, storage.ErrNotAssigned),
		errors.Is(err, storage.ErrPaymentTokenMissing),
		errors.Is(err, coupon.ErrInvitationUnavailable):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, payment.ErrUpstream):
		writeMessage(w, http.StatusBadGateway, "payment gateway unavailable")
	default:
		s.logger.Error("request failed",
			"error", err,
			"request_id", requestIDFromContext(r.Context()),
		)
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}
