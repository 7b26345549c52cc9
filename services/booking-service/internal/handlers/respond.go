package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/detailbook/libs/httpx"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/booking"
)

const (
	reasonNotFound          = "NOT_FOUND"
	reasonInvalidTransition = "INVALID_TRANSITION"
	reasonInternal          = "INTERNAL"
	reasonTimeout           = "TIMEOUT"
	reasonCancelled         = "CANCELLED"

	// statusClientClosedRequest is the de facto code for a caller that went away.
	statusClientClosedRequest = 499
)

type errorResponse struct {
	OK        bool   `json:"ok"`
	Reason    string `json:"reason"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, reason, msg string) {
	writeJSON(w, status, errorResponse{
		Reason:    reason,
		Message:   msg,
		RequestID: httpx.RequestIDFromContext(r.Context()),
	})
}

// writeDomainError maps the booking error taxonomy onto HTTP.
func writeDomainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case booking.IsValidation(err):
		writeError(w, r, http.StatusBadRequest, booking.ReasonInvalidInput, err.Error())
	case errors.Is(err, booking.ErrSubjectNotFound):
		writeError(w, r, http.StatusNotFound, booking.ReasonSubjectNotFound, err.Error())
	case errors.Is(err, booking.ErrReservationNotFound):
		writeError(w, r, http.StatusNotFound, reasonNotFound, err.Error())
	case errors.Is(err, booking.ErrInvalidTransition):
		writeError(w, r, http.StatusConflict, reasonInvalidTransition, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("request deadline exceeded", "path", r.URL.Path, "err", err)
		writeError(w, r, http.StatusGatewayTimeout, reasonTimeout, "request timed out")
	case errors.Is(err, context.Canceled):
		logger.Info("request cancelled by caller", "path", r.URL.Path, "err", err)
		writeError(w, r, statusClientClosedRequest, reasonCancelled, "request cancelled")
	case booking.IsTransient(err):
		logger.Warn("storage unavailable", "path", r.URL.Path, "err", err)
		w.Header().Set("Retry-After", "1")
		writeError(w, r, http.StatusServiceUnavailable, booking.ReasonUnavailable, "storage temporarily unavailable, retry later")
	default:
		logger.Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, r, http.StatusInternalServerError, reasonInternal, "internal error")
	}
}
