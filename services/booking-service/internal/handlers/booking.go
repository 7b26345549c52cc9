package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/model"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
	headerDegraded       = "X-Calendar-Degraded"
)

type Booker interface {
	BookWithRetry(ctx context.Context, req booking.Request) (booking.Outcome, error)
	Check(ctx context.Context, req booking.Request) (booking.Outcome, error)
	Confirm(ctx context.Context, reservationID string) (model.Reservation, error)
	Complete(ctx context.Context, reservationID string) (model.Reservation, error)
	Cancel(ctx context.Context, reservationID, reason string) (model.Reservation, error)
	Get(ctx context.Context, reservationID string) (model.Reservation, error)
	List(ctx context.Context, subjectID string, limit int) ([]model.Reservation, error)
}

type BookingHandler struct {
	booker Booker
	logger *slog.Logger
}

func NewBookingHandler(booker Booker, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{booker: booker, logger: logger}
}

type createBookingRequest struct {
	SubjectID       string `json:"subjectId"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"durationMinutes"`
	Timezone        string `json:"timezone"`
	IdempotencyKey  string `json:"idempotencyKey"`
	Source          string `json:"source"`
	CustomerName    string `json:"customerName"`
	CustomerPhone   string `json:"customerPhone"`
	CustomerEmail   string `json:"customerEmail"`
	Notes           string `json:"notes"`
}

type cancelBookingRequest struct {
	Reason string `json:"reason"`
}

type reservationItem struct {
	BookingID     string `json:"bookingId"`
	SubjectID     string `json:"subjectId"`
	StartUTCISO   string `json:"startUtcISO"`
	EndUTCISO     string `json:"endUtcISO"`
	Status        string `json:"status"`
	Source        string `json:"source,omitempty"`
	CustomerName  string `json:"customerName,omitempty"`
	CustomerPhone string `json:"customerPhone,omitempty"`
	CustomerEmail string `json:"customerEmail,omitempty"`
	Notes         string `json:"notes,omitempty"`
	CancelledAt   string `json:"cancelledAt,omitempty"`
	CancelReason  string `json:"cancelReason,omitempty"`
	CreatedAt     string `json:"createdAt"`
}

type listReservationsResponse struct {
	SubjectID string            `json:"subjectId"`
	Bookings  []reservationItem `json:"bookings"`
}

func toItem(r model.Reservation) reservationItem {
	item := reservationItem{
		BookingID:     r.ID,
		SubjectID:     r.SubjectID,
		StartUTCISO:   r.Interval.Start.UTC().Format(time.RFC3339),
		EndUTCISO:     r.Interval.End.UTC().Format(time.RFC3339),
		Status:        string(r.Status),
		Source:        r.Source,
		CustomerName:  r.CustomerName,
		CustomerPhone: r.CustomerPhone,
		CustomerEmail: r.CustomerEmail,
		Notes:         r.Notes,
		CancelReason:  r.CancelReason,
		CreatedAt:     r.CreatedAt.UTC().Format(time.RFC3339),
	}
	if r.CancelledAt != nil {
		item.CancelledAt = r.CancelledAt.UTC().Format(time.RFC3339)
	}
	return item
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, booking.ReasonInvalidInput, "invalid json body")
		return
	}
	if key := strings.TrimSpace(r.Header.Get(headerIdempotencyKey)); key != "" {
		if req.IdempotencyKey != "" && req.IdempotencyKey != key {
			writeError(w, r, http.StatusBadRequest, booking.ReasonInvalidInput, "idempotency key in header and body differ")
			return
		}
		req.IdempotencyKey = key
	}

	out, err := h.booker.BookWithRetry(r.Context(), booking.Request{
		SubjectID:       strings.TrimSpace(req.SubjectID),
		Date:            req.Date,
		Time:            req.Time,
		Timezone:        strings.TrimSpace(req.Timezone),
		DurationMinutes: req.DurationMinutes,
		IdempotencyKey:  strings.TrimSpace(req.IdempotencyKey),
		Source:          strings.TrimSpace(req.Source),
		CustomerName:    strings.TrimSpace(req.CustomerName),
		CustomerPhone:   strings.TrimSpace(req.CustomerPhone),
		CustomerEmail:   strings.TrimSpace(req.CustomerEmail),
		Notes:           strings.TrimSpace(req.Notes),
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	h.writeOutcome(w, r, out, http.StatusCreated)
}

// Conflicts previews a booking: it returns what a POST would answer right
// now without committing anything.
func (h *BookingHandler) Conflicts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	duration, err := intParam(q.Get("duration_minutes"), 0)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, booking.ReasonInvalidInput, "invalid duration_minutes")
		return
	}
	out, err := h.booker.Check(r.Context(), booking.Request{
		SubjectID:       chi.URLParam(r, "subjectID"),
		Date:            q.Get("date"),
		Time:            q.Get("time"),
		Timezone:        q.Get("timezone"),
		DurationMinutes: duration,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	h.writeOutcome(w, r, out, http.StatusOK)
}

func (h *BookingHandler) writeOutcome(w http.ResponseWriter, r *http.Request, out booking.Outcome, okStatus int) {
	body, err := out.Encode()
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	if out.Replayed {
		w.Header().Set(headerReplayed, "true")
	}
	if out.Degraded {
		w.Header().Set(headerDegraded, "true")
	}
	status := okStatus
	if errors.Is(out.Err(), booking.ErrConflict) {
		status = http.StatusConflict
	}
	writeRaw(w, status, append(body, '\n'))
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	res, err := h.booker.Get(r.Context(), chi.URLParam(r, "bookingID"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toItem(res))
}

func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.booker.Confirm)
}

func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.booker.Complete)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, booking.ReasonInvalidInput, "invalid json body")
		return
	}
	h.transition(w, r, func(ctx context.Context, id string) (model.Reservation, error) {
		return h.booker.Cancel(ctx, id, req.Reason)
	})
}

func (h *BookingHandler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (model.Reservation, error)) {
	res, err := fn(r.Context(), chi.URLParam(r, "bookingID"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toItem(res))
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")
	limit, err := intParam(r.URL.Query().Get("limit"), 0)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, booking.ReasonInvalidInput, "invalid limit")
		return
	}
	list, err := h.booker.List(r.Context(), subjectID, limit)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	resp := listReservationsResponse{SubjectID: subjectID, Bookings: make([]reservationItem, 0, len(list))}
	for _, res := range list {
		resp.Bookings = append(resp.Bookings, toItem(res))
	}
	writeJSON(w, http.StatusOK, resp)
}

func intParam(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
