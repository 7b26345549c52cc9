package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/timeparse"
)

type SlotComputer interface {
	Compute(ctx context.Context, q availability.Query) (availability.Availability, error)
}

type SubjectSource interface {
	GetSubject(ctx context.Context, subjectID string) (model.Subject, error)
}

type AvailabilityHandler struct {
	slots      SlotComputer
	subjects   SubjectSource
	normalizer *timeparse.Normalizer
	logger     *slog.Logger
	maxSlots   int
}

func NewAvailabilityHandler(slots SlotComputer, subjects SubjectSource, normalizer *timeparse.Normalizer, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{slots: slots, subjects: subjects, normalizer: normalizer, logger: logger, maxSlots: 200}
}

type slotItem struct {
	StartUTCISO string `json:"startUtcISO"`
	EndUTCISO   string `json:"endUtcISO"`
	Label       string `json:"label"`
}

type slotsResponse struct {
	SubjectID string     `json:"subjectId"`
	Date      string     `json:"date"`
	Timezone  string     `json:"timezone"`
	Degraded  bool       `json:"degraded"`
	Slots     []slotItem `json:"slots"`
}

func (h *AvailabilityHandler) Slots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	duration, err := intParam(q.Get("duration_minutes"), 0)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, booking.ReasonInvalidInput, "invalid duration_minutes")
		return
	}
	buffer, err := intParam(q.Get("buffer_minutes"), 0)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, booking.ReasonInvalidInput, "invalid buffer_minutes")
		return
	}

	avail, err := h.slots.Compute(r.Context(), availability.Query{
		SubjectID: chi.URLParam(r, "subjectID"),
		Date:      q.Get("date"),
		Timezone:  q.Get("timezone"),
		Duration:  time.Duration(duration) * time.Minute,
		Buffer:    time.Duration(buffer) * time.Minute,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	resp := slotsResponse{
		SubjectID: avail.SubjectID,
		Date:      avail.Date,
		Degraded:  avail.Degraded,
		Slots:     []slotItem{},
	}
	if avail.Location != nil {
		resp.Timezone = avail.Location.String()
	}
	for s := range avail.Slots() {
		if len(resp.Slots) >= h.maxSlots {
			break
		}
		resp.Slots = append(resp.Slots, slotItem{
			StartUTCISO: s.Interval.Start.UTC().Format(time.RFC3339),
			EndUTCISO:   s.Interval.End.UTC().Format(time.RFC3339),
			Label:       s.Label,
		})
	}
	if avail.Degraded {
		w.Header().Set(headerDegraded, "true")
	}
	writeJSON(w, http.StatusOK, resp)
}

type normalizeRequest struct {
	SubjectID       string `json:"subjectId"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	Timezone        string `json:"timezone"`
	DurationMinutes int    `json:"durationMinutes"`
}

type normalizeResponse struct {
	OK            bool   `json:"ok"`
	StartUTCISO   string `json:"startUtcISO"`
	EndUTCISO     string `json:"endUtcISO"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	Timezone      string `json:"timezone"`
	StartLabel    string `json:"startLabel"`
	EndLabel      string `json:"endLabel"`
	AmbiguousTime bool   `json:"ambiguousTime"`
}

// Normalize shows how free-form date and time input would be read, so a
// caller can confirm with the user before booking.
func (h *AvailabilityHandler) Normalize(w http.ResponseWriter, r *http.Request) {
	var req normalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, booking.ReasonInvalidInput, "invalid json body")
		return
	}
	tz := strings.TrimSpace(req.Timezone)
	if tz == "" && strings.TrimSpace(req.SubjectID) != "" {
		subject, err := h.subjects.GetSubject(r.Context(), strings.TrimSpace(req.SubjectID))
		if err != nil {
			writeDomainError(w, r, h.logger, err)
			return
		}
		tz = subject.Timezone
	}

	res, err := h.normalizer.Normalize(timeparse.Request{
		Date:            req.Date,
		Time:            req.Time,
		Timezone:        tz,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, normalizeResponse{
		OK:            true,
		StartUTCISO:   res.Start.Format(time.RFC3339),
		EndUTCISO:     res.End.Format(time.RFC3339),
		Date:          res.Date,
		Time:          res.Time,
		Timezone:      res.Location.String(),
		StartLabel:    res.StartLabel,
		EndLabel:      res.EndLabel,
		AmbiguousTime: res.Ambiguous,
	})
}
