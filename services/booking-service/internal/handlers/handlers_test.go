package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/busy"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/timeparse"
)

type fakeBooker struct {
	out     booking.Outcome
	err     error
	lastReq booking.Request
	res     model.Reservation
}

func (f *fakeBooker) BookWithRetry(_ context.Context, req booking.Request) (booking.Outcome, error) {
	f.lastReq = req
	return f.out, f.err
}

func (f *fakeBooker) Check(_ context.Context, req booking.Request) (booking.Outcome, error) {
	f.lastReq = req
	return f.out, f.err
}

func (f *fakeBooker) Confirm(_ context.Context, id string) (model.Reservation, error) {
	return f.transition(id, model.StatusConfirmed)
}

func (f *fakeBooker) Complete(_ context.Context, id string) (model.Reservation, error) {
	return f.transition(id, model.StatusCompleted)
}

func (f *fakeBooker) Cancel(_ context.Context, id, reason string) (model.Reservation, error) {
	r, err := f.transition(id, model.StatusCancelled)
	r.CancelReason = reason
	return r, err
}

func (f *fakeBooker) transition(id string, to model.ReservationStatus) (model.Reservation, error) {
	if f.err != nil {
		return model.Reservation{}, f.err
	}
	if id != f.res.ID {
		return model.Reservation{}, booking.ErrReservationNotFound
	}
	r := f.res
	r.Status = to
	return r, nil
}

func (f *fakeBooker) Get(_ context.Context, id string) (model.Reservation, error) {
	return f.transition(id, f.res.Status)
}

func (f *fakeBooker) List(_ context.Context, subjectID string, _ int) ([]model.Reservation, error) {
	if subjectID != "detailer-1" {
		return nil, booking.ErrSubjectNotFound
	}
	return []model.Reservation{f.res}, nil
}

type subjects map[string]model.Subject

func (s subjects) GetSubject(_ context.Context, id string) (model.Subject, error) {
	sub, ok := s[id]
	if !ok {
		return model.Subject{}, model.ErrSubjectNotFound
	}
	return sub, nil
}

type noBusy struct{}

func (noBusy) Gather(context.Context, model.Subject, model.Interval) (busy.Result, error) {
	return busy.Result{}, nil
}

func newServer(b *fakeBooker) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	subs := subjects{"detailer-1": {
		ID:            "detailer-1",
		Timezone:      "America/New_York",
		BusinessHours: model.BusinessHours{time.Monday: {{Start: 9 * 60, End: 17 * 60}}},
	}}
	norm := timeparse.New(timeparse.WithClock(func() time.Time { return time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC) }))
	comp := availability.NewComputer(subs, noBusy{}, norm)
	return Routes(NewBookingHandler(b, logger), NewAvailabilityHandler(comp, subs, norm, logger))
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateBookingSuccess(t *testing.T) {
	b := &fakeBooker{out: booking.Outcome{OK: true, BookingID: "b1", StartUTCISO: "2025-03-03T14:00:00Z", EndUTCISO: "2025-03-03T16:00:00Z"}}
	rec := do(t, newServer(b), http.MethodPost, "/api/v1/bookings",
		`{"subjectId":"detailer-1","date":"tomorrow","time":"10","durationMinutes":120}`,
		map[string]string{"Idempotency-Key": "abc"})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}
	if b.lastReq.IdempotencyKey != "abc" || b.lastReq.DurationMinutes != 120 {
		t.Fatalf("request not mapped: %+v", b.lastReq)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["ok"] != true || body["bookingId"] != "b1" || body["startUtcISO"] != "2025-03-03T14:00:00Z" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestCreateBookingReplayAndConflict(t *testing.T) {
	b := &fakeBooker{out: booking.Outcome{OK: true, BookingID: "b1", Replayed: true}}
	rec := do(t, newServer(b), http.MethodPost, "/api/v1/bookings", `{"subjectId":"detailer-1","idempotencyKey":"k"}`, nil)
	if rec.Code != http.StatusCreated || rec.Header().Get(headerReplayed) != "true" {
		t.Fatalf("expected replayed 201, got %d %v", rec.Code, rec.Header())
	}

	b.out = booking.Outcome{
		Reason:      booking.ReasonConflict,
		Conflicts:   []booking.ConflictView{{Label: "Dana", Time: "2:00 PM - 4:00 PM"}},
		Suggestions: []booking.SuggestionView{{StartLocal: "Tue Mar 4, 4:00 PM", StartISO: "2025-03-04T16:00:00-05:00"}},
	}
	rec = do(t, newServer(b), http.MethodPost, "/api/v1/bookings", `{"subjectId":"detailer-1","idempotencyKey":"k2"}`, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"reason":"CONFLICT"`) || !strings.Contains(rec.Body.String(), `"startISO":"2025-03-04T16:00:00-05:00"`) {
		t.Fatalf("unexpected body %s", rec.Body)
	}
}

func TestCreateBookingErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		reason string
	}{
		{fmt.Errorf("%w: \"25:99\"", booking.ErrInvalidTimeFormat), http.StatusBadRequest, booking.ReasonInvalidInput},
		{booking.ErrInvalidDate, http.StatusBadRequest, booking.ReasonInvalidInput},
		{booking.ErrSubjectNotFound, http.StatusNotFound, booking.ReasonSubjectNotFound},
		{fmt.Errorf("%w: deadlock", booking.ErrTransientStorage), http.StatusServiceUnavailable, booking.ReasonUnavailable},
		{fmt.Errorf("%w: %w", context.DeadlineExceeded, booking.ErrTransientStorage), http.StatusGatewayTimeout, reasonTimeout},
		{fmt.Errorf("%w: %w", context.Canceled, booking.ErrTransientStorage), statusClientClosedRequest, reasonCancelled},
		{fmt.Errorf("boom"), http.StatusInternalServerError, reasonInternal},
	}
	for _, tc := range cases {
		b := &fakeBooker{err: tc.err}
		rec := do(t, newServer(b), http.MethodPost, "/api/v1/bookings", `{"subjectId":"detailer-1","idempotencyKey":"k"}`, nil)
		if rec.Code != tc.status {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.status, rec.Code)
		}
		var body errorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.OK || body.Reason != tc.reason {
			t.Fatalf("%v: unexpected body %+v", tc.err, body)
		}
	}
}

func TestCreateBookingRejectsMismatchedKeys(t *testing.T) {
	rec := do(t, newServer(&fakeBooker{}), http.MethodPost, "/api/v1/bookings",
		`{"subjectId":"detailer-1","idempotencyKey":"body"}`, map[string]string{"Idempotency-Key": "header"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	rec = do(t, newServer(&fakeBooker{}), http.MethodPost, "/api/v1/bookings", `{`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d", rec.Code)
	}
}

func TestSlotsEndpoint(t *testing.T) {
	h := newServer(&fakeBooker{})
	rec := do(t, h, http.MethodGet, "/api/v1/subjects/detailer-1/slots?date=2025-03-03&duration_minutes=60", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var body slotsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Slots) != 15 || body.Timezone != "America/New_York" {
		t.Fatalf("expected 15 slots in New York, got %d in %s", len(body.Slots), body.Timezone)
	}
	if body.Slots[0].StartUTCISO != "2025-03-03T14:00:00Z" {
		t.Fatalf("unexpected first slot %+v", body.Slots[0])
	}

	rec = do(t, h, http.MethodGet, "/api/v1/subjects/detailer-1/slots?date=2025-03-04&duration_minutes=60", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"slots":[]`) {
		t.Fatalf("expected empty Tuesday, got %d %s", rec.Code, rec.Body)
	}
	rec = do(t, h, http.MethodGet, "/api/v1/subjects/nope/slots?date=2025-03-03&duration_minutes=60", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/api/v1/subjects/detailer-1/slots?date=2025-03-03&duration_minutes=x", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	h := newServer(&fakeBooker{})
	rec := do(t, h, http.MethodPost, "/api/v1/normalize",
		`{"subjectId":"detailer-1","date":"tomorrow","time":"10","durationMinutes":120}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var body normalizeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Time != "10:00 AM" || body.Date != "2025-03-03" || !body.AmbiguousTime || body.StartUTCISO != "2025-03-03T15:00:00Z" {
		t.Fatalf("unexpected normalization %+v", body)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/normalize", `{"date":"today","time":"25:99","timezone":"UTC","durationMinutes":30}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestLifecycleEndpoints(t *testing.T) {
	b := &fakeBooker{res: model.Reservation{ID: "b1", SubjectID: "detailer-1", Status: model.StatusPending}}
	h := newServer(b)

	rec := do(t, h, http.MethodPost, "/api/v1/bookings/b1/confirm", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"confirmed"`) {
		t.Fatalf("confirm: %d %s", rec.Code, rec.Body)
	}
	rec = do(t, h, http.MethodPost, "/api/v1/bookings/b1/cancel", `{"reason":"rain"}`, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"cancelReason":"rain"`) {
		t.Fatalf("cancel: %d %s", rec.Code, rec.Body)
	}
	rec = do(t, h, http.MethodPost, "/api/v1/bookings/missing/complete", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	b.err = booking.ErrInvalidTransition
	rec = do(t, h, http.MethodPost, "/api/v1/bookings/b1/complete", "", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for invalid transition, got %d", rec.Code)
	}
	b.err = nil
	rec = do(t, h, http.MethodGet, "/api/v1/subjects/detailer-1/bookings?limit=5", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"bookingId":"b1"`) {
		t.Fatalf("list: %d %s", rec.Code, rec.Body)
	}
}

func TestUnknownRoute(t *testing.T) {
	rec := do(t, newServer(&fakeBooker{}), http.MethodGet, "/api/v1/nothing", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
