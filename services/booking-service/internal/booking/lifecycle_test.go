package booking

import (
	"context"
	"errors"
	"testing"

	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/outbox"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to model.ReservationStatus
		want     bool
	}{
		{model.StatusPending, model.StatusConfirmed, true},
		{model.StatusPending, model.StatusCancelled, true},
		{model.StatusConfirmed, model.StatusCompleted, true},
		{model.StatusConfirmed, model.StatusCancelled, true},
		{model.StatusConfirmed, model.StatusConfirmed, true},
		{model.StatusPending, model.StatusCompleted, false},
		{model.StatusCompleted, model.StatusCancelled, false},
		{model.StatusCancelled, model.StatusConfirmed, false},
		{model.StatusConfirmed, model.StatusPending, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("%s -> %s: want %v got %v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestLifecycleFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	out, err := h.coord.Book(ctx, bookReq("k", "2:00 PM", 60))
	if err != nil || !out.OK {
		t.Fatalf("book: %+v %v", out, err)
	}

	r, err := h.coord.Confirm(ctx, out.BookingID)
	if err != nil || r.Status != model.StatusConfirmed {
		t.Fatalf("confirm: %+v %v", r, err)
	}
	if _, err := h.coord.Confirm(ctx, out.BookingID); err != nil {
		t.Fatalf("repeat confirm should be a no-op, got %v", err)
	}
	r, err = h.coord.Complete(ctx, out.BookingID)
	if err != nil || r.Status != model.StatusCompleted {
		t.Fatalf("complete: %+v %v", r, err)
	}
	if _, err := h.coord.Cancel(ctx, out.BookingID, "late"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	var types []string
	for _, e := range h.store.events {
		types = append(types, e.EventType)
	}
	want := []string{outbox.TopicReservationCreated, outbox.TopicReservationConfirmed, outbox.TopicReservationCompleted}
	if len(types) != len(want) {
		t.Fatalf("want events %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("want events %v, got %v", want, types)
		}
	}

	wantSync := []string{out.BookingID + ":pending", out.BookingID + ":confirmed", out.BookingID + ":completed"}
	if len(h.sync.calls) != len(wantSync) {
		t.Fatalf("want syncs %v, got %v", wantSync, h.sync.calls)
	}
	for i := range wantSync {
		if h.sync.calls[i] != wantSync[i] {
			t.Fatalf("want syncs %v, got %v", wantSync, h.sync.calls)
		}
	}
}

func TestCancelRecordsReasonAndFreesSlot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	out, _ := h.coord.Book(ctx, bookReq("k1", "2:00 PM", 60))

	r, err := h.coord.Cancel(ctx, out.BookingID, "  customer called  ")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if r.CancelledAt == nil || r.CancelReason != "customer called" {
		t.Fatalf("unexpected cancelled reservation %+v", r)
	}
	again, err := h.coord.Book(ctx, bookReq("k2", "2:00 PM", 60))
	if err != nil || !again.OK {
		t.Fatalf("expected slot to be free, got %+v %v", again, err)
	}
}

func TestGetAndList(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.coord.Get(ctx, "missing"); !errors.Is(err, ErrReservationNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := h.coord.List(ctx, "nope", 10); !errors.Is(err, ErrSubjectNotFound) {
		t.Fatalf("expected subject not found, got %v", err)
	}
	out, _ := h.coord.Book(ctx, bookReq("k1", "9:00 AM", 60))
	list, err := h.coord.List(ctx, subjectID, 0)
	if err != nil || len(list) != 1 || list[0].ID != out.BookingID {
		t.Fatalf("unexpected list %+v %v", list, err)
	}
}
