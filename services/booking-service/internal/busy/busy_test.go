package busy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/model"
)

type stubStore struct {
	reservations []model.Reservation
	blocks       []model.BusyBlock
	err          error
}

func (s stubStore) ListActiveReservations(context.Context, string, model.Interval) ([]model.Reservation, error) {
	return s.reservations, s.err
}

func (s stubStore) ListBusyBlocks(context.Context, string, model.Interval) ([]model.BusyBlock, error) {
	return s.blocks, nil
}

type brokenCalendar struct{ calendar.Noop }

func (brokenCalendar) FetchBusyBlocks(context.Context, model.Subject, model.Interval, calendar.Credentials) ([]model.BusyBlock, error) {
	return nil, calendar.ErrUnavailable
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func at(h int) time.Time { return time.Date(2025, 3, 4, h, 0, 0, 0, time.UTC) }

func TestGatherMergesSourcesAndDropsInactive(t *testing.T) {
	store := stubStore{
		reservations: []model.Reservation{
			{ID: "a", Status: model.StatusPending, Interval: model.Interval{Start: at(9), End: at(10)}},
			{ID: "b", Status: model.StatusCancelled, Interval: model.Interval{Start: at(11), End: at(12)}},
		},
		blocks: []model.BusyBlock{{Interval: model.Interval{Start: at(13), End: at(14)}, Origin: model.OriginInternal}},
	}
	res, err := NewGatherer(store, nil, discard()).Gather(context.Background(), model.Subject{ID: "s"}, model.Interval{Start: at(0), End: at(23)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Degraded || len(res.Blocks) != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestGatherFailsOpenOnExternalError(t *testing.T) {
	subject := model.Subject{ID: "s", CalendarProvider: model.CalendarGoogle}
	res, err := NewGatherer(stubStore{}, brokenCalendar{}, discard()).Gather(context.Background(), subject, model.Interval{Start: at(0), End: at(23)})
	if err != nil {
		t.Fatalf("expected fail-open, got %v", err)
	}
	if !res.Degraded {
		t.Fatal("expected degraded result")
	}
}

func TestGatherPropagatesStoreError(t *testing.T) {
	boom := errors.New("db down")
	_, err := NewGatherer(stubStore{err: boom}, nil, discard()).Gather(context.Background(), model.Subject{ID: "s"}, model.Interval{Start: at(0), End: at(23)})
	if !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}
