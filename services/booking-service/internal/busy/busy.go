// Package busy collects everything that makes a subject unavailable in a
// window: active reservations, internally recorded blocks and the external
// calendar. External failures degrade the result instead of failing it.
package busy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/model"
)

type Store interface {
	ListActiveReservations(ctx context.Context, subjectID string, window model.Interval) ([]model.Reservation, error)
	ListBusyBlocks(ctx context.Context, subjectID string, window model.Interval) ([]model.BusyBlock, error)
}

type Result struct {
	Blocks   []model.BusyBlock
	Degraded bool
}

type Gatherer struct {
	store  Store
	cal    calendar.Adapter
	logger *slog.Logger
}

func NewGatherer(store Store, cal calendar.Adapter, logger *slog.Logger) *Gatherer {
	if cal == nil {
		cal = calendar.Noop{}
	}
	return &Gatherer{store: store, cal: cal, logger: logger}
}

func (g *Gatherer) Gather(ctx context.Context, subject model.Subject, window model.Interval) (Result, error) {
	reservations, err := g.store.ListActiveReservations(ctx, subject.ID, window)
	if err != nil {
		return Result{}, fmt.Errorf("list reservations: %w", err)
	}
	internal, err := g.store.ListBusyBlocks(ctx, subject.ID, window)
	if err != nil {
		return Result{}, fmt.Errorf("list busy blocks: %w", err)
	}

	blocks := model.ReservationBlocks(reservations)
	blocks = append(blocks, internal...)

	external, err := g.external(ctx, subject, window)
	if err != nil {
		g.logger.Warn("external calendar unavailable; continuing without it",
			"subject_id", subject.ID, "provider", string(subject.CalendarProvider), "err", err)
		return Result{Blocks: blocks, Degraded: true}, nil
	}
	return Result{Blocks: append(blocks, external...)}, nil
}

func (g *Gatherer) external(ctx context.Context, subject model.Subject, window model.Interval) ([]model.BusyBlock, error) {
	if subject.CalendarProvider == model.CalendarNone {
		return nil, nil
	}
	creds, err := g.cal.RefreshCredentials(ctx, subject)
	if err != nil {
		return nil, err
	}
	return g.cal.FetchBusyBlocks(ctx, subject, window, creds)
}

// Overlapping returns the blocks that overlap iv.
func Overlapping(blocks []model.BusyBlock, iv model.Interval) []model.BusyBlock {
	var out []model.BusyBlock
	for _, b := range blocks {
		if b.Interval.Overlaps(iv) {
			out = append(out, b)
		}
	}
	return out
}
