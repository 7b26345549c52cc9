// Package calendar talks to a subject's external calendar: it reads busy
// time for availability and conflict checks and writes committed
// reservations back. Credentials are fetched per request and never cached.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/model"
)

// ErrUnavailable wraps every adapter failure (refresh, fetch, push, timeout).
var ErrUnavailable = errors.New("external calendar unavailable")

type Credentials struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

type Adapter interface {
	RefreshCredentials(ctx context.Context, subject model.Subject) (Credentials, error)
	FetchBusyBlocks(ctx context.Context, subject model.Subject, window model.Interval, creds Credentials) ([]model.BusyBlock, error)
	PushReservation(ctx context.Context, subject model.Subject, r model.Reservation, creds Credentials) error
}

func unavailable(op string, err error) error {
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

// Noop is used for subjects without an external calendar.
type Noop struct{}

func (Noop) RefreshCredentials(context.Context, model.Subject) (Credentials, error) {
	return Credentials{}, nil
}

func (Noop) FetchBusyBlocks(context.Context, model.Subject, model.Interval, Credentials) ([]model.BusyBlock, error) {
	return nil, nil
}

func (Noop) PushReservation(context.Context, model.Subject, model.Reservation, Credentials) error {
	return nil
}

// Router dispatches on the subject's calendar provider.
type Router struct {
	adapters map[model.CalendarProvider]Adapter
}

func NewRouter(adapters map[model.CalendarProvider]Adapter) *Router {
	m := make(map[model.CalendarProvider]Adapter, len(adapters))
	for k, v := range adapters {
		if v != nil {
			m[k] = v
		}
	}
	return &Router{adapters: m}
}

func (r *Router) pick(subject model.Subject) (Adapter, error) {
	if subject.CalendarProvider == model.CalendarNone {
		return Noop{}, nil
	}
	a, ok := r.adapters[subject.CalendarProvider]
	if !ok {
		return nil, fmt.Errorf("%w: provider %q not configured", ErrUnavailable, subject.CalendarProvider)
	}
	return a, nil
}

func (r *Router) RefreshCredentials(ctx context.Context, subject model.Subject) (Credentials, error) {
	a, err := r.pick(subject)
	if err != nil {
		return Credentials{}, err
	}
	return a.RefreshCredentials(ctx, subject)
}

func (r *Router) FetchBusyBlocks(ctx context.Context, subject model.Subject, window model.Interval, creds Credentials) ([]model.BusyBlock, error) {
	a, err := r.pick(subject)
	if err != nil {
		return nil, err
	}
	return a.FetchBusyBlocks(ctx, subject, window, creds)
}

func (r *Router) PushReservation(ctx context.Context, subject model.Subject, res model.Reservation, creds Credentials) error {
	a, err := r.pick(subject)
	if err != nil {
		return err
	}
	return a.PushReservation(ctx, subject, res, creds)
}

// Bounded applies a timeout to every call of the wrapped adapter and maps
// failures onto ErrUnavailable.
type Bounded struct {
	next    Adapter
	timeout time.Duration
}

func NewBounded(next Adapter, timeout time.Duration) *Bounded {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Bounded{next: next, timeout: timeout}
}

func (b *Bounded) RefreshCredentials(ctx context.Context, subject model.Subject) (Credentials, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	creds, err := b.next.RefreshCredentials(ctx, subject)
	if err != nil {
		return Credentials{}, unavailable("refresh credentials", err)
	}
	return creds, nil
}

func (b *Bounded) FetchBusyBlocks(ctx context.Context, subject model.Subject, window model.Interval, creds Credentials) ([]model.BusyBlock, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	blocks, err := b.next.FetchBusyBlocks(ctx, subject, window, creds)
	if err != nil {
		return nil, unavailable("fetch busy blocks", err)
	}
	return blocks, nil
}

func (b *Bounded) PushReservation(ctx context.Context, subject model.Subject, r model.Reservation, creds Credentials) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	if err := b.next.PushReservation(ctx, subject, r, creds); err != nil {
		return unavailable("push reservation", err)
	}
	return nil
}

// clip keeps the part of each block inside window and drops empty ones.
func clip(blocks []model.BusyBlock, window model.Interval) []model.BusyBlock {
	out := blocks[:0]
	for _, b := range blocks {
		if !b.Interval.Overlaps(window) {
			continue
		}
		out = append(out, b)
	}
	return out
}
