package booking

import (
	"context"
	"fmt"
	"strings"

	otelx "github.com/md-rashed-zaman/detailbook/libs/otel"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/outbox"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

// CanTransition reports whether a reservation may move from one status to
// another. Moving to the current status is allowed and changes nothing.
func CanTransition(from, to model.ReservationStatus) bool {
	if from == to {
		return true
	}
	switch to {
	case model.StatusConfirmed:
		return from == model.StatusPending
	case model.StatusCompleted:
		return from == model.StatusConfirmed
	case model.StatusCancelled:
		return from.Active()
	}
	return false
}

func (c *Coordinator) Confirm(ctx context.Context, reservationID string) (model.Reservation, error) {
	return c.transition(ctx, reservationID, model.StatusConfirmed, "")
}

func (c *Coordinator) Complete(ctx context.Context, reservationID string) (model.Reservation, error) {
	return c.transition(ctx, reservationID, model.StatusCompleted, "")
}

// Cancel frees the reservation's interval for new bookings.
func (c *Coordinator) Cancel(ctx context.Context, reservationID, reason string) (model.Reservation, error) {
	return c.transition(ctx, reservationID, model.StatusCancelled, strings.TrimSpace(reason))
}

func (c *Coordinator) Get(ctx context.Context, reservationID string) (model.Reservation, error) {
	if strings.TrimSpace(reservationID) == "" {
		return model.Reservation{}, fmt.Errorf("%w: missing reservation id", ErrInvalidInput)
	}
	return c.store.GetReservation(ctx, reservationID)
}

func (c *Coordinator) List(ctx context.Context, subjectID string, limit int) ([]model.Reservation, error) {
	if strings.TrimSpace(subjectID) == "" {
		return nil, fmt.Errorf("%w: missing subject id", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if _, err := c.store.GetSubject(ctx, subjectID); err != nil {
		return nil, err
	}
	return c.store.ListReservations(ctx, subjectID, limit)
}

func (c *Coordinator) transition(ctx context.Context, reservationID string, to model.ReservationStatus, reason string) (res model.Reservation, err error) {
	ctx, span := otelx.StartSpan(ctx, tracerName, "booking.transition",
		trace.WithAttributes(attribute.String("reservation.id", reservationID), attribute.String("reservation.to", string(to))))
	defer func() { otelx.EndSpan(span, err) }()

	if strings.TrimSpace(reservationID) == "" {
		return model.Reservation{}, fmt.Errorf("%w: missing reservation id", ErrInvalidInput)
	}
	changedAny := false
	res, err = c.store.TransitionReservation(ctx, reservationID, func(cur model.Reservation) (model.Reservation, bool, *outbox.Event, error) {
		if !CanTransition(cur.Status, to) {
			return cur, false, nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, to)
		}
		if cur.Status == to {
			return cur, false, nil, nil
		}
		now := c.normalizer.Now()
		next := cur
		next.Status = to
		next.UpdatedAt = now
		if to == model.StatusCancelled {
			next.CancelledAt = &now
			next.CancelReason = reason
		}
		evt, err := outbox.ReservationEvent(outbox.TopicForStatus(to), next, now)
		if err != nil {
			return cur, false, nil, err
		}
		changedAny = true
		return next, true, &evt, nil
	})
	if err != nil {
		return model.Reservation{}, err
	}
	if changedAny {
		c.logger.Info("reservation transitioned", "reservation_id", res.ID, "subject_id", res.SubjectID, "status", string(res.Status))
		c.dispatchSync(ctx, res)
	}
	return res, nil
}
