// Package calsync writes reservations to external calendars out of band.
// The booking response never waits on the provider; a queued task retries
// with asynq's backoff until the push lands or the retry budget runs out.
package calsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/model"
)

const TypeSyncReservation = "calendar:sync_reservation"

// Payload names the reservation and the status that triggered the sync. The
// worker still pushes whatever state the row holds when it runs.
type Payload struct {
	SubjectID     string                  `json:"subject_id"`
	ReservationID string                  `json:"reservation_id"`
	Status        model.ReservationStatus `json:"status,omitempty"`
}

func NewSyncTask(subjectID, reservationID string, status model.ReservationStatus) (*asynq.Task, error) {
	b, err := json.Marshal(Payload{SubjectID: subjectID, ReservationID: reservationID, Status: status})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSyncReservation, b), nil
}

// TaskID dedupes repeated dispatches of one transition. asynq holds an id
// while the task is queued, running or archived, so each status gets its own.
func TaskID(reservationID string, status model.ReservationStatus) string {
	return "calsync:" + reservationID + ":" + string(status)
}

type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type Dispatcher struct {
	client   Enqueuer
	queue    string
	maxRetry int
	timeout  time.Duration
}

func NewDispatcher(client Enqueuer, queue string, maxRetry int) *Dispatcher {
	if queue == "" {
		queue = "calendar"
	}
	if maxRetry <= 0 {
		maxRetry = 8
	}
	return &Dispatcher{client: client, queue: queue, maxRetry: maxRetry, timeout: 30 * time.Second}
}

// EnqueueReservationSync schedules a push for the status the reservation
// just reached. A duplicate of the same transition is already covered.
func (d *Dispatcher) EnqueueReservationSync(ctx context.Context, subjectID, reservationID string, status model.ReservationStatus) error {
	task, err := NewSyncTask(subjectID, reservationID, status)
	if err != nil {
		return err
	}
	_, err = d.client.EnqueueContext(ctx, task,
		asynq.TaskID(TaskID(reservationID, status)),
		asynq.Queue(d.queue),
		asynq.MaxRetry(d.maxRetry),
		asynq.Timeout(d.timeout),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

type Store interface {
	GetSubject(ctx context.Context, subjectID string) (model.Subject, error)
	GetReservation(ctx context.Context, reservationID string) (model.Reservation, error)
}

type Handler struct {
	store   Store
	adapter calendar.Adapter
	logger  *slog.Logger
}

func NewHandler(store Store, adapter calendar.Adapter, logger *slog.Logger) *Handler {
	return &Handler{store: store, adapter: adapter, logger: logger}
}

// ProcessTask pushes the reservation's current state. Missing rows are
// dropped without retry; provider failures are returned so asynq retries.
// Tasks for one reservation can run concurrently, so after writing an event
// the row is read again and a cancel that landed meanwhile is pushed too.
func (h *Handler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var p Payload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	subject, err := h.store.GetSubject(ctx, p.SubjectID)
	if errors.Is(err, model.ErrSubjectNotFound) {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}
	if subject.CalendarProvider == model.CalendarNone {
		return nil
	}
	res, err := h.store.GetReservation(ctx, p.ReservationID)
	if errors.Is(err, model.ErrReservationNotFound) {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}

	creds, err := h.adapter.RefreshCredentials(ctx, subject)
	if err != nil {
		return err
	}
	if err := h.push(ctx, subject, res, creds); err != nil {
		return err
	}
	if res.Status == model.StatusCancelled {
		return nil
	}

	latest, err := h.store.GetReservation(ctx, p.ReservationID)
	if err != nil {
		return err
	}
	if latest.Status == model.StatusCancelled {
		return h.push(ctx, subject, latest, creds)
	}
	return nil
}

func (h *Handler) push(ctx context.Context, subject model.Subject, res model.Reservation, creds calendar.Credentials) error {
	if err := h.adapter.PushReservation(ctx, subject, res, creds); err != nil {
		h.logger.Warn("calendar push failed", "subject_id", subject.ID, "reservation_id", res.ID,
			"provider", string(subject.CalendarProvider), "err", err)
		return err
	}
	h.logger.Info("calendar synced", "subject_id", subject.ID, "reservation_id", res.ID, "status", string(res.Status))
	return nil
}

// NewServer builds the asynq worker server for the calendar queue.
func NewServer(redisOpt asynq.RedisConnOpt, queue string, concurrency int, logger *slog.Logger) *asynq.Server {
	if queue == "" {
		queue = "calendar"
	}
	if concurrency <= 0 {
		concurrency = 5
	}
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error("calendar sync task failed", "type", task.Type(), "err", err)
		}),
	})
}

func NewServeMux(h *Handler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeSyncReservation, h)
	return mux
}
