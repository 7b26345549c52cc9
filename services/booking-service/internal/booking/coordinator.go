// Package booking commits reservations with at-most-one-winner semantics
// under concurrent and retried requests.
//
// A request runs an advisory conflict check against current state, then a
// single commit transaction that claims the idempotency key and inserts the
// reservation under the storage exclusion constraint. Whatever terminal
// outcome a key reaches first (booked or conflict) is stored and replayed.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	otelx "github.com/md-rashed-zaman/detailbook/libs/otel"
	"github.com/md-rashed-zaman/detailbook/libs/retry"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/suggest"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/timeparse"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "booking-service/booking"

type Phase string

const (
	PhaseAdvisoryCheck Phase = "ADVISORY_CHECK"
	PhaseCommit        Phase = "COMMIT"
)

// PhaseHook is called as a request enters each phase.
type PhaseHook func(ctx context.Context, phase Phase, key string)

type ConflictChecker interface {
	Check(ctx context.Context, subject model.Subject, candidate model.Interval, loc *time.Location) (conflict.Report, error)
}

type Request struct {
	SubjectID       string
	Date            string
	Time            string
	Timezone        string
	DurationMinutes int
	IdempotencyKey  string
	Source          string
	CustomerName    string
	CustomerPhone   string
	CustomerEmail   string
	Notes           string
}

type Config struct {
	IdempotencyTTL  time.Duration
	InitialStatus   model.ReservationStatus
	SuggestionCount int
	Retry           retry.Policy
}

type Coordinator struct {
	store      Store
	normalizer *timeparse.Normalizer
	detector   ConflictChecker
	cache      OutcomeCache
	sync       SyncDispatcher
	logger     *slog.Logger
	cfg        Config
	hook       PhaseHook
	newID      func() string
}

type Option func(*Coordinator)

func WithCache(c OutcomeCache) Option {
	return func(co *Coordinator) {
		if c != nil {
			co.cache = c
		}
	}
}

func WithSyncDispatcher(d SyncDispatcher) Option {
	return func(co *Coordinator) {
		if d != nil {
			co.sync = d
		}
	}
}

func WithPhaseHook(h PhaseHook) Option {
	return func(co *Coordinator) { co.hook = h }
}

func WithIDGenerator(fn func() string) Option {
	return func(co *Coordinator) {
		if fn != nil {
			co.newID = fn
		}
	}
}

func NewCoordinator(store Store, normalizer *timeparse.Normalizer, detector ConflictChecker, logger *slog.Logger, cfg Config, opts ...Option) *Coordinator {
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	if !cfg.InitialStatus.Active() {
		cfg.InitialStatus = model.StatusPending
	}
	if cfg.SuggestionCount <= 0 {
		cfg.SuggestionCount = suggest.DefaultCount
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.Default()
	}
	c := &Coordinator{
		store:      store,
		normalizer: normalizer,
		detector:   detector,
		cache:      noCache{},
		sync:       noSync{},
		logger:     logger,
		cfg:        cfg,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ScopedKey namespaces a caller key by subject so two subjects never share one.
// The subject id is length-prefixed because either part may contain "/".
func ScopedKey(subjectID, key string) string {
	return strconv.Itoa(len(subjectID)) + ":" + subjectID + "/" + key
}

func (r Request) validate() error {
	var missing []string
	if strings.TrimSpace(r.SubjectID) == "" {
		missing = append(missing, "subjectId")
	}
	if strings.TrimSpace(r.IdempotencyKey) == "" {
		missing = append(missing, "idempotencyKey")
	}
	if strings.TrimSpace(r.Date) == "" {
		missing = append(missing, "date")
	}
	if strings.TrimSpace(r.Time) == "" {
		missing = append(missing, "time")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidInput, strings.Join(missing, ", "))
	}
	if len(r.IdempotencyKey) > 200 {
		return fmt.Errorf("%w: idempotencyKey too long", ErrInvalidInput)
	}
	return nil
}

// BookWithRetry is Book with exponential backoff on transient storage errors.
func (c *Coordinator) BookWithRetry(ctx context.Context, req Request) (Outcome, error) {
	policy := c.cfg.Retry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		c.logger.Warn("booking attempt failed; retrying",
			"subject_id", req.SubjectID, "attempt", attempt, "delay_ms", delay.Milliseconds(), "err", err)
	}
	return retry.Do(ctx, policy, IsTransient, func(ctx context.Context) (Outcome, error) {
		return c.Book(ctx, req)
	})
}

func (c *Coordinator) Book(ctx context.Context, req Request) (out Outcome, err error) {
	ctx, span := otelx.StartSpan(ctx, tracerName, "booking.book",
		trace.WithAttributes(attribute.String("subject.id", req.SubjectID)))
	defer func() {
		span.SetAttributes(attribute.Bool("booking.ok", out.OK), attribute.Bool("booking.replayed", out.Replayed))
		otelx.EndSpan(span, err)
	}()

	if err := req.validate(); err != nil {
		return Outcome{}, err
	}
	key := ScopedKey(req.SubjectID, req.IdempotencyKey)

	if prior, ok, err := c.lookup(ctx, key); err != nil {
		return Outcome{}, err
	} else if ok {
		return prior, nil
	}

	subject, norm, err := c.prepare(ctx, req)
	if err != nil {
		return Outcome{}, err
	}
	candidate := model.Interval{Start: norm.Start, End: norm.End}

	c.enter(ctx, PhaseAdvisoryCheck, key)
	report, err := c.detector.Check(ctx, subject, candidate, norm.Location)
	if err != nil {
		return Outcome{}, err
	}
	if report.HasConflict() {
		return c.recordConflict(ctx, key, candidate, norm.Location, report)
	}

	c.enter(ctx, PhaseCommit, key)
	now := c.normalizer.Now()
	reservation := model.Reservation{
		ID:            c.newID(),
		SubjectID:     subject.ID,
		Interval:      candidate,
		Status:        c.cfg.InitialStatus,
		Source:        req.Source,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		CustomerEmail: req.CustomerEmail,
		Notes:         req.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	success := Outcome{
		OK:            true,
		BookingID:     reservation.ID,
		StartUTCISO:   isoUTC(candidate.Start),
		EndUTCISO:     isoUTC(candidate.End),
		Status:        string(reservation.Status),
		AmbiguousTime: norm.Ambiguous,
	}
	payload, err := success.Encode()
	if err != nil {
		return Outcome{}, err
	}
	evt, err := outbox.ReservationEvent(outbox.TopicReservationCreated, reservation, now)
	if err != nil {
		return Outcome{}, err
	}

	rec, inserted, err := c.store.CommitReservation(ctx, Commit{
		Key:         key,
		Reservation: reservation,
		Payload:     payload,
		Event:       evt,
		TTL:         c.cfg.IdempotencyTTL,
	})
	if errors.Is(err, model.ErrOverlap) {
		return c.lostRace(ctx, key, subject, candidate, norm.Location)
	}
	if err != nil {
		return Outcome{}, err
	}

	out, err = c.finish(ctx, rec, inserted)
	if err != nil {
		return Outcome{}, err
	}
	out.Degraded = report.Degraded
	if inserted {
		c.logger.Info("reservation committed",
			"subject_id", subject.ID, "reservation_id", reservation.ID,
			"start", candidate.Start, "end", candidate.End, "degraded", report.Degraded)
		c.dispatchSync(ctx, reservation)
	}
	return out, nil
}

// lostRace handles an exclusion violation at commit time: another request
// committed an overlapping reservation after our advisory check passed.
func (c *Coordinator) lostRace(ctx context.Context, key string, subject model.Subject, candidate model.Interval, loc *time.Location) (Outcome, error) {
	report, err := c.detector.Check(ctx, subject, candidate, loc)
	if err != nil {
		return Outcome{}, err
	}
	if !report.HasConflict() {
		// The winner is gone again (cancelled in between); let the retry wrapper take another pass.
		return Outcome{}, fmt.Errorf("%w: overlap no longer visible after commit rejection", ErrTransientStorage)
	}
	c.logger.Info("lost commit race", "subject_id", subject.ID, "start", candidate.Start)
	return c.recordConflict(ctx, key, candidate, loc, report)
}

// Check reports what Book would decide for req right now. Nothing is
// written and the idempotency key is not required.
func (c *Coordinator) Check(ctx context.Context, req Request) (out Outcome, err error) {
	ctx, span := otelx.StartSpan(ctx, tracerName, "booking.check",
		trace.WithAttributes(attribute.String("subject.id", req.SubjectID)))
	defer func() { otelx.EndSpan(span, err) }()

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = "check"
	}
	if err := req.validate(); err != nil {
		return Outcome{}, err
	}
	subject, norm, err := c.prepare(ctx, req)
	if err != nil {
		return Outcome{}, err
	}
	candidate := model.Interval{Start: norm.Start, End: norm.End}
	report, err := c.detector.Check(ctx, subject, candidate, norm.Location)
	if err != nil {
		return Outcome{}, err
	}
	if report.HasConflict() {
		out = c.conflictOutcome(candidate, norm.Location, report)
	} else {
		out = Outcome{
			OK:            true,
			StartUTCISO:   isoUTC(candidate.Start),
			EndUTCISO:     isoUTC(candidate.End),
			AmbiguousTime: norm.Ambiguous,
		}
	}
	out.Degraded = report.Degraded
	return out, nil
}

// prepare loads the subject and normalizes the requested time, defaulting
// the timezone to the subject's.
func (c *Coordinator) prepare(ctx context.Context, req Request) (model.Subject, timeparse.Result, error) {
	subject, err := c.store.GetSubject(ctx, req.SubjectID)
	if err != nil {
		return model.Subject{}, timeparse.Result{}, err
	}
	tz := req.Timezone
	if tz == "" {
		tz = subject.Timezone
	}
	norm, err := c.normalizer.Normalize(timeparse.Request{
		Date:            req.Date,
		Time:            req.Time,
		Timezone:        tz,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		return model.Subject{}, timeparse.Result{}, err
	}
	return subject, norm, nil
}

func (c *Coordinator) conflictOutcome(candidate model.Interval, loc *time.Location, report conflict.Report) Outcome {
	duration := candidate.Duration()
	after := report.LatestEnd()
	suggestions := suggest.GenerateAvoiding(after, duration, c.cfg.SuggestionCount, loc, report.Busy, suggest.Lookahead)
	if len(suggestions) == 0 {
		suggestions = suggest.Generate(after, duration, c.cfg.SuggestionCount, loc)
	}
	return Outcome{
		OK:          false,
		Reason:      ReasonConflict,
		Conflicts:   conflictViews(report.Conflicts),
		Suggestions: suggestionViews(suggestions),
	}
}

func (c *Coordinator) recordConflict(ctx context.Context, key string, candidate model.Interval, loc *time.Location, report conflict.Report) (Outcome, error) {
	out := c.conflictOutcome(candidate, loc, report)
	payload, err := out.Encode()
	if err != nil {
		return Outcome{}, err
	}
	rec, inserted, err := c.store.RecordOutcome(ctx, key, payload, c.cfg.IdempotencyTTL)
	if err != nil {
		return Outcome{}, err
	}
	res, err := c.finish(ctx, rec, inserted)
	if err != nil {
		return Outcome{}, err
	}
	res.Degraded = report.Degraded
	return res, nil
}

func (c *Coordinator) finish(ctx context.Context, rec model.IdempotencyRecord, inserted bool) (Outcome, error) {
	out, err := DecodeOutcome(rec.Payload)
	if err != nil {
		return Outcome{}, err
	}
	out.Replayed = !inserted
	c.cacheRecord(ctx, rec)
	return out, nil
}

func (c *Coordinator) lookup(ctx context.Context, key string) (Outcome, bool, error) {
	payload, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("idempotency cache read failed", "err", err)
	} else if ok {
		out, err := DecodeOutcome(payload)
		if err == nil {
			out.Replayed = true
			return out, true, nil
		}
		c.logger.Warn("idempotency cache entry unreadable", "err", err)
	}

	rec, ok, err := c.store.GetIdempotencyRecord(ctx, key)
	if err != nil {
		return Outcome{}, false, err
	}
	if !ok || len(rec.Payload) == 0 || rec.Expired(c.normalizer.Now()) {
		return Outcome{}, false, nil
	}
	out, err := DecodeOutcome(rec.Payload)
	if err != nil {
		return Outcome{}, false, err
	}
	out.Replayed = true
	c.cacheRecord(ctx, rec)
	return out, true, nil
}

func (c *Coordinator) cacheRecord(ctx context.Context, rec model.IdempotencyRecord) {
	ttl := c.cfg.IdempotencyTTL
	if !rec.ExpiresAt.IsZero() {
		ttl = rec.ExpiresAt.Sub(c.normalizer.Now())
	}
	if ttl <= 0 {
		return
	}
	if err := c.cache.Set(ctx, rec.Key, rec.Payload, ttl); err != nil {
		c.logger.Warn("idempotency cache write failed", "err", err)
	}
}

func (c *Coordinator) dispatchSync(ctx context.Context, r model.Reservation) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := c.sync.EnqueueReservationSync(ctx, r.SubjectID, r.ID, r.Status); err != nil {
		c.logger.Warn("calendar sync dispatch failed", "reservation_id", r.ID, "status", string(r.Status), "err", err)
	}
}

func (c *Coordinator) enter(ctx context.Context, phase Phase, key string) {
	trace.SpanFromContext(ctx).AddEvent(string(phase))
	if c.hook != nil {
		c.hook(ctx, phase, key)
	}
}
