package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/detailbook/libs/db"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/busy"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/outbox"
)

// BookingRepository is the Postgres store behind the booking engine. The
// reservations exclusion constraint is the final arbiter of overlaps.
type BookingRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewBookingRepository(pool *db.Pool) *BookingRepository {
	return &BookingRepository{pool: pool, outbox: outbox.NewRepository()}
}

const reservationColumns = `id::text, subject_id, start_time, end_time, status, source,
	customer_name, customer_phone, customer_email, notes,
	cancelled_at, COALESCE(cancellation_reason, ''), created_at, updated_at`

func scanReservation(row pgx.Row) (model.Reservation, error) {
	var r model.Reservation
	var status string
	err := row.Scan(
		&r.ID,
		&r.SubjectID,
		&r.Interval.Start,
		&r.Interval.End,
		&status,
		&r.Source,
		&r.CustomerName,
		&r.CustomerPhone,
		&r.CustomerEmail,
		&r.Notes,
		&r.CancelledAt,
		&r.CancelReason,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return model.Reservation{}, err
	}
	r.Status = model.ReservationStatus(status)
	r.Interval = r.Interval.UTC()
	return r, nil
}

func collectReservations(rows pgx.Rows) ([]model.Reservation, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Reservation, error) {
		return scanReservation(row)
	})
}

// CommitReservation claims the idempotency key, inserts the reservation and
// its outbox event, and stores the outcome, all in one transaction. If the
// key already holds a live outcome that record is returned untouched.
func (r *BookingRepository) CommitReservation(ctx context.Context, c booking.Commit) (model.IdempotencyRecord, bool, error) {
	var rec model.IdempotencyRecord
	var inserted bool
	err := r.pool.InTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		existing, live, err := r.lockIdempotencyKey(ctx, tx, c.Key, c.TTL)
		if err != nil {
			return err
		}
		if live {
			rec = existing
			return nil
		}
		if err := r.insertReservation(ctx, tx, c.Reservation); err != nil {
			return err
		}
		if err := r.outbox.Insert(ctx, tx, c.Event); err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}
		rec, err = r.finalizeIdempotency(ctx, tx, c.Key, c.Reservation.ID, c.Payload, c.TTL)
		if err != nil {
			return err
		}
		inserted = true
		return nil
	})
	if err != nil {
		return model.IdempotencyRecord{}, false, classify(err)
	}
	return rec, inserted, nil
}

func (r *BookingRepository) insertReservation(ctx context.Context, tx pgx.Tx, res model.Reservation) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO reservations
			(id, subject_id, start_time, end_time, status, source,
			 customer_name, customer_phone, customer_email, notes, created_at, updated_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, res.ID, res.SubjectID, res.Interval.Start, res.Interval.End, string(res.Status), res.Source,
		res.CustomerName, res.CustomerPhone, res.CustomerEmail, res.Notes, res.CreatedAt, res.UpdatedAt)
	return err
}

func (r *BookingRepository) GetReservation(ctx context.Context, reservationID string) (model.Reservation, error) {
	res, err := scanReservation(r.pool.QueryRow(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE id::text = $1
	`, reservationID))
	if IsNotFound(err) {
		return model.Reservation{}, fmt.Errorf("%w: %s", model.ErrReservationNotFound, reservationID)
	}
	return res, classify(err)
}

func (r *BookingRepository) ListReservations(ctx context.Context, subjectID string, limit int) ([]model.Reservation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE subject_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, subjectID, limit)
	if err != nil {
		return nil, classify(err)
	}
	out, err := collectReservations(rows)
	return out, classify(err)
}

// ListActiveReservations returns pending and confirmed reservations that
// overlap window.
func (r *BookingRepository) ListActiveReservations(ctx context.Context, subjectID string, window model.Interval) ([]model.Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE subject_id = $1
			AND status IN ('pending', 'confirmed')
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, subjectID, window.Start, window.End)
	if err != nil {
		return nil, classify(err)
	}
	out, err := collectReservations(rows)
	return out, classify(err)
}

// TransitionReservation locks the row, lets fn decide the next state and
// writes it together with fn's outbox event.
func (r *BookingRepository) TransitionReservation(ctx context.Context, reservationID string, fn booking.TransitionFunc) (model.Reservation, error) {
	var out model.Reservation
	err := r.pool.InTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		cur, err := scanReservation(tx.QueryRow(ctx, `
			SELECT `+reservationColumns+`
			FROM reservations
			WHERE id::text = $1
			FOR UPDATE
		`, reservationID))
		if IsNotFound(err) {
			return fmt.Errorf("%w: %s", model.ErrReservationNotFound, reservationID)
		}
		if err != nil {
			return err
		}
		next, changed, evt, err := fn(cur)
		if err != nil {
			return err
		}
		if !changed {
			out = cur
			return nil
		}
		_, err = tx.Exec(ctx, `
			UPDATE reservations
			SET status = $2,
				cancelled_at = $3,
				cancellation_reason = NULLIF($4, ''),
				updated_at = $5
			WHERE id = $1::uuid
		`, cur.ID, string(next.Status), next.CancelledAt, next.CancelReason, next.UpdatedAt)
		if err != nil {
			return err
		}
		if evt != nil {
			if err := r.outbox.Insert(ctx, tx, *evt); err != nil {
				return fmt.Errorf("insert outbox event: %w", err)
			}
		}
		out = next
		return nil
	})
	if err != nil {
		return model.Reservation{}, classify(err)
	}
	return out, nil
}

func (r *BookingRepository) ListBusyBlocks(ctx context.Context, subjectID string, window model.Interval) ([]model.BusyBlock, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_time, end_time, label
		FROM busy_blocks
		WHERE subject_id = $1
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, subjectID, window.Start, window.End)
	if err != nil {
		return nil, classify(err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.BusyBlock, error) {
		b := model.BusyBlock{Origin: model.OriginInternal}
		err := row.Scan(&b.Interval.Start, &b.Interval.End, &b.Label)
		b.Interval = b.Interval.UTC()
		return b, err
	})
	return out, classify(err)
}

// AddBusyBlock records time the subject is unavailable for reasons other
// than a reservation.
func (r *BookingRepository) AddBusyBlock(ctx context.Context, subjectID string, iv model.Interval, label string) (int64, error) {
	if !iv.Valid() {
		return 0, model.ErrEmptyInterval
	}
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO busy_blocks (subject_id, start_time, end_time, label)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, subjectID, iv.Start, iv.End, label).Scan(&id)
	return id, classify(err)
}

func (r *BookingRepository) DeleteBusyBlock(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM busy_blocks WHERE id = $1`, id)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return errors.New("busy block not found")
	}
	return nil
}

func ttlSeconds(ttl time.Duration) float64 {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return ttl.Seconds()
}

var (
	_ booking.Store              = (*BookingRepository)(nil)
	_ busy.Store                 = (*BookingRepository)(nil)
	_ availability.SubjectSource = (*BookingRepository)(nil)
)
