package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/model"
)

const idempotencyColumns = `idempotency_key, COALESCE(response_payload, ''::bytea), created_at, expires_at`

func scanIdempotency(row pgx.Row) (model.IdempotencyRecord, error) {
	var rec model.IdempotencyRecord
	err := row.Scan(&rec.Key, &rec.Payload, &rec.CreatedAt, &rec.ExpiresAt)
	return rec, err
}

// GetIdempotencyRecord returns ok=false for unknown keys, in-flight claims
// and expired records.
func (r *BookingRepository) GetIdempotencyRecord(ctx context.Context, key string) (model.IdempotencyRecord, bool, error) {
	rec, err := scanIdempotency(r.pool.QueryRow(ctx, `
		SELECT `+idempotencyColumns+`
		FROM booking_idempotency_keys
		WHERE idempotency_key = $1
			AND response_payload IS NOT NULL
			AND expires_at > now()
	`, key))
	if IsNotFound(err) {
		return model.IdempotencyRecord{}, false, nil
	}
	if err != nil {
		return model.IdempotencyRecord{}, false, classify(err)
	}
	return rec, true, nil
}

// RecordOutcome stores a terminal outcome that has no reservation (a
// conflict). An expired or unfinished record for the key is replaced; a live
// one wins and is returned with inserted=false.
func (r *BookingRepository) RecordOutcome(ctx context.Context, key string, payload []byte, ttl time.Duration) (model.IdempotencyRecord, bool, error) {
	var rec model.IdempotencyRecord
	var inserted bool
	err := r.pool.InTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var err error
		rec, err = scanIdempotency(tx.QueryRow(ctx, `
			INSERT INTO booking_idempotency_keys (idempotency_key, response_payload, expires_at)
			VALUES ($1, $2, now() + $3::float8 * interval '1 second')
			ON CONFLICT (idempotency_key) DO UPDATE
			SET response_payload = EXCLUDED.response_payload,
				reservation_id = NULL,
				created_at = now(),
				expires_at = EXCLUDED.expires_at
			WHERE booking_idempotency_keys.response_payload IS NULL
				OR booking_idempotency_keys.expires_at <= now()
			RETURNING `+idempotencyColumns+`
		`, key, payload, ttlSeconds(ttl)))
		if err == nil {
			inserted = true
			return nil
		}
		if !IsNotFound(err) {
			return err
		}
		rec, err = scanIdempotency(tx.QueryRow(ctx, `
			SELECT `+idempotencyColumns+`
			FROM booking_idempotency_keys
			WHERE idempotency_key = $1
		`, key))
		return err
	})
	if err != nil {
		return model.IdempotencyRecord{}, false, classify(err)
	}
	return rec, inserted, nil
}

// lockIdempotencyKey claims key for this transaction. Concurrent claimers
// block on the row until the holder commits; live reports whether the row
// already carries an unexpired outcome.
func (r *BookingRepository) lockIdempotencyKey(ctx context.Context, tx pgx.Tx, key string, ttl time.Duration) (model.IdempotencyRecord, bool, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (idempotency_key, expires_at)
		VALUES ($1, now() + $2::float8 * interval '1 second')
		ON CONFLICT (idempotency_key) DO NOTHING
	`, key, ttlSeconds(ttl))
	if err != nil {
		return model.IdempotencyRecord{}, false, err
	}

	var live bool
	var rec model.IdempotencyRecord
	err = tx.QueryRow(ctx, `
		SELECT `+idempotencyColumns+`, (response_payload IS NOT NULL AND expires_at > now())
		FROM booking_idempotency_keys
		WHERE idempotency_key = $1
		FOR UPDATE
	`, key).Scan(&rec.Key, &rec.Payload, &rec.CreatedAt, &rec.ExpiresAt, &live)
	if err != nil {
		return model.IdempotencyRecord{}, false, err
	}
	return rec, live, nil
}

func (r *BookingRepository) finalizeIdempotency(ctx context.Context, tx pgx.Tx, key, reservationID string, payload []byte, ttl time.Duration) (model.IdempotencyRecord, error) {
	return scanIdempotency(tx.QueryRow(ctx, `
		UPDATE booking_idempotency_keys
		SET reservation_id = $2::uuid,
			response_payload = $3,
			created_at = now(),
			expires_at = now() + $4::float8 * interval '1 second'
		WHERE idempotency_key = $1
		RETURNING `+idempotencyColumns+`
	`, key, reservationID, payload, ttlSeconds(ttl)))
}

// DeleteExpiredIdempotency removes up to limit records that expired before
// cutoff and reports how many went.
func (r *BookingRepository) DeleteExpiredIdempotency(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	if limit <= 0 {
		limit = 500
	}
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM booking_idempotency_keys
		WHERE idempotency_key IN (
			SELECT idempotency_key
			FROM booking_idempotency_keys
			WHERE expires_at <= $1
			ORDER BY expires_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
	`, cutoff, limit)
	if err != nil {
		return 0, classify(err)
	}
	return tag.RowsAffected(), nil
}
