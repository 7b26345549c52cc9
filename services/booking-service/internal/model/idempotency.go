package model

import "time"

// IdempotencyRecord holds the one terminal outcome for a key, encoded by the
// booking package so replays are byte-identical.
type IdempotencyRecord struct {
	Key       string
	Payload   []byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}
