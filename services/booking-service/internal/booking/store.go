package booking

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/outbox"
)

// Commit is everything the storage layer writes in the single commit
// transaction: the key claim, the reservation, its event and the outcome.
type Commit struct {
	Key         string
	Reservation model.Reservation
	Payload     []byte
	Event       outbox.Event
	TTL         time.Duration
}

// TransitionFunc decides the next state of a locked reservation. Returning
// changed=false leaves the row untouched.
type TransitionFunc func(current model.Reservation) (next model.Reservation, changed bool, evt *outbox.Event, err error)

type Store interface {
	GetSubject(ctx context.Context, subjectID string) (model.Subject, error)

	GetIdempotencyRecord(ctx context.Context, key string) (model.IdempotencyRecord, bool, error)
	// RecordOutcome inserts payload unless a live record exists, and returns
	// the record that won along with whether this call inserted it.
	RecordOutcome(ctx context.Context, key string, payload []byte, ttl time.Duration) (model.IdempotencyRecord, bool, error)
	// CommitReservation returns model.ErrOverlap when an active reservation
	// overlaps, or the existing record with inserted=false when the key
	// already has an outcome.
	CommitReservation(ctx context.Context, c Commit) (model.IdempotencyRecord, bool, error)

	GetReservation(ctx context.Context, reservationID string) (model.Reservation, error)
	ListReservations(ctx context.Context, subjectID string, limit int) ([]model.Reservation, error)
	TransitionReservation(ctx context.Context, reservationID string, fn TransitionFunc) (model.Reservation, error)
}

// OutcomeCache is a read-through cache in front of the idempotency table.
type OutcomeCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
}

// SyncDispatcher schedules the best-effort write to the external calendar,
// once per status the reservation reaches.
type SyncDispatcher interface {
	EnqueueReservationSync(ctx context.Context, subjectID, reservationID string, status model.ReservationStatus) error
}

type noCache struct{}

func (noCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (noCache) Set(context.Context, string, []byte, time.Duration) error { return nil }

type noSync struct{}

func (noSync) EnqueueReservationSync(context.Context, string, string, model.ReservationStatus) error {
	return nil
}
