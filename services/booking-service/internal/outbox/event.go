package outbox

import (
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/model"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	AggregateReservation = "reservation"

	TopicReservationCreated   = "booking.reservation.created.v1"
	TopicReservationConfirmed = "booking.reservation.confirmed.v1"
	TopicReservationCompleted = "booking.reservation.completed.v1"
	TopicReservationCancelled = "booking.reservation.cancelled.v1"
)

// Topics lists every topic the booking service publishes to.
var Topics = []string{
	TopicReservationCreated,
	TopicReservationConfirmed,
	TopicReservationCompleted,
	TopicReservationCancelled,
}

type reservationPayload struct {
	ReservationID string    `json:"reservation_id"`
	SubjectID     string    `json:"subject_id"`
	Status        string    `json:"status"`
	Source        string    `json:"source,omitempty"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	CustomerName  string    `json:"customer_name,omitempty"`
	CustomerPhone string    `json:"customer_phone,omitempty"`
	CustomerEmail string    `json:"customer_email,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func ReservationEvent(eventType string, r model.Reservation, occurredAt time.Time) (Event, error) {
	payload, err := json.Marshal(reservationPayload{
		ReservationID: r.ID,
		SubjectID:     r.SubjectID,
		Status:        string(r.Status),
		Source:        r.Source,
		StartTime:     r.Interval.Start.UTC(),
		EndTime:       r.Interval.End.UTC(),
		CustomerName:  r.CustomerName,
		CustomerPhone: r.CustomerPhone,
		CustomerEmail: r.CustomerEmail,
		Reason:        r.CancelReason,
		OccurredAt:    occurredAt.UTC(),
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: AggregateReservation,
		AggregateID:   r.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}

// TopicForStatus maps a lifecycle transition onto its topic.
func TopicForStatus(s model.ReservationStatus) string {
	switch s {
	case model.StatusConfirmed:
		return TopicReservationConfirmed
	case model.StatusCompleted:
		return TopicReservationCompleted
	case model.StatusCancelled:
		return TopicReservationCancelled
	default:
		return TopicReservationCreated
	}
}
