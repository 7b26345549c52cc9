package model

import "time"

type ReservationStatus string

const (
	StatusPending   ReservationStatus = "pending"
	StatusConfirmed ReservationStatus = "confirmed"
	StatusCancelled ReservationStatus = "cancelled"
	StatusCompleted ReservationStatus = "completed"
)

// Active statuses are the ones the no-overlap rule applies to.
func (s ReservationStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s ReservationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

type Reservation struct {
	ID            string
	SubjectID     string
	Interval      Interval
	Status        ReservationStatus
	Source        string
	CustomerName  string
	CustomerPhone string
	CustomerEmail string
	Notes         string
	CancelledAt   *time.Time
	CancelReason  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
