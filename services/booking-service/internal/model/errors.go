package model

import "errors"

// Storage-facing sentinels. The booking package re-exports the ones callers match on.
var (
	ErrSubjectNotFound     = errors.New("subject not found")
	ErrReservationNotFound = errors.New("reservation not found")
	// ErrOverlap is returned when an active reservation already covers part of the interval.
	ErrOverlap           = errors.New("reservation overlaps an active reservation")
	ErrTransientStorage  = errors.New("transient storage error")
	ErrInvalidTransition = errors.New("invalid status transition")
)
