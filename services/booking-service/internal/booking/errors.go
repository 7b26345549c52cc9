package booking

import (
	"errors"

	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/timeparse"
)

// Callers match these with errors.Is. A replayed idempotency key is not an
// error; see Outcome.Replayed.
var (
	ErrInvalidTimeFormat           = timeparse.ErrInvalidTimeFormat
	ErrInvalidDate                 = timeparse.ErrInvalidDate
	ErrInvalidInput                = timeparse.ErrInvalidInput
	ErrSubjectNotFound             = model.ErrSubjectNotFound
	ErrReservationNotFound         = model.ErrReservationNotFound
	ErrInvalidTransition           = model.ErrInvalidTransition
	ErrTransientStorage            = model.ErrTransientStorage
	ErrExternalCalendarUnavailable = calendar.ErrUnavailable

	// ErrConflict is what Outcome.Err wraps for a conflict outcome.
	ErrConflict = errors.New("booking conflict")
)

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientStorage)
}

// IsValidation reports whether err was caused by the request itself.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidTimeFormat) || errors.Is(err, ErrInvalidDate) || errors.Is(err, ErrInvalidInput)
}
