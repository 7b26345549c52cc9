package booking

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/suggest"
)

const (
	ReasonConflict        = "CONFLICT"
	ReasonInvalidInput    = "INVALID_INPUT"
	ReasonSubjectNotFound = "SUBJECT_NOT_FOUND"
	ReasonUnavailable     = "UNAVAILABLE"
)

type ConflictView struct {
	Label string `json:"label"`
	Time  string `json:"time"`
}

type SuggestionView struct {
	StartLocal string `json:"startLocal"`
	StartISO   string `json:"startISO"`
}

// Outcome is the terminal result for an idempotency key. Its JSON form is
// stored once and replayed byte for byte.
type Outcome struct {
	OK            bool             `json:"ok"`
	BookingID     string           `json:"bookingId,omitempty"`
	StartUTCISO   string           `json:"startUtcISO,omitempty"`
	EndUTCISO     string           `json:"endUtcISO,omitempty"`
	Status        string           `json:"status,omitempty"`
	AmbiguousTime bool             `json:"ambiguousTime,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	Conflicts     []ConflictView   `json:"conflicts,omitempty"`
	Suggestions   []SuggestionView `json:"suggestions,omitempty"`

	// Replayed is set when the outcome came from an earlier request with the same key.
	Replayed bool `json:"-"`
	// Degraded is set when the external calendar could not be consulted this time.
	Degraded bool `json:"-"`
}

// Err is nil for a booked outcome and wraps ErrConflict otherwise, so callers
// can branch with errors.Is like any other terminal error.
func (o Outcome) Err() error {
	if o.OK {
		return nil
	}
	if len(o.Conflicts) == 0 {
		return ErrConflict
	}
	return fmt.Errorf("%w: %s at %s", ErrConflict, o.Conflicts[0].Label, o.Conflicts[0].Time)
}

func (o Outcome) Encode() ([]byte, error) {
	return json.Marshal(o)
}

func DecodeOutcome(payload []byte) (Outcome, error) {
	var o Outcome
	if err := json.Unmarshal(payload, &o); err != nil {
		return Outcome{}, fmt.Errorf("decode stored outcome: %w", err)
	}
	return o, nil
}

func conflictViews(cs []conflict.Conflict) []ConflictView {
	out := make([]ConflictView, 0, len(cs))
	for _, c := range cs {
		out = append(out, ConflictView{Label: c.Label, Time: c.Time})
	}
	return out
}

func suggestionViews(ss []suggest.Suggestion) []SuggestionView {
	out := make([]SuggestionView, 0, len(ss))
	for _, s := range ss {
		out = append(out, SuggestionView{StartLocal: s.Label, StartISO: s.StartISO()})
	}
	return out
}

func isoUTC(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
