// Package timeparse turns casually written local dates and times into
// canonical UTC intervals using a small fixed grammar.
//
// Dates: YYYY-MM-DD, today, tomorrow, or a weekday name (full or short).
// Times: optional "at", then H, HH, H:MM or HH:MM with an optional am/pm
// (a.m./p.m., with or without a space), or "noon".
package timeparse

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidTimeFormat = errors.New("invalid time format")
	ErrInvalidDate       = errors.New("invalid date")
	ErrInvalidInput      = errors.New("invalid input")
)

const (
	MinDurationMinutes = 1
	MaxDurationMinutes = 720

	CanonicalDateLayout = "2006-01-02"
	CanonicalTimeLayout = "3:04 PM"
	LabelLayout         = "Mon Jan 2, 3:04 PM"
)

// Policy decides what happens to an hour 1..12 written without am/pm.
type Policy int

const (
	// PolicyAssumeAM reads it as morning and marks the result Ambiguous.
	PolicyAssumeAM Policy = iota
	// PolicyStrict rejects it.
	PolicyStrict
)

func ParsePolicy(raw string) Policy {
	if strings.EqualFold(strings.TrimSpace(raw), "strict") {
		return PolicyStrict
	}
	return PolicyAssumeAM
}

type Request struct {
	Date            string
	Time            string
	Timezone        string
	DurationMinutes int
}

type Result struct {
	Start    time.Time // UTC
	End      time.Time // UTC
	Location *time.Location

	// Date and Time re-normalize to the same Result.
	Date string
	Time string

	StartLabel string
	EndLabel   string
	Ambiguous  bool
}

func (r Result) LocalStart() time.Time { return r.Start.In(r.Location) }
func (r Result) LocalEnd() time.Time   { return r.End.In(r.Location) }

type Normalizer struct {
	now    func() time.Time
	policy Policy
}

type Option func(*Normalizer)

func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		if now != nil {
			n.now = now
		}
	}
}

func WithPolicy(p Policy) Option {
	return func(n *Normalizer) { n.policy = p }
}

func New(opts ...Option) *Normalizer {
	n := &Normalizer{now: time.Now, policy: PolicyAssumeAM}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Normalizer) Policy() Policy { return n.policy }

func (n *Normalizer) Normalize(req Request) (Result, error) {
	loc, err := LoadLocation(req.Timezone)
	if err != nil {
		return Result{}, err
	}
	if req.DurationMinutes < MinDurationMinutes || req.DurationMinutes > MaxDurationMinutes {
		return Result{}, fmt.Errorf("%w: duration must be %d..%d minutes (got %d)",
			ErrInvalidInput, MinDurationMinutes, MaxDurationMinutes, req.DurationMinutes)
	}
	y, m, d, err := n.resolveDate(req.Date, loc)
	if err != nil {
		return Result{}, err
	}
	clock, err := parseClock(req.Time, n.policy)
	if err != nil {
		return Result{}, err
	}

	local := time.Date(y, m, d, clock.hour, clock.minute, 0, 0, loc)
	if local.Hour() != clock.hour || local.Minute() != clock.minute || local.Day() != d {
		return Result{}, fmt.Errorf("%w: %02d:%02d does not exist on %04d-%02d-%02d in %s",
			ErrInvalidTimeFormat, clock.hour, clock.minute, y, m, d, loc)
	}
	end := local.Add(time.Duration(req.DurationMinutes) * time.Minute)

	return Result{
		Start:      local.UTC(),
		End:        end.UTC(),
		Location:   loc,
		Date:       local.Format(CanonicalDateLayout),
		Time:       local.Format(CanonicalTimeLayout),
		StartLabel: local.Format(LabelLayout),
		EndLabel:   end.In(loc).Format(LabelLayout),
		Ambiguous:  clock.ambiguous,
	}, nil
}

// LoadLocation accepts IANA names only; empty and "Local" are rejected so a
// request never silently falls back to the server zone.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "local") {
		return nil, fmt.Errorf("%w: timezone is required", ErrInvalidInput)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalidInput, name)
	}
	return loc, nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
