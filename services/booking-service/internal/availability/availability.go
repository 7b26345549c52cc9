// Package availability lists bookable slots for a subject on a local date.
package availability

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/busy"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/timeparse"
)

type SubjectSource interface {
	GetSubject(ctx context.Context, subjectID string) (model.Subject, error)
}

type Gatherer interface {
	Gather(ctx context.Context, subject model.Subject, window model.Interval) (busy.Result, error)
}

type Slot struct {
	Interval model.Interval // UTC
	Label    string         // local to the query timezone
}

type Query struct {
	SubjectID string
	Date      string
	// Timezone defaults to the subject's.
	Timezone string
	Duration time.Duration
	Buffer   time.Duration
}

type Availability struct {
	SubjectID string
	Date      string
	Location  *time.Location
	// Degraded is set when the external calendar could not be consulted.
	Degraded bool

	seq iter.Seq[Slot]
}

// Slots is lazy and can be ranged over any number of times.
func (a Availability) Slots() iter.Seq[Slot] {
	if a.seq == nil {
		return func(func(Slot) bool) {}
	}
	return a.seq
}

type Computer struct {
	subjects   SubjectSource
	gatherer   Gatherer
	normalizer *timeparse.Normalizer
}

func NewComputer(subjects SubjectSource, gatherer Gatherer, normalizer *timeparse.Normalizer) *Computer {
	return &Computer{subjects: subjects, gatherer: gatherer, normalizer: normalizer}
}

func (c *Computer) Compute(ctx context.Context, q Query) (Availability, error) {
	maxDuration := time.Duration(timeparse.MaxDurationMinutes) * time.Minute
	if q.Duration < time.Minute || q.Duration > maxDuration {
		return Availability{}, fmt.Errorf("%w: duration must be between 1m and %s", timeparse.ErrInvalidInput, maxDuration)
	}
	if q.Buffer < 0 {
		return Availability{}, fmt.Errorf("%w: buffer must not be negative", timeparse.ErrInvalidInput)
	}

	subject, err := c.subjects.GetSubject(ctx, q.SubjectID)
	if err != nil {
		return Availability{}, err
	}
	subjectLoc, err := subject.Location()
	if err != nil {
		return Availability{}, fmt.Errorf("%w: subject %s timezone %q", timeparse.ErrInvalidInput, subject.ID, subject.Timezone)
	}
	loc := subjectLoc
	if q.Timezone != "" {
		if loc, err = timeparse.LoadLocation(q.Timezone); err != nil {
			return Availability{}, err
		}
	}
	day, err := c.normalizer.ResolveDate(q.Date, loc)
	if err != nil {
		return Availability{}, err
	}

	out := Availability{SubjectID: subject.ID, Date: day.Format(timeparse.CanonicalDateLayout), Location: loc}

	// Business hours are defined on the subject's own calendar date.
	windows := subject.BusinessHours.Windows(time.Date(day.Year(), day.Month(), day.Day(), 12, 0, 0, 0, subjectLoc), subjectLoc)
	if len(windows) == 0 {
		return out, nil
	}

	span := model.Interval{Start: windows[0].Start, End: windows[len(windows)-1].End}.Expand(q.Buffer)
	res, err := c.gatherer.Gather(ctx, subject, span)
	if err != nil {
		return Availability{}, err
	}
	out.Degraded = res.Degraded

	taken := make([]model.Interval, 0, len(res.Blocks))
	for _, b := range res.Blocks {
		taken = append(taken, b.Interval.Expand(q.Buffer))
	}
	now := c.normalizer.Now()
	duration := q.Duration

	out.seq = func(yield func(Slot) bool) {
		for _, w := range windows {
			for iv := range Candidates(w, subjectLoc, duration, GridStep, taken, now) {
				slot := Slot{Interval: iv.UTC(), Label: iv.Start.In(loc).Format(timeparse.LabelLayout)}
				if !yield(slot) {
					return
				}
			}
		}
	}
	return out, nil
}

// Collect drains the sequence; handy for responses and tests.
func Collect(seq iter.Seq[Slot]) []Slot {
	var out []Slot
	for s := range seq {
		out = append(out, s)
	}
	return out
}
