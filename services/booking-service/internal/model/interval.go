package model

import (
	"errors"
	"time"
)

var ErrEmptyInterval = errors.New("interval start must be before end")

// Interval is half-open: [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func NewInterval(start, end time.Time) (Interval, error) {
	if !start.Before(end) {
		return Interval{}, ErrEmptyInterval
	}
	return Interval{Start: start, End: end}, nil
}

func (i Interval) Valid() bool { return i.Start.Before(i.End) }

func (i Interval) Duration() time.Duration { return i.End.Sub(i.Start) }

// Overlaps is symmetric; touching intervals do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Contains reports whether o lies entirely inside i.
func (i Interval) Contains(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

// Expand widens the interval by d on both sides.
func (i Interval) Expand(d time.Duration) Interval {
	if d <= 0 {
		return i
	}
	return Interval{Start: i.Start.Add(-d), End: i.End.Add(d)}
}

func (i Interval) UTC() Interval {
	return Interval{Start: i.Start.UTC(), End: i.End.UTC()}
}

func (i Interval) In(loc *time.Location) Interval {
	return Interval{Start: i.Start.In(loc), End: i.End.In(loc)}
}

// DayWindow is the local calendar day containing t.
func DayWindow(t time.Time, loc *time.Location) Interval {
	t = t.In(loc)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return Interval{Start: start, End: start.AddDate(0, 0, 1)}
}
