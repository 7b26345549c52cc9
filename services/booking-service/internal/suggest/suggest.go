// Package suggest proposes alternative start times after a conflict.
//
// Generate does not look at business hours or further conflicts; whatever
// the caller picks goes back through the normal booking path.
package suggest

import (
	"time"

	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/timeparse"
)

const (
	Step         = 30 * time.Minute
	DefaultCount = 3
	Lookahead    = 2 * time.Hour
)

type Suggestion struct {
	Interval model.Interval // UTC
	Label    string
	Location *time.Location
}

// StartISO is the start as RFC 3339 with the local offset.
func (s Suggestion) StartISO() string {
	return s.Interval.Start.In(s.Location).Format(time.RFC3339)
}

// Generate returns n slots of duration spaced Step apart, starting at after
// rounded up to the local Step grid.
func Generate(after time.Time, duration time.Duration, n int, loc *time.Location) []Suggestion {
	if n <= 0 || duration <= 0 {
		return nil
	}
	out := make([]Suggestion, 0, n)
	start := RoundUp(after, loc)
	for i := 0; i < n; i++ {
		out = append(out, suggestion(start, duration, loc))
		start = start.Add(Step)
	}
	return out
}

// GenerateAvoiding is Generate restricted to starts within lookahead of
// after that do not overlap busy. It may return fewer than n.
func GenerateAvoiding(after time.Time, duration time.Duration, n int, loc *time.Location, busy []model.BusyBlock, lookahead time.Duration) []Suggestion {
	if n <= 0 || duration <= 0 {
		return nil
	}
	limit := after.Add(lookahead)
	var out []Suggestion
	for start := RoundUp(after, loc); !start.After(limit) && len(out) < n; start = start.Add(Step) {
		iv := model.Interval{Start: start, End: start.Add(duration)}
		if overlapsAny(iv, busy) {
			continue
		}
		out = append(out, suggestion(start, duration, loc))
	}
	return out
}

// RoundUp moves t forward to the next local Step boundary (t itself if on one).
func RoundUp(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	step := int(Step / time.Minute)
	mins := local.Hour()*60 + local.Minute()
	if local.Second() > 0 || local.Nanosecond() > 0 {
		mins++
	}
	mins = (mins + step - 1) / step * step
	y, m, d := local.Date()
	out := time.Date(y, m, d, 0, mins, 0, 0, loc)
	for out.Before(t) {
		out = out.Add(Step)
	}
	return out
}

func suggestion(start time.Time, duration time.Duration, loc *time.Location) Suggestion {
	return Suggestion{
		Interval: model.Interval{Start: start.UTC(), End: start.Add(duration).UTC()},
		Label:    start.In(loc).Format(timeparse.LabelLayout),
		Location: loc,
	}
}

func overlapsAny(iv model.Interval, busy []model.BusyBlock) bool {
	for _, b := range busy {
		if iv.Overlaps(b.Interval) {
			return true
		}
	}
	return false
}
