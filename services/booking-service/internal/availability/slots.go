package availability

import (
	"iter"
	"time"

	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/model"
)

// GridStep aligns every offered slot to the local half hour.
const GridStep = 30 * time.Minute

// Candidates yields slots of length duration inside window, starting on the
// local-clock step grid, skipping starts before now and any slot overlapping
// busy. Local times that do not exist (DST gaps) are skipped.
func Candidates(window model.Interval, loc *time.Location, duration, step time.Duration, busy []model.Interval, now time.Time) iter.Seq[model.Interval] {
	return func(yield func(model.Interval) bool) {
		if duration <= 0 || step < time.Minute || !window.Valid() {
			return
		}
		stepMin := int(step / time.Minute)
		local := window.Start.In(loc)
		y, m, d := local.Date()
		first := local.Hour()*60 + local.Minute()
		if local.Second() > 0 || local.Nanosecond() > 0 {
			first++
		}
		first = (first + stepMin - 1) / stepMin * stepMin

		for k := first; k < 48*60; k += stepMin {
			start := time.Date(y, m, d, 0, k, 0, 0, loc)
			if start.Hour()*60+start.Minute() != k%(24*60) {
				continue
			}
			if start.Before(window.Start) {
				continue
			}
			end := start.Add(duration)
			if end.After(window.End) {
				return
			}
			if start.Before(now) {
				continue
			}
			slot := model.Interval{Start: start, End: end}
			if overlapsAny(slot, busy) {
				continue
			}
			if !yield(slot) {
				return
			}
		}
	}
}

func overlapsAny(slot model.Interval, busy []model.Interval) bool {
	for _, b := range busy {
		if slot.Overlaps(b) {
			return true
		}
	}
	return false
}
