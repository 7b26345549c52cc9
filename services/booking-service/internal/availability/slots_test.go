package availability

import (
	"testing"
	"time"

	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/model"
)

func collectIntervals(t *testing.T, window model.Interval, loc *time.Location, duration, step time.Duration, busy []model.Interval, now time.Time) []model.Interval {
	t.Helper()
	var out []model.Interval
	for iv := range Candidates(window, loc, duration, step, busy, now) {
		out = append(out, iv)
	}
	return out
}

func TestCandidates_Basic(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, loc)
	window := model.Interval{Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour)}
	busy := []model.Interval{
		{Start: day.Add(9*time.Hour + 15*time.Minute), End: day.Add(9*time.Hour + 45*time.Minute)},
	}

	slots := collectIntervals(t, window, loc, 15*time.Minute, 15*time.Minute, busy, day)
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	if !slots[0].Start.Equal(day.Add(9 * time.Hour)) {
		t.Fatalf("expected first slot 09:00, got %s", slots[0].Start.Format(time.RFC3339))
	}
	if !slots[1].Start.Equal(day.Add(9*time.Hour + 45*time.Minute)) {
		t.Fatalf("expected second slot 09:45, got %s", slots[1].Start.Format(time.RFC3339))
	}
}

func TestCandidates_SkipsPast(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, loc)
	window := model.Interval{Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour)}

	now := day.Add(9*time.Hour + 31*time.Minute)
	slots := collectIntervals(t, window, loc, 15*time.Minute, 15*time.Minute, nil, now)
	// 09:00, 09:15, 09:30 start before now. 09:45 is future.
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	if !slots[0].Start.Equal(day.Add(9*time.Hour + 45*time.Minute)) {
		t.Fatalf("expected slot 09:45, got %s", slots[0].Start.Format(time.RFC3339))
	}
}

func TestCandidates_AlignsToGridAndFitsWindow(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, loc)
	window := model.Interval{Start: day.Add(9*time.Hour + 10*time.Minute), End: day.Add(11 * time.Hour)}

	slots := collectIntervals(t, window, loc, time.Hour, GridStep, nil, day)
	// 09:30 and 10:00 fit; 10:30 would end at 11:30.
	if len(slots) != 2 || slots[0].Start.Minute() != 30 || slots[1].Start.Hour() != 10 {
		t.Fatalf("unexpected slots %v", slots)
	}
}

func TestCandidates_TouchingBusyIsFree(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, loc)
	window := model.Interval{Start: day.Add(9 * time.Hour), End: day.Add(11 * time.Hour)}
	busy := []model.Interval{{Start: day.Add(10 * time.Hour), End: day.Add(11 * time.Hour)}}

	slots := collectIntervals(t, window, loc, time.Hour, GridStep, busy, day)
	if len(slots) != 1 || !slots[0].End.Equal(day.Add(10*time.Hour)) {
		t.Fatalf("expected single 09:00-10:00 slot, got %v", slots)
	}
}

func TestCandidates_SkipsSpringForwardGap(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	window := model.Interval{
		Start: time.Date(2025, 3, 9, 1, 0, 0, 0, loc),
		End:   time.Date(2025, 3, 9, 4, 0, 0, 0, loc),
	}
	for iv := range Candidates(window, loc, 30*time.Minute, GridStep, nil, time.Time{}) {
		if h := iv.Start.In(loc).Hour(); h == 2 {
			t.Fatalf("slot starts inside the DST gap: %s", iv.Start)
		}
	}
}
