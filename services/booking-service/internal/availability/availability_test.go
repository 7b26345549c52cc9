package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/busy"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/timeparse"
)

type subjects map[string]model.Subject

func (s subjects) GetSubject(_ context.Context, id string) (model.Subject, error) {
	sub, ok := s[id]
	if !ok {
		return model.Subject{}, model.ErrSubjectNotFound
	}
	return sub, nil
}

type fakeGatherer struct {
	result busy.Result
	calls  int
}

func (g *fakeGatherer) Gather(context.Context, model.Subject, model.Interval) (busy.Result, error) {
	g.calls++
	return g.result, nil
}

// Sunday 2025-03-02 12:00 UTC.
func clock() time.Time { return time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC) }

func mondayOnly() model.Subject {
	return model.Subject{
		ID:            "detailer-1",
		Timezone:      "UTC",
		BusinessHours: model.BusinessHours{time.Monday: {{Start: 9 * 60, End: 17 * 60}}},
	}
}

func newComputer(g *fakeGatherer) *Computer {
	return NewComputer(subjects{"detailer-1": mondayOnly()}, g, timeparse.New(timeparse.WithClock(clock)))
}

func TestClosedDayHasNoSlots(t *testing.T) {
	g := &fakeGatherer{}
	a, err := newComputer(g).Compute(context.Background(), Query{SubjectID: "detailer-1", Date: "2025-03-04", Duration: time.Hour})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := Collect(a.Slots()); len(got) != 0 {
		t.Fatalf("expected no slots on Tuesday, got %d", len(got))
	}
	if g.calls != 0 {
		t.Fatal("expected no busy lookup for a closed day")
	}
}

func TestOpenDaySlotsAreLazyAndRestartable(t *testing.T) {
	g := &fakeGatherer{}
	a, err := newComputer(g).Compute(context.Background(), Query{SubjectID: "detailer-1", Date: "monday", Duration: time.Hour})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := Collect(a.Slots())
	// 09:00 .. 16:00 on the half hour.
	if len(first) != 15 {
		t.Fatalf("expected 15 slots, got %d", len(first))
	}
	if second := Collect(a.Slots()); len(second) != len(first) {
		t.Fatalf("expected restartable sequence, got %d then %d", len(first), len(second))
	}
	taken := 0
	for range a.Slots() {
		taken++
		if taken == 3 {
			break
		}
	}
	if taken != 3 {
		t.Fatalf("expected early stop after 3, got %d", taken)
	}
}

func TestBusyBlocksExpandedByBuffer(t *testing.T) {
	mon := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	g := &fakeGatherer{result: busy.Result{Blocks: []model.BusyBlock{
		{Interval: model.Interval{Start: mon.Add(10 * time.Hour), End: mon.Add(11 * time.Hour)}, Origin: model.OriginReservation},
	}}}
	a, err := newComputer(g).Compute(context.Background(), Query{SubjectID: "detailer-1", Date: "2025-03-03", Duration: time.Hour, Buffer: 15 * time.Minute})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, s := range Collect(a.Slots()) {
		if s.Interval.Overlaps(model.Interval{Start: mon.Add(9*time.Hour + 45*time.Minute), End: mon.Add(11*time.Hour + 15*time.Minute)}) {
			t.Fatalf("slot %v overlaps buffered busy block", s.Interval)
		}
	}
}

func TestDegradedPropagates(t *testing.T) {
	g := &fakeGatherer{result: busy.Result{Degraded: true}}
	a, err := newComputer(g).Compute(context.Background(), Query{SubjectID: "detailer-1", Date: "2025-03-03", Duration: time.Hour})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.Degraded || len(Collect(a.Slots())) == 0 {
		t.Fatal("expected degraded availability that still lists slots")
	}
}

func TestLabelsUseQueryTimezone(t *testing.T) {
	if _, err := time.LoadLocation("America/New_York"); err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	g := &fakeGatherer{}
	a, err := newComputer(g).Compute(context.Background(), Query{SubjectID: "detailer-1", Date: "2025-03-03", Timezone: "America/New_York", Duration: time.Hour})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	slots := Collect(a.Slots())
	if len(slots) == 0 || slots[0].Label != "Mon Mar 3, 4:00 AM" {
		t.Fatalf("unexpected first label %+v", slots)
	}
}

func TestUnknownSubject(t *testing.T) {
	_, err := newComputer(&fakeGatherer{}).Compute(context.Background(), Query{SubjectID: "nope", Date: "today", Duration: time.Hour})
	if !errors.Is(err, model.ErrSubjectNotFound) {
		t.Fatalf("expected ErrSubjectNotFound, got %v", err)
	}
}

func TestInvalidDuration(t *testing.T) {
	_, err := newComputer(&fakeGatherer{}).Compute(context.Background(), Query{SubjectID: "detailer-1", Date: "today", Duration: 0})
	if !errors.Is(err, timeparse.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
