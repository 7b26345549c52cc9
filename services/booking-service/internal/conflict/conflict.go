// Package conflict checks a candidate interval against everything that
// makes a subject busy.
package conflict

import (
	"context"
	"sort"
	"time"

	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/busy"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/model"
)

const timeLayout = "3:04 PM"

type Gatherer interface {
	Gather(ctx context.Context, subject model.Subject, window model.Interval) (busy.Result, error)
}

type Conflict struct {
	Label    string
	Time     string
	Source   model.BusyOrigin
	Interval model.Interval
}

type Report struct {
	Conflicts []Conflict
	// Busy is everything loaded for the window, reused for suggestions.
	Busy     []model.BusyBlock
	Degraded bool
}

func (r Report) HasConflict() bool { return len(r.Conflicts) > 0 }

// LatestEnd is the end of the last conflicting interval.
func (r Report) LatestEnd() time.Time {
	var end time.Time
	for _, c := range r.Conflicts {
		if c.Interval.End.After(end) {
			end = c.Interval.End
		}
	}
	return end
}

type Detector struct {
	gatherer  Gatherer
	lookahead time.Duration
}

// NewDetector loads busy time for the candidate's local day, extended by
// lookahead past the candidate end so suggestions can avoid known blocks.
func NewDetector(gatherer Gatherer, lookahead time.Duration) *Detector {
	if lookahead < 0 {
		lookahead = 0
	}
	return &Detector{gatherer: gatherer, lookahead: lookahead}
}

func (d *Detector) Window(candidate model.Interval, loc *time.Location) model.Interval {
	w := model.DayWindow(candidate.Start, loc)
	if end := candidate.End.Add(d.lookahead); end.After(w.End) {
		w.End = end
	}
	return w
}

func (d *Detector) Check(ctx context.Context, subject model.Subject, candidate model.Interval, loc *time.Location) (Report, error) {
	res, err := d.gatherer.Gather(ctx, subject, d.Window(candidate, loc))
	if err != nil {
		return Report{}, err
	}
	return Report{
		Conflicts: Describe(Detect(candidate, res.Blocks), loc),
		Busy:      res.Blocks,
		Degraded:  res.Degraded,
	}, nil
}

// Detect returns the blocks overlapping candidate, ordered by start.
func Detect(candidate model.Interval, blocks []model.BusyBlock) []model.BusyBlock {
	hits := busy.Overlapping(blocks, candidate)
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Interval.Start.Before(hits[j].Interval.Start) })
	return hits
}

func Describe(blocks []model.BusyBlock, loc *time.Location) []Conflict {
	out := make([]Conflict, 0, len(blocks))
	for _, b := range blocks {
		label := b.Label
		if label == "" {
			label = "Busy"
		}
		out = append(out, Conflict{
			Label:    label,
			Time:     b.Interval.Start.In(loc).Format(timeLayout) + " - " + b.Interval.End.In(loc).Format(timeLayout),
			Source:   b.Origin,
			Interval: b.Interval,
		})
	}
	return out
}
