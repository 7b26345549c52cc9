package model

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

type CalendarProvider string

const (
	CalendarNone   CalendarProvider = ""
	CalendarGoogle CalendarProvider = "google"
	CalendarCalDAV CalendarProvider = "caldav"
)

// Subject is the bookable resource (a detailer, a bay, a person).
type Subject struct {
	ID               string
	Name             string
	Timezone         string
	BusinessHours    BusinessHours
	CalendarProvider CalendarProvider
	CalendarID       string
	// CalendarRefreshToken is only read by calendar adapters.
	CalendarRefreshToken string
}

func (s Subject) Location() (*time.Location, error) {
	return time.LoadLocation(s.Timezone)
}

// ClockRange is a local time-of-day range in minutes from midnight, [Start, End).
type ClockRange struct {
	Start int
	End   int
}

func (r ClockRange) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", r.Start/60, r.Start%60, r.End/60, r.End%60)
}

// BusinessHours maps a weekday to its ordered, disjoint open ranges.
// A missing or empty day is closed.
type BusinessHours map[time.Weekday][]ClockRange

var ErrInvalidBusinessHours = errors.New("invalid business hours")

func (b BusinessHours) Validate() error {
	for day, ranges := range b {
		prevEnd := -1
		for _, r := range ranges {
			if r.Start < 0 || r.End > 24*60 || r.Start >= r.End {
				return fmt.Errorf("%w: %s %s", ErrInvalidBusinessHours, day, r)
			}
			if r.Start < prevEnd {
				return fmt.Errorf("%w: %s ranges overlap or are unordered", ErrInvalidBusinessHours, day)
			}
			prevEnd = r.End
		}
	}
	return nil
}

// Windows returns the open intervals for the local date of day.
func (b BusinessHours) Windows(day time.Time, loc *time.Location) []Interval {
	day = day.In(loc)
	var out []Interval
	for _, r := range b[day.Weekday()] {
		start := time.Date(day.Year(), day.Month(), day.Day(), r.Start/60, r.Start%60, 0, 0, loc)
		end := time.Date(day.Year(), day.Month(), day.Day(), r.End/60, r.End%60, 0, 0, loc)
		if r.End == 24*60 {
			end = time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, loc)
		}
		if start.Before(end) {
			out = append(out, Interval{Start: start, End: end})
		}
	}
	return out
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// ParseBusinessHours reads "mon=09:00-12:00,13:00-17:00;tue=09:00-17:00".
// A "mon-fri" day range is accepted as shorthand.
func ParseBusinessHours(raw string) (BusinessHours, error) {
	out := BusinessHours{}
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		daysPart, rangesPart, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidBusinessHours, entry)
		}
		days, err := parseDays(strings.ToLower(strings.TrimSpace(daysPart)))
		if err != nil {
			return nil, err
		}
		var ranges []ClockRange
		for _, rr := range strings.Split(rangesPart, ",") {
			rr = strings.TrimSpace(rr)
			if rr == "" {
				continue
			}
			r, err := parseClockRange(rr)
			if err != nil {
				return nil, err
			}
			ranges = append(ranges, r)
		}
		sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })
		for _, d := range days {
			out[d] = append([]ClockRange(nil), ranges...)
		}
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

func parseDays(s string) ([]time.Weekday, error) {
	if from, to, ok := strings.Cut(s, "-"); ok {
		a, okA := weekdayNames[from]
		b, okB := weekdayNames[to]
		if !okA || !okB {
			return nil, fmt.Errorf("%w: day range %q", ErrInvalidBusinessHours, s)
		}
		var out []time.Weekday
		for d := a; ; d = (d + 1) % 7 {
			out = append(out, d)
			if d == b {
				break
			}
		}
		return out, nil
	}
	d, ok := weekdayNames[s]
	if !ok {
		return nil, fmt.Errorf("%w: day %q", ErrInvalidBusinessHours, s)
	}
	return []time.Weekday{d}, nil
}

func parseClockRange(s string) (ClockRange, error) {
	from, to, ok := strings.Cut(s, "-")
	if !ok {
		return ClockRange{}, fmt.Errorf("%w: range %q", ErrInvalidBusinessHours, s)
	}
	a, err := parseClock(from)
	if err != nil {
		return ClockRange{}, err
	}
	b, err := parseClock(to)
	if err != nil {
		return ClockRange{}, err
	}
	return ClockRange{Start: a, End: b}, nil
}

func parseClock(s string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(m) != 2 {
		return 0, fmt.Errorf("%w: clock %q", ErrInvalidBusinessHours, s)
	}
	hh, err1 := strconv.Atoi(h)
	mm, err2 := strconv.Atoi(m)
	if err1 != nil || err2 != nil || hh < 0 || hh > 24 || mm < 0 || mm > 59 || (hh == 24 && mm != 0) {
		return 0, fmt.Errorf("%w: clock %q", ErrInvalidBusinessHours, s)
	}
	return hh*60 + mm, nil
}

// String is the inverse of ParseBusinessHours, one entry per open day.
func (b BusinessHours) String() string {
	var parts []string
	for d := time.Sunday; d <= time.Saturday; d++ {
		ranges := b[d]
		if len(ranges) == 0 {
			continue
		}
		rs := make([]string, 0, len(ranges))
		for _, r := range ranges {
			rs = append(rs, r.String())
		}
		parts = append(parts, strings.ToLower(d.String()[:3])+"="+strings.Join(rs, ","))
	}
	return strings.Join(parts, ";")
}
