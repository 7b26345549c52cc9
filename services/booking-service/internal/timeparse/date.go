package timeparse

import (
	"fmt"
	"time"
)

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// resolveDate interprets relative dates against now in loc. A weekday equal
// to today's resolves to today.
func (n *Normalizer) resolveDate(raw string, loc *time.Location) (int, time.Month, int, error) {
	s := collapse(raw)
	today := n.now().In(loc)
	switch s {
	case "":
		return 0, 0, 0, fmt.Errorf("%w: date is required", ErrInvalidDate)
	case "today":
		return dateOf(today)
	case "tomorrow":
		return dateOf(today.AddDate(0, 0, 1))
	}
	if wd, ok := weekdays[s]; ok {
		offset := (int(wd) - int(today.Weekday()) + 7) % 7
		return dateOf(today.AddDate(0, 0, offset))
	}
	return parseISODate(s, loc)
}

func dateOf(t time.Time) (int, time.Month, int, error) {
	y, m, d := t.Date()
	return y, m, d, nil
}

func parseISODate(s string, loc *time.Location) (int, time.Month, int, error) {
	if len(s) != len(CanonicalDateLayout) || s[4] != '-' || s[7] != '-' {
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	for i, c := range s {
		if i == 4 || i == 7 {
			continue
		}
		if c < '0' || c > '9' {
			return 0, 0, 0, fmt.Errorf("%w: %q", ErrInvalidDate, s)
		}
	}
	t, err := time.ParseInLocation(CanonicalDateLayout, s, loc)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return dateOf(t)
}

// ResolveDate returns local midnight of the date raw names in loc.
func (n *Normalizer) ResolveDate(raw string, loc *time.Location) (time.Time, error) {
	y, m, d, err := n.resolveDate(raw, loc)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
}

func (n *Normalizer) Now() time.Time { return n.now() }
