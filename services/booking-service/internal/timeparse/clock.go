package timeparse

import (
	"fmt"
	"strings"
)

type clock struct {
	hour      int
	minute    int
	ambiguous bool
}

var meridiems = map[string]string{
	"am": "am", "a.m.": "am",
	"pm": "pm", "p.m.": "pm",
}

func parseClock(raw string, policy Policy) (clock, error) {
	s := collapse(raw)
	s = strings.TrimPrefix(s, "at ")
	if s == "noon" {
		return clock{hour: 12}, nil
	}
	bad := func() (clock, error) {
		return clock{}, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, raw)
	}
	if s == "" {
		return bad()
	}

	i := 0
	for i < len(s) && i < 2 && isDigit(s[i]) {
		i++
	}
	if i == 0 {
		return bad()
	}
	hour := atoi(s[:i])
	minute := 0
	rest := s[i:]

	if strings.HasPrefix(rest, ":") {
		if len(rest) < 3 || !isDigit(rest[1]) || !isDigit(rest[2]) {
			return bad()
		}
		minute = atoi(rest[1:3])
		if minute > 59 {
			return bad()
		}
		rest = rest[3:]
	}

	rest = strings.TrimPrefix(rest, " ")
	if rest == "" {
		switch {
		case hour == 0 || (hour >= 13 && hour <= 23):
			return clock{hour: hour, minute: minute}, nil
		case hour >= 1 && hour <= 12:
			if policy == PolicyStrict {
				return clock{}, fmt.Errorf("%w: %q needs am or pm", ErrInvalidTimeFormat, raw)
			}
			if hour == 12 {
				hour = 0
			}
			return clock{hour: hour, minute: minute, ambiguous: true}, nil
		default:
			return bad()
		}
	}

	mer, ok := meridiems[rest]
	if !ok || hour < 1 || hour > 12 {
		return bad()
	}
	if hour == 12 {
		hour = 0
	}
	if mer == "pm" {
		hour += 12
	}
	return clock{hour: hour, minute: minute}, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func atoi(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		n = n*10 + int(s[i]-'0')
	}
	return n
}
