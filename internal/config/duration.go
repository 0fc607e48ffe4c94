package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	hoursPerDay  = 24
	daysPerWeek  = 7
	daysPerMonth = 30
	daysPerYear  = 365
)

// ParseISODuration parses an ISO-8601 duration (the scheduling interval
// format, e.g. "PT5M", "PT1H30M", "P1D"). Months and years use calendar
// approximations (30 and 365 days) since the interval is a plain tick period.
func ParseISODuration(s string) (time.Duration, error) {
	orig := s
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) < 2 || s[0] != 'P' {
		return 0, fmt.Errorf("invalid ISO-8601 duration %q", orig)
	}
	s = s[1:]

	datePart := s
	timePart := ""
	if idx := strings.IndexByte(s, 'T'); idx >= 0 {
		datePart, timePart = s[:idx], s[idx+1:]
		if timePart == "" {
			return 0, fmt.Errorf("invalid ISO-8601 duration %q: empty time part", orig)
		}
	}

	var total time.Duration

	dateUnits := map[byte]time.Duration{
		'Y': daysPerYear * hoursPerDay * time.Hour,
		'M': daysPerMonth * hoursPerDay * time.Hour,
		'W': daysPerWeek * hoursPerDay * time.Hour,
		'D': hoursPerDay * time.Hour,
	}
	timeUnits := map[byte]time.Duration{
		'H': time.Hour,
		'M': time.Minute,
		'S': time.Second,
	}

	d, err := parseDurationPart(datePart, dateUnits, orig)
	if err != nil {
		return 0, err
	}
	total += d

	d, err = parseDurationPart(timePart, timeUnits, orig)
	if err != nil {
		return 0, err
	}
	total += d

	if total <= 0 {
		return 0, fmt.Errorf("ISO-8601 duration %q must be positive", orig)
	}
	return total, nil
}

func parseDurationPart(part string, units map[byte]time.Duration, orig string) (time.Duration, error) {
	var total time.Duration
	start := 0
	for i := 0; i < len(part); i++ {
		c := part[i]
		if c >= '0' && c <= '9' || c == '.' {
			continue
		}
		unit, ok := units[c]
		if !ok || i == start {
			return 0, fmt.Errorf("invalid ISO-8601 duration %q", orig)
		}
		val, parseErr := strconv.ParseFloat(part[start:i], 64)
		if parseErr != nil {
			return 0, fmt.Errorf("invalid ISO-8601 duration %q: %w", orig, parseErr)
		}
		total += time.Duration(val * float64(unit))
		start = i + 1
	}
	if start != len(part) {
		return 0, fmt.Errorf("invalid ISO-8601 duration %q: trailing digits", orig)
	}
	return total, nil
}
