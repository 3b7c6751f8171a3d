package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const DateLayout = "2006-01-02"

var (
	ErrInvalidClock = errors.New("time must be in HH:MM format")
	ErrInvalidDate  = errors.New("date must be in YYYY-MM-DD format")

	clockPattern = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)
)

// ClockMinutes converts an "HH:MM" string to minutes since midnight.
func ClockMinutes(hhmm string) (int, error) {
	m := clockPattern.FindStringSubmatch(hhmm)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, hhmm)
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	return h*60 + min, nil
}

// ParseDate parses a calendar day. The result is midnight UTC and only its
// year/month/day are meaningful.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

// At combines a calendar day with an "HH:MM" wall clock in loc.
func At(date time.Time, hhmm string, loc *time.Location) (time.Time, error) {
	mins, err := ClockMinutes(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(date.Year(), date.Month(), date.Day(), mins/60, mins%60, 0, 0, loc), nil
}

// Overlaps reports half-open interval overlap of [aStart,aEnd) and [bStart,bEnd).
func Overlaps(aStart, aEnd, bStart, bEnd string) bool {
	return aStart < bEnd && aEnd > bStart
}
