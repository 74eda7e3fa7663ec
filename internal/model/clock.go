package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ClockTime is a wall-clock time of day without a date or zone.
type ClockTime struct {
	Hour   int
	Minute int
}

// Clock builds a ClockTime; it does not validate.
func Clock(hour, minute int) ClockTime {
	return ClockTime{Hour: hour, Minute: minute}
}

// ParseClock parses "HH:MM" (24h). "24:00" is accepted as end of day so that
// work hours may run until midnight.
func ParseClock(s string) (ClockTime, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return ClockTime{}, fmt.Errorf("clock %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return ClockTime{}, fmt.Errorf("clock %q: bad hour", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return ClockTime{}, fmt.Errorf("clock %q: bad minute", s)
	}
	c := ClockTime{Hour: h, Minute: m}
	if !c.Valid() && !(h == 24 && m == 0) {
		return ClockTime{}, fmt.Errorf("clock %q: out of range", s)
	}
	return c, nil
}

// Valid reports whether c is a time of day in 00:00..23:59.
func (c ClockTime) Valid() bool {
	return c.Hour >= 0 && c.Hour <= 23 && c.Minute >= 0 && c.Minute <= 59
}

// Minutes returns minutes since midnight.
func (c ClockTime) Minutes() int {
	return c.Hour*60 + c.Minute
}

// Before reports whether c is earlier in the day than o.
func (c ClockTime) Before(o ClockTime) bool {
	return c.Minutes() < o.Minutes()
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// On places c on the calendar date of day (as seen in loc).
func (c ClockTime) On(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.In(loc).Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, loc)
}

// Hours is a daily [Start, End) range of wall-clock time.
type Hours struct {
	Start ClockTime
	End   ClockTime
}

// On returns the concrete window for the calendar date of day in loc.
func (h Hours) On(day time.Time, loc *time.Location) TimeWindow {
	return TimeWindow{Start: h.Start.On(day, loc), End: h.End.On(day, loc)}
}

func (h Hours) String() string {
	return h.Start.String() + "-" + h.End.String()
}

// DayPart names a configurable time-of-day bucket.
type DayPart string

const (
	Morning   DayPart = "morning"
	Afternoon DayPart = "afternoon"
	Evening   DayPart = "evening"
)

// DayParts lists the recognized buckets in day order.
var DayParts = []DayPart{Morning, Afternoon, Evening}

// Midnight returns local midnight of the calendar date of t in loc.
func Midnight(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// AllDaySpan returns [midnight(D), midnight(D+days)) for the date
// (year, month, day) in loc. Calendar-day arithmetic keeps DST days at
// their true 23 or 25 hour length.
func AllDaySpan(year int, month time.Month, day, days int, loc *time.Location) TimeWindow {
	if days < 1 {
		days = 1
	}
	return TimeWindow{
		Start: time.Date(year, month, day, 0, 0, 0, 0, loc),
		End:   time.Date(year, month, day+days, 0, 0, 0, 0, loc),
	}
}
