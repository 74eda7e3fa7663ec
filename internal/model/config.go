package model

import (
	"fmt"
	"strings"
	"time"
)

// EdgePolicy governs whether a busy interval that only touches a target's
// boundary counts as a conflict. It is process-wide and read-only.
type EdgePolicy int

const (
	// ExclusiveEnd treats interval ends as open: touching is not overlapping.
	ExclusiveEnd EdgePolicy = iota
	// InclusiveEnd treats interval ends as closed: touching is overlapping.
	InclusiveEnd
)

// ParseEdgePolicy accepts "exclusive_end" / "inclusive_end" and the short
// forms "exclusive" / "inclusive". Empty input means ExclusiveEnd.
func ParseEdgePolicy(s string) (EdgePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "exclusive_end", "exclusive":
		return ExclusiveEnd, nil
	case "inclusive_end", "inclusive":
		return InclusiveEnd, nil
	default:
		return ExclusiveEnd, fmt.Errorf("unknown edge policy %q", s)
	}
}

func (p EdgePolicy) String() string {
	if p == InclusiveEnd {
		return "inclusive_end"
	}
	return "exclusive_end"
}

// ContainsPoint reports whether t falls inside [start, end) (exclusive) or
// [start, end] (inclusive).
func (p EdgePolicy) ContainsPoint(start, end, t time.Time) bool {
	if t.Before(start) {
		return false
	}
	if p == InclusiveEnd {
		return !t.After(end)
	}
	return t.Before(end)
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect:
// max(starts) < min(ends) for ExclusiveEnd, <= for InclusiveEnd.
func (p EdgePolicy) Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	lo := aStart
	if bStart.After(lo) {
		lo = bStart
	}
	hi := aEnd
	if bEnd.Before(hi) {
		hi = bEnd
	}
	if p == InclusiveEnd {
		return !lo.After(hi)
	}
	return lo.Before(hi)
}

// Config is the explicit engine configuration. It is built once at startup
// and passed by value into every resolution and evaluation call.
type Config struct {
	Location   *time.Location
	WorkHours  Hours
	DayParts   map[DayPart]Hours
	EdgePolicy EdgePolicy

	// HorizonDays bounds how far from today a date may be resolved.
	HorizonDays int
	// DefaultSlotMinutes is used for slot phrasing without a duration.
	DefaultSlotMinutes int
	// MaxSuggestions is N, the number of slots returned per query.
	MaxSuggestions int
}

// DefaultDayParts returns the named daypart defaults.
func DefaultDayParts() map[DayPart]Hours {
	return map[DayPart]Hours{
		Morning:   {Start: Clock(9, 0), End: Clock(12, 0)},
		Afternoon: {Start: Clock(12, 0), End: Clock(17, 0)},
		Evening:   {Start: Clock(17, 0), End: Clock(21, 0)},
	}
}

// DefaultConfig returns an engine configuration in UTC with 09:00-18:00 work
// hours and the default dayparts.
func DefaultConfig() Config {
	return Config{
		Location:           time.UTC,
		WorkHours:          Hours{Start: Clock(9, 0), End: Clock(18, 0)},
		DayParts:           DefaultDayParts(),
		EdgePolicy:         ExclusiveEnd,
		HorizonDays:        30,
		DefaultSlotMinutes: 30,
		MaxSuggestions:     1,
	}
}

// Loc returns the configured location, falling back to UTC.
func (c Config) Loc() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// DayPart returns the configured hours for name, falling back to the
// defaults for unconfigured names.
func (c Config) DayPart(name DayPart) (Hours, bool) {
	if h, ok := c.DayParts[name]; ok {
		return h, true
	}
	h, ok := DefaultDayParts()[name]
	return h, ok
}
