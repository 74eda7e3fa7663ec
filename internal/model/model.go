package model

import "time"

// Status is the availability verdict for a resolved target.
type Status string

const (
	StatusFree    Status = "free"
	StatusBusy    Status = "busy"
	StatusUnknown Status = "unknown"
)

// SlotReason is the fixed label attached to every suggested slot.
const SlotReason = "earliest free segment"

// BusyInterval is a single blocked span of calendar time as handed to the
// availability core. Start must be strictly before End; intervals violating
// that are dropped before evaluation.
//
// All-day intervals are expected to be normalized already to
// [local-midnight(D), local-midnight(D+1)) in the configured timezone.
type BusyInterval struct {
	Title  string    `json:"title"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	AllDay bool      `json:"all_day"`
}

// Valid reports whether the interval can take part in overlap math.
func (b BusyInterval) Valid() bool {
	if b.Start.IsZero() || b.End.IsZero() {
		return false
	}
	return b.Start.Before(b.End)
}

// Window returns the interval as a TimeWindow.
func (b BusyInterval) Window() TimeWindow {
	return TimeWindow{Start: b.Start, End: b.End}
}

// TimeWindow is a half-open [Start, End) span. Whether a busy interval that
// merely touches a boundary counts as a conflict is decided by EdgePolicy.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// IsZero reports whether the window was never set.
func (w TimeWindow) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// Empty reports whether the window contains no time at all.
func (w TimeWindow) Empty() bool {
	return !w.Start.Before(w.End)
}

// Duration returns End-Start, or zero for empty windows.
func (w TimeWindow) Duration() time.Duration {
	if w.Empty() {
		return 0
	}
	return w.End.Sub(w.Start)
}

// Intersect returns the overlap of w and o. The result may be empty.
func (w TimeWindow) Intersect(o TimeWindow) TimeWindow {
	out := w
	if o.Start.After(out.Start) {
		out.Start = o.Start
	}
	if o.End.Before(out.End) {
		out.End = o.End
	}
	return out
}

// In converts both bounds into loc.
func (w TimeWindow) In(loc *time.Location) TimeWindow {
	return TimeWindow{Start: w.Start.In(loc), End: w.End.In(loc)}
}

// Slot is a suggested free span of exactly the requested duration.
type Slot struct {
	Start  time.Time
	End    time.Time
	Reason string
}

// Occurrence represents a single concrete instance of a calendar event
// (after recurrence expansion and timezone normalization).
type Occurrence struct {
	SourceID string // calendar source ID
	UID      string // iCalendar UID

	// InstanceKey uniquely identifies a single occurrence of a recurring
	// event, typically derived from the local start time.
	InstanceKey string

	Summary  string
	Location string

	AllDay bool

	// Start / End are in the configured timezone. For all-day occurrences
	// they are local midnights.
	Start time.Time
	End   time.Time
}

// Busy converts the occurrence into the interval shape the core consumes.
func (o Occurrence) Busy() BusyInterval {
	title := o.Summary
	if title == "" {
		title = "calendar event"
	}
	return BusyInterval{
		Title:  title,
		Start:  o.Start,
		End:    o.End,
		AllDay: o.AllDay,
	}
}
