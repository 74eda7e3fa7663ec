// Package slots finds free segments of a search window and turns them into
// suggested slots of a requested duration.
package slots

import (
	"time"

	"freebusy/internal/availability"
	"freebusy/internal/model"
)

// Merge sorts busy and coalesces intervals that overlap under policy or
// touch end-to-start. Malformed intervals are dropped.
func Merge(busy []model.BusyInterval, policy model.EdgePolicy) []model.TimeWindow {
	clean, _ := availability.Sanitize(busy)
	merged := make([]model.TimeWindow, 0, len(clean))
	for _, b := range clean {
		if n := len(merged); n > 0 {
			last := &merged[n-1]
			if policy.Overlaps(last.Start, last.End, b.Start, b.End) || !b.Start.After(last.End) {
				if b.End.After(last.End) {
					last.End = b.End
				}
				continue
			}
		}
		merged = append(merged, b.Window())
	}
	return merged
}

// FreeSegments subtracts the merged busy spans from window and returns the
// maximal positive-length free segments in start order.
func FreeSegments(window model.TimeWindow, busy []model.BusyInterval, policy model.EdgePolicy) []model.TimeWindow {
	segments := []model.TimeWindow{}
	if window.Empty() {
		return segments
	}
	current := window.Start
	for _, m := range Merge(busy, policy) {
		if !m.End.After(current) {
			continue
		}
		if !m.Start.Before(window.End) {
			break
		}
		if m.Start.After(current) {
			segments = append(segments, model.TimeWindow{Start: current, End: m.Start})
		}
		current = m.End
	}
	if current.Before(window.End) {
		segments = append(segments, model.TimeWindow{Start: current, End: window.End})
	}
	return segments
}

// Find returns up to n slots of length d, one per free segment of window
// that is long enough, each starting at its segment's start. n < 1 means 1.
// The search never leaves window.
func Find(window model.TimeWindow, d time.Duration, busy []model.BusyInterval, policy model.EdgePolicy, n int) []model.Slot {
	if n < 1 {
		n = 1
	}
	out := []model.Slot{}
	if d <= 0 {
		return out
	}
	for _, seg := range FreeSegments(window, busy, policy) {
		if seg.Duration() < d {
			continue
		}
		out = append(out, model.Slot{Start: seg.Start, End: seg.Start.Add(d), Reason: model.SlotReason})
		if len(out) == n {
			break
		}
	}
	return out
}
