// Package availability decides free/busy for a resolved target against a set
// of busy intervals.
package availability

import (
	"cmp"
	"slices"
	"time"

	"freebusy/internal/model"
	"freebusy/internal/resolve"
)

// Result is the verdict for one target. Conflicts are sorted by start.
type Result struct {
	Status    model.Status
	Conflicts []model.BusyInterval
}

// Sanitize returns a sorted copy of busy without malformed intervals (zero
// instants or Start >= End), and how many were dropped.
func Sanitize(busy []model.BusyInterval) ([]model.BusyInterval, int) {
	out := make([]model.BusyInterval, 0, len(busy))
	for _, b := range busy {
		if b.Valid() {
			out = append(out, b)
		}
	}
	slices.SortStableFunc(out, compare)
	return out, len(busy) - len(out)
}

func compare(a, b model.BusyInterval) int {
	if c := a.Start.Compare(b.Start); c != 0 {
		return c
	}
	if c := a.End.Compare(b.End); c != 0 {
		return c
	}
	return cmp.Compare(a.Title, b.Title)
}

// CheckPoint returns the intervals containing t under policy.
func CheckPoint(t time.Time, busy []model.BusyInterval, policy model.EdgePolicy) []model.BusyInterval {
	clean, _ := Sanitize(busy)
	conflicts := []model.BusyInterval{}
	for _, b := range clean {
		if policy.ContainsPoint(b.Start, b.End, t) {
			conflicts = append(conflicts, b)
		}
	}
	return conflicts
}

// CheckWindow returns the intervals overlapping w under policy.
func CheckWindow(w model.TimeWindow, busy []model.BusyInterval, policy model.EdgePolicy) []model.BusyInterval {
	clean, _ := Sanitize(busy)
	conflicts := []model.BusyInterval{}
	for _, b := range clean {
		if policy.Overlaps(b.Start, b.End, w.Start, w.End) {
			conflicts = append(conflicts, b)
		}
	}
	return conflicts
}

// Evaluate decides the status of target. Targets without an instant or
// window are unknown; otherwise any conflict makes the target busy.
func Evaluate(target resolve.Target, busy []model.BusyInterval, policy model.EdgePolicy) Result {
	var conflicts []model.BusyInterval
	switch {
	case !target.Instant.IsZero():
		conflicts = CheckPoint(target.Instant, busy, policy)
	case !target.Window.IsZero() && !target.Window.Empty():
		conflicts = CheckWindow(target.Window, busy, policy)
	default:
		return Result{Status: model.StatusUnknown}
	}
	if len(conflicts) > 0 {
		return Result{Status: model.StatusBusy, Conflicts: conflicts}
	}
	return Result{Status: model.StatusFree, Conflicts: conflicts}
}
