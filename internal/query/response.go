package query

import (
	"time"

	"freebusy/internal/model"
)

// Request is the transport-facing query body.
type Request struct {
	Query     string   `json:"query"`
	Sources   []string `json:"sources,omitempty"`
	MaxTokens int      `json:"max_tokens,omitempty"`
}

// Response is the answer to one query. Conflicts is present whenever
// availability was evaluated; SuggestedSlots whenever the query asked for a
// duration. Both serialize as [] rather than disappearing when empty.
type Response struct {
	Availability   model.Status `json:"availability"`
	Conflicts      []Conflict   `json:"conflicts,omitzero"`
	SuggestedSlots []Slot       `json:"suggested_slots,omitzero"`
	Explanation    string       `json:"explanation"`
}

type Conflict struct {
	Title  string `json:"title"`
	Start  string `json:"start"`
	End    string `json:"end"`
	AllDay bool   `json:"all_day"`
}

type Slot struct {
	Start  string `json:"start"`
	End    string `json:"end"`
	Reason string `json:"reason"`
}

func formatInstant(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(time.RFC3339)
}

func toConflicts(busy []model.BusyInterval, loc *time.Location) []Conflict {
	if busy == nil {
		return nil
	}
	out := make([]Conflict, 0, len(busy))
	for _, b := range busy {
		out = append(out, Conflict{
			Title:  b.Title,
			Start:  formatInstant(b.Start, loc),
			End:    formatInstant(b.End, loc),
			AllDay: b.AllDay,
		})
	}
	return out
}

func toSlots(slots []model.Slot, loc *time.Location) []Slot {
	if slots == nil {
		return nil
	}
	out := make([]Slot, 0, len(slots))
	for _, s := range slots {
		out = append(out, Slot{
			Start:  formatInstant(s.Start, loc),
			End:    formatInstant(s.End, loc),
			Reason: s.Reason,
		})
	}
	return out
}
