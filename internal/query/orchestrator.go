// Package query composes intent parsing, time resolution, availability and
// slot search into a single answer for a free-text question.
package query

import (
	"time"

	"freebusy/internal/availability"
	"freebusy/internal/intent"
	"freebusy/internal/model"
	"freebusy/internal/resolve"
	"freebusy/internal/slots"
)

// Input is everything needed to answer one query. Nothing is read from the
// clock or the environment.
type Input struct {
	Query     string
	Now       time.Time
	Config    model.Config
	Busy      []model.BusyInterval
	MaxTokens int
}

// Plan is a parsed and resolved query, computed before busy intervals are
// fetched so the caller knows which window to ask the provider for.
type Plan struct {
	Intent intent.Intent
	Target resolve.Target
	// Err is the resolution error, if any. A plan with an error is still
	// answerable: it yields an unknown status.
	Err error

	policy model.EdgePolicy
}

// lookupMargin pads the lookup span so intervals that only touch it are
// still fetched.
const lookupMargin = time.Minute

// NewPlan parses and resolves text.
func NewPlan(text string, now time.Time, cfg model.Config) Plan {
	in := intent.Parse(text)
	target, err := resolve.Resolve(in, now, cfg)
	return Plan{Intent: in, Target: target, Err: err, policy: cfg.EdgePolicy}
}

// Span returns the window busy intervals are needed for. ok is false when
// the plan cannot use any. Under InclusiveEnd an interval touching the
// target counts as a conflict, so the window is widened by lookupMargin on
// both sides; providers only return intervals that strictly overlap.
func (p Plan) Span() (model.TimeWindow, bool) {
	if p.Err != nil {
		return model.TimeWindow{}, false
	}
	span := p.Target.Span()
	if span.IsZero() {
		return span, false
	}
	if p.policy == model.InclusiveEnd {
		span.Start = span.Start.Add(-lookupMargin)
		span.End = span.End.Add(lookupMargin)
	}
	return span, true
}

// Answer runs a full query.
func Answer(in Input) Response {
	return NewPlan(in.Query, in.Now, in.Config).Answer(in.Busy, in.Config, in.MaxTokens)
}

// Answer evaluates p against busy.
//
// Point and range checks go to the availability engine, as do slot searches
// with a direct window (daypart or clock range). Anchored and whole-day slot
// searches have no window to judge and stay unknown. Independently of the
// status, any intent carrying a duration gets slot suggestions.
func (p Plan) Answer(busy []model.BusyInterval, cfg model.Config, maxTokens int) Response {
	loc := cfg.Loc()
	wantsSlots := p.Intent.HasDuration()

	if p.Err != nil {
		resp := Response{Availability: model.StatusUnknown, Explanation: failureNote(p.Err)}
		if wantsSlots {
			resp.SuggestedSlots = []Slot{}
		}
		resp.Explanation = truncateWords(resp.Explanation, maxTokens)
		return resp
	}

	result := availability.Evaluate(p.Target, busy, cfg.EdgePolicy)
	resp := Response{
		Availability: result.Status,
		Conflicts:    toConflicts(result.Conflicts, loc),
	}

	var found []model.Slot
	if wantsSlots {
		found = slots.Find(p.Target.Search, p.Target.Duration, busy, cfg.EdgePolicy, cfg.MaxSuggestions)
		resp.SuggestedSlots = toSlots(found, loc)
	}

	data := explainData{}
	if len(result.Conflicts) > 0 {
		first := result.Conflicts[0]
		data.Title = first.Title
		data.Start = first.Start.In(loc).Format("15:04")
		data.End = first.End.In(loc).Format("15:04")
		data.More = len(result.Conflicts) - 1
	}
	if len(found) > 0 {
		data.Slot = found[0].Start.In(loc).Format("15:04")
	}
	key := explainKey{
		status:         result.Status,
		hasConflicts:   len(result.Conflicts) > 0,
		hasSuggestions: len(found) > 0,
		searched:       wantsSlots,
	}
	resp.Explanation = truncateWords(explain(key, data), maxTokens)
	return resp
}
