// Package resolve turns a parsed intent into concrete instants and windows in
// the configured timezone.
package resolve

import (
	"time"

	"github.com/pkg/errors"

	"freebusy/internal/intent"
	"freebusy/internal/model"
)

var (
	ErrOutOfHorizon = errors.New("date outside the resolution horizon")
	ErrInvalidTime  = errors.New("invalid time of day")
	ErrInvalidDate  = errors.New("invalid calendar date")
	ErrEmptyWindow  = errors.New("empty time window")
	ErrUnresolvable = errors.New("nothing to resolve")
)

// Target is a resolved intent.
//
// Instant is set for point checks. Window is the span availability is
// evaluated over; it is zero for slot searches without a direct window
// (anchored or whole-day). Search is the slot search window and is set only
// when the intent carries a duration.
type Target struct {
	Kind     intent.Kind
	Rule     string
	Day      time.Time
	Instant  time.Time
	Window   model.TimeWindow
	Search   model.TimeWindow
	Duration time.Duration
}

// Evaluable reports whether the target has an instant or a window that
// availability can be decided for.
func (t Target) Evaluable() bool {
	return !t.Instant.IsZero() || !t.Window.IsZero()
}

// Span is the smallest window covering the resolved day and every instant or
// window on the target. Callers use it to bound busy interval lookups.
func (t Target) Span() model.TimeWindow {
	out := model.TimeWindow{Start: t.Day, End: t.Day.AddDate(0, 0, 1)}
	if t.Day.IsZero() {
		out = model.TimeWindow{}
	}
	extend := func(w model.TimeWindow) {
		if w.IsZero() {
			return
		}
		if out.IsZero() {
			out = w
			return
		}
		if w.Start.Before(out.Start) {
			out.Start = w.Start
		}
		if w.End.After(out.End) {
			out.End = w.End
		}
	}
	if !t.Instant.IsZero() {
		extend(model.TimeWindow{Start: t.Instant, End: t.Instant.Add(time.Minute)})
	}
	extend(t.Window)
	extend(t.Search)
	return out
}

// Resolve maps in onto concrete times relative to now under cfg. It is
// deterministic in its arguments and never reads the clock.
func Resolve(in intent.Intent, now time.Time, cfg model.Config) (Target, error) {
	if in.Kind == intent.KindUnknown {
		return Target{Kind: in.Kind, Rule: in.Rule}, ErrUnresolvable
	}
	loc := cfg.Loc()
	toks := in.Tokens

	day, err := resolveDate(toks.Date, now, loc, cfg.HorizonDays)
	if err != nil {
		return Target{}, err
	}

	t := Target{Kind: in.Kind, Rule: in.Rule, Day: day}
	if toks.HasDuration() {
		minutes := toks.DurationMinutes
		if minutes <= 0 {
			minutes = cfg.DefaultSlotMinutes
		}
		t.Duration = time.Duration(minutes) * time.Minute
	}
	work := cfg.WorkHours.On(day, loc)

	switch in.Rule {
	case intent.RuleExactTime:
		at, err := clockOn(toks.Time.At, day, loc)
		if err != nil {
			return Target{}, err
		}
		t.Instant = at

	case intent.RuleDurationTime:
		at, err := clockOn(toks.Time.At, day, loc)
		if err != nil {
			return Target{}, err
		}
		t.Window = model.TimeWindow{Start: at, End: at.Add(t.Duration)}
		t.Search = model.TimeWindow{Start: at, End: work.End}.Intersect(work)

	case intent.RuleTimeRange, intent.RuleDurationRange:
		w, err := clockRange(toks.Time.At, toks.Time.Until, day, loc)
		if err != nil {
			return Target{}, err
		}
		t.Window = w

	case intent.RuleDayPart, intent.RuleDurationDayPart:
		hours, ok := cfg.DayPart(toks.Time.DayPart)
		if !ok {
			return Target{}, errors.Wrapf(ErrEmptyWindow, "unknown daypart %q", toks.Time.DayPart)
		}
		w := hours.On(day, loc).Intersect(work)
		if w.Empty() {
			return Target{}, errors.Wrapf(ErrEmptyWindow, "%s %s outside work hours %s", toks.Time.DayPart, hours, cfg.WorkHours)
		}
		t.Window = w

	case intent.RuleAnchor, intent.RuleDurationAnchor:
		w, err := anchorWindow(toks.Anchor, day, loc, work)
		if err != nil {
			return Target{}, err
		}
		if in.Rule == intent.RuleAnchor {
			t.Window = w
		} else {
			t.Search = w
		}

	case intent.RuleBareDate:
		t.Window = work

	case intent.RuleDurationDay:
		t.Search = work

	default:
		return Target{}, errors.Wrapf(ErrUnresolvable, "rule %q", in.Rule)
	}

	if t.Duration > 0 && t.Search.IsZero() && !t.Window.IsZero() {
		t.Search = t.Window.Intersect(work)
	}
	return t, nil
}

// resolveDate returns local midnight of the referenced calendar date.
func resolveDate(ref intent.DateRef, now time.Time, loc *time.Location, horizon int) (time.Time, error) {
	today := model.Midnight(now, loc)
	y, m, d := today.Date()

	var day time.Time
	switch ref.Kind {
	case intent.DateNone, intent.DateToday:
		day = today
	case intent.DateTomorrow:
		day = time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	case intent.DateWeekday:
		// A weekday is always 1 to 7 days ahead, never today. "this" and
		// "next" resolve alike.
		delta := (int(ref.Weekday) - int(today.Weekday()) + 7) % 7
		if delta == 0 {
			delta = 7
		}
		day = time.Date(y, m, d+delta, 0, 0, 0, 0, loc)
	case intent.DateExplicit:
		day = time.Date(ref.Year, ref.Month, ref.Day, 0, 0, 0, 0, loc)
		if dy, dm, dd := day.Date(); dy != ref.Year || dm != ref.Month || dd != ref.Day {
			return time.Time{}, errors.Wrapf(ErrInvalidDate, "%04d-%02d-%02d", ref.Year, int(ref.Month), ref.Day)
		}
	default:
		return time.Time{}, errors.Wrapf(ErrInvalidDate, "date kind %d", ref.Kind)
	}

	if horizon > 0 {
		if n := daysBetween(today, day); n > horizon || n < -horizon {
			return time.Time{}, errors.Wrapf(ErrOutOfHorizon, "%s is %d days from today (limit %d)", day.Format(time.DateOnly), n, horizon)
		}
	}
	return day, nil
}

// daysBetween counts calendar days from a to b, ignoring DST length changes.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua) / (24 * time.Hour))
}

func clockOn(c model.ClockTime, day time.Time, loc *time.Location) (time.Time, error) {
	if !c.Valid() {
		return time.Time{}, errors.Wrapf(ErrInvalidTime, "%02d:%02d", c.Hour, c.Minute)
	}
	return c.On(day, loc), nil
}

func clockRange(from, until model.ClockTime, day time.Time, loc *time.Location) (model.TimeWindow, error) {
	start, err := clockOn(from, day, loc)
	if err != nil {
		return model.TimeWindow{}, err
	}
	end, err := clockOn(until, day, loc)
	if err != nil {
		return model.TimeWindow{}, err
	}
	if !start.Before(end) {
		return model.TimeWindow{}, errors.Wrapf(ErrInvalidTime, "range %s-%s ends before it starts", from, until)
	}
	return model.TimeWindow{Start: start, End: end}, nil
}

func anchorWindow(a intent.Anchor, day time.Time, loc *time.Location, work model.TimeWindow) (model.TimeWindow, error) {
	at, err := clockOn(a.At, day, loc)
	if err != nil {
		return model.TimeWindow{}, err
	}
	w := work
	switch a.Kind {
	case intent.AnchorAfter:
		if at.After(w.Start) {
			w.Start = at
		}
	case intent.AnchorBefore:
		if at.Before(w.End) {
			w.End = at
		}
	}
	if w.Empty() {
		return model.TimeWindow{}, errors.Wrapf(ErrEmptyWindow, "%s leaves no work hours", a.At)
	}
	return w, nil
}
