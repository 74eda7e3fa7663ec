package intent

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"freebusy/internal/model"
)

// DateKind classifies the date reference found in a query.
type DateKind int

const (
	DateNone DateKind = iota
	DateToday
	DateTomorrow
	DateExplicit
	DateWeekday
)

// DateRef is the date token. Year/Month/Day are set for DateExplicit,
// Weekday/Next for DateWeekday.
type DateRef struct {
	Kind    DateKind
	Year    int
	Month   time.Month
	Day     int
	Weekday time.Weekday
	Next    bool
}

// TimeKind classifies the time-of-day reference found in a query.
type TimeKind int

const (
	TimeNone TimeKind = iota
	TimeExact
	TimeRange
	TimeDayPart
)

// TimeRef is the time token. At is set for TimeExact and TimeRange, Until
// for TimeRange, DayPart for TimeDayPart. Clock values are not validated
// here; the resolver rejects out-of-range hours and minutes.
type TimeRef struct {
	Kind    TimeKind
	At      model.ClockTime
	Until   model.ClockTime
	DayPart model.DayPart
}

// AnchorKind is the direction of an "after"/"before" anchor.
type AnchorKind int

const (
	AnchorNone AnchorKind = iota
	AnchorAfter
	AnchorBefore
)

// Anchor is a directional time anchor such as "after 15:00".
type Anchor struct {
	Kind AnchorKind
	At   model.ClockTime
}

// Tokens are the typed pieces extracted from a query.
type Tokens struct {
	Date            DateRef
	Time            TimeRef
	Anchor          Anchor
	DurationMinutes int
	// SlotRequest is set by slot phrasing ("any slot", "book", ...). A slot
	// request without an explicit duration uses the configured default.
	SlotRequest bool
}

// HasDuration reports whether the query asks for a span of time.
func (t Tokens) HasDuration() bool {
	return t.DurationMinutes > 0 || t.SlotRequest
}

const clockRE = `(\d{1,2})(?::(\d{2}))?`

var (
	explicitDatePattern = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)

	halfHourPattern = regexp.MustCompile(`\bhalf\s+an?\s+hour\b`)
	oneHourPattern  = regexp.MustCompile(`\b(?:an|one)\s+hour\b`)
	durationPattern = regexp.MustCompile(`\b(\d{1,3})\s*(minutes?|mins?|m|hours?|hrs?|h)\b`)

	slotPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(?:any|free|open)\s+(?:time\s+)?slots?\b`),
		regexp.MustCompile(`\bfind\s+(?:me\s+)?(?:a\s+|some\s+)?(?:time|slot)\b`),
		regexp.MustCompile(`\bbook\b`),
		regexp.MustCompile(`\bschedule\s+(?:a|an)\b`),
	}

	anchorPattern = regexp.MustCompile(`\b(after|before)\s+(?:(today|tomorrow)\s+)?` + clockRE + `(?:\s+(today|tomorrow))?\b`)

	betweenPattern = regexp.MustCompile(`\bbetween\s+` + clockRE + `\s+and\s+` + clockRE + `\b`)
	rangePattern   = regexp.MustCompile(`\b(?:from\s+)?` + clockRE + `\s*(?:-|–|to|until)\s*` + clockRE + `\b`)

	colonTimePattern = regexp.MustCompile(`\b(?:at\s+)?(\d{1,2}):(\d{2})\b`)
	atHourPattern    = regexp.MustCompile(`\bat\s+(\d{1,2})\b`)
	dayHourPattern   = regexp.MustCompile(`\b(today|tomorrow)\s+(\d{1,2})\b`)

	dayPartPattern = regexp.MustCompile(`\b(morning|afternoon|evening|tonight)\b`)
	weekdayPattern = regexp.MustCompile(`\b(?:(this|next|on)\s+)?(mon|tue|tues|wed|thu|thur|thurs|fri|sat|sun)(?:day|sday|nesday|rsday|urday)?\b`)
	dayWordPattern = regexp.MustCompile(`\b(today|tonight|tomorrow|tmrw|tmr)\b`)
)

var weekdays = map[string]time.Weekday{
	"mon": time.Monday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wed": time.Wednesday, "thu": time.Thursday, "thur": time.Thursday,
	"thurs": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
	"sun": time.Sunday,
}

// scanner walks the lowercased query and blanks every consumed span so that
// later patterns never re-read the same digits.
type scanner struct {
	text string
	toks Tokens
}

func (s *scanner) take(re *regexp.Regexp, fn func(g []string)) bool {
	loc := re.FindStringSubmatchIndex(s.text)
	if loc == nil {
		return false
	}
	groups := make([]string, len(loc)/2)
	for i := range groups {
		if loc[2*i] >= 0 {
			groups[i] = s.text[loc[2*i]:loc[2*i+1]]
		}
	}
	fn(groups)
	s.text = s.text[:loc[0]] + strings.Repeat(" ", loc[1]-loc[0]) + s.text[loc[1]:]
	return true
}

func (s *scanner) setDay(word string) {
	if s.toks.Date.Kind != DateNone {
		return
	}
	switch word {
	case "today", "tonight":
		s.toks.Date = DateRef{Kind: DateToday}
	case "tomorrow", "tmrw", "tmr":
		s.toks.Date = DateRef{Kind: DateTomorrow}
	}
}

// Extract pulls the date, time, duration and anchor tokens out of text using
// the fixed grammar. It never fails; unrecognized text is ignored.
func Extract(text string) Tokens {
	s := &scanner{text: strings.ToLower(text)}

	s.take(explicitDatePattern, func(g []string) {
		s.toks.Date = DateRef{Kind: DateExplicit, Year: atoi(g[1]), Month: time.Month(atoi(g[2])), Day: atoi(g[3])}
	})

	switch {
	case s.take(halfHourPattern, func([]string) { s.toks.DurationMinutes = 30 }):
	case s.take(oneHourPattern, func([]string) { s.toks.DurationMinutes = 60 }):
	default:
		s.take(durationPattern, func(g []string) {
			n := atoi(g[1])
			if strings.HasPrefix(g[2], "h") {
				n *= 60
			}
			s.toks.DurationMinutes = n
		})
	}
	for _, re := range slotPatterns {
		if re.MatchString(s.text) {
			s.toks.SlotRequest = true
			break
		}
	}

	s.take(anchorPattern, func(g []string) {
		kind := AnchorAfter
		if g[1] == "before" {
			kind = AnchorBefore
		}
		s.toks.Anchor = Anchor{Kind: kind, At: clock(g[3], g[4])}
		s.setDay(g[2])
		s.setDay(g[5])
	})

	rangeFn := func(g []string) {
		s.toks.Time = TimeRef{Kind: TimeRange, At: clock(g[1], g[2]), Until: clock(g[3], g[4])}
	}
	if !s.take(betweenPattern, rangeFn) {
		s.take(rangePattern, rangeFn)
	}

	if s.toks.Time.Kind == TimeNone {
		exactFn := func(h, m string) {
			s.toks.Time = TimeRef{Kind: TimeExact, At: clock(h, m)}
		}
		switch {
		case s.take(colonTimePattern, func(g []string) { exactFn(g[1], g[2]) }):
		case s.take(atHourPattern, func(g []string) { exactFn(g[1], "") }):
		default:
			s.take(dayHourPattern, func(g []string) {
				s.setDay(g[1])
				exactFn(g[2], "")
			})
		}
	}

	s.take(dayPartPattern, func(g []string) {
		if g[1] == "tonight" {
			s.setDay("today")
			g[1] = string(model.Evening)
		}
		if s.toks.Time.Kind == TimeNone {
			s.toks.Time = TimeRef{Kind: TimeDayPart, DayPart: model.DayPart(g[1])}
		}
	})

	s.take(weekdayPattern, func(g []string) {
		if s.toks.Date.Kind != DateNone {
			return
		}
		s.toks.Date = DateRef{Kind: DateWeekday, Weekday: weekdays[g[2]], Next: g[1] == "next"}
	})
	s.take(dayWordPattern, func(g []string) { s.setDay(g[1]) })

	return s.toks
}

func clock(h, m string) model.ClockTime {
	return model.Clock(atoi(h), atoi(m))
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
