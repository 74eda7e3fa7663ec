// Package intent turns free-text availability questions into a typed intent
// using a fixed token grammar and an ordered rule table.
package intent

// Kind is the shape of question the text asks.
type Kind int

const (
	KindUnknown Kind = iota
	KindPointCheck
	KindRangeCheck
	KindSlotSearch
)

func (k Kind) String() string {
	switch k {
	case KindPointCheck:
		return "point_check"
	case KindRangeCheck:
		return "range_check"
	case KindSlotSearch:
		return "slot_search"
	default:
		return "unknown"
	}
}

// Intent is the parser output. Rule names the table entry that matched, or
// "none" for Unknown.
type Intent struct {
	Kind   Kind
	Rule   string
	Tokens Tokens
}

// HasDuration reports whether the intent asks for a span of time and so
// should produce slot suggestions.
func (i Intent) HasDuration() bool {
	return i.Tokens.HasDuration()
}

// Rule is one entry of the ordered rule table.
type Rule struct {
	Name  string
	Kind  Kind
	Match func(Tokens) bool
}

const (
	RuleDurationAnchor  = "duration_anchor"
	RuleDurationTime    = "duration_time"
	RuleDurationDayPart = "duration_daypart"
	RuleDurationRange   = "duration_range"
	RuleDurationDay     = "duration_day"
	RuleExactTime       = "exact_time"
	RuleTimeRange       = "time_range"
	RuleDayPart         = "daypart"
	RuleAnchor          = "anchor"
	RuleBareDate        = "bare_date"
	RuleNone            = "none"
)

// DefaultRules is the rule table in priority order; the first match wins.
var DefaultRules = []Rule{
	{RuleDurationAnchor, KindSlotSearch, func(t Tokens) bool {
		return t.HasDuration() && t.Anchor.Kind != AnchorNone
	}},
	{RuleDurationTime, KindRangeCheck, func(t Tokens) bool {
		return t.HasDuration() && t.Time.Kind == TimeExact
	}},
	{RuleDurationDayPart, KindSlotSearch, func(t Tokens) bool {
		return t.HasDuration() && t.Time.Kind == TimeDayPart
	}},
	{RuleDurationRange, KindSlotSearch, func(t Tokens) bool {
		return t.HasDuration() && t.Time.Kind == TimeRange
	}},
	{RuleDurationDay, KindSlotSearch, func(t Tokens) bool {
		return t.HasDuration()
	}},
	{RuleExactTime, KindPointCheck, func(t Tokens) bool {
		return t.Time.Kind == TimeExact
	}},
	{RuleTimeRange, KindRangeCheck, func(t Tokens) bool {
		return t.Time.Kind == TimeRange
	}},
	{RuleDayPart, KindRangeCheck, func(t Tokens) bool {
		return t.Time.Kind == TimeDayPart
	}},
	{RuleAnchor, KindRangeCheck, func(t Tokens) bool {
		return t.Anchor.Kind != AnchorNone
	}},
	{RuleBareDate, KindRangeCheck, func(t Tokens) bool {
		return t.Date.Kind != DateNone
	}},
}

// Parser classifies query text against a rule table.
type Parser struct {
	rules []Rule
}

// NewParser returns a parser over rules, or DefaultRules when rules is empty.
func NewParser(rules ...Rule) *Parser {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Parser{rules: rules}
}

// Parse extracts tokens from text and returns the intent of the first
// matching rule. It never fails: text nothing matches is KindUnknown.
func (p *Parser) Parse(text string) Intent {
	toks := Extract(text)
	for _, r := range p.rules {
		if r.Match(toks) {
			return Intent{Kind: r.Kind, Rule: r.Name, Tokens: toks}
		}
	}
	return Intent{Kind: KindUnknown, Rule: RuleNone, Tokens: toks}
}

var defaultParser = NewParser()

// Parse runs the default rule table over text.
func Parse(text string) Intent {
	return defaultParser.Parse(text)
}
