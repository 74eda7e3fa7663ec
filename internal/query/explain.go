package query

import (
	"strings"
	"text/template"

	"github.com/pkg/errors"

	"freebusy/internal/model"
	"freebusy/internal/resolve"
)

type explainKey struct {
	status         model.Status
	hasConflicts   bool
	hasSuggestions bool
	searched       bool
}

// explainData feeds the templates. Times are HH:MM in the configured zone.
type explainData struct {
	Title string
	Start string
	End   string
	More  int
	Slot  string
}

const conflictText = `Conflicts with {{.Title}} {{.Start}}-{{.End}}{{if .More}} and {{.More}} more{{end}}`

var explanations = map[explainKey]*template.Template{
	{model.StatusFree, false, false, false}: tmpl(`No conflicts in the requested window.`),
	{model.StatusFree, false, true, true}:   tmpl(`Window is free; earliest slot starts at {{.Slot}}.`),
	{model.StatusFree, false, false, true}:  tmpl(`No conflicts in the requested window, but no free segment fits the requested duration.`),

	{model.StatusBusy, true, false, false}: tmpl(conflictText + `.`),
	{model.StatusBusy, true, true, true}:   tmpl(conflictText + `; earliest free slot starts at {{.Slot}}.`),
	{model.StatusBusy, true, false, true}:  tmpl(conflictText + `; no free segment fits the requested duration.`),

	{model.StatusUnknown, false, false, false}: tmpl(`Could not resolve a specific time window.`),
	{model.StatusUnknown, false, true, true}:   tmpl(`Suggested slots available; earliest starts at {{.Slot}}.`),
	{model.StatusUnknown, false, false, true}:  tmpl(`Could not resolve a specific time window, and no free segment fits the requested duration.`),
}

// failureNotes explain why a query could not be resolved.
var failureNotes = []struct {
	err  error
	note string
}{
	{resolve.ErrOutOfHorizon, "That date is outside the supported planning horizon."},
	{resolve.ErrInvalidDate, "That date does not exist on the calendar."},
	{resolve.ErrInvalidTime, "That time of day is not valid."},
	{resolve.ErrEmptyWindow, "The requested window falls outside work hours."},
	{resolve.ErrUnresolvable, `Could not understand the query; try a date and time such as "tomorrow at 10:00".`},
}

func tmpl(text string) *template.Template {
	return template.Must(template.New("explanation").Parse(text))
}

func explain(key explainKey, data explainData) string {
	t, ok := explanations[key]
	if !ok {
		t = explanations[explainKey{status: model.StatusUnknown}]
	}
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "Could not resolve a specific time window."
	}
	return sb.String()
}

func failureNote(err error) string {
	for _, f := range failureNotes {
		if errors.Is(err, f.err) {
			return f.note
		}
	}
	return "Could not resolve a specific time window."
}

// truncateWords keeps at most limit words of s. limit <= 0 keeps everything.
func truncateWords(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	words := strings.Fields(s)
	if len(words) <= limit {
		return s
	}
	return strings.Join(words[:limit], " ") + "..."
}
